package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
	"github.com/openledgerworks/bookd-automation/pkg/config"
	"github.com/openledgerworks/bookd-automation/pkg/db"
	"github.com/openledgerworks/bookd-automation/pkg/pathutil"
	"github.com/openledgerworks/bookd-automation/pkg/rollover"
)

var (
	sourceBook     string
	targetBook     string
	openingDate    string
	description    string
	equityAccount  string
	openingAccount string
	policyFile     string
	dryRun         bool
	force          bool
)

// rolloverCmd represents the rollover command.
var rolloverCmd = &cobra.Command{
	Use:   "rollover [SOURCE] [TARGET]",
	Short: "Roll a book's closing balances into a new year's book",
	Long: `Roll over a year-end book into a fresh book for the new year.

This command:
1. Opens the source book read-only and reads its closing balances
2. Creates the target book with the same account tree
3. Writes opening transactions dated the first day of the new year
4. Copies the learned import rule table verbatim
5. Saves the target book and records the rollover in SQLite

The books can be given as positional arguments or with --source and
--target. The target path and opening date are derived from the year in
the source book's file name when not given.

Example:
  book-roll rollover 2024 2025
  book-roll rollover --source 2024 --dry-run`,
	Args: cobra.MaximumNArgs(2),
	Run:  runRollover,
}

func init() {
	// Flags
	rolloverCmd.Flags().StringVar(&sourceBook, "source", "", "Source book name or path")
	rolloverCmd.Flags().StringVar(&targetBook, "target", "", "Target book name or path (default: source with year+1)")
	rolloverCmd.Flags().StringVar(&openingDate, "opening-date", "", "Opening date YYYY-MM-DD (default: Jan 1 of the target year)")
	rolloverCmd.Flags().StringVar(&description, "description", "", "Opening transaction description (default from policy)")
	rolloverCmd.Flags().StringVar(&equityAccount, "equity-account", "", "Equity parent account name (default from policy)")
	rolloverCmd.Flags().StringVar(&openingAccount, "opening-account", "", "Opening-balance account name under the equity parent (default from policy)")
	rolloverCmd.Flags().StringVar(&policyFile, "policy", "", "Rollover policy file (default: rollover.yaml under the books root)")
	rolloverCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Dry run mode (print the plan, write nothing)")
	rolloverCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing target book without prompting")
}

func runRollover(cmd *cobra.Command, args []string) {
	applyPositionalBooks(args)
	slog.Info("Starting rollover", "source", sourceBook, "target", targetBook, "dry_run", dryRun)

	// Load configuration
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	// Validate required fields
	if err := cfg.Validate(
		[]string{"bookd", "apiUrl"},
		[]string{"books", "root"},
	); err != nil {
		exitOnError(err, "invalid configuration")
	}

	// Initialize components
	pathResolver := pathutil.New(pathutil.Config{
		BooksRoot:    cfg.Books.Root,
		DatabasePath: cfg.Books.HistoryDBPath,
		PolicyPath:   cfg.Books.PolicyPath,
	})

	source, target, opening := resolveRolloverPaths(pathResolver)

	// Load rollover policy
	policy := loadPolicy(pathResolver)

	// Initialize bookd API client
	client := newBookdClient(cfg)

	// Open history database
	dbPath := pathResolver.GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)
	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	history := db.NewHistory(conn)

	engine := rollover.NewEngine(client, policy)
	opts := rollover.Options{
		SourcePath:  source,
		TargetPath:  target,
		OpeningDate: opening,
		Description: description,
	}

	if dryRun {
		plan, err := engine.Plan(opts)
		if err != nil {
			reportRolloverError(err)
			os.Exit(1)
		}

		fmt.Printf("[DRY RUN] Would roll %s into %s\n\n", source, target)
		fmt.Println(plan.Format())
		return
	}

	// Note a previous rollover of the same pair
	if prior, err := history.GetRollover(source, target); err == nil && prior != nil {
		printInfof(os.Stdout, "This pair was already rolled over on %s", prior.CompletedAt.Format("2006-01-02"))
	}

	// An existing target needs operator confirmation before overwriting
	opts.Overwrite = force
	if !opts.Overwrite {
		opts.Overwrite = confirmOverwrite(client, target)
	}

	result, err := engine.Run(opts)
	if err != nil {
		reportRolloverError(err)
		os.Exit(1)
	}

	// Record rollover history
	if err := history.RecordRollover(db.RolloverRecord{
		SourcePath:          source,
		TargetPath:          target,
		OpeningDate:         opening,
		AccountsCreated:     int64(result.AccountsCreated),
		TransactionsWritten: int64(result.TransactionsWritten),
		RulesCopied:         int64(result.RulesCopied),
		TotalValue:          result.Plan.TotalValue().String(),
		BaseCurrency:        result.Plan.BaseCurrency,
	}); err != nil {
		slog.Error("Failed to record rollover history", "error", err)
	}

	fmt.Println()
	fmt.Println(result.Plan.Format())

	printSuccess(os.Stdout, fmt.Sprintf("Rolled %s into %s", source, target))

	fmt.Println("\n=== Rollover Summary ===")
	fmt.Printf("Accounts created:     %d\n", result.AccountsCreated)
	fmt.Printf("Opening transactions: %d\n", result.TransactionsWritten)
	fmt.Printf("Rules copied:         %d\n", result.RulesCopied)
	fmt.Println()

	slog.Info("Rollover completed",
		"accounts", result.AccountsCreated,
		"transactions", result.TransactionsWritten,
		"rules", result.RulesCopied,
	)
}

// applyPositionalBooks lets the books be given as positional arguments in
// place of the --source and --target flags.
func applyPositionalBooks(args []string) {
	if len(args) > 0 && sourceBook == "" {
		sourceBook = args[0]
	}
	if len(args) > 1 && targetBook == "" {
		targetBook = args[1]
	}
	if sourceBook == "" {
		exitOnError(errors.New("pass a source book as an argument or with --source"), "missing source book")
	}
}

// resolveRolloverPaths resolves the source and target book paths and the
// opening date, deriving the optional ones from the year in the file name.
func resolveRolloverPaths(pathResolver *pathutil.PathResolver) (source, target, opening string) {
	source = pathResolver.ResolveBookPath(sourceBook)

	target = targetBook
	if target == "" {
		derived, err := pathutil.NextYearBookPath(source)
		exitOnError(err, "cannot derive target book path, pass --target")
		target = derived
	} else {
		target = pathResolver.ResolveBookPath(target)
	}

	opening = openingDate
	if opening == "" {
		year, err := pathutil.YearFromBookPath(target)
		exitOnError(err, "cannot derive opening date, pass --opening-date")
		opening = fmt.Sprintf("%d-01-01", year)
	}

	return source, target, opening
}

// loadPolicy loads the rollover policy file if one is configured or present
// under the books root. Without one the built-in defaults apply. The
// --equity-account and --opening-account flags override the file either way.
func loadPolicy(pathResolver *pathutil.PathResolver) *rollover.Policy {
	path := policyFile
	if path == "" {
		path = pathResolver.GetPolicyPath()
		if !pathResolver.FileExists(path) {
			slog.Debug("No rollover policy file, using defaults")
			return overridePolicyAccounts(nil)
		}
	}

	policy, err := rollover.LoadPolicy(path)
	exitOnError(err, "failed to load rollover policy")
	slog.Info("Loaded rollover policy", "path", path)

	return overridePolicyAccounts(policy)
}

func overridePolicyAccounts(policy *rollover.Policy) *rollover.Policy {
	if equityAccount == "" && openingAccount == "" {
		return policy
	}

	if policy == nil {
		policy = rollover.DefaultPolicy()
	}
	if equityAccount != "" {
		policy.EquityAccount = equityAccount
	}
	if openingAccount != "" {
		policy.OpeningAccount = openingAccount
	}

	return policy
}

// newBookdClient builds the API client, fetching an access token via client
// credentials when the config does not carry one.
func newBookdClient(cfg *config.Config) *bookd.Client {
	client := bookd.NewClient(bookd.ClientConfig{
		APIURL:       cfg.Bookd.APIURL,
		ClientID:     cfg.Bookd.ClientID,
		ClientSecret: cfg.Bookd.ClientSecret,
		AccessToken:  cfg.Bookd.AccessToken,
		Timeout:      time.Duration(cfg.Bookd.TimeoutSeconds) * time.Second,
	})

	if cfg.Bookd.AccessToken == "" {
		if !cfg.HasCredentials() {
			exitOnError(errors.New("set BOOKD_ACCESS_TOKEN or BOOKD_CLIENT_ID and BOOKD_CLIENT_SECRET"),
				"missing bookd credentials")
		}

		slog.Debug("Fetching access token")
		_, err := client.GetAccessToken()
		exitOnError(err, "failed to obtain access token")
	}

	return client
}

// confirmOverwrite checks for an existing target book and asks the operator
// whether to overwrite it. It exits when the operator declines.
func confirmOverwrite(client *bookd.Client, target string) bool {
	existing, err := client.GetBook(target)
	if err != nil {
		if bookd.IsNotFound(err) {
			return false
		}
		exitOnError(err, "failed to check target book")
	}

	if existing.SavedAt == nil {
		printInfof(os.Stdout, "Target book %s exists but was never saved, likely left by a failed rollover", target)
	} else {
		printInfof(os.Stdout, "Target book %s already exists", target)
	}

	confirmed, err := promptYesNo(fmt.Sprintf("Overwrite %s?", target))
	exitOnError(err, "failed to read confirmation")

	if !confirmed {
		printError(os.Stderr, "Aborted, re-run with --force to overwrite")
		os.Exit(1)
	}

	return true
}

// reportRolloverError prints a failure with guidance matching its category.
func reportRolloverError(err error) {
	slog.Error("Rollover failed", "error", err)
	printError(os.Stderr, err.Error())

	switch {
	case errors.Is(err, rollover.ErrSourceOpen):
		fmt.Fprintln(os.Stderr, "Nothing was created. Check the source book path and the bookd service.")
	case errors.Is(err, rollover.ErrTargetExists):
		fmt.Fprintln(os.Stderr, "Pass --force or confirm the prompt to overwrite the target book.")
	case errors.Is(err, rollover.ErrStructuralMismatch):
		fmt.Fprintln(os.Stderr, "The account layout does not line up. Fix the source book and re-run.")
	case errors.Is(err, rollover.ErrTargetWrite):
		fmt.Fprintln(os.Stderr, "A partial unsaved target book may be left behind. Delete it or re-run with --force.")
	}
}
