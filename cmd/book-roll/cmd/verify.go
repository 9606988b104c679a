package cmd

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openledgerworks/bookd-automation/pkg/config"
	"github.com/openledgerworks/bookd-automation/pkg/db"
	"github.com/openledgerworks/bookd-automation/pkg/pathutil"
	"github.com/openledgerworks/bookd-automation/pkg/rollover"
)

// verifyCmd represents the verify command.
var verifyCmd = &cobra.Command{
	Use:   "verify [SOURCE] [TARGET]",
	Short: "Verify a finished rollover against its source book",
	Long: `Verify that a target book matches what a rollover of the source
book should have produced.

This command:
1. Recomputes the rollover plan from the source book
2. Checks the target book was saved and has the same account tree
3. Checks every opening transaction against the plan's balances
4. Checks the copied import rule table matches the source

Example:
  book-roll verify 2024 2025
  book-roll verify --source 2024`,
	Args: cobra.MaximumNArgs(2),
	Run:  runVerify,
}

func init() {
	// Flags
	verifyCmd.Flags().StringVar(&sourceBook, "source", "", "Source book name or path")
	verifyCmd.Flags().StringVar(&targetBook, "target", "", "Target book name or path (default: source with year+1)")
	verifyCmd.Flags().StringVar(&openingDate, "opening-date", "", "Opening date YYYY-MM-DD (default: Jan 1 of the target year)")
	verifyCmd.Flags().StringVar(&description, "description", "", "Opening transaction description (default from policy)")
	verifyCmd.Flags().StringVar(&equityAccount, "equity-account", "", "Equity parent account name (default from policy)")
	verifyCmd.Flags().StringVar(&openingAccount, "opening-account", "", "Opening-balance account name under the equity parent (default from policy)")
	verifyCmd.Flags().StringVar(&policyFile, "policy", "", "Rollover policy file (default: rollover.yaml under the books root)")
}

func runVerify(cmd *cobra.Command, args []string) {
	applyPositionalBooks(args)
	slog.Info("Starting verification", "source", sourceBook, "target", targetBook)

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
	policy := loadPolicy(pathResolver)
	client := newBookdClient(cfg)

	// Open history database
	conn, err := db.Open(pathResolver.GetDatabasePath())
	exitOnError(err, "failed to open database")
	defer conn.Close()

	history := db.NewHistory(conn)

	engine := rollover.NewEngine(client, policy)
	report, err := engine.Verify(rollover.Options{
		SourcePath:  source,
		TargetPath:  target,
		OpeningDate: opening,
		Description: description,
	})
	exitOnError(err, "verification could not run")

	// Record the verification run
	record := db.VerificationRecord{
		SourcePath:   source,
		TargetPath:   target,
		ProblemCount: int64(len(report.Problems)),
	}
	if len(report.Problems) > 0 {
		record.Problems = sql.NullString{String: strings.Join(report.Problems, "\n"), Valid: true}
	}
	if err := history.RecordVerification(record); err != nil {
		slog.Error("Failed to record verification history", "error", err)
	}

	if !report.OK() {
		fmt.Println()
		for _, problem := range report.Problems {
			printError(os.Stdout, problem)
		}
		fmt.Printf("\n%d problem(s) found\n", len(report.Problems))
		os.Exit(1)
	}

	printSuccess(os.Stdout, fmt.Sprintf("Verified %s against %s", target, source))

	fmt.Println("\n=== Verification Summary ===")
	fmt.Printf("Accounts checked:     %d\n", report.AccountsChecked)
	fmt.Printf("Openings checked:     %d\n", report.OpeningsChecked)
	fmt.Printf("Rules checked:        %d\n", report.RulesChecked)
	fmt.Println()
}
