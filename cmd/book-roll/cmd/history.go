package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openledgerworks/bookd-automation/pkg/config"
	"github.com/openledgerworks/bookd-automation/pkg/db"
	"github.com/openledgerworks/bookd-automation/pkg/pathutil"
)

var historyLimit int

// historyCmd represents the history command.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display rollover history and statistics",
	Long: `Display recorded rollovers and verification statistics.

Shows:
- The most recent rollovers with their source and target books
- Total number of rollovers
- Verification runs and how many came back clean

Example:
  book-roll history
  book-roll history --limit 5`,
	Run: runHistory,
}

func init() {
	// Flags
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of recent rollovers to show")
}

func runHistory(cmd *cobra.Command, args []string) {
	slog.Info("Loading configuration")

	// Load configuration
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	// Validate required fields
	if err := cfg.Validate([]string{"books", "root"}); err != nil {
		exitOnError(err, "invalid configuration")
	}

	// Initialize PathResolver
	pathResolver := pathutil.New(pathutil.Config{
		BooksRoot:    cfg.Books.Root,
		DatabasePath: cfg.Books.HistoryDBPath,
		PolicyPath:   cfg.Books.PolicyPath,
	})

	// Open database connection
	dbPath := pathResolver.GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)

	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	history := db.NewHistory(conn)

	// Get recent rollovers
	records, err := history.GetRecentRollovers(historyLimit)
	exitOnError(err, "failed to get rollover history")

	if len(records) == 0 {
		fmt.Println("No rollovers recorded")
	} else {
		fmt.Println("\n=== Recent Rollovers ===")
		for _, record := range records {
			fmt.Printf("%s  %s -> %s\n",
				record.CompletedAt.Format("2006-01-02 15:04"),
				pathStyle.Render(record.SourcePath),
				pathStyle.Render(record.TargetPath),
			)
			fmt.Printf("    opened %s, %d accounts, %d transactions, %d rules, net %s %s\n",
				record.OpeningDate,
				record.AccountsCreated,
				record.TransactionsWritten,
				record.RulesCopied,
				record.TotalValue,
				record.BaseCurrency,
			)

			// Show the latest verification for this target, if any
			verifications, err := history.GetVerifications(record.TargetPath)
			if err == nil && len(verifications) > 0 {
				latest := verifications[0]
				if latest.ProblemCount == 0 {
					printSuccess(os.Stdout, fmt.Sprintf("    verified clean on %s", latest.VerifiedAt.Format("2006-01-02")))
				} else {
					printError(os.Stdout, fmt.Sprintf("    last verification found %d problem(s)", latest.ProblemCount))
				}
			}
		}
	}

	// Get statistics
	stats, err := history.GetStats()
	exitOnError(err, "failed to get statistics")

	// Display statistics
	fmt.Println("\n=== Rollover Statistics ===")
	fmt.Printf("Total rollovers:       %d\n", stats.TotalRollovers)
	fmt.Printf("Verification runs:     %d\n", stats.TotalVerifications)
	fmt.Printf("Clean verifications:   %d\n", stats.CleanVerifications)

	if stats.LastRollover.Valid {
		fmt.Printf("Last rollover:         %s\n", stats.LastRollover.String)
	} else {
		fmt.Printf("Last rollover:         (never)\n")
	}

	fmt.Println()

	slog.Info("History displayed successfully")
}
