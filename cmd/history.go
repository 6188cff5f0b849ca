package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"taxiiwatch/internal/store"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent refresh runs",
	Long: `Show recent refresh runs from the history database, newest first,
including per-feed errors.

Examples:
  taxiiwatch history
  taxiiwatch history --limit 5`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	config := GetConfig()

	history, err := store.NewStore(config.Data.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer history.Close()

	runs, err := history.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No refresh runs recorded.")
		return nil
	}

	fmt.Printf("Last %d refresh runs:\n\n", len(runs))
	for i, run := range runs {
		fmt.Printf("%d. %s\n", i+1, run.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("   Run: %s\n", run.ID)
		fmt.Printf("   Feeds: %d, Indicators: %d, Errors: %d, Duration: %dms\n",
			run.FeedCount, run.IndicatorCount, run.ErrorCount, run.DurationMS)
		for _, re := range run.Errors {
			fmt.Printf("   ! %s: %s\n", re.FeedName, re.Message)
		}
		fmt.Println()
	}
	return nil
}
