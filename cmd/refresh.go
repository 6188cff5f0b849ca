package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taxiiwatch/internal/bus"
	"taxiiwatch/internal/feed"
	"taxiiwatch/internal/refresh"
	"taxiiwatch/internal/store"
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch all configured feeds once and replace the indicator store",
	Long: `Fetch every configured TAXII feed sequentially, normalize the returned
STIX indicators, and replace the local indicator store with the result.

A feed that fails contributes zero indicators and an error entry; the
other feeds are unaffected. The run is recorded in the history database
and, when Redis is configured, announced on the refreshes stream.

Examples:
  # Refresh with the default store locations
  taxiiwatch refresh

  # Refresh against a different data directory
  taxiiwatch refresh --data-dir /var/lib/taxiiwatch`,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	logger := log.New(os.Stderr, "[refresh] ", log.LstdFlags)

	feeds := feed.NewStore(config.Data.FeedsFile, logger)
	indicators := feed.NewIndicatorStore(config.Data.IndicatorsFile, logger)

	history, err := store.NewStore(config.Data.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to initialize history store: %w", err)
	}
	defer history.Close()

	eventBus := bus.NewBus(config.Redis.URL, logger)
	defer eventBus.Close()

	orch := refresh.NewOrchestrator(feeds, indicators, logger,
		refresh.WithHistory(history),
		refresh.WithBus(eventBus),
	)

	summary, err := orch.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	fmt.Printf("Fetched %d indicators in %s\n", summary.Total, summary.Duration.Round(time.Millisecond))
	if len(summary.Errors) == 0 {
		fmt.Println("All feeds succeeded.")
		return nil
	}
	fmt.Printf("%d feeds reported errors:\n", len(summary.Errors))
	for _, fe := range summary.Errors {
		fmt.Printf("  - %s: %s\n", fe.FeedName, fe.Message)
	}
	return nil
}
