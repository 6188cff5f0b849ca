package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"taxiiwatch/internal/bus"
	"taxiiwatch/internal/feed"
	"taxiiwatch/internal/refresh"
	"taxiiwatch/internal/store"
	"taxiiwatch/internal/web"
)

var (
	refreshSchedule string
	refreshOnStart  bool
	watchFeeds      bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP facade and background refresh services",
	Long: `Start the taxiiwatch server which includes:

1. HTTP JSON API for feed management, refresh, search, and discovery
2. Optional cron-scheduled feed refresh
3. Optional feeds-file watcher that refreshes after external edits
4. Prometheus metrics on /metrics

The serve command runs until interrupted (Ctrl+C).

Examples:
  # Start the API on the default bind address
  taxiiwatch serve

  # Refresh every 15 minutes
  taxiiwatch serve --refresh-schedule "*/15 * * * *"

  # Refresh once at startup and whenever the feeds file changes
  taxiiwatch serve --refresh-on-start --watch-feeds`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&refreshSchedule, "refresh-schedule", "", "Cron expression for scheduled refresh (empty disables)")
	serveCmd.Flags().BoolVar(&refreshOnStart, "refresh-on-start", false, "Run one refresh round at startup")
	serveCmd.Flags().BoolVar(&watchFeeds, "watch-feeds", false, "Refresh when the feeds file changes externally")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	logger := log.New(os.Stderr, "[serve] ", log.LstdFlags)
	logger.Println("Starting taxiiwatch server")

	feeds := feed.NewStore(config.Data.FeedsFile, logger)
	indicators := feed.NewIndicatorStore(config.Data.IndicatorsFile, logger)

	logger.Printf("Using history database at %s", config.Data.HistoryDB)
	history, err := store.NewStore(config.Data.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to initialize history store: %w", err)
	}
	defer history.Close()

	logger.Println("Connecting to event bus...")
	eventBus := bus.NewBus(config.Redis.URL, logger)
	defer eventBus.Close()

	orch := refresh.NewOrchestrator(feeds, indicators, logger,
		refresh.WithHistory(history),
		refresh.WithBus(eventBus),
	)

	server := web.NewServer(feeds, indicators, orch, web.Options{
		Bind:    config.HTTP.Bind,
		Logger:  logger,
		History: history,
	})
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP facade: %w", err)
	}

	if refreshOnStart {
		if summary, err := orch.RefreshAll(ctx); err != nil {
			logger.Printf("startup refresh failed: %v", err)
		} else {
			logger.Printf("startup refresh: %d indicators, %d errors", summary.Total, len(summary.Errors))
		}
	}

	if refreshSchedule != "" {
		c := cron.New()
		_, err := c.AddFunc(refreshSchedule, func() {
			logger.Println("Starting scheduled refresh...")
			if summary, err := orch.RefreshAll(ctx); err != nil {
				logger.Printf("scheduled refresh failed: %v", err)
			} else {
				logger.Printf("scheduled refresh: %d indicators, %d errors", summary.Total, len(summary.Errors))
			}
		})
		if err != nil {
			return fmt.Errorf("invalid --refresh-schedule: %w", err)
		}
		c.Start()
		defer c.Stop()
		logger.Printf("Scheduled refresh enabled: %q", refreshSchedule)
	}

	if watchFeeds {
		go func() {
			err := feed.Watch(ctx, feeds.Path(), logger, func() {
				if summary, err := orch.RefreshAll(ctx); err != nil {
					logger.Printf("watch-triggered refresh failed: %v", err)
				} else {
					logger.Printf("watch-triggered refresh: %d indicators, %d errors", summary.Total, len(summary.Errors))
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Printf("feeds watcher error: %v", err)
			}
		}()
	}

	// Wait for context cancellation
	<-ctx.Done()
	logger.Println("Received shutdown signal")
	logger.Println("taxiiwatch server stopped")
	return nil
}
