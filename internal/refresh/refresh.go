package refresh

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"taxiiwatch/internal/bus"
	"taxiiwatch/internal/feed"
	"taxiiwatch/internal/stix"
	"taxiiwatch/internal/store"
	"taxiiwatch/internal/taxii"
)

// Fetcher retrieves the indicators of one feed. The production
// implementation builds a fresh TAXII client per feed; tests substitute
// their own.
type Fetcher interface {
	Fetch(ctx context.Context, f feed.Feed) ([]stix.Indicator, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, f feed.Feed) ([]stix.Indicator, error)

// Fetch implements Fetcher.
func (fn FetcherFunc) Fetch(ctx context.Context, f feed.Feed) ([]stix.Indicator, error) {
	return fn(ctx, f)
}

// TAXIIFetcher returns the default Fetcher backed by a per-feed TAXII
// client. No client state is shared between feeds.
func TAXIIFetcher(logger *log.Logger) Fetcher {
	return FetcherFunc(func(ctx context.Context, f feed.Feed) ([]stix.Indicator, error) {
		client := taxii.NewClient(taxii.Config{
			APIRootURL:      f.APIRootURL,
			CollectionTitle: f.CollectionTitle,
			Username:        f.Username,
			Password:        f.Password,
			Logger:          logger,
		})
		return client.FetchIndicators(ctx)
	})
}

// FeedError records a feed that contributed an error during a round.
type FeedError struct {
	FeedName string `json:"feed_name"`
	Message  string `json:"error"`
}

// Summary is the outcome of one refresh round.
type Summary struct {
	RunID    string        `json:"run_id"`
	Total    int           `json:"count"`
	Errors   []FeedError   `json:"errors,omitempty"`
	Duration time.Duration `json:"-"`
}

// Orchestrator runs refresh rounds: every configured feed is fetched in
// persisted order, results are concatenated, and the indicator store is
// wholly replaced. One failing feed never blocks the others.
type Orchestrator struct {
	feeds      *feed.Store
	indicators *feed.IndicatorStore
	history    *store.Store
	bus        bus.Bus
	fetcher    Fetcher
	logger     *log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFetcher overrides the default TAXII-backed fetcher.
func WithFetcher(f Fetcher) Option {
	return func(o *Orchestrator) { o.fetcher = f }
}

// WithHistory enables refresh-run recording.
func WithHistory(h *store.Store) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithBus enables refresh notifications.
func WithBus(b bus.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// NewOrchestrator builds an orchestrator over the given stores.
func NewOrchestrator(feeds *feed.Store, indicators *feed.IndicatorStore, logger *log.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	o := &Orchestrator{
		feeds:      feeds,
		indicators: indicators,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetcher == nil {
		o.fetcher = TAXIIFetcher(logger)
	}
	return o
}

// RefreshAll fetches every feed sequentially and replaces the indicator
// store with the concatenated result. Partial per-feed results are kept
// even when that feed later failed mid-pagination.
func (o *Orchestrator) RefreshAll(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.New().String()}

	feeds, err := o.feeds.List()
	if err != nil {
		return summary, err
	}

	all := make([]stix.Indicator, 0)
	for _, f := range feeds {
		indicators, err := o.fetcher.Fetch(ctx, f)
		if err != nil {
			o.logger.Printf("feed %q: %v", f.Name, err)
			summary.Errors = append(summary.Errors, FeedError{
				FeedName: f.Name,
				Message:  err.Error(),
			})
		}
		for i := range indicators {
			indicators[i].FeedSource = f.Name
		}
		all = append(all, indicators...)
	}

	if err := o.indicators.Replace(all); err != nil {
		return summary, err
	}

	summary.Total = len(all)
	summary.Duration = time.Since(start)
	o.logger.Printf("refresh %s: %d feeds, %d indicators, %d errors in %s",
		summary.RunID, len(feeds), summary.Total, len(summary.Errors), summary.Duration)

	o.record(ctx, summary, len(feeds))
	return summary, nil
}

// record persists the run and publishes the bus notification; both are
// best-effort and only logged on failure.
func (o *Orchestrator) record(ctx context.Context, summary Summary, feedCount int) {
	if o.history != nil {
		run := store.Run{
			ID:             summary.RunID,
			StartedAt:      time.Now().Add(-summary.Duration),
			DurationMS:     summary.Duration.Milliseconds(),
			FeedCount:      feedCount,
			IndicatorCount: summary.Total,
		}
		for _, fe := range summary.Errors {
			run.Errors = append(run.Errors, store.RunError{FeedName: fe.FeedName, Message: fe.Message})
		}
		if _, err := o.history.RecordRun(ctx, run); err != nil {
			o.logger.Printf("failed to record refresh run: %v", err)
		}
	}

	if o.bus != nil {
		msg := bus.RefreshMessage{
			RunID:          summary.RunID,
			FeedCount:      feedCount,
			IndicatorCount: summary.Total,
			DurationMS:     summary.Duration.Milliseconds(),
			Timestamp:      time.Now().Unix(),
		}
		for _, fe := range summary.Errors {
			msg.Errors = append(msg.Errors, fe.FeedName+": "+fe.Message)
		}
		if err := o.bus.PublishRefresh(ctx, msg); err != nil {
			o.logger.Printf("failed to publish refresh notification: %v", err)
		}
	}
}

// LookupIndicator searches every configured feed for an object id and
// returns the first hit's detail record. Feeds that fail are skipped.
func (o *Orchestrator) LookupIndicator(ctx context.Context, objectID string) (stix.Indicator, bool) {
	feeds, err := o.feeds.List()
	if err != nil {
		o.logger.Printf("lookup %s: %v", objectID, err)
		return stix.Indicator{}, false
	}
	for _, f := range feeds {
		client := taxii.NewClient(taxii.Config{
			APIRootURL:      f.APIRootURL,
			CollectionTitle: f.CollectionTitle,
			Username:        f.Username,
			Password:        f.Password,
			Logger:          o.logger,
		})
		ind, err := client.LookupIndicator(ctx, objectID)
		if err != nil {
			o.logger.Printf("lookup %s in feed %q: %v", objectID, f.Name, err)
			continue
		}
		ind.FeedSource = f.Name
		return ind, true
	}
	return stix.Indicator{}, false
}
