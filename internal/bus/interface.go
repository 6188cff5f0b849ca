package bus

import (
	"context"
	"io"
	"log"
)

// RefreshMessage is published after every refresh round so downstream
// consumers (dashboards, alerting) can react without polling the store.
type RefreshMessage struct {
	RunID          string   `json:"run_id"`
	FeedCount      int      `json:"feed_count"`
	IndicatorCount int      `json:"indicator_count"`
	Errors         []string `json:"errors,omitempty"`
	DurationMS     int64    `json:"duration_ms"`
	Timestamp      int64    `json:"timestamp"`
}

// Bus defines the interface for refresh notification backends.
type Bus interface {
	// PublishRefresh publishes a refresh summary to the refreshes stream.
	PublishRefresh(ctx context.Context, msg RefreshMessage) error

	// HealthCheck performs a health check on the bus connection.
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection.
	Close() error
}

// NewBus creates a bus instance based on the Redis URL. An empty URL or a
// failed connection yields a NullBus: notifications are best-effort and
// never a reason for a refresh to fail.
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	redisBus, err := NewRedisBus(redisURL, logger)
	if err != nil {
		logger.Printf("Redis bus unavailable, falling back to null bus: %v", err)
		return NewNullBus(logger)
	}
	return redisBus
}
