package bus

import (
	"context"
	"log"
)

// NullBus is a no-op implementation of the bus interface for when Redis is
// disabled or unreachable.
type NullBus struct {
	logger *log.Logger
}

// NewNullBus creates a new null bus instance.
func NewNullBus(logger *log.Logger) *NullBus {
	if logger == nil {
		logger = log.New(log.Writer(), "[NullBus] ", log.LstdFlags)
	}

	return &NullBus{
		logger: logger,
	}
}

// Close is a no-op for null bus.
func (nb *NullBus) Close() error {
	return nil
}

// PublishRefresh logs the summary but doesn't actually publish it.
func (nb *NullBus) PublishRefresh(ctx context.Context, msg RefreshMessage) error {
	nb.logger.Printf("Would publish refresh %s: %d indicators, %d errors (Redis disabled)",
		msg.RunID, msg.IndicatorCount, len(msg.Errors))
	return nil
}

// HealthCheck always returns nil for null bus.
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
