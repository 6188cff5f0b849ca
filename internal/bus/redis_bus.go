package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// refreshStream is the Redis Stream refresh summaries are appended to.
const refreshStream = "taxiiwatch:refreshes"

// refreshStreamMaxLen caps the stream so an unattended instance cannot grow
// Redis without bound.
const refreshStreamMaxLen = 1024

// RedisBus publishes refresh notifications to a Redis Stream.
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisBus creates a new Redis bus instance.
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishRefresh appends a refresh summary to the refreshes stream.
func (rb *RedisBus) PublishRefresh(ctx context.Context, msg RefreshMessage) error {
	errorsJSON, err := json.Marshal(msg.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh errors: %w", err)
	}

	fields := map[string]interface{}{
		"run_id":          msg.RunID,
		"feed_count":      msg.FeedCount,
		"indicator_count": msg.IndicatorCount,
		"errors":          string(errorsJSON),
		"duration_ms":     msg.DurationMS,
		"timestamp":       msg.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: refreshStream,
		MaxLen: refreshStreamMaxLen,
		Approx: true,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish refresh: %w", err)
	}

	rb.logger.Printf("Published refresh %s to %s", msg.RunID, refreshStream)
	return nil
}

// HealthCheck performs a health check on the Redis connection.
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}
