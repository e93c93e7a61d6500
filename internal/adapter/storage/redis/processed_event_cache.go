package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ProcessedEventCache implements ports.ProcessedEventCache using Redis.
type ProcessedEventCache struct {
	client *goredis.Client
}

// NewProcessedEventCache creates a Redis-backed processed-event cache.
func NewProcessedEventCache(client *goredis.Client) *ProcessedEventCache {
	return &ProcessedEventCache{client: client}
}

// Get returns the reference a provider event settled, or "" if unknown.
func (c *ProcessedEventCache) Get(ctx context.Context, providerEventID string) (string, error) {
	val, err := c.client.Get(ctx, key("processed_event", providerEventID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis processed event get: %w", err)
	}
	return val, nil
}

// Mark records that a provider event reached a final outcome.
func (c *ProcessedEventCache) Mark(ctx context.Context, providerEventID string, reference string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key("processed_event", providerEventID), reference, ttl).Err(); err != nil {
		return fmt.Errorf("redis processed event set: %w", err)
	}
	return nil
}
