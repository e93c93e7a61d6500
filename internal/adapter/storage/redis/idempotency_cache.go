package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyCache holds the stored result of committed transfers, keyed by
// the caller-scoped idempotency key. PostgreSQL's idempotency_logs stays the record.
type IdempotencyCache struct {
	client *goredis.Client
}

func NewIdempotencyCache(client *goredis.Client) *IdempotencyCache {
	return &IdempotencyCache{client: client}
}

// Get returns the cached transfer result, or nil, nil on a miss.
func (c *IdempotencyCache) Get(ctx context.Context, idemKey string) ([]byte, error) {
	val, err := c.client.Get(ctx, key("idempotency", idemKey)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	return val, nil
}

// Set caches a committed transfer result. The first write for a key wins;
// a result for a given key never changes once committed.
func (c *IdempotencyCache) Set(ctx context.Context, idemKey string, value []byte, ttl time.Duration) error {
	err := c.client.SetArgs(ctx, key("idempotency", idemKey), value, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}
