package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// EventLock implements ports.EventLock using Redis SET NX with a TTL.
type EventLock struct {
	client *goredis.Client
	tokens sync.Map // providerEventID -> token
}

// NewEventLock creates a Redis-backed per-event processing lock.
func NewEventLock(client *goredis.Client) *EventLock {
	return &EventLock{client: client}
}

// Acquire takes the lock for one provider event.
// Returns false if another delivery of the same event holds it.
func (l *EventLock) Acquire(ctx context.Context, providerEventID string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	result, err := l.client.SetArgs(ctx, key("event_lock", providerEventID), token, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Key already exists: another worker owns the event
			return false, nil
		}
		return false, fmt.Errorf("redis event lock acquire: %w", err)
	}
	if result != "OK" {
		return false, nil
	}
	l.tokens.Store(providerEventID, token)
	return true, nil
}

// Release drops the lock if this process still owns it.
func (l *EventLock) Release(ctx context.Context, providerEventID string) error {
	token, ok := l.tokens.LoadAndDelete(providerEventID)
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{key("event_lock", providerEventID)}, token).Err(); err != nil {
		return fmt.Errorf("redis event lock release: %w", err)
	}
	return nil
}
