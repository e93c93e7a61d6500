package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// HealthCheck reports Redis healthy only when it accepts writes.
// A read-only replica answers PING but cannot take event locks or cache replays.
type HealthCheck struct {
	client *goredis.Client
}

func NewHealthCheck(client *goredis.Client) *HealthCheck {
	return &HealthCheck{client: client}
}

// Ping writes and deletes a short-lived probe key.
func (h *HealthCheck) Ping(ctx context.Context) error {
	probe := key("health")
	if err := h.client.Set(ctx, probe, time.Now().Unix(), 5*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write probe: %w", err)
	}
	if err := h.client.Del(ctx, probe).Err(); err != nil {
		return fmt.Errorf("redis write probe cleanup: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "redis"
}
