package redis

import (
	"context"
	"fmt"
	"strings"

	"custodial-wallet/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// keyNamespace prefixes every key this service writes so it can share a Redis instance.
const keyNamespace = "cwl"

// key joins parts under the service namespace: key("event_lock", "42") -> "cwl:event_lock:42".
func key(parts ...string) string {
	return keyNamespace + ":" + strings.Join(parts, ":")
}

// NewClient creates a Redis client and verifies connectivity.
// Every store built on it is an accelerator over PostgreSQL, so commands fail fast
// instead of retrying: one retry, and read/write deadlines of cfg.OpTimeout.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	opts := &goredis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: 1,
	}
	if cfg.OpTimeout > 0 {
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
	}
	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Dur("op_timeout", cfg.OpTimeout).
		Str("namespace", keyNamespace).
		Msg("Redis connection established")

	return client, nil
}
