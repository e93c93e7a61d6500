package postgres

import (
	"context"
	"errors"
	"fmt"

	"custodial-wallet/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo stores the committed result of each keyed transfer.
type IdempotencyRepo struct {
	pool Pool
}

func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create records a transfer result inside the transfer's own transaction.
// ON CONFLICT DO NOTHING blocks on a concurrent holder of the same key until it
// commits or rolls back; a committed holder surfaces here as domain.ErrDuplicate.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	query := `INSERT INTO idempotency_logs (key, transaction_id, response_json, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`

	tag, err := tx.Exec(ctx, query, log.Key, log.TransactionID, log.ResponseJSON, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert idempotency log: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency key %q: %w", log.Key, domain.ErrDuplicate)
	}
	return nil
}

// Get returns the stored result for key, or nil when the key was never committed.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	query := `SELECT key, transaction_id, response_json, created_at
		FROM idempotency_logs WHERE key = $1`

	var log domain.IdempotencyLog
	err := r.pool.QueryRow(ctx, query, key).Scan(&log.Key, &log.TransactionID, &log.ResponseJSON, &log.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency log: %w", err)
	}
	return &log, nil
}
