package postgres

import (
	"context"
	"errors"
	"fmt"
)

// HealthCheck reports PostgreSQL healthy when it is reachable and the ledger schema exists.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping checks connectivity, then that migrations have created the ledger tables.
func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.pool.Ping(ctx); err != nil {
		return err
	}

	var migrated bool
	err := h.pool.QueryRow(ctx,
		`SELECT to_regclass('public.wallets') IS NOT NULL AND to_regclass('public.transactions') IS NOT NULL`,
	).Scan(&migrated)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	if !migrated {
		return errors.New("ledger schema missing, run migrations")
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
