package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ledgerTxOptions: read committed plus SELECT ... FOR UPDATE on wallet and deposit rows.
// Each locked row is re-read after the lock is granted, so stronger isolation adds only retries.
var ledgerTxOptions = pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadWrite,
}

// Transactor implements ports.DBTransactor on top of the pool.
type Transactor struct {
	pool Pool
}

func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a ledger transaction. Lock waits inside it are bounded by the
// pool's lock_timeout and surface as domain.ErrLockTimeout.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.BeginTx(ctx, ledgerTxOptions)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", translate(err))
	}
	return tx, nil
}
