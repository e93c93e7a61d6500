package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"custodial-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, wallet_id, kind, amount, status, reference,
		counterparty_wallet_number, provider_event_id, created_at, processed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.Kind, t.Amount, t.Status, t.Reference,
		t.CounterpartyWalletNumber, t.ProviderEventID, t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", translate(err))
	}
	return nil
}

// GetByReference fetches a transaction by reference and kind (non-locking read).
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string, kind domain.TransactionKind) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1 AND kind = $2`
	return scanTransaction(r.pool.QueryRow(ctx, query, reference, kind))
}

// GetByReferenceForUpdate locks a transaction row by reference and kind.
// This MUST be called within a transaction.
func (r *TransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string, kind domain.TransactionKind) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1 AND kind = $2 FOR UPDATE`
	t, err := scanTransaction(tx.QueryRow(ctx, query, reference, kind))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// GetByProviderEventID finds the transaction a provider event was applied to, if any.
func (r *TransactionRepo) GetByProviderEventID(ctx context.Context, tx pgx.Tx, providerEventID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider_event_id = $1`
	return scanTransaction(tx.QueryRow(ctx, query, providerEventID))
}

// MarkSuccess moves a pending transaction to success, stamping the provider event if given.
// Returns domain.ErrNotPending if the row is already terminal.
func (r *TransactionRepo) MarkSuccess(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerEventID *string, processedAt time.Time) error {
	query := `UPDATE transactions SET status = 'success', provider_event_id = $1, processed_at = $2
		WHERE id = $3 AND status = 'pending'`

	tag, err := tx.Exec(ctx, query, providerEventID, processedAt, id)
	if err != nil {
		return fmt.Errorf("mark transaction success: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark transaction success %s: %w", id, domain.ErrNotPending)
	}
	return nil
}

// MarkFailed moves a pending transaction to failed.
// Returns domain.ErrNotPending if the row is already terminal.
func (r *TransactionRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, processedAt time.Time) error {
	query := `UPDATE transactions SET status = 'failed', processed_at = $1 WHERE id = $2 AND status = 'pending'`

	tag, err := tx.Exec(ctx, query, processedAt, id)
	if err != nil {
		return fmt.Errorf("mark transaction failed: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark transaction failed %s: %w", id, domain.ErrNotPending)
	}
	return nil
}

// List fetches a wallet's transactions with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, walletID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	conditions := []string{"wallet_id = $1"}
	args := []any{walletID}
	argIdx := 2

	if filter.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, *filter.Kind)
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *filter.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, filter.PageSize, filter.Offset())

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		if err := rows.Scan(transactionDest(&t)...); err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// Summary aggregates a wallet's movements.
func (r *TransactionRepo) Summary(ctx context.Context, walletID uuid.UUID) (*domain.WalletSummary, error) {
	query := `SELECT
		COALESCE(SUM(amount) FILTER (WHERE kind = 'deposit' AND status = 'success'), 0) AS deposits,
		COALESCE(SUM(amount) FILTER (WHERE kind = 'transfer_in' AND status = 'success'), 0) AS transfer_in,
		COALESCE(SUM(amount) FILTER (WHERE kind = 'transfer_out' AND status = 'success'), 0) AS transfer_out,
		COUNT(*) FILTER (WHERE status = 'success') AS successful,
		COUNT(*) FILTER (WHERE status = 'pending') AS pending,
		COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM transactions WHERE wallet_id = $1`

	s := &domain.WalletSummary{}
	err := r.pool.QueryRow(ctx, query, walletID).Scan(
		&s.TotalDeposits, &s.TotalTransferIn, &s.TotalTransferOut,
		&s.SuccessCount, &s.PendingCount, &s.FailedCount,
	)
	if err != nil {
		return nil, fmt.Errorf("get wallet summary: %w", err)
	}
	return s, nil
}

func transactionDest(t *domain.Transaction) []any {
	return []any{
		&t.ID, &t.WalletID, &t.Kind, &t.Amount, &t.Status, &t.Reference,
		&t.CounterpartyWalletNumber, &t.ProviderEventID, &t.CreatedAt, &t.ProcessedAt,
	}
}

// scanTransaction is a helper to scan a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	if err := row.Scan(transactionDest(t)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}
