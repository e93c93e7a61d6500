package ports

import (
	"context"
	"time"

	"custodial-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByWalletNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error)
	WalletNumberExists(ctx context.Context, tx pgx.Tx, walletNumber string) (bool, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error
}

// TransactionRepository defines persistence operations for ledger records.
// Status changes only succeed on pending rows; terminal rows are immutable.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByReference(ctx context.Context, reference string, kind domain.TransactionKind) (*domain.Transaction, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string, kind domain.TransactionKind) (*domain.Transaction, error)
	GetByProviderEventID(ctx context.Context, tx pgx.Tx, providerEventID string) (*domain.Transaction, error)
	MarkSuccess(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerEventID *string, processedAt time.Time) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, processedAt time.Time) error
	List(ctx context.Context, walletID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, int64, error)
	Summary(ctx context.Context, walletID uuid.UUID) (*domain.WalletSummary, error)
}

// APIKeyRepository defines persistence operations for API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	CountActive(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	Revoke(ctx context.Context, id uuid.UUID, userID uuid.UUID, at time.Time) (bool, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit trail entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// WebhookEventRepository persists the receipt log of provider webhooks.
type WebhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
	ListByProviderEventID(ctx context.Context, providerEventID string) ([]domain.WebhookEvent, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
