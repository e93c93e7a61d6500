package ports

import (
	"context"
	"time"

	"custodial-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerService is the only code path allowed to change balances or transaction status.
// Every method runs inside the caller's database transaction.
type LedgerService interface {
	LockWallets(ctx context.Context, tx pgx.Tx, walletIDs []uuid.UUID) (map[uuid.UUID]*domain.Wallet, error)
	Debit(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, amount int64, entry LedgerEntry) (*domain.Transaction, error)
	Credit(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, amount int64, entry LedgerEntry) (*domain.Transaction, error)
	OpenDeposit(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, amount int64, reference string) (*domain.Transaction, error)
	SettleDeposit(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, deposit *domain.Transaction, providerEventID string) error
	FailDeposit(ctx context.Context, tx pgx.Tx, deposit *domain.Transaction) error
}

// LedgerEntry describes the record written alongside a balance change.
type LedgerEntry struct {
	Kind                     domain.TransactionKind
	Reference                string
	CounterpartyWalletNumber *string
}

// TransferService moves funds between two wallets atomically.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*domain.TransferResult, error)
}

// TransferRequest holds validated input for a peer transfer.
type TransferRequest struct {
	UserID                uuid.UUID
	RecipientWalletNumber string
	Amount                int64
	IdempotencyKey        string // Optional
}

// DepositService owns the deposit state machine.
type DepositService interface {
	Initiate(ctx context.Context, userID uuid.UUID, amount int64) (*domain.DepositInitiation, error)
	CheckStatus(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error)
	ApplyConfirmedEvent(ctx context.Context, providerEventID string, reference string, amount int64) (domain.EventOutcome, error)
	ApplyFailedEvent(ctx context.Context, reference string) (domain.EventOutcome, error)
}

// ProviderWebhookService authenticates and dispatches inbound provider webhooks.
type ProviderWebhookService interface {
	Handle(ctx context.Context, payload []byte, signature string, clientIP string) (domain.EventOutcome, error)
}

// CredentialService owns the API key lifecycle.
type CredentialService interface {
	Issue(ctx context.Context, userID uuid.UUID, name string, permissions []domain.Permission, expiry domain.ExpiryDuration) (*domain.IssuedAPIKey, error)
	Validate(ctx context.Context, secret string, required domain.Permission) (*domain.APIKey, error)
	Revoke(ctx context.Context, userID uuid.UUID, keyID uuid.UUID) error
	Rollover(ctx context.Context, userID uuid.UUID, expiredKeyID uuid.UUID, expiry domain.ExpiryDuration) (*domain.IssuedAPIKey, error)
	List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
}

// AuthService defines user registration and session issuance.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*UserProfile, error)
	Login(ctx context.Context, email, password string) (string, time.Time, error) // token, expiry, error
	GetProfile(ctx context.Context, userID uuid.UUID) (*UserProfile, error)
}

// RegisterRequest holds input for user registration.
type RegisterRequest struct {
	Email    string
	Password string
	FullName string
}

// UserProfile pairs a user with their wallet.
type UserProfile struct {
	User   *domain.User
	Wallet *domain.Wallet
}

// WalletService serves read-only wallet views.
type WalletService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, int64, error)
	GetSummary(ctx context.Context, userID uuid.UUID) (*domain.WalletSummary, error)
}

// AuditService records audit entries without blocking the request path.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
