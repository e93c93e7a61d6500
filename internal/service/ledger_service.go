package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService.
// Callers must hold row locks on every wallet they pass in (see LockWallets).
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	now        func() time.Time
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// LockWallets takes FOR UPDATE locks on the given wallets in ascending id order.
// The fixed order keeps opposite-direction transfers from deadlocking.
func (s *LedgerServiceImpl) LockWallets(ctx context.Context, tx pgx.Tx, walletIDs []uuid.UUID) (map[uuid.UUID]*domain.Wallet, error) {
	ordered := slices.Clone(walletIDs)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	ordered = slices.Compact(ordered)

	locked := make(map[uuid.UUID]*domain.Wallet, len(ordered))
	for _, id := range ordered {
		wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return nil, storageError("lock wallet", err)
		}
		if wallet == nil {
			return nil, apperror.ErrNotFound("Wallet")
		}
		locked[id] = wallet
	}
	return locked, nil
}

// Debit removes amount from a locked wallet and appends its ledger record.
func (s *LedgerServiceImpl) Debit(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, amount int64, entry ports.LedgerEntry) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !wallet.CanDebit(amount) {
		return nil, apperror.ErrInsufficientFunds()
	}

	newBalance := wallet.Balance - amount
	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		if errors.Is(err, domain.ErrConstraint) {
			return nil, apperror.ErrInsufficientFunds()
		}
		return nil, storageError("debit wallet", err)
	}

	txn, err := s.appendRecord(ctx, tx, wallet.ID, amount, entry)
	if err != nil {
		return nil, err
	}
	wallet.Balance = newBalance
	return txn, nil
}

// Credit adds amount to a locked wallet and appends its ledger record.
func (s *LedgerServiceImpl) Credit(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, amount int64, entry ports.LedgerEntry) (*domain.Transaction, error) {
	if amount <= 0 || wallet.Balance > math.MaxInt64-amount {
		return nil, apperror.ErrInvalidAmount()
	}

	newBalance := wallet.Balance + amount
	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return nil, storageError("credit wallet", err)
	}

	txn, err := s.appendRecord(ctx, tx, wallet.ID, amount, entry)
	if err != nil {
		return nil, err
	}
	wallet.Balance = newBalance
	return txn, nil
}

func (s *LedgerServiceImpl) appendRecord(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64, entry ports.LedgerEntry) (*domain.Transaction, error) {
	now := s.now()
	txn := &domain.Transaction{
		ID:                       uuid.New(),
		WalletID:                 walletID,
		Kind:                     entry.Kind,
		Amount:                   amount,
		Status:                   domain.TransactionStatusSuccess,
		Reference:                entry.Reference,
		CounterpartyWalletNumber: entry.CounterpartyWalletNumber,
		CreatedAt:                now,
		ProcessedAt:              &now,
	}
	if err := s.txRepo.Create(ctx, tx, txn); err != nil {
		return nil, storageError("append ledger record", err)
	}
	return txn, nil
}

// OpenDeposit records a pending deposit. The balance is untouched until settlement.
func (s *LedgerServiceImpl) OpenDeposit(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, amount int64, reference string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	txn := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Kind:      domain.TransactionKindDeposit,
		Amount:    amount,
		Status:    domain.TransactionStatusPending,
		Reference: reference,
		CreatedAt: s.now(),
	}
	if err := s.txRepo.Create(ctx, tx, txn); err != nil {
		return nil, storageError("open deposit", err)
	}
	return txn, nil
}

// SettleDeposit credits the deposit's amount and stamps it success with the provider event id.
// Both writes share tx, so a credited-but-pending deposit can never be observed.
func (s *LedgerServiceImpl) SettleDeposit(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, deposit *domain.Transaction, providerEventID string) error {
	if !deposit.IsPendingDeposit() {
		return apperror.ErrTransactionFinalized()
	}
	if deposit.WalletID != wallet.ID {
		return apperror.InternalError(fmt.Errorf("deposit %s does not belong to wallet %s", deposit.ID, wallet.ID))
	}
	if wallet.Balance > math.MaxInt64-deposit.Amount {
		return apperror.ErrInvalidAmount()
	}

	newBalance := wallet.Balance + deposit.Amount
	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return storageError("credit deposit", err)
	}

	now := s.now()
	eventID := providerEventID
	if err := s.txRepo.MarkSuccess(ctx, tx, deposit.ID, &eventID, now); err != nil {
		return storageError("mark deposit success", err)
	}

	wallet.Balance = newBalance
	deposit.Status = domain.TransactionStatusSuccess
	deposit.ProviderEventID = &eventID
	deposit.ProcessedAt = &now
	return nil
}

// FailDeposit moves a pending deposit to failed without touching any balance.
func (s *LedgerServiceImpl) FailDeposit(ctx context.Context, tx pgx.Tx, deposit *domain.Transaction) error {
	if !deposit.IsPendingDeposit() {
		return apperror.ErrTransactionFinalized()
	}

	now := s.now()
	if err := s.txRepo.MarkFailed(ctx, tx, deposit.ID, now); err != nil {
		return storageError("mark deposit failed", err)
	}

	deposit.Status = domain.TransactionStatusFailed
	deposit.ProcessedAt = &now
	return nil
}

// newReference returns a fresh external reference: "TXN-" + 16 uppercase hex characters.
func newReference() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	return "TXN-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}
