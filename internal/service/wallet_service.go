package service

import (
	"context"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// WalletServiceImpl implements ports.WalletService. It only reads.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(walletRepo ports.WalletRepository, txRepo ports.TransactionRepository) *WalletServiceImpl {
	return &WalletServiceImpl{walletRepo: walletRepo, txRepo: txRepo}
}

// GetBalance returns the caller's wallet.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return s.walletFor(ctx, userID)
}

// ListTransactions pages through the caller's ledger records, newest first.
func (s *WalletServiceImpl) ListTransactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	wallet, err := s.walletFor(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	if filter.Kind != nil && !filter.Kind.IsValid() {
		return nil, 0, apperror.Validation("unknown transaction kind")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, apperror.Validation("unknown transaction status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	txns, total, err := s.txRepo.List(ctx, wallet.ID, filter)
	if err != nil {
		return nil, 0, storageError("list transactions", err)
	}
	return txns, total, nil
}

// GetSummary returns aggregate totals for the caller's wallet.
func (s *WalletServiceImpl) GetSummary(ctx context.Context, userID uuid.UUID) (*domain.WalletSummary, error) {
	wallet, err := s.walletFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary, err := s.txRepo.Summary(ctx, wallet.ID)
	if err != nil {
		return nil, storageError("summarize wallet", err)
	}
	return summary, nil
}

func (s *WalletServiceImpl) walletFor(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storageError("find wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}
	return wallet, nil
}
