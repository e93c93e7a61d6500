package service

import (
	"context"
	"errors"
	"fmt"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DepositServiceImpl implements ports.DepositService.
type DepositServiceImpl struct {
	userRepo    ports.UserRepository
	walletRepo  ports.WalletRepository
	txRepo      ports.TransactionRepository
	ledger      ports.LedgerService
	provider    ports.PaymentProvider
	transactor  ports.DBTransactor
	limits      AmountLimits
	callbackURL string
	log         zerolog.Logger
}

// NewDepositService creates a new DepositServiceImpl.
func NewDepositService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	ledger ports.LedgerService,
	provider ports.PaymentProvider,
	transactor ports.DBTransactor,
	limits AmountLimits,
	callbackURL string,
	log zerolog.Logger,
) *DepositServiceImpl {
	return &DepositServiceImpl{
		userRepo:    userRepo,
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		ledger:      ledger,
		provider:    provider,
		transactor:  transactor,
		limits:      limits,
		callbackURL: callbackURL,
		log:         log,
	}
}

// Initiate records a pending deposit under a fresh reference, then opens a provider checkout for it.
func (s *DepositServiceImpl) Initiate(ctx context.Context, userID uuid.UUID, amount int64) (*domain.DepositInitiation, error) {
	if err := s.limits.Check(amount); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storageError("find user", err)
	}
	if user == nil {
		return nil, apperror.ErrNotFound("User")
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storageError("find wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	reference, err := newReference()
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	deposit, err := s.openDeposit(ctx, wallet, amount, reference)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.InitializeTransaction(ctx, ports.CheckoutRequest{
		Email:       user.Email,
		Amount:      amount,
		Reference:   reference,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		// The reference exists now; close it out so it cannot be settled later.
		if failErr := s.failDeposit(context.WithoutCancel(ctx), deposit); failErr != nil {
			s.log.Error().Err(failErr).Str("reference", reference).Msg("failed to mark deposit failed after provider error")
		}
		return nil, apperror.ErrProviderUnavailable(err)
	}

	s.log.Info().
		Str("reference", reference).
		Str("wallet_id", wallet.ID.String()).
		Int64("amount", amount).
		Msg("deposit initiated")

	return &domain.DepositInitiation{
		Reference:        reference,
		AuthorizationURL: session.AuthorizationURL,
		AccessCode:       session.AccessCode,
	}, nil
}

func (s *DepositServiceImpl) openDeposit(ctx context.Context, wallet *domain.Wallet, amount int64, reference string) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	deposit, err := s.ledger.OpenDeposit(ctx, dbTx, wallet, amount, reference)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit deposit", err)
	}
	return deposit, nil
}

func (s *DepositServiceImpl) failDeposit(ctx context.Context, deposit *domain.Transaction) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.ledger.FailDeposit(ctx, dbTx, deposit); err != nil {
		return err
	}
	return dbTx.Commit(ctx)
}

// CheckStatus returns the caller's deposit by reference. It never mutates state.
func (s *DepositServiceImpl) CheckStatus(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storageError("find wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	deposit, err := s.txRepo.GetByReference(ctx, reference, domain.TransactionKindDeposit)
	if err != nil {
		return nil, storageError("find deposit", err)
	}
	// Another user's reference reads as missing.
	if deposit == nil || deposit.WalletID != wallet.ID {
		return nil, apperror.ErrNotFound("Transaction")
	}
	return deposit, nil
}

// ApplyConfirmedEvent credits a pending deposit exactly once per provider event.
// Outcomes other than EventOutcomeApplied leave every balance unchanged.
func (s *DepositServiceImpl) ApplyConfirmedEvent(ctx context.Context, providerEventID string, reference string, amount int64) (domain.EventOutcome, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	settled, err := s.txRepo.GetByProviderEventID(ctx, dbTx, providerEventID)
	if err != nil {
		return "", storageError("find by provider event", err)
	}
	if settled != nil {
		return domain.EventOutcomeAlreadyApplied, nil
	}

	deposit, err := s.txRepo.GetByReferenceForUpdate(ctx, dbTx, reference, domain.TransactionKindDeposit)
	if err != nil {
		return "", storageError("lock deposit", err)
	}
	if deposit == nil {
		return domain.EventOutcomeNotFound, nil
	}
	if !deposit.IsPendingDeposit() {
		// A concurrent delivery may have settled it between the two reads above.
		if deposit.ProviderEventID != nil && *deposit.ProviderEventID == providerEventID {
			return domain.EventOutcomeAlreadyApplied, nil
		}
		return domain.EventOutcomeNotFound, nil
	}

	if amount != deposit.Amount {
		s.log.Warn().
			Str("reference", reference).
			Str("provider_event_id", providerEventID).
			Int64("expected", deposit.Amount).
			Int64("received", amount).
			Msg("deposit amount mismatch, leaving pending")
		return domain.EventOutcomeAmountMismatch, nil
	}

	locked, err := s.ledger.LockWallets(ctx, dbTx, []uuid.UUID{deposit.WalletID})
	if err != nil {
		return "", err
	}
	if err := s.ledger.SettleDeposit(ctx, dbTx, locked[deposit.WalletID], deposit, providerEventID); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.EventOutcomeAlreadyApplied, nil
		}
		return "", err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return "", storageError("commit settlement", err)
	}

	s.log.Info().
		Str("reference", reference).
		Str("provider_event_id", providerEventID).
		Int64("amount", amount).
		Msg("deposit credited")

	return domain.EventOutcomeApplied, nil
}

// ApplyFailedEvent moves a pending deposit to failed.
func (s *DepositServiceImpl) ApplyFailedEvent(ctx context.Context, reference string) (domain.EventOutcome, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	deposit, err := s.txRepo.GetByReferenceForUpdate(ctx, dbTx, reference, domain.TransactionKindDeposit)
	if err != nil {
		return "", storageError("lock deposit", err)
	}
	if deposit == nil {
		return domain.EventOutcomeNotFound, nil
	}
	switch deposit.Status {
	case domain.TransactionStatusFailed:
		return domain.EventOutcomeAlreadyApplied, nil
	case domain.TransactionStatusSuccess:
		return domain.EventOutcomeIgnored, nil
	}

	if err := s.ledger.FailDeposit(ctx, dbTx, deposit); err != nil {
		return "", err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return "", storageError("commit deposit failure", err)
	}

	s.log.Info().Str("reference", reference).Msg("deposit marked failed")
	return domain.EventOutcomeFailed, nil
}
