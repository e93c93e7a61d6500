package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// TransferServiceImpl implements ports.TransferService.
type TransferServiceImpl struct {
	walletRepo ports.WalletRepository
	ledger     ports.LedgerService
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	transactor ports.DBTransactor
	limits     AmountLimits
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	walletRepo ports.WalletRepository,
	ledger ports.LedgerService,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	limits AmountLimits,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		walletRepo: walletRepo,
		ledger:     ledger,
		idempRepo:  idempRepo,
		idempCache: idempCache,
		transactor: transactor,
		limits:     limits,
		log:        log,
	}
}

// Transfer debits the caller's wallet and credits the recipient in one database transaction.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*domain.TransferResult, error) {
	if err := s.limits.Check(req.Amount); err != nil {
		return nil, err
	}
	if !domain.IsValidWalletNumber(req.RecipientWalletNumber) {
		return nil, apperror.ErrRecipientNotFound()
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildTransferIdempotencyKey(req.UserID, req.IdempotencyKey)
		if replay, err := s.lookupReplay(ctx, idempKey); err != nil || replay != nil {
			return replay, err
		}
	}

	sender, err := s.walletRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, storageError("find sender wallet", err)
	}
	if sender == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	recipient, err := s.walletRepo.GetByWalletNumber(ctx, req.RecipientWalletNumber)
	if err != nil {
		return nil, storageError("find recipient wallet", err)
	}
	if recipient == nil {
		return nil, apperror.ErrRecipientNotFound()
	}
	if recipient.ID == sender.ID {
		return nil, apperror.ErrSelfTransfer()
	}

	reference, err := newReference()
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked, err := s.ledger.LockWallets(ctx, dbTx, []uuid.UUID{sender.ID, recipient.ID})
	if err != nil {
		return nil, err
	}
	from, to := locked[sender.ID], locked[recipient.ID]

	// A same-key request that held the sender lock before us has committed by now;
	// its result is replayed before any debit is attempted.
	if idempKey != "" {
		idempLog, err := s.idempRepo.Get(ctx, idempKey)
		if err != nil {
			return nil, storageError("db idempotency recheck", err)
		}
		if idempLog != nil {
			_ = dbTx.Rollback(ctx)
			return unmarshalTransferResult(idempLog.ResponseJSON)
		}
	}

	out, err := s.ledger.Debit(ctx, dbTx, from, req.Amount, ports.LedgerEntry{
		Kind:                     domain.TransactionKindTransferOut,
		Reference:                reference,
		CounterpartyWalletNumber: &to.WalletNumber,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.Credit(ctx, dbTx, to, req.Amount, ports.LedgerEntry{
		Kind:                     domain.TransactionKindTransferIn,
		Reference:                reference,
		CounterpartyWalletNumber: &from.WalletNumber,
	}); err != nil {
		return nil, err
	}

	result := &domain.TransferResult{
		Reference:             reference,
		Amount:                req.Amount,
		RecipientWalletNumber: to.WalletNumber,
		Status:                domain.TransactionStatusSuccess,
		BalanceAfter:          from.Balance,
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(result)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		err = s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
			Key:           idempKey,
			TransactionID: out.ID,
			ResponseJSON:  respJSON,
			CreatedAt:     out.CreatedAt,
		})
		if errors.Is(err, domain.ErrDuplicate) {
			// A concurrent request with the same key won; abandon ours and replay theirs.
			_ = dbTx.Rollback(ctx)
			return s.replayFromDB(ctx, idempKey)
		}
		if err != nil {
			return nil, storageError("save idempotency log", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit transfer", err)
	}

	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.log.Info().
		Str("reference", reference).
		Str("from_wallet", from.WalletNumber).
		Str("to_wallet", to.WalletNumber).
		Int64("amount", req.Amount).
		Msg("transfer completed")

	return result, nil
}

// lookupReplay returns the stored result for a repeated idempotency key, or nil.
func (s *TransferServiceImpl) lookupReplay(ctx context.Context, key string) (*domain.TransferResult, error) {
	// Layer 1: Redis
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalTransferResult(cached)
	}

	// Layer 2: DB
	idempLog, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, storageError("db idempotency check", err)
	}
	if idempLog == nil {
		return nil, nil
	}
	return unmarshalTransferResult(idempLog.ResponseJSON)
}

func (s *TransferServiceImpl) replayFromDB(ctx context.Context, key string) (*domain.TransferResult, error) {
	idempLog, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, storageError("db idempotency replay", err)
	}
	if idempLog == nil {
		return nil, apperror.ErrDuplicateTransaction()
	}
	return unmarshalTransferResult(idempLog.ResponseJSON)
}

func unmarshalTransferResult(data []byte) (*domain.TransferResult, error) {
	var result domain.TransferResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached transfer: %w", err))
	}
	return &result, nil
}
