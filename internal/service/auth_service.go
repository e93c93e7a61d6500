package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	walletNumberAttempts = 10
	registerAttempts     = 3
)

var (
	walletNumberFloor = big.NewInt(1_000_000_000_000) // Smallest 13-digit number
	walletNumberSpan  = big.NewInt(9_000_000_000_000)
)

// errWalletNumberTaken means a concurrent registration claimed the same wallet number.
var errWalletNumberTaken = errors.New("wallet number taken")

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	hashSvc    ports.HashService
	tokenSvc   ports.TokenService
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		hashSvc:    hashSvc,
		tokenSvc:   tokenSvc,
		transactor: transactor,
		log:        log,
	}
}

// Register creates a user and their wallet in one database transaction.
func (s *AuthServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*ports.UserProfile, error) {
	email := normalizeEmail(req.Email)

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, storageError("check email", err)
	}
	if existing != nil {
		return nil, apperror.ErrEmailExists()
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	for attempt := 1; ; attempt++ {
		profile, err := s.createAccount(ctx, email, passwordHash, strings.TrimSpace(req.FullName))
		if errors.Is(err, errWalletNumberTaken) && attempt < registerAttempts {
			s.log.Warn().Int("attempt", attempt).Msg("wallet number collided on insert, retrying registration")
			continue
		}
		if err != nil {
			return nil, err
		}

		s.log.Info().
			Str("user_id", profile.User.ID.String()).
			Str("wallet_number", profile.Wallet.WalletNumber).
			Msg("user registered")
		return profile, nil
	}
}

func (s *AuthServiceImpl) createAccount(ctx context.Context, email, passwordHash, fullName string) (*ports.UserProfile, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     fullName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, dbTx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, apperror.ErrEmailExists()
		}
		return nil, storageError("create user", err)
	}

	number, err := s.allocateWalletNumber(ctx, dbTx)
	if err != nil {
		return nil, err
	}

	wallet := &domain.Wallet{
		ID:           uuid.New(),
		UserID:       user.ID,
		WalletNumber: number,
		Balance:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.walletRepo.Create(ctx, dbTx, wallet); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, errWalletNumberTaken
		}
		return nil, storageError("create wallet", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit registration", err)
	}
	return &ports.UserProfile{User: user, Wallet: wallet}, nil
}

// allocateWalletNumber draws random 13-digit numbers until one is unused.
// The unique constraint on wallets still decides races between concurrent registrations.
func (s *AuthServiceImpl) allocateWalletNumber(ctx context.Context, dbTx pgx.Tx) (string, error) {
	for i := 0; i < walletNumberAttempts; i++ {
		candidate, err := randomWalletNumber()
		if err != nil {
			return "", apperror.InternalError(err)
		}
		taken, err := s.walletRepo.WalletNumberExists(ctx, dbTx, candidate)
		if err != nil {
			return "", storageError("check wallet number", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", apperror.InternalError(fmt.Errorf("no free wallet number after %d attempts", walletNumberAttempts))
}

func randomWalletNumber() (string, error) {
	n, err := rand.Int(rand.Reader, walletNumberSpan)
	if err != nil {
		return "", fmt.Errorf("generate wallet number: %w", err)
	}
	return n.Add(n, walletNumberFloor).String(), nil
}

// Login validates credentials and returns a session token.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", time.Time{}, storageError("find user", err)
	}
	if user == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, user.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(user.ID, user.Email)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	return token, expiry, nil
}

// GetProfile returns the user together with their wallet.
func (s *AuthServiceImpl) GetProfile(ctx context.Context, userID uuid.UUID) (*ports.UserProfile, error) {
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

	return &ports.UserProfile{User: user, Wallet: wallet}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
