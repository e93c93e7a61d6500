package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"
	"custodial-wallet/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// displayPrefixLen is how much of a secret is kept in clear for display.
const displayPrefixLen = 12

// KeyPolicy controls API key generation and the per-user cap.
type KeyPolicy struct {
	Prefix      string // e.g. "sk_live_"
	RandomBytes int
	MaxActive   int
}

// CredentialServiceImpl implements ports.CredentialService.
type CredentialServiceImpl struct {
	keyRepo    ports.APIKeyRepository
	userRepo   ports.UserRepository
	transactor ports.DBTransactor
	policy     KeyPolicy
	now        func() time.Time
	log        zerolog.Logger
}

// NewCredentialService creates a new CredentialServiceImpl.
func NewCredentialService(
	keyRepo ports.APIKeyRepository,
	userRepo ports.UserRepository,
	transactor ports.DBTransactor,
	policy KeyPolicy,
	log zerolog.Logger,
) *CredentialServiceImpl {
	return &CredentialServiceImpl{
		keyRepo:    keyRepo,
		userRepo:   userRepo,
		transactor: transactor,
		policy:     policy,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Component(log, "credentials"),
	}
}

// Issue creates a new API key. The plaintext secret appears only in the returned value.
func (s *CredentialServiceImpl) Issue(ctx context.Context, userID uuid.UUID, name string, permissions []domain.Permission, expiry domain.ExpiryDuration) (*domain.IssuedAPIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.Validation("key name is required")
	}
	if err := validatePermissions(permissions); err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt, err := expiry.ExpiresAt(now)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// The user row lock serialises concurrent issues so the count below cannot go stale.
	user, err := s.userRepo.GetByIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, storageError("lock user", err)
	}
	if user == nil {
		return nil, apperror.ErrNotFound("User")
	}

	active, err := s.keyRepo.CountActive(ctx, dbTx, userID, now)
	if err != nil {
		return nil, storageError("count active keys", err)
	}
	if active >= s.policy.MaxActive {
		return nil, apperror.ErrKeyCapExceeded(s.policy.MaxActive)
	}

	secret, err := s.generateSecret()
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	key := &domain.APIKey{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		KeyHash:     hashSecret(secret),
		Prefix:      secret[:displayPrefixLen],
		Permissions: permissions,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if err := s.keyRepo.Create(ctx, dbTx, key); err != nil {
		return nil, storageError("create api key", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, storageError("commit api key", err)
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("key_id", key.ID.String()).
		Str("prefix", key.Prefix).
		Time("expires_at", expiresAt).
		Msg("api key issued")

	return &domain.IssuedAPIKey{Secret: secret, Key: key}, nil
}

// Validate resolves a presented secret. Checks run revoked, then expired, then permission.
func (s *CredentialServiceImpl) Validate(ctx context.Context, secret string, required domain.Permission) (*domain.APIKey, error) {
	if secret == "" {
		return nil, apperror.ErrMissingCredentials()
	}
	if !strings.HasPrefix(secret, s.policy.Prefix) {
		return nil, apperror.ErrInvalidAPIKey()
	}

	key, err := s.keyRepo.GetByHash(ctx, hashSecret(secret))
	if err != nil {
		return nil, storageError("find api key", err)
	}
	if key == nil {
		return nil, apperror.ErrInvalidAPIKey()
	}

	now := s.now()
	if key.IsRevoked {
		logger.Security(s.log).Str("key_id", key.ID.String()).Msg("revoked api key presented")
		return nil, apperror.ErrAPIKeyRevoked()
	}
	if key.IsExpired(now) {
		logger.Security(s.log).Str("key_id", key.ID.String()).Msg("expired api key presented")
		return nil, apperror.ErrAPIKeyExpired()
	}
	if !key.HasPermission(required) {
		return nil, apperror.ErrPermissionDenied(string(required))
	}

	if err := s.keyRepo.TouchLastUsed(ctx, key.ID, now); err != nil {
		s.log.Warn().Err(err).Str("key_id", key.ID.String()).Msg("failed to update last_used_at")
	} else {
		key.LastUsedAt = &now
	}

	return key, nil
}

// Revoke disables a key permanently. Revoking an already revoked key succeeds.
func (s *CredentialServiceImpl) Revoke(ctx context.Context, userID uuid.UUID, keyID uuid.UUID) error {
	found, err := s.keyRepo.Revoke(ctx, keyID, userID, s.now())
	if err != nil {
		return storageError("revoke api key", err)
	}
	if !found {
		return apperror.ErrNotFound("API key")
	}

	s.log.Info().Str("user_id", userID.String()).Str("key_id", keyID.String()).Msg("api key revoked")
	return nil
}

// Rollover issues a replacement for an expired key with the same name and permissions.
// The old key is left as it is; being expired it already fails validation.
func (s *CredentialServiceImpl) Rollover(ctx context.Context, userID uuid.UUID, expiredKeyID uuid.UUID, expiry domain.ExpiryDuration) (*domain.IssuedAPIKey, error) {
	old, err := s.keyRepo.GetByID(ctx, expiredKeyID)
	if err != nil {
		return nil, storageError("find api key", err)
	}
	if old == nil || old.UserID != userID {
		return nil, apperror.ErrNotFound("API key")
	}
	if !old.IsExpired(s.now()) {
		return nil, apperror.ErrKeyNotExpired()
	}

	issued, err := s.Issue(ctx, userID, old.Name, old.Permissions, expiry)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("old_key_id", old.ID.String()).
		Str("new_key_id", issued.Key.ID.String()).
		Msg("api key rolled over")
	return issued, nil
}

// List returns the user's keys without secrets.
func (s *CredentialServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	keys, err := s.keyRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageError("list api keys", err)
	}
	return keys, nil
}

func (s *CredentialServiceImpl) generateSecret() (string, error) {
	buf := make([]byte, s.policy.RandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return s.policy.Prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashSecret is the stored lookup hash of a full secret: hex SHA-256.
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func validatePermissions(perms []domain.Permission) error {
	raw := make([]string, len(perms))
	for i, p := range perms {
		raw[i] = string(p)
	}
	if _, err := domain.ParsePermissions(raw); err != nil {
		return apperror.Validation(err.Error())
	}
	return nil
}
