package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService computes and verifies keyed hashes over raw payloads.
type SignatureService interface {
	Sign(secretKey string, payload []byte) string
	Verify(secretKey string, payload []byte, signature string) bool
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT session tokens.
type TokenService interface {
	Generate(userID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ProcessedEventCache remembers provider events that already reached a final outcome.
// It is an optimisation; the database unique index stays authoritative.
type ProcessedEventCache interface {
	Get(ctx context.Context, providerEventID string) (string, error) // Returns reference or ""
	Mark(ctx context.Context, providerEventID string, reference string, ttl time.Duration) error
}

// EventLock serialises concurrent deliveries of the same provider event.
type EventLock interface {
	// Acquire returns false if another worker holds the lock.
	Acquire(ctx context.Context, providerEventID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, providerEventID string) error
}

// PaymentProvider is the hosted-checkout collaborator.
type PaymentProvider interface {
	InitializeTransaction(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// CheckoutRequest is sent to the provider to open a hosted checkout.
type CheckoutRequest struct {
	Email       string
	Amount      int64 // Kobo
	Reference   string
	CallbackURL string
}

// CheckoutSession is the provider's redirect handle for a checkout.
type CheckoutSession struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}
