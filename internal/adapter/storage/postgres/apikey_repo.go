package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custodial-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const apiKeyColumns = `id, user_id, name, key_hash, prefix, permissions, expires_at,
		is_revoked, revoked_at, created_at, last_used_at`

// APIKeyRepo implements ports.APIKeyRepository.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

// Create inserts a key inside the issuance transaction.
func (r *APIKeyRepo) Create(ctx context.Context, tx pgx.Tx, k *domain.APIKey) error {
	query := `INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		k.ID, k.UserID, k.Name, k.KeyHash, k.Prefix, k.PermissionStrings(), k.ExpiresAt,
		k.IsRevoked, k.RevokedAt, k.CreatedAt, k.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", translate(err))
	}
	return nil
}

// GetByID fetches a key by UUID.
func (r *APIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanAPIKey(r.pool.QueryRow(ctx, query, id))
}

// GetByHash looks a key up by the SHA-256 of its secret.
func (r *APIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	return scanAPIKey(r.pool.QueryRow(ctx, query, keyHash))
}

// CountActive counts keys that are neither revoked nor expired at now.
// Run it inside the transaction that holds the owning user's row lock.
func (r *APIKeyRepo) CountActive(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > $2`

	var count int
	if err := tx.QueryRow(ctx, query, userID, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active api keys: %w", err)
	}
	return count, nil
}

// ListByUser returns all of a user's keys, newest first.
func (r *APIKeyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		k := domain.APIKey{}
		var perms []string
		if err := rows.Scan(apiKeyDest(&k, &perms)...); err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		k.Permissions = toPermissions(perms)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api key rows: %w", err)
	}
	return keys, nil
}

// Revoke flags a user's key as revoked. The first revocation time is kept.
// Returns false if no key with that id belongs to the user.
func (r *APIKeyRepo) Revoke(ctx context.Context, id uuid.UUID, userID uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE api_keys SET is_revoked = TRUE, revoked_at = COALESCE(revoked_at, $1)
		WHERE id = $2 AND user_id = $3`

	tag, err := r.pool.Exec(ctx, query, at, id, userID)
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TouchLastUsed records a successful validation.
func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`

	if _, err := r.pool.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func apiKeyDest(k *domain.APIKey, perms *[]string) []any {
	return []any{
		&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.Prefix, perms, &k.ExpiresAt,
		&k.IsRevoked, &k.RevokedAt, &k.CreatedAt, &k.LastUsedAt,
	}
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	k := &domain.APIKey{}
	var perms []string
	if err := row.Scan(apiKeyDest(k, &perms)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	k.Permissions = toPermissions(perms)
	return k, nil
}

func toPermissions(raw []string) []domain.Permission {
	out := make([]domain.Permission, len(raw))
	for i, p := range raw {
		out[i] = domain.Permission(p)
	}
	return out
}
