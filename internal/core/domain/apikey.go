package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// MaxActiveAPIKeys is the per-user cap on keys that are neither revoked nor expired.
const MaxActiveAPIKeys = 5

// Permission is a scope an API key may exercise.
type Permission string

const (
	PermissionDeposit  Permission = "deposit"
	PermissionTransfer Permission = "transfer"
	PermissionRead     Permission = "read"
)

// AllPermissions lists every grantable permission. Session callers hold all of them.
var AllPermissions = []Permission{PermissionDeposit, PermissionTransfer, PermissionRead}

// IsValid reports whether p is a known permission.
func (p Permission) IsValid() bool {
	return slices.Contains(AllPermissions, p)
}

// ParsePermissions validates a requested permission set: non-empty, known, no duplicates.
func ParsePermissions(raw []string) ([]Permission, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one permission is required")
	}
	out := make([]Permission, 0, len(raw))
	for _, r := range raw {
		p := Permission(r)
		if !p.IsValid() {
			return nil, fmt.Errorf("unknown permission %q", r)
		}
		if slices.Contains(out, p) {
			return nil, fmt.Errorf("duplicate permission %q", r)
		}
		out = append(out, p)
	}
	return out, nil
}

// ExpiryDuration is the enumerated lifetime of an API key.
type ExpiryDuration string

const (
	ExpiryHour  ExpiryDuration = "1H"
	ExpiryDay   ExpiryDuration = "1D"
	ExpiryMonth ExpiryDuration = "1M"
	ExpiryYear  ExpiryDuration = "1Y"
)

// Duration maps the enum to a time.Duration. A month is 30 days and a year 365.
func (e ExpiryDuration) Duration() (time.Duration, error) {
	switch e {
	case ExpiryHour:
		return time.Hour, nil
	case ExpiryDay:
		return 24 * time.Hour, nil
	case ExpiryMonth:
		return 30 * 24 * time.Hour, nil
	case ExpiryYear:
		return 365 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid expiry %q: must be one of 1H, 1D, 1M, 1Y", string(e))
}

// ExpiresAt returns the expiry timestamp for a key created at now.
func (e ExpiryDuration) ExpiresAt(now time.Time) (time.Time, error) {
	d, err := e.Duration()
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

// APIKey is a scoped, expiring credential. Only a hash of the secret is stored.
type APIKey struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Name        string       `json:"name"`
	KeyHash     string       `json:"-"`      // SHA-256 hex of the full secret
	Prefix      string       `json:"prefix"` // Display only
	Permissions []Permission `json:"permissions"`
	ExpiresAt   time.Time    `json:"expires_at"`
	IsRevoked   bool         `json:"is_revoked"`
	RevokedAt   *time.Time   `json:"revoked_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	LastUsedAt  *time.Time   `json:"last_used_at,omitempty"`
}

// IsExpired reports whether the key's expiry has passed at now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// IsActive reports whether the key counts toward the per-user cap.
func (k *APIKey) IsActive(now time.Time) bool {
	return !k.IsRevoked && !k.IsExpired(now)
}

// HasPermission reports whether the key grants p.
func (k *APIKey) HasPermission(p Permission) bool {
	return slices.Contains(k.Permissions, p)
}

// PermissionStrings returns the permissions as plain strings, for storage.
func (k *APIKey) PermissionStrings() []string {
	out := make([]string, len(k.Permissions))
	for i, p := range k.Permissions {
		out[i] = string(p)
	}
	return out
}

// IssuedAPIKey carries the plaintext secret. It is returned once, at creation.
type IssuedAPIKey struct {
	Secret string  `json:"api_key"`
	Key    *APIKey `json:"key"`
}
