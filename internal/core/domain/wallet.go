package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletNumberLength is the fixed number of digits in a wallet number.
const WalletNumberLength = 13

// Wallet holds a user's balance in kobo.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	WalletNumber string    `json:"wallet_number"` // Immutable, globally unique
	Balance      int64     `json:"balance"`       // Smallest unit, never negative
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanDebit reports whether the wallet holds at least amount.
func (w *Wallet) CanDebit(amount int64) bool {
	return amount > 0 && amount <= w.Balance
}

// IsValidWalletNumber reports whether s has the wallet number shape.
func IsValidWalletNumber(s string) bool {
	if len(s) != WalletNumberLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
