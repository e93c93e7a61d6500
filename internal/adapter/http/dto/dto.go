package dto

import (
	"time"

	"custodial-wallet/internal/core/domain"

	"github.com/shopspring/decimal"
)

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=128" sanitize:"-"`
	FullName string `json:"full_name" binding:"required,min=1,max=100"`
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // Unix timestamp
}

// ProfileResponse is returned by registration and GET /auth/me.
type ProfileResponse struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	WalletNumber string `json:"wallet_number"`
	CreatedAt    string `json:"created_at"`
}

// DepositRequest is the request body for starting a deposit. Amount is in kobo.
type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// DepositStatusURI binds the reference path parameter.
type DepositStatusURI struct {
	Reference string `uri:"reference" binding:"required,max=64,safe_id"`
}

// DepositResponse carries the provider redirect for a new deposit.
type DepositResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
}

// DepositStatusResponse is the read-only view of a deposit.
type DepositStatusResponse struct {
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	AmountDisplay string `json:"amount_display"`
}

// TransferRequest is the request body for a peer transfer.
type TransferRequest struct {
	WalletNumber string `json:"wallet_number" binding:"required,wallet_number"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
}

// TransferHeaders binds the optional idempotency header of a transfer.
type TransferHeaders struct {
	IdempotencyKey string `header:"Idempotency-Key" binding:"omitempty,max=128,safe_id"`
}

// TransferResponse is the response body for a completed transfer.
type TransferResponse struct {
	Reference             string `json:"reference"`
	Amount                int64  `json:"amount"`
	RecipientWalletNumber string `json:"recipient_wallet_number"`
	Status                string `json:"status"`
	BalanceAfter          int64  `json:"balance_after"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	WalletNumber   string `json:"wallet_number"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

// TransactionResponse is one ledger record as seen by its owner.
type TransactionResponse struct {
	ID                       string  `json:"id"`
	Reference                string  `json:"reference"`
	Kind                     string  `json:"kind"`
	Status                   string  `json:"status"`
	Amount                   int64   `json:"amount"`
	CounterpartyWalletNumber *string `json:"counterparty_wallet_number,omitempty"`
	CreatedAt                string  `json:"created_at"`
	ProcessedAt              *string `json:"processed_at,omitempty"`
}

// SummaryResponse aggregates a wallet's movements.
type SummaryResponse struct {
	TotalDeposits    int64 `json:"total_deposits"`
	TotalTransferIn  int64 `json:"total_transfer_in"`
	TotalTransferOut int64 `json:"total_transfer_out"`
	SuccessCount     int64 `json:"success_count"`
	PendingCount     int64 `json:"pending_count"`
	FailedCount      int64 `json:"failed_count"`
}

// TransactionQuery holds the query parameters of GET /wallet/transactions.
type TransactionQuery struct {
	Kind     string `form:"kind" binding:"omitempty,oneof=deposit transfer_in transfer_out"`
	Status   string `form:"status" binding:"omitempty,oneof=pending success failed"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// CreateKeyRequest is the request body for issuing an API key.
type CreateKeyRequest struct {
	Name        string   `json:"name" binding:"required,min=1,max=64"`
	Permissions []string `json:"permissions" binding:"required,min=1,max=3,unique,dive,permission"`
	Expiry      string   `json:"expiry" binding:"required,expiry"`
}

// RevokeKeyRequest is the request body for revoking an API key.
type RevokeKeyRequest struct {
	KeyID string `json:"key_id" binding:"required,uuid"`
}

// RolloverKeyRequest is the request body for replacing an expired API key.
type RolloverKeyRequest struct {
	ExpiredKeyID string `json:"expired_key_id" binding:"required,uuid"`
	Expiry       string `json:"expiry" binding:"required,expiry"`
}

// IssuedKeyResponse carries a new secret. It is shown exactly once.
type IssuedKeyResponse struct {
	APIKey    string `json:"api_key"`
	KeyID     string `json:"key_id"`
	Prefix    string `json:"prefix"`
	ExpiresAt string `json:"expires_at"`
}

// APIKeyResponse describes a key without its secret.
type APIKeyResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Prefix      string   `json:"prefix"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
	IsRevoked   bool     `json:"is_revoked"`
	IsExpired   bool     `json:"is_expired"`
	LastUsedAt  *string  `json:"last_used_at,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// FormatKobo renders a kobo amount as naira with two decimals, e.g. 150050 -> "1500.50".
func FormatKobo(kobo int64) string {
	return decimal.New(kobo, -2).StringFixed(2)
}

// ToTransactionResponse converts a ledger record to its response shape.
func ToTransactionResponse(tx *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:                       tx.ID.String(),
		Reference:                tx.Reference,
		Kind:                     string(tx.Kind),
		Status:                   string(tx.Status),
		Amount:                   tx.Amount,
		CounterpartyWalletNumber: tx.CounterpartyWalletNumber,
		CreatedAt:                tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.ProcessedAt != nil {
		s := tx.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}

// ToAPIKeyResponse converts a key to its secret-free response shape.
func ToAPIKeyResponse(key *domain.APIKey, now time.Time) APIKeyResponse {
	resp := APIKeyResponse{
		ID:          key.ID.String(),
		Name:        key.Name,
		Prefix:      key.Prefix,
		Permissions: key.PermissionStrings(),
		ExpiresAt:   key.ExpiresAt.Format(time.RFC3339),
		IsRevoked:   key.IsRevoked,
		IsExpired:   key.IsExpired(now),
		CreatedAt:   key.CreatedAt.Format(time.RFC3339),
	}
	if key.LastUsedAt != nil {
		s := key.LastUsedAt.Format(time.RFC3339)
		resp.LastUsedAt = &s
	}
	return resp
}
