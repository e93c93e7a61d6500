package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionKind represents the kind of money movement.
type TransactionKind string

const (
	TransactionKindDeposit     TransactionKind = "deposit"
	TransactionKindTransferOut TransactionKind = "transfer_out"
	TransactionKindTransferIn  TransactionKind = "transfer_in"
)

// IsValid reports whether k is a known kind.
func (k TransactionKind) IsValid() bool {
	switch k {
	case TransactionKindDeposit, TransactionKindTransferOut, TransactionKindTransferIn:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// IsValid reports whether s is a known status.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusSuccess, TransactionStatusFailed:
		return true
	}
	return false
}

// Transaction is an append-only ledger record. It is immutable once terminal.
type Transaction struct {
	ID                       uuid.UUID         `json:"id"`
	WalletID                 uuid.UUID         `json:"wallet_id"`
	Kind                     TransactionKind   `json:"kind"`
	Amount                   int64             `json:"amount"` // Kobo, > 0
	Status                   TransactionStatus `json:"status"`
	Reference                string            `json:"reference"`
	CounterpartyWalletNumber *string           `json:"counterparty_wallet_number,omitempty"` // Transfers only
	ProviderEventID          *string           `json:"-"`                                    // Deposits only, unique when set
	CreatedAt                time.Time         `json:"created_at"`
	ProcessedAt              *time.Time        `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSuccess || t.Status == TransactionStatusFailed
}

// IsPendingDeposit returns true for a deposit still awaiting its provider event.
func (t *Transaction) IsPendingDeposit() bool {
	return t.Kind == TransactionKindDeposit && t.Status == TransactionStatusPending
}

// TransactionFilter narrows a wallet's transaction listing.
type TransactionFilter struct {
	Kind     *TransactionKind
	Status   *TransactionStatus
	Page     int
	PageSize int
}

// Offset returns the row offset for the filter's page.
func (f TransactionFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// WalletSummary aggregates a wallet's successful movements.
type WalletSummary struct {
	TotalDeposits    int64 `json:"total_deposits"`
	TotalTransferIn  int64 `json:"total_transfer_in"`
	TotalTransferOut int64 `json:"total_transfer_out"`
	SuccessCount     int64 `json:"success_count"`
	PendingCount     int64 `json:"pending_count"`
	FailedCount      int64 `json:"failed_count"`
}

// TransferResult is returned by a completed transfer.
type TransferResult struct {
	Reference             string            `json:"reference"`
	Amount                int64             `json:"amount"`
	RecipientWalletNumber string            `json:"recipient_wallet_number"`
	Status                TransactionStatus `json:"status"`
	BalanceAfter          int64             `json:"balance_after"`
}

// DepositInitiation is returned when a deposit is created.
type DepositInitiation struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
}
