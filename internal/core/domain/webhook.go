package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provider event types the deposit flow reacts to.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// ProviderEvent is the authenticated, parsed subset of a payment-provider webhook.
type ProviderEvent struct {
	EventType       string
	ProviderEventID string
	Reference       string
	Amount          int64
	Status          string
}

// IsConfirmedCharge reports whether the event may credit a wallet.
func (e ProviderEvent) IsConfirmedCharge() bool {
	return e.EventType == EventChargeSuccess && e.Status == "success"
}

// EventOutcome is the result of applying a provider event.
type EventOutcome string

const (
	EventOutcomeApplied        EventOutcome = "applied"
	EventOutcomeAlreadyApplied EventOutcome = "already_applied"
	EventOutcomeNotFound       EventOutcome = "not_found"
	EventOutcomeAmountMismatch EventOutcome = "amount_mismatch"
	EventOutcomeFailed         EventOutcome = "marked_failed"
	EventOutcomeIgnored        EventOutcome = "ignored"
)

// WebhookEvent records one authenticated webhook delivery.
type WebhookEvent struct {
	ID               uuid.UUID    `json:"id"`
	ProviderEventID  string       `json:"provider_event_id"`
	EventType        string       `json:"event_type"`
	Reference        string       `json:"reference"`
	PayloadEncrypted string       `json:"-"` // AES-256-GCM, contains customer PII
	Outcome          EventOutcome `json:"outcome"`
	CreatedAt        time.Time    `json:"created_at"`
}
