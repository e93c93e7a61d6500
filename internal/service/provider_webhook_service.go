package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"
	"custodial-wallet/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookPolicy holds the provider secret and Redis coordination TTLs.
type WebhookPolicy struct {
	SecretKey         string
	EventLockTTL      time.Duration
	ProcessedEventTTL time.Duration
}

// providerPayload is the subset of the provider's webhook body the ledger reads.
type providerPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number `json:"id"`
		Reference string      `json:"reference"`
		Amount    int64       `json:"amount"`
		Status    string      `json:"status"`
	} `json:"data"`
}

// ProviderWebhookServiceImpl implements ports.ProviderWebhookService.
type ProviderWebhookServiceImpl struct {
	deposits  ports.DepositService
	sigSvc    ports.SignatureService
	encSvc    ports.EncryptionService
	eventRepo ports.WebhookEventRepository
	processed ports.ProcessedEventCache
	eventLock ports.EventLock
	audit     ports.AuditService
	policy    WebhookPolicy
	log       zerolog.Logger
}

// NewProviderWebhookService creates a new ProviderWebhookServiceImpl.
func NewProviderWebhookService(
	deposits ports.DepositService,
	sigSvc ports.SignatureService,
	encSvc ports.EncryptionService,
	eventRepo ports.WebhookEventRepository,
	processed ports.ProcessedEventCache,
	eventLock ports.EventLock,
	audit ports.AuditService,
	policy WebhookPolicy,
	log zerolog.Logger,
) *ProviderWebhookServiceImpl {
	return &ProviderWebhookServiceImpl{
		deposits:  deposits,
		sigSvc:    sigSvc,
		encSvc:    encSvc,
		eventRepo: eventRepo,
		processed: processed,
		eventLock: eventLock,
		audit:     audit,
		policy:    policy,
		log:       logger.Component(log, "provider_webhook"),
	}
}

// Handle authenticates a raw webhook body and applies it.
// The signature is checked before any field of the body is trusted.
func (s *ProviderWebhookServiceImpl) Handle(ctx context.Context, payload []byte, signature string, clientIP string) (domain.EventOutcome, error) {
	if signature == "" {
		s.reject(ctx, clientIP, "missing signature")
		return "", apperror.ErrMissingSignature()
	}
	if !s.sigSvc.Verify(s.policy.SecretKey, payload, signature) {
		s.reject(ctx, clientIP, "invalid signature")
		return "", apperror.ErrInvalidSignature()
	}

	var body providerPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", apperror.Validation("malformed webhook payload")
	}
	event := domain.ProviderEvent{
		EventType:       body.Event,
		ProviderEventID: body.Data.ID.String(),
		Reference:       body.Data.Reference,
		Amount:          body.Data.Amount,
		Status:          body.Data.Status,
	}

	switch {
	case event.IsConfirmedCharge():
	case event.EventType == domain.EventChargeFailed:
	default:
		s.log.Info().Str("event_type", event.EventType).Msg("ignoring webhook event")
		s.recordReceipt(ctx, event, payload, domain.EventOutcomeIgnored)
		return domain.EventOutcomeIgnored, nil
	}

	if event.ProviderEventID == "" || strings.TrimSpace(event.Reference) == "" {
		return "", apperror.Validation("webhook payload missing event id or reference")
	}

	if event.IsConfirmedCharge() {
		// Fast path only; the unique index on provider_event_id stays authoritative.
		ref, err := s.processed.Get(ctx, event.ProviderEventID)
		if err != nil {
			s.log.Warn().Err(err).Str("provider_event_id", event.ProviderEventID).Msg("processed-event cache unavailable")
		}
		if ref != "" {
			return domain.EventOutcomeAlreadyApplied, nil
		}
	}

	acquired, err := s.eventLock.Acquire(ctx, event.ProviderEventID, s.policy.EventLockTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("provider_event_id", event.ProviderEventID).Msg("event lock unavailable, relying on database")
	} else if !acquired {
		return "", apperror.ErrEventInProgress()
	}
	if acquired {
		defer func() {
			if err := s.eventLock.Release(context.WithoutCancel(ctx), event.ProviderEventID); err != nil {
				s.log.Warn().Err(err).Str("provider_event_id", event.ProviderEventID).Msg("failed to release event lock")
			}
		}()
	}

	var outcome domain.EventOutcome
	if event.IsConfirmedCharge() {
		outcome, err = s.deposits.ApplyConfirmedEvent(ctx, event.ProviderEventID, event.Reference, event.Amount)
	} else {
		outcome, err = s.deposits.ApplyFailedEvent(ctx, event.Reference)
	}
	if err != nil {
		s.log.Error().Err(err).
			Str("provider_event_id", event.ProviderEventID).
			Str("reference", event.Reference).
			Msg("webhook application failed")
		return "", err
	}

	s.recordReceipt(ctx, event, payload, outcome)

	if event.IsConfirmedCharge() && (outcome == domain.EventOutcomeApplied || outcome == domain.EventOutcomeAlreadyApplied) {
		if err := s.processed.Mark(ctx, event.ProviderEventID, event.Reference, s.policy.ProcessedEventTTL); err != nil {
			s.log.Warn().Err(err).Str("provider_event_id", event.ProviderEventID).Msg("failed to mark event processed")
		}
	}

	s.log.Info().
		Str("event_type", event.EventType).
		Str("provider_event_id", event.ProviderEventID).
		Str("reference", event.Reference).
		Str("outcome", string(outcome)).
		Msg("webhook processed")

	return outcome, nil
}

// reject logs and audits a delivery that failed authentication. Nothing from the body is used.
func (s *ProviderWebhookServiceImpl) reject(ctx context.Context, clientIP, reason string) {
	logger.Security(s.log).
		Str("reason", reason).
		Str("ip", clientIP).
		Msg("webhook rejected")

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionWebhookRejected,
		ResourceType: "webhook",
		Details:      reason,
		IPAddress:    clientIP,
		CreatedAt:    time.Now().UTC(),
	})
}

// recordReceipt stores the delivery with its payload encrypted. Failures are logged only.
func (s *ProviderWebhookServiceImpl) recordReceipt(ctx context.Context, event domain.ProviderEvent, payload []byte, outcome domain.EventOutcome) {
	encrypted, err := s.encSvc.Encrypt(string(payload))
	if err != nil {
		s.log.Error().Err(err).Str("provider_event_id", event.ProviderEventID).Msg("failed to encrypt webhook payload")
		return
	}

	if err := s.eventRepo.Create(ctx, &domain.WebhookEvent{
		ID:               uuid.New(),
		ProviderEventID:  event.ProviderEventID,
		EventType:        event.EventType,
		Reference:        event.Reference,
		PayloadEncrypted: encrypted,
		Outcome:          outcome,
		CreatedAt:        time.Now().UTC(),
	}); err != nil {
		s.log.Warn().Err(err).Str("provider_event_id", event.ProviderEventID).Msg("failed to record webhook receipt")
	}
}
