package postgres

import (
	"context"
	"fmt"

	"custodial-wallet/internal/core/domain"
)

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a PostgreSQL-backed webhook receipt log.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Create records one authenticated delivery and its outcome.
func (r *WebhookEventRepo) Create(ctx context.Context, e *domain.WebhookEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_events (id, provider_event_id, event_type, reference, payload_encrypted, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ProviderEventID, e.EventType, e.Reference,
		e.PayloadEncrypted, string(e.Outcome), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// ListByProviderEventID returns every delivery of one provider event, oldest first.
func (r *WebhookEventRepo) ListByProviderEventID(ctx context.Context, providerEventID string) ([]domain.WebhookEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, provider_event_id, event_type, reference, payload_encrypted, outcome, created_at
		FROM webhook_events
		WHERE provider_event_id = $1
		ORDER BY created_at ASC`, providerEventID)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		var e domain.WebhookEvent
		var outcome string
		if err := rows.Scan(
			&e.ID, &e.ProviderEventID, &e.EventType, &e.Reference,
			&e.PayloadEncrypted, &outcome, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		e.Outcome = domain.EventOutcome(outcome)
		events = append(events, e)
	}
	return events, rows.Err()
}
