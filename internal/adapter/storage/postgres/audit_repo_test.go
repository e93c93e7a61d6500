package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"custodial-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	userID := uuid.New()
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionTransfer,
		ResourceType: "transaction",
		Details:      `{"status":200}`,
		IPAddress:    "10.0.0.1",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.UserID, "TRANSFER", entry.ResourceType,
			entry.ResourceID, entry.Details, entry.IPAddress, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("disk full"))

	err = repo.Create(context.Background(), &domain.AuditLog{ID: uuid.New(), Action: domain.AuditActionLogin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert audit log")
}

func TestWebhookEventRepo_CreateAndList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookEventRepo(mock)
	e := &domain.WebhookEvent{
		ID:               uuid.New(),
		ProviderEventID:  "4099260516",
		EventType:        domain.EventChargeSuccess,
		Reference:        "TXN-0123456789ABCDEF",
		PayloadEncrypted: "base64-ciphertext",
		Outcome:          domain.EventOutcomeApplied,
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs(e.ID, e.ProviderEventID, e.EventType, e.Reference, e.PayloadEncrypted, "applied", e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, repo.Create(context.Background(), e))

	mock.ExpectQuery("SELECT .+ FROM webhook_events WHERE provider_event_id").
		WithArgs(e.ProviderEventID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "provider_event_id", "event_type", "reference", "payload_encrypted", "outcome", "created_at"}).
			AddRow(e.ID, e.ProviderEventID, e.EventType, e.Reference, e.PayloadEncrypted, "applied", e.CreatedAt).
			AddRow(uuid.New(), e.ProviderEventID, e.EventType, e.Reference, e.PayloadEncrypted, "already_applied", e.CreatedAt))

	events, err := repo.ListByProviderEventID(context.Background(), e.ProviderEventID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventOutcomeApplied, events[0].Outcome)
	assert.Equal(t, domain.EventOutcomeAlreadyApplied, events[1].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hc := NewHealthCheck(mock)
	assert.Equal(t, "postgresql", hc.Name())

	t.Run("healthy", func(t *testing.T) {
		mock.ExpectPing()
		mock.ExpectQuery("SELECT to_regclass").
			WillReturnRows(pgxmock.NewRows([]string{"migrated"}).AddRow(true))
		assert.NoError(t, hc.Ping(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		assert.Error(t, hc.Ping(context.Background()))
	})

	t.Run("schema missing", func(t *testing.T) {
		mock.ExpectPing()
		mock.ExpectQuery("SELECT to_regclass").
			WillReturnRows(pgxmock.NewRows([]string{"migrated"}).AddRow(false))
		assert.ErrorContains(t, hc.Ping(context.Background()), "run migrations")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_Begin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	tx, err := NewTransactor(mock).Begin(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tx)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}).
		WillReturnError(errors.New("too many connections"))
	_, err = NewTransactor(mock).Begin(context.Background())
	assert.ErrorContains(t, err, "begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}
