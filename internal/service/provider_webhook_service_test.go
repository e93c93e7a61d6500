package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testPaystackSecret = "sk_test_paystack"

type webhookTestDeps struct {
	svc       *ProviderWebhookServiceImpl
	deposits  *mocks.MockDepositService
	encSvc    *mocks.MockEncryptionService
	eventRepo *mocks.MockWebhookEventRepository
	processed *mocks.MockProcessedEventCache
	eventLock *mocks.MockEventLock
	audit     *mocks.MockAuditService
}

var testWebhookPolicy = WebhookPolicy{
	SecretKey:         testPaystackSecret,
	EventLockTTL:      30 * time.Second,
	ProcessedEventTTL: 72 * time.Hour,
}

func setupWebhookService(t *testing.T) *webhookTestDeps {
	ctrl := gomock.NewController(t)
	d := &webhookTestDeps{
		deposits:  mocks.NewMockDepositService(ctrl),
		encSvc:    mocks.NewMockEncryptionService(ctrl),
		eventRepo: mocks.NewMockWebhookEventRepository(ctrl),
		processed: mocks.NewMockProcessedEventCache(ctrl),
		eventLock: mocks.NewMockEventLock(ctrl),
		audit:     mocks.NewMockAuditService(ctrl),
	}
	d.svc = NewProviderWebhookService(
		d.deposits, NewHMACSignatureService(), d.encSvc, d.eventRepo,
		d.processed, d.eventLock, d.audit, testWebhookPolicy, newTestLogger(),
	)
	return d
}

func sign(body string) string {
	return NewHMACSignatureService().Sign(testPaystackSecret, []byte(body))
}

// expectReceipt wires the encrypted receipt write for one delivery.
func (d *webhookTestDeps) expectReceipt(t *testing.T, ctx context.Context, outcome domain.EventOutcome) {
	d.encSvc.EXPECT().Encrypt(gomock.Any()).Return("enc:payload", nil)
	d.eventRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ev *domain.WebhookEvent) error {
			assert.Equal(t, outcome, ev.Outcome)
			assert.Equal(t, "enc:payload", ev.PayloadEncrypted)
			return nil
		},
	)
}

func TestProviderWebhookService_Handle_ConfirmedCharge(t *testing.T) {
	d := setupWebhookService(t)
	ctx := context.Background()

	d.processed.EXPECT().Get(ctx, "302961").Return("", nil)
	d.eventLock.EXPECT().Acquire(ctx, "302961", 30*time.Second).Return(true, nil)
	d.deposits.EXPECT().ApplyConfirmedEvent(ctx, "302961", "TXN-0123456789ABCDEF", int64(500000)).
		Return(domain.EventOutcomeApplied, nil)
	d.expectReceipt(t, ctx, domain.EventOutcomeApplied)
	d.processed.EXPECT().Mark(ctx, "302961", "TXN-0123456789ABCDEF", 72*time.Hour).Return(nil)
	d.eventLock.EXPECT().Release(gomock.Any(), "302961").Return(nil)

	outcome, err := d.svc.Handle(ctx, []byte(samplePaystackBody), sign(samplePaystackBody), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeApplied, outcome)
}

func TestProviderWebhookService_Handle_SignatureFailures(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		signature string
		code      string
	}{
		{"missing signature", samplePaystackBody, "", "SEC_004"},
		{"garbage signature", samplePaystackBody, "not-hex", "SEC_002"},
		{"wrong key", samplePaystackBody, NewHMACSignatureService().Sign("sk_other", []byte(samplePaystackBody)), "SEC_002"},
		{
			name:      "tampered amount",
			body:      `{"event":"charge.success","data":{"id":302961,"reference":"TXN-0123456789ABCDEF","amount":999999,"status":"success"}}`,
			signature: sign(samplePaystackBody),
			code:      "SEC_002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupWebhookService(t)
			ctx := context.Background()

			d.audit.EXPECT().Log(ctx, gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
				assert.Equal(t, domain.AuditActionWebhookRejected, entry.Action)
				assert.Equal(t, "10.0.0.9", entry.IPAddress)
			})
			// No deposit, cache, lock, or receipt calls expected.

			_, err := d.svc.Handle(ctx, []byte(tt.body), tt.signature, "10.0.0.9")
			assertAppError(t, err, tt.code)
		})
	}
}

func TestProviderWebhookService_Handle_MalformedPayload(t *testing.T) {
	d := setupWebhookService(t)
	body := `{"event":`

	_, err := d.svc.Handle(context.Background(), []byte(body), sign(body), "10.0.0.1")
	assertAppError(t, err, "PAY_002")
}

func TestProviderWebhookService_Handle_MissingReference(t *testing.T) {
	d := setupWebhookService(t)
	body := `{"event":"charge.success","data":{"id":1,"reference":"  ","amount":100,"status":"success"}}`

	_, err := d.svc.Handle(context.Background(), []byte(body), sign(body), "10.0.0.1")
	assertAppError(t, err, "PAY_002")
}

func TestProviderWebhookService_Handle_UnknownEventIgnored(t *testing.T) {
	d := setupWebhookService(t)
	ctx := context.Background()
	body := `{"event":"transfer.success","data":{"id":77,"reference":"TRF-1","amount":100,"status":"success"}}`

	d.expectReceipt(t, ctx, domain.EventOutcomeIgnored)

	outcome, err := d.svc.Handle(ctx, []byte(body), sign(body), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeIgnored, outcome)
}

func TestProviderWebhookService_Handle_ProcessedCacheShortCircuits(t *testing.T) {
	d := setupWebhookService(t)
	ctx := context.Background()

	d.processed.EXPECT().Get(ctx, "302961").Return("TXN-0123456789ABCDEF", nil)

	outcome, err := d.svc.Handle(ctx, []byte(samplePaystackBody), sign(samplePaystackBody), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeAlreadyApplied, outcome)
}

func TestProviderWebhookService_Handle_EventInProgress(t *testing.T) {
	d := setupWebhookService(t)
	ctx := context.Background()

	d.processed.EXPECT().Get(ctx, "302961").Return("", nil)
	d.eventLock.EXPECT().Acquire(ctx, "302961", 30*time.Second).Return(false, nil)

	_, err := d.svc.Handle(ctx, []byte(samplePaystackBody), sign(samplePaystackBody), "10.0.0.1")
	assertAppError(t, err, "PAY_006")
}

func TestProviderWebhookService_Handle_RedisDownFallsBackToDatabase(t *testing.T) {
	d := setupWebhookService(t)
	ctx := context.Background()
	redisDown := errors.New("dial tcp: connection refused")

	d.processed.EXPECT().Get(ctx, "302961").Return("", redisDown)
	d.eventLock.EXPECT().Acquire(ctx, "302961", 30*time.Second).Return(false, redisDown)
	d.deposits.EXPECT().ApplyConfirmedEvent(ctx, "302961", "TXN-0123456789ABCDEF", int64(500000)).
		Return(domain.EventOutcomeAlreadyApplied, nil)
	d.expectReceipt(t, ctx, domain.EventOutcomeAlreadyApplied)
	d.processed.EXPECT().Mark(ctx, "302961", "TXN-0123456789ABCDEF", 72*time.Hour).Return(redisDown)
	// No Release: the lock was never held.

	outcome, err := d.svc.Handle(ctx, []byte(samplePaystackBody), sign(samplePaystackBody), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeAlreadyApplied, outcome)
}

func TestProviderWebhookService_Handle_AmountMismatchNotMarkedProcessed(t *testing.T) {
	d := setupWebhookService(t)
	ctx := context.Background()

	d.processed.EXPECT().Get(ctx, "302961").Return("", nil)
	d.eventLock.EXPECT().Acquire(ctx, "302961", 30*time.Second).Return(true, nil)
	d.deposits.EXPECT().ApplyConfirmedEvent(ctx, "302961", "TXN-0123456789ABCDEF", int64(500000)).
		Return(domain.EventOutcomeAmountMismatch, nil)
	d.expectReceipt(t, ctx, domain.EventOutcomeAmountMismatch)
	d.eventLock.EXPECT().Release(gomock.Any(), "302961").Return(nil)

	outcome, err := d.svc.Handle(ctx, []byte(samplePaystackBody), sign(samplePaystackBody), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeAmountMismatch, outcome)
}

func TestProviderWebhookService_Handle_ChargeFailed(t *testing.T) {
	d := setupWebhookService(t)
	ctx := context.Background()
	body := `{"event":"charge.failed","data":{"id":302962,"reference":"TXN-0123456789ABCDEF","amount":500000,"status":"failed"}}`

	d.eventLock.EXPECT().Acquire(ctx, "302962", 30*time.Second).Return(true, nil)
	d.deposits.EXPECT().ApplyFailedEvent(ctx, "TXN-0123456789ABCDEF").Return(domain.EventOutcomeFailed, nil)
	d.expectReceipt(t, ctx, domain.EventOutcomeFailed)
	d.eventLock.EXPECT().Release(gomock.Any(), "302962").Return(nil)

	outcome, err := d.svc.Handle(ctx, []byte(body), sign(body), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOutcomeFailed, outcome)
}

func TestProviderWebhookService_Handle_ApplyErrorReleasesLock(t *testing.T) {
	d := setupWebhookService(t)
	ctx := context.Background()

	d.processed.EXPECT().Get(ctx, "302961").Return("", nil)
	d.eventLock.EXPECT().Acquire(ctx, "302961", 30*time.Second).Return(true, nil)
	d.deposits.EXPECT().ApplyConfirmedEvent(ctx, "302961", "TXN-0123456789ABCDEF", int64(500000)).
		Return(domain.EventOutcome(""), errors.New("db down"))
	d.eventLock.EXPECT().Release(gomock.Any(), "302961").Return(nil)

	_, err := d.svc.Handle(ctx, []byte(samplePaystackBody), sign(samplePaystackBody), "10.0.0.1")
	require.Error(t, err)
}
