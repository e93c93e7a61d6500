package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuditLog_TransferSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)
	userID := uuid.New()

	var recorded *domain.AuditLog
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		recorded = entry
	})

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/wallet/transfer", func(c *gin.Context) {
		c.Set(CtxUserID, userID)
		c.Set(CtxAuthMethod, AuthMethodAPIKey)
		c.Set(CtxAuditResourceID, "TXN-0123456789ABCDEF")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/transfer", nil))

	require.NotNil(t, recorded)
	assert.Equal(t, domain.AuditActionTransfer, recorded.Action)
	assert.Equal(t, "transaction", recorded.ResourceType)
	assert.Equal(t, "TXN-0123456789ABCDEF", recorded.ResourceID)
	require.NotNil(t, recorded.UserID)
	assert.Equal(t, userID, *recorded.UserID)
	assert.Contains(t, recorded.Details, `"auth_method":"api_key"`)
}

func TestAuditLog_UsesRouteTemplate(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionRevokeKey, entry.Action)
	})

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/keys/revoke", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/keys/revoke?x=1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditLog_Skips(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"GET request", http.MethodGet, "/api/v1/wallet/balance", http.StatusOK},
		{"failed request", http.MethodPost, "/api/v1/wallet/transfer", http.StatusPaymentRequired},
		{"unmapped route", http.MethodPost, "/api/v1/wallet/paystack/webhook", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockAudit := mocks.NewMockAuditService(ctrl)
			// No expectations: Log must not be called.

			r := gin.New()
			r.Use(AuditLog(mockAudit))
			r.Handle(tt.method, tt.path, func(c *gin.Context) { c.Status(tt.status) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMapPathToAction(t *testing.T) {
	tests := []struct {
		route        string
		wantAction   domain.AuditAction
		wantResource string
	}{
		{"/api/v1/auth/register", domain.AuditActionRegister, "user"},
		{"/api/v1/auth/login", domain.AuditActionLogin, "session"},
		{"/api/v1/wallet/deposit", domain.AuditActionDeposit, "transaction"},
		{"/api/v1/wallet/transfer", domain.AuditActionTransfer, "transaction"},
		{"/api/v1/keys/create", domain.AuditActionCreateKey, "api_key"},
		{"/api/v1/keys/rollover", domain.AuditActionRolloverKey, "api_key"},
		{"/api/v1/wallet/balance", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			action, resource := mapPathToAction(tt.route)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantResource, resource)
		})
	}
}
