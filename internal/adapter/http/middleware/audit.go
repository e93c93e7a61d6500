package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records successful mutating requests once the handler has responded.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath())
		if action == "" {
			return
		}

		var userID *uuid.UUID
		if id, ok := UserID(c); ok {
			userID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"auth_method": c.GetString(CtxAuthMethod),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxAuditResourceID),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func mapPathToAction(route string) (domain.AuditAction, string) {
	switch route {
	case "/api/v1/auth/register":
		return domain.AuditActionRegister, "user"
	case "/api/v1/auth/login":
		return domain.AuditActionLogin, "session"
	case "/api/v1/wallet/deposit":
		return domain.AuditActionDeposit, "transaction"
	case "/api/v1/wallet/transfer":
		return domain.AuditActionTransfer, "transaction"
	case "/api/v1/keys/create":
		return domain.AuditActionCreateKey, "api_key"
	case "/api/v1/keys/revoke":
		return domain.AuditActionRevokeKey, "api_key"
	case "/api/v1/keys/rollover":
		return domain.AuditActionRolloverKey, "api_key"
	}
	return "", ""
}
