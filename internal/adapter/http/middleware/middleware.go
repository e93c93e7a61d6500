package middleware

import (
	"net/http"
	"strings"
	"time"

	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"
	"custodial-wallet/pkg/logger"
	"custodial-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "x-api-key"
	HeaderRequestID     = "X-Request-ID"

	// Context keys
	CtxUserID     = "user_id"
	CtxAuthMethod = "auth_method"
	CtxAPIKeyID   = "api_key_id"

	// CtxAuditResourceID lets a handler name the resource it touched.
	CtxAuditResourceID = "audit_resource_id"

	AuthMethodSession = "session"
	AuthMethodAPIKey  = "api_key"
)

// RequestID tags every request with a correlation ID, reusing a sane inbound one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(response.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequirePermission is the access gate for wallet operations. A session token
// carries every permission; an API key must hold perm and be neither revoked nor expired.
// When both credentials are sent, the session wins.
func RequirePermission(tokenSvc ports.TokenService, credSvc ports.CredentialService, perm domain.Permission, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if !authenticateSession(c, tokenSvc, token) {
				return
			}
			c.Next()
			return
		}

		secret := c.GetHeader(HeaderAPIKey)
		if secret == "" {
			response.Error(c, apperror.ErrMissingCredentials())
			c.Abort()
			return
		}

		key, err := credSvc.Validate(c.Request.Context(), secret, perm)
		if err != nil {
			if apperror.CodeOf(err) == "SEC_007" {
				logger.Security(log).
					Str("permission", string(perm)).
					Str("path", c.Request.URL.Path).
					Msg("api key used without permission")
			}
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(CtxUserID, key.UserID)
		c.Set(CtxAuthMethod, AuthMethodAPIKey)
		c.Set(CtxAPIKeyID, key.ID)
		c.Next()
	}
}

// SessionOnly admits session tokens only. API keys cannot manage API keys.
func SessionOnly(tokenSvc ports.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			if c.GetHeader(HeaderAPIKey) != "" {
				response.Error(c, apperror.ErrSessionRequired())
			} else {
				response.Error(c, apperror.ErrMissingCredentials())
			}
			c.Abort()
			return
		}
		if !authenticateSession(c, tokenSvc, token) {
			return
		}
		c.Next()
	}
}

func authenticateSession(c *gin.Context, tokenSvc ports.TokenService, token string) bool {
	claims, err := tokenSvc.Validate(token)
	if err != nil {
		response.Error(c, apperror.ErrInvalidToken())
		c.Abort()
		return false
	}
	c.Set(CtxUserID, claims.UserID)
	c.Set(CtxAuthMethod, AuthMethodSession)
	return true
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(HeaderAuthorization)
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// UserID returns the authenticated user set by the access gate.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(CtxUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString(response.RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("auth_method", c.GetString(CtxAuthMethod)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("request_id", c.GetString(response.RequestIDKey)).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				response.Error(c, apperror.InternalError(nil))
				c.Abort()
			}
		}()
		c.Next()
	}
}
