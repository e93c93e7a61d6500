package handler

import (
	"time"

	"custodial-wallet/internal/adapter/http/dto"
	"custodial-wallet/internal/adapter/http/middleware"
	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"
	"custodial-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// KeyHandler manages a user's API keys. Routes are session-only.
type KeyHandler struct {
	credSvc ports.CredentialService
	now     func() time.Time
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(credSvc ports.CredentialService) *KeyHandler {
	return &KeyHandler{credSvc: credSvc, now: time.Now}
}

// Create handles POST /api/v1/keys/create. The secret is returned once.
func (h *KeyHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var req dto.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	perms := make([]domain.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, domain.Permission(p))
	}

	issued, err := h.credSvc.Issue(c.Request.Context(), userID, req.Name, perms, domain.ExpiryDuration(req.Expiry))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, issued.Key.ID.String())
	response.Created(c, toIssuedKeyResponse(issued))
}

// List handles GET /api/v1/keys.
func (h *KeyHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	keys, err := h.credSvc.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	now := h.now()
	items := make([]dto.APIKeyResponse, 0, len(keys))
	for i := range keys {
		items = append(items, dto.ToAPIKeyResponse(&keys[i], now))
	}
	response.OK(c, items)
}

// Revoke handles POST /api/v1/keys/revoke.
func (h *KeyHandler) Revoke(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var req dto.RevokeKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	keyID, err := uuid.Parse(req.KeyID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid key_id"))
		return
	}

	if err := h.credSvc.Revoke(c.Request.Context(), userID, keyID); err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, keyID.String())
	response.OK(c, gin.H{"key_id": keyID.String(), "revoked": true})
}

// Rollover handles POST /api/v1/keys/rollover.
func (h *KeyHandler) Rollover(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var req dto.RolloverKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	expiredID, err := uuid.Parse(req.ExpiredKeyID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid expired_key_id"))
		return
	}

	issued, err := h.credSvc.Rollover(c.Request.Context(), userID, expiredID, domain.ExpiryDuration(req.Expiry))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, issued.Key.ID.String())
	response.Created(c, toIssuedKeyResponse(issued))
}

func toIssuedKeyResponse(issued *domain.IssuedAPIKey) dto.IssuedKeyResponse {
	return dto.IssuedKeyResponse{
		APIKey:    issued.Secret,
		KeyID:     issued.Key.ID.String(),
		Prefix:    issued.Key.Prefix,
		ExpiresAt: issued.Key.ExpiresAt.Format(time.RFC3339),
	}
}
