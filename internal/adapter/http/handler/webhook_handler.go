package handler

import (
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"
	"custodial-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderPaystackSignature carries the hex HMAC-SHA512 of the raw webhook body.
const HeaderPaystackSignature = "x-paystack-signature"

// WebhookHandler receives provider callbacks.
type WebhookHandler struct {
	webhookSvc ports.ProviderWebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.ProviderWebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// Paystack handles POST /api/v1/wallet/paystack/webhook.
// The body is passed through untouched so the signature is checked over the exact bytes received.
func (h *WebhookHandler) Paystack(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		response.Error(c, apperror.Validation("unable to read request body"))
		return
	}

	outcome, err := h.webhookSvc.Handle(
		c.Request.Context(),
		payload,
		c.GetHeader(HeaderPaystackSignature),
		c.ClientIP(),
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"status":  true,
		"outcome": string(outcome),
	})
}
