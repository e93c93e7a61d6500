package handler

import (
	"custodial-wallet/internal/adapter/http/dto"
	"custodial-wallet/internal/adapter/http/middleware"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"
	"custodial-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// DepositHandler handles deposit initiation and status.
type DepositHandler struct {
	depositSvc ports.DepositService
}

// NewDepositHandler creates a new DepositHandler.
func NewDepositHandler(depositSvc ports.DepositService) *DepositHandler {
	return &DepositHandler{depositSvc: depositSvc}
}

// Initiate handles POST /api/v1/wallet/deposit.
func (h *DepositHandler) Initiate(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.depositSvc.Initiate(c.Request.Context(), userID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, result.Reference)
	response.Created(c, dto.DepositResponse{
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
	})
}

// Status handles GET /api/v1/wallet/deposit/:reference/status. It never credits.
func (h *DepositHandler) Status(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var uri dto.DepositStatusURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, apperror.Validation("invalid reference"))
		return
	}

	deposit, err := h.depositSvc.CheckStatus(c.Request.Context(), userID, uri.Reference)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.DepositStatusResponse{
		Reference:     deposit.Reference,
		Status:        string(deposit.Status),
		Amount:        deposit.Amount,
		AmountDisplay: dto.FormatKobo(deposit.Amount),
	})
}
