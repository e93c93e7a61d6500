package handler

import (
	"custodial-wallet/internal/adapter/http/dto"
	"custodial-wallet/internal/adapter/http/middleware"
	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/apperror"
	"custodial-wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

// WalletHandler handles balance, history and transfer endpoints.
type WalletHandler struct {
	walletSvc   ports.WalletService
	transferSvc ports.TransferService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService, transferSvc ports.TransferService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc, transferSvc: transferSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	wallet, err := h.walletSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletNumber:   wallet.WalletNumber,
		Balance:        wallet.Balance,
		BalanceDisplay: dto.FormatKobo(wallet.Balance),
	})
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var q dto.TransactionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Page == 0 {
		q.Page = defaultPage
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}

	filter := domain.TransactionFilter{Page: q.Page, PageSize: q.PageSize}
	if q.Kind != "" {
		kind := domain.TransactionKind(q.Kind)
		filter.Kind = &kind
	}
	if q.Status != "" {
		status := domain.TransactionStatus(q.Status)
		filter.Status = &status
	}

	txns, total, err := h.walletSvc.ListTransactions(c.Request.Context(), userID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, dto.ToTransactionResponse(&txns[i]))
	}
	response.Paged(c, items, total, q.Page, q.PageSize)
}

// GetSummary handles GET /api/v1/wallet/summary.
func (h *WalletHandler) GetSummary(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	summary, err := h.walletSvc.GetSummary(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.SummaryResponse{
		TotalDeposits:    summary.TotalDeposits,
		TotalTransferIn:  summary.TotalTransferIn,
		TotalTransferOut: summary.TotalTransferOut,
		SuccessCount:     summary.SuccessCount,
		PendingCount:     summary.PendingCount,
		FailedCount:      summary.FailedCount,
	})
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var headers dto.TransferHeaders
	if err := c.ShouldBindHeader(&headers); err != nil {
		response.Error(c, apperror.Validation("invalid Idempotency-Key header"))
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.transferSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		UserID:                userID,
		RecipientWalletNumber: req.WalletNumber,
		Amount:                req.Amount,
		IdempotencyKey:        headers.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, result.Reference)
	response.OK(c, dto.TransferResponse{
		Reference:             result.Reference,
		Amount:                result.Amount,
		RecipientWalletNumber: result.RecipientWalletNumber,
		Status:                string(result.Status),
		BalanceAfter:          result.BalanceAfter,
	})
}
