package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agbado/internal/middleware"
	"agbado/internal/repository"
	"agbado/internal/service"
	"agbado/pkg/payment"
)

type WithdrawalHandler struct {
	svc         *service.WithdrawalService
	withdrawals *repository.WithdrawalRepository
	log         *zap.Logger
}

func NewWithdrawalHandler(svc *service.WithdrawalService, withdrawals *repository.WithdrawalRepository, log *zap.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{svc: svc, withdrawals: withdrawals, log: log}
}

type CreateWithdrawalRequest struct {
	BankName      string          `json:"bank_name" binding:"required"`
	AccountNumber string          `json:"account_number" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
}

// Create initiates a withdrawal. Acceptance is a 202: the transfer is still
// in flight at the provider and settles through webhooks or the reconciler.
func (h *WithdrawalHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wd, err := h.svc.RequestWithdrawal(c.Request.Context(), userID, service.WithdrawalRequest{
		BankName:       req.BankName,
		AccountNumber:  req.AccountNumber,
		Amount:         req.Amount,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.respondWithdrawalError(c, userID, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"withdrawal": wd})
}

func (h *WithdrawalHandler) respondWithdrawalError(c *gin.Context, userID uint, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidAccountNumber),
		errors.Is(err, repository.ErrUnknownBank),
		errors.Is(err, repository.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var pf *service.ProviderFailure
	if errors.As(err, &pf) {
		status := http.StatusBadGateway
		if payment.IsRetryable(pf.Cause) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"error":          pf.Cause.Error(),
			"funds_returned": pf.FundsReturned,
		})
		return
	}

	h.log.Error("withdrawal failed", zap.Uint("user_id", userID), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "withdrawal failed"})
}

func (h *WithdrawalHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ws, err := h.withdrawals.ListByUser(userID)
	if err != nil {
		h.log.Error("withdrawal list failed", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load withdrawals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": ws})
}

func (h *WithdrawalHandler) Detail(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid withdrawal id"})
		return
	}
	wd, err := h.withdrawals.GetByIDForUser(uint(id), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawal": wd})
}
