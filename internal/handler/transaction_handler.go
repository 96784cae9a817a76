package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agbado/internal/middleware"
	"agbado/internal/repository"
)

type TransactionHandler struct {
	txns *repository.TransactionRepository
	log  *zap.Logger
}

func NewTransactionHandler(txns *repository.TransactionRepository, log *zap.Logger) *TransactionHandler {
	return &TransactionHandler{txns: txns, log: log}
}

func (h *TransactionHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	txns, err := h.txns.ListByUser(userID)
	if err != nil {
		h.log.Error("transaction list failed", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// Detail returns a single transaction. Another user's transaction is a 404,
// not a 403, so IDs cannot be probed.
func (h *TransactionHandler) Detail(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id"})
		return
	}
	txn, err := h.txns.GetByIDForUser(uint(id), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": txn})
}
