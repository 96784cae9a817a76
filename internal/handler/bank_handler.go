package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agbado/internal/repository"
)

type BankHandler struct {
	banks *repository.BankRepository
	log   *zap.Logger
}

func NewBankHandler(banks *repository.BankRepository, log *zap.Logger) *BankHandler {
	return &BankHandler{banks: banks, log: log}
}

func (h *BankHandler) List(c *gin.Context) {
	banks, err := h.banks.ListActive()
	if err != nil {
		h.log.Error("bank list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load banks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"banks": banks})
}
