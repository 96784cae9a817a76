package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agbado/internal/middleware"
	"agbado/internal/repository"
	"agbado/internal/service"
)

type WalletHandler struct {
	wallets *service.WalletService
	users   *repository.UserRepository
	txns    *repository.TransactionRepository
	log     *zap.Logger
}

func NewWalletHandler(wallets *service.WalletService, users *repository.UserRepository, txns *repository.TransactionRepository, log *zap.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, users: users, txns: txns, log: log}
}

// Get returns the wallet balance, deposit account details, and the five most
// recent transactions. A missing deposit account is retried here so a
// provider outage at registration heals on the next wallet read.
func (h *WalletHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	wallet, err := h.wallets.Get(userID)
	if err != nil {
		h.log.Error("wallet lookup failed", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load wallet"})
		return
	}

	if !wallet.HasDVA() {
		if user, err := h.users.GetByID(userID); err == nil {
			if err := h.wallets.EnsureDedicatedAccount(c.Request.Context(), user, wallet); err != nil {
				h.log.Warn("dedicated account retry failed",
					zap.Uint("user_id", userID), zap.Error(err))
			}
		}
	}

	recent, err := h.txns.Recent(userID, 5)
	if err != nil {
		h.log.Error("recent transactions lookup failed", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load wallet"})
		return
	}

	resp := gin.H{
		"balance":             wallet.Balance,
		"recent_transactions": recent,
	}
	if wallet.HasDVA() {
		resp["deposit_account"] = gin.H{
			"account_number": wallet.DVAAccountNumber,
			"account_name":   wallet.DVAAccountName,
			"bank_name":      wallet.DVABankName,
		}
	}
	c.JSON(http.StatusOK, resp)
}
