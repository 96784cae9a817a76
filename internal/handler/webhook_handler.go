package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"agbado/internal/domain"
	"agbado/internal/models"
	"agbado/internal/repository"
	"agbado/internal/service"
	"agbado/pkg/currency"
	"agbado/pkg/payment"
)

// TransferFinalizer settles an outbound transfer once its asynchronous
// outcome is known.
type TransferFinalizer interface {
	FinalizeTransfer(reference string, status payment.TransferStatus, reason string) error
}

// DepositLedger is the slice of the wallet store the deposit path needs.
type DepositLedger interface {
	GetByCustomerCode(code string) (*models.Wallet, error)
	CreditDeposit(userID uint, amount decimal.Decimal, reference string, providerTxnID *int64) (*models.Transaction, error)
}

// WebhookHandler receives asynchronous provider events. Nothing in a payload
// is trusted until its signature verifies; after that, every apply path is
// idempotent so provider redelivery is harmless.
type WebhookHandler struct {
	provider    payment.TransferProvider
	withdrawals TransferFinalizer
	wallets     DepositLedger
	notifier    service.Notifier
	log         *zap.Logger
}

func NewWebhookHandler(provider payment.TransferProvider, withdrawals TransferFinalizer, wallets DepositLedger, notifier service.Notifier, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{provider: provider, withdrawals: withdrawals, wallets: wallets, notifier: notifier, log: log}
}

// webhookEvent is the normalized form of a provider event. Paystack wraps
// payloads as {event, data}; Monnify as {eventType, eventData}.
type webhookEvent struct {
	kind         string // "transfer" or "deposit"
	status       payment.TransferStatus
	reference    string
	amountMinor  int64
	customerCode string
	providerID   int64
	reason       string
}

func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	signature := c.GetHeader("x-paystack-signature")
	if signature == "" {
		signature = c.GetHeader("monnify-signature")
	}
	if !h.provider.VerifyWebhookSignature(body, signature) {
		h.log.Warn("webhook signature rejected", zap.String("remote", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	event, err := parseWebhookEvent(body)
	if err != nil {
		h.log.Warn("webhook payload ignored", zap.Error(err))
		// Acknowledge so the provider stops redelivering junk we will never
		// handle.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	switch event.kind {
	case "transfer":
		h.applyTransfer(c, event)
	case "deposit":
		h.applyDeposit(c, event)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func (h *WebhookHandler) applyTransfer(c *gin.Context, ev *webhookEvent) {
	err := h.withdrawals.FinalizeTransfer(ev.reference, ev.status, ev.reason)
	if err != nil {
		if isUnknownRecord(err) {
			// A reference we never issued, or a replay for a settled
			// withdrawal. Acknowledge and move on.
			h.log.Info("webhook for unknown transfer reference",
				zap.String("reference", ev.reference))
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		h.log.Error("webhook transfer finalize failed",
			zap.String("reference", ev.reference), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not apply event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *WebhookHandler) applyDeposit(c *gin.Context, ev *webhookEvent) {
	if ev.customerCode == "" || ev.reference == "" || ev.amountMinor <= 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	wallet, err := h.wallets.GetByCustomerCode(ev.customerCode)
	if err != nil {
		h.log.Warn("deposit webhook for unknown customer",
			zap.String("customer_code", ev.customerCode))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	amount := currency.FromMinorUnits(ev.amountMinor)
	var providerID *int64
	if ev.providerID != 0 {
		providerID = &ev.providerID
	}
	if _, err := h.wallets.CreditDeposit(wallet.UserID, amount, ev.reference, providerID); err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		h.log.Error("deposit credit failed",
			zap.String("reference", ev.reference), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not apply event"})
		return
	}
	h.log.Info("deposit credited",
		zap.Uint("user_id", wallet.UserID),
		zap.String("reference", ev.reference),
		zap.String("amount", amount.StringFixed(2)))
	if h.notifier != nil {
		_ = h.notifier.Notify(wallet.UserID, domain.NotifDepositReceived, "Deposit received",
			fmt.Sprintf("Your wallet has been credited with %s.", amount.StringFixed(2)),
			map[string]interface{}{"reference": ev.reference})
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		ID        int64  `json:"id"`
		Reason    string `json:"reason"`
		Customer  struct {
			CustomerCode string `json:"customer_code"`
		} `json:"customer"`
	} `json:"data"`
}

type monnifyWebhook struct {
	EventType string `json:"eventType"`
	EventData struct {
		TransactionReference string          `json:"transactionReference"`
		PaymentReference     string          `json:"paymentReference"`
		Reference            string          `json:"reference"`
		AmountPaid           json.Number     `json:"amountPaid"`
		Status               string          `json:"status"`
		CustomerCode         string          `json:"customerCode"`
		Customer             json.RawMessage `json:"customer"`
	} `json:"eventData"`
}

func parseWebhookEvent(body []byte) (*webhookEvent, error) {
	var ps paystackWebhook
	if err := json.Unmarshal(body, &ps); err == nil && ps.Event != "" {
		ev := &webhookEvent{
			reference:  ps.Data.Reference,
			providerID: ps.Data.ID,
			reason:     ps.Data.Reason,
		}
		switch ps.Event {
		case "transfer.success":
			ev.kind, ev.status = "transfer", payment.StatusSuccess
		case "transfer.failed":
			ev.kind, ev.status = "transfer", payment.StatusFailed
		case "transfer.reversed":
			ev.kind, ev.status = "transfer", payment.StatusReversed
		case "charge.success":
			ev.kind = "deposit"
			ev.amountMinor = ps.Data.Amount
			ev.customerCode = ps.Data.Customer.CustomerCode
		default:
			return nil, fmt.Errorf("unhandled event %q", ps.Event)
		}
		return ev, nil
	}

	var mf monnifyWebhook
	if err := json.Unmarshal(body, &mf); err != nil || mf.EventType == "" {
		return nil, errors.New("unrecognized webhook payload")
	}
	ref := mf.EventData.Reference
	if ref == "" {
		ref = mf.EventData.TransactionReference
	}
	ev := &webhookEvent{reference: ref}
	switch mf.EventType {
	case "SUCCESSFUL_DISBURSEMENT":
		ev.kind, ev.status = "transfer", payment.StatusSuccess
	case "FAILED_DISBURSEMENT":
		ev.kind, ev.status = "transfer", payment.StatusFailed
	case "REVERSED_DISBURSEMENT":
		ev.kind, ev.status = "transfer", payment.StatusReversed
	case "SUCCESSFUL_TRANSACTION":
		ev.kind = "deposit"
		ev.customerCode = mf.EventData.CustomerCode
		// Monnify reports major units with two decimals.
		if amt, err := decimal.NewFromString(mf.EventData.AmountPaid.String()); err == nil {
			if minor, err := currency.ToMinorUnits(amt); err == nil {
				ev.amountMinor = minor
			}
		}
		if mf.EventData.PaymentReference != "" {
			ev.reference = mf.EventData.PaymentReference
		}
	default:
		return nil, fmt.Errorf("unhandled event %q", mf.EventType)
	}
	return ev, nil
}

func isUnknownRecord(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
