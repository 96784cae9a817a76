package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"agbado/pkg/currency"
)

// PaystackProvider implements TransferProvider against the Paystack REST API.
type PaystackProvider struct {
	BaseURL       string
	SecretKey     string
	PreferredBank string
	client        *http.Client
	log           *zap.Logger
}

func NewPaystackProvider(baseURL, secretKey, preferredBank string, timeout time.Duration, log *zap.Logger) *PaystackProvider {
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaystackProvider{
		BaseURL:       baseURL,
		SecretKey:     secretKey,
		PreferredBank: preferredBank,
		client:        &http.Client{Timeout: timeout},
		log:           log,
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do performs a request and decodes the standard Paystack envelope into out.
func (p *PaystackProvider) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	p.log.Debug("paystack call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrProviderAuth
	case resp.StatusCode >= 500:
		return &UnavailableError{Err: fmt.Errorf("paystack %s %s: http %d", method, path, resp.StatusCode)}
	}

	var env paystackEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return &UnavailableError{Err: fmt.Errorf("paystack %s %s: malformed response: %w", method, path, err)}
	}
	if resp.StatusCode >= 400 || !env.Status {
		return &RejectedError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &UnavailableError{Err: fmt.Errorf("paystack %s %s: malformed data: %w", method, path, err)}
		}
	}
	return nil
}

func (p *PaystackProvider) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*ResolvedAccount, error) {
	var data struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
	}
	q := url.Values{}
	q.Set("account_number", accountNumber)
	q.Set("bank_code", bankCode)
	err := p.do(ctx, http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &data)
	if err != nil {
		var rej *RejectedError
		if errors.As(err, &rej) {
			return nil, fmt.Errorf("%w: %s", ErrAccountResolution, rej.Message)
		}
		return nil, err
	}
	return &ResolvedAccount{AccountNumber: data.AccountNumber, AccountName: data.AccountName}, nil
}

func (p *PaystackProvider) EnsureRecipient(ctx context.Context, accountName, accountNumber, bankCode string) (string, error) {
	payload := map[string]string{
		"type":           "nuban",
		"name":           accountName,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       "NGN",
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	// Paystack returns the existing recipient for a known account, so this is
	// idempotent without local deduplication.
	if err := p.do(ctx, http.MethodPost, "/transferrecipient", payload, &data); err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

func (p *PaystackProvider) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	minor, err := currency.ToMinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"source":    "balance",
		"amount":    minor,
		"recipient": req.RecipientCode,
		"reason":    req.Reason,
		"reference": req.Reference,
	}
	var data struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		ID        int64  `json:"id"`
	}
	if err := p.do(ctx, http.MethodPost, "/transfer", payload, &data); err != nil {
		return nil, err
	}
	return &TransferResult{
		Status:     mapPaystackStatus(data.Status),
		Reference:  data.Reference,
		TransferID: data.ID,
	}, nil
}

func (p *PaystackProvider) CheckTransferStatus(ctx context.Context, reference string) (TransferStatus, error) {
	var data struct {
		Status string `json:"status"`
	}
	if err := p.do(ctx, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return "", err
	}
	return mapPaystackStatus(data.Status), nil
}

// VerifyWebhookSignature checks the x-paystack-signature header: a hex
// HMAC-SHA512 of the raw body keyed with the secret key.
func (p *PaystackProvider) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(p.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (p *PaystackProvider) CreateCustomer(ctx context.Context, c Customer) (string, error) {
	payload := map[string]string{
		"email":      c.Email,
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"phone":      c.Phone,
	}
	var data struct {
		CustomerCode string `json:"customer_code"`
	}
	if err := p.do(ctx, http.MethodPost, "/customer", payload, &data); err != nil {
		return "", err
	}
	return data.CustomerCode, nil
}

func (p *PaystackProvider) CreateDedicatedAccount(ctx context.Context, customerCode string, c Customer) (*DedicatedAccount, error) {
	payload := map[string]string{
		"customer":       customerCode,
		"preferred_bank": p.PreferredBank,
		"first_name":     c.FirstName,
		"last_name":      c.LastName,
		"phone":          c.Phone,
	}
	var data struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
		Bank          struct {
			Name string `json:"name"`
		} `json:"bank"`
	}
	if err := p.do(ctx, http.MethodPost, "/dedicated_account", payload, &data); err != nil {
		return nil, err
	}
	return &DedicatedAccount{
		AccountNumber: data.AccountNumber,
		AccountName:   data.AccountName,
		BankName:      data.Bank.Name,
	}, nil
}

func (p *PaystackProvider) ListBanks(ctx context.Context) ([]Bank, error) {
	var data []struct {
		Name string `json:"name"`
		Code string `json:"code"`
		Slug string `json:"slug"`
	}
	if err := p.do(ctx, http.MethodGet, "/bank", nil, &data); err != nil {
		return nil, err
	}
	banks := make([]Bank, 0, len(data))
	for _, b := range data {
		banks = append(banks, Bank{Name: b.Name, Code: b.Code, Slug: b.Slug})
	}
	return banks, nil
}

func mapPaystackStatus(s string) TransferStatus {
	switch s {
	case "success":
		return StatusSuccess
	case "failed":
		return StatusFailed
	case "reversed":
		return StatusReversed
	default:
		return StatusPending
	}
}
