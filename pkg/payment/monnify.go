package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"agbado/pkg/currency"
)

// MonnifyProvider implements TransferProvider against the Monnify REST API.
// Monnify authenticates with a short-lived bearer token obtained via basic
// auth; the token is cached on the instance with an explicit expiry check.
type MonnifyProvider struct {
	BaseURL      string
	APIKey       string
	SecretKey    string
	ContractCode string
	client       *http.Client
	log          *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewMonnifyProvider(baseURL, apiKey, secretKey, contractCode string, timeout time.Duration, log *zap.Logger) *MonnifyProvider {
	if baseURL == "" {
		baseURL = "https://api.monnify.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MonnifyProvider{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		SecretKey:    secretKey,
		ContractCode: contractCode,
		client:       &http.Client{Timeout: timeout},
		log:          log,
	}
}

type monnifyEnvelope struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseMessage   string          `json:"responseMessage"`
	ResponseCode      string          `json:"responseCode"`
	ResponseBody      json.RawMessage `json:"responseBody"`
}

// token returns a valid bearer token, re-authenticating lazily when the
// cached one is absent or within 30s of expiry. The login round-trip runs
// outside the lock so a refresh never stalls concurrent provider calls;
// racing refreshes both succeed and the last write wins.
func (m *MonnifyProvider) token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.accessToken != "" && time.Now().Before(m.tokenExpiry.Add(-30*time.Second)) {
		tok := m.accessToken
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	tok, expiry, err := m.login(ctx)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.accessToken = tok
	m.tokenExpiry = expiry
	m.mu.Unlock()
	m.log.Debug("monnify token refreshed", zap.Time("expiry", expiry))
	return tok, nil
}

func (m *MonnifyProvider) login(ctx context.Context) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return "", time.Time{}, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(m.APIKey + ":" + m.SecretKey))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", time.Time{}, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", time.Time{}, ErrProviderAuth
	}
	if resp.StatusCode >= 500 {
		return "", time.Time{}, &UnavailableError{Err: fmt.Errorf("monnify login: http %d", resp.StatusCode)}
	}
	var env monnifyEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", time.Time{}, &UnavailableError{Err: fmt.Errorf("monnify login: malformed response: %w", err)}
	}
	if !env.RequestSuccessful {
		return "", time.Time{}, ErrProviderAuth
	}
	var body struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := json.Unmarshal(env.ResponseBody, &body); err != nil {
		return "", time.Time{}, &UnavailableError{Err: fmt.Errorf("monnify login: malformed body: %w", err)}
	}
	return body.AccessToken, time.Now().Add(time.Duration(body.ExpiresIn) * time.Second), nil
}

func (m *MonnifyProvider) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	tok, err := m.token(ctx)
	if err != nil {
		return err
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	m.log.Debug("monnify call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Cached token may have been revoked server-side.
		m.mu.Lock()
		m.accessToken = ""
		m.mu.Unlock()
		return ErrProviderAuth
	case resp.StatusCode >= 500:
		return &UnavailableError{Err: fmt.Errorf("monnify %s %s: http %d", method, path, resp.StatusCode)}
	}

	var env monnifyEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return &UnavailableError{Err: fmt.Errorf("monnify %s %s: malformed response: %w", method, path, err)}
	}
	if resp.StatusCode >= 400 || !env.RequestSuccessful {
		return &RejectedError{StatusCode: resp.StatusCode, Message: env.ResponseMessage}
	}
	if out != nil {
		if err := json.Unmarshal(env.ResponseBody, out); err != nil {
			return &UnavailableError{Err: fmt.Errorf("monnify %s %s: malformed body: %w", method, path, err)}
		}
	}
	return nil
}

func (m *MonnifyProvider) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*ResolvedAccount, error) {
	q := url.Values{}
	q.Set("accountNumber", accountNumber)
	q.Set("bankCode", bankCode)
	var data struct {
		AccountNumber string `json:"accountNumber"`
		AccountName   string `json:"accountName"`
	}
	err := m.do(ctx, http.MethodGet, "/api/v1/disbursements/account/validate?"+q.Encode(), nil, &data)
	if err != nil {
		var rej *RejectedError
		if errors.As(err, &rej) {
			return nil, fmt.Errorf("%w: %s", ErrAccountResolution, rej.Message)
		}
		return nil, err
	}
	return &ResolvedAccount{AccountNumber: data.AccountNumber, AccountName: data.AccountName}, nil
}

// EnsureRecipient has no Monnify equivalent: disbursements address the bank
// account directly. The destination is folded into an opaque recipient code
// that InitiateTransfer unpacks.
func (m *MonnifyProvider) EnsureRecipient(ctx context.Context, accountName, accountNumber, bankCode string) (string, error) {
	if accountNumber == "" || bankCode == "" {
		return "", &RejectedError{StatusCode: http.StatusBadRequest, Message: "missing destination account"}
	}
	return "MFY:" + bankCode + ":" + accountNumber, nil
}

func (m *MonnifyProvider) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	bankCode, accountNumber, ok := splitMonnifyRecipient(req.RecipientCode)
	if !ok {
		return nil, &RejectedError{StatusCode: http.StatusBadRequest, Message: "malformed recipient code"}
	}
	// Validate precision up front; monnify takes major units but the amount
	// must land exactly on a minor unit.
	if _, err := currency.ToMinorUnits(req.Amount); err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"amount":                   json.Number(req.Amount.StringFixed(2)),
		"reference":                req.Reference,
		"narration":                req.Reason,
		"destinationBankCode":      bankCode,
		"destinationAccountNumber": accountNumber,
		"currency":                 "NGN",
		"sourceAccountNumber":      m.ContractCode,
	}
	var data struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
	}
	if err := m.do(ctx, http.MethodPost, "/api/v2/disbursements/single", payload, &data); err != nil {
		return nil, err
	}
	return &TransferResult{
		Status:    mapMonnifyStatus(data.Status),
		Reference: data.Reference,
	}, nil
}

func (m *MonnifyProvider) CheckTransferStatus(ctx context.Context, reference string) (TransferStatus, error) {
	var data struct {
		Status string `json:"status"`
	}
	q := url.Values{}
	q.Set("reference", reference)
	if err := m.do(ctx, http.MethodGet, "/api/v2/disbursements/single/summary?"+q.Encode(), nil, &data); err != nil {
		return "", err
	}
	return mapMonnifyStatus(data.Status), nil
}

// monnifyWebhookFields are the canonical eventData fields covered by the
// transaction hash, in concatenation order.
type monnifyWebhookFields struct {
	TransactionReference string `json:"transactionReference"`
	PaymentReference     string `json:"paymentReference"`
	AmountPaid           string `json:"amountPaid"`
	PaidOn               string `json:"paidOn"`
	TransactionHash      string `json:"transactionHash"`
}

// VerifyWebhookSignature accepts either of Monnify's two schemes for the
// {eventType, eventData} envelope:
//
//   - monnify-signature header: hex HMAC-SHA512 of the raw body keyed with
//     the client secret;
//   - legacy transaction hash inside eventData: SHA-512 over
//     "txRef|payRef|amountPaid|paidOn|secret".
//
// All comparisons are constant time.
func (m *MonnifyProvider) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature != "" {
		mac := hmac.New(sha512.New, []byte(m.SecretKey))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}

	var evt struct {
		EventData monnifyWebhookFields `json:"eventData"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return false
	}
	f := evt.EventData
	received := f.TransactionHash
	if signature != "" {
		received = signature
	}
	if received == "" {
		return false
	}
	raw := strings.Join([]string{f.TransactionReference, f.PaymentReference, f.AmountPaid, f.PaidOn, m.SecretKey}, "|")
	sum := sha512.Sum512([]byte(raw))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(received)) == 1
}

// CreateCustomer is implicit on Monnify: reserved accounts are keyed by an
// account reference rather than a standalone customer object.
func (m *MonnifyProvider) CreateCustomer(ctx context.Context, c Customer) (string, error) {
	if c.Email == "" {
		return "", &RejectedError{StatusCode: http.StatusBadRequest, Message: "customer email required"}
	}
	return "MFY-" + c.Email, nil
}

func (m *MonnifyProvider) CreateDedicatedAccount(ctx context.Context, customerCode string, c Customer) (*DedicatedAccount, error) {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	payload := map[string]interface{}{
		"accountReference":     customerCode,
		"accountName":          name,
		"customerEmail":        c.Email,
		"customerName":         name,
		"contractCode":         m.ContractCode,
		"currencyCode":         "NGN",
		"getAllAvailableBanks": false,
	}
	var data struct {
		Accounts []struct {
			AccountNumber string `json:"accountNumber"`
			AccountName   string `json:"accountName"`
			BankName      string `json:"bankName"`
		} `json:"accounts"`
	}
	if err := m.do(ctx, http.MethodPost, "/api/v2/bank-transfer/reserved-accounts", payload, &data); err != nil {
		return nil, err
	}
	if len(data.Accounts) == 0 {
		return nil, &RejectedError{StatusCode: http.StatusUnprocessableEntity, Message: "no reserved account returned"}
	}
	acc := data.Accounts[0]
	return &DedicatedAccount{
		AccountNumber: acc.AccountNumber,
		AccountName:   acc.AccountName,
		BankName:      acc.BankName,
	}, nil
}

func (m *MonnifyProvider) ListBanks(ctx context.Context) ([]Bank, error) {
	var data []struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := m.do(ctx, http.MethodGet, "/api/v1/banks", nil, &data); err != nil {
		return nil, err
	}
	banks := make([]Bank, 0, len(data))
	for _, b := range data {
		banks = append(banks, Bank{Name: b.Name, Code: b.Code})
	}
	return banks, nil
}

func splitMonnifyRecipient(code string) (bankCode, accountNumber string, ok bool) {
	parts := strings.Split(code, ":")
	if len(parts) != 3 || parts[0] != "MFY" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func mapMonnifyStatus(s string) TransferStatus {
	switch strings.ToUpper(s) {
	case "SUCCESS", "COMPLETED", "PAID":
		return StatusSuccess
	case "FAILED":
		return StatusFailed
	case "REVERSED":
		return StatusReversed
	default:
		return StatusPending
	}
}
