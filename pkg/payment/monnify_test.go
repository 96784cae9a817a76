package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func monnifyLoginResponse(w http.ResponseWriter, token string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"requestSuccessful": true,
		"responseBody": map[string]interface{}{
			"accessToken": token,
			"expiresIn":   3600,
		},
	})
}

func TestMonnifyTokenIsCachedAcrossCalls(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			logins.Add(1)
			assert.NotEmpty(t, r.Header.Get("Authorization"))
			monnifyLoginResponse(w, "tok_1")
		case "/api/v1/banks":
			assert.Equal(t, "Bearer tok_1", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"requestSuccessful": true,
				"responseBody":      []map[string]string{{"name": "Wema Bank", "code": "035"}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	m := NewMonnifyProvider(srv.URL, "key", "secret", "contract", 0, zap.NewNop())
	_, err := m.ListBanks(context.Background())
	require.NoError(t, err)
	_, err = m.ListBanks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), logins.Load())
}

func TestMonnifyRevokedTokenClearsCache(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			monnifyLoginResponse(w, fmt.Sprintf("tok_%d", logins.Add(1)))
		case "/api/v1/banks":
			if r.Header.Get("Authorization") == "Bearer tok_1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"requestSuccessful": true,
				"responseBody":      []map[string]string{},
			})
		}
	}))
	defer srv.Close()

	m := NewMonnifyProvider(srv.URL, "key", "secret", "contract", 0, zap.NewNop())
	_, err := m.ListBanks(context.Background())
	assert.ErrorIs(t, err, ErrProviderAuth)

	// Next call re-authenticates instead of reusing the revoked token.
	_, err = m.ListBanks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), logins.Load())
}

func TestMonnifyInitiateTransferPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			monnifyLoginResponse(w, "tok")
		case "/api/v2/disbursements/single":
			var payload map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, float64(1500.5), payload["amount"])
			assert.Equal(t, "058", payload["destinationBankCode"])
			assert.Equal(t, "0123456789", payload["destinationAccountNumber"])
			assert.Equal(t, "WD-1-3-ref", payload["reference"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"requestSuccessful": true,
				"responseBody": map[string]string{
					"status":    "PENDING",
					"reference": "WD-1-3-ref",
				},
			})
		}
	}))
	defer srv.Close()

	m := NewMonnifyProvider(srv.URL, "key", "secret", "contract", 0, zap.NewNop())
	rcp, err := m.EnsureRecipient(context.Background(), "ADA LOVELACE", "0123456789", "058")
	require.NoError(t, err)
	assert.Equal(t, "MFY:058:0123456789", rcp)

	res, err := m.InitiateTransfer(context.Background(), TransferRequest{
		RecipientCode: rcp,
		Amount:        decimal.RequireFromString("1500.50"),
		Reference:     "WD-1-3-ref",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
}

func TestMonnifyInitiateTransferMalformedRecipient(t *testing.T) {
	m := NewMonnifyProvider("http://unused", "key", "secret", "contract", 0, zap.NewNop())
	_, err := m.InitiateTransfer(context.Background(), TransferRequest{
		RecipientCode: "RCP_paystack_style",
		Amount:        decimal.RequireFromString("10.00"),
		Reference:     "WD-1-1-x",
	})
	var rej *RejectedError
	assert.ErrorAs(t, err, &rej)
}

func TestMonnifyWebhookLegacyHash(t *testing.T) {
	m := NewMonnifyProvider("http://unused", "key", "secret", "contract", 0, zap.NewNop())

	raw := "MNFY|TX|1|PAY-1|1500.50|2026-01-02 10:00:00|secret"
	sum := sha512.Sum512([]byte(raw))
	hash := hex.EncodeToString(sum[:])

	// The hash covers eventData fields of the event envelope, the same
	// envelope the webhook endpoint parses.
	body := []byte(fmt.Sprintf(`{
		"eventType": "SUCCESSFUL_TRANSACTION",
		"eventData": {
			"transactionReference": "MNFY|TX|1",
			"paymentReference": "PAY-1",
			"amountPaid": "1500.50",
			"paidOn": "2026-01-02 10:00:00",
			"transactionHash": %q
		}
	}`, hash))

	assert.True(t, m.VerifyWebhookSignature(body, ""))
	assert.True(t, m.VerifyWebhookSignature(body, hash))
	assert.False(t, m.VerifyWebhookSignature(body, "bogus"))

	tampered := []byte(fmt.Sprintf(`{
		"eventType": "SUCCESSFUL_TRANSACTION",
		"eventData": {
			"transactionReference": "MNFY|TX|1",
			"paymentReference": "PAY-1",
			"amountPaid": "9999.99",
			"paidOn": "2026-01-02 10:00:00",
			"transactionHash": %q
		}
	}`, hash))
	assert.False(t, m.VerifyWebhookSignature(tampered, ""))
}

func TestMonnifyWebhookHeaderHMAC(t *testing.T) {
	m := NewMonnifyProvider("http://unused", "key", "secret", "contract", 0, zap.NewNop())

	body := []byte(`{"eventType": "SUCCESSFUL_DISBURSEMENT", "eventData": {"reference": "WD-1-1-a"}}`)
	mac := hmac.New(sha512.New, []byte("secret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, m.VerifyWebhookSignature(body, sig))
	assert.False(t, m.VerifyWebhookSignature(body, "deadbeef"))
	// No header and no embedded hash: nothing to verify against.
	assert.False(t, m.VerifyWebhookSignature(body, ""))
}

func TestMonnifyConcurrentCallsShareToken(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			logins.Add(1)
			monnifyLoginResponse(w, "tok_shared")
		case "/api/v1/banks":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"requestSuccessful": true,
				"responseBody":      []map[string]string{},
			})
		}
	}))
	defer srv.Close()

	m := NewMonnifyProvider(srv.URL, "key", "secret", "contract", 0, zap.NewNop())
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.ListBanks(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	// Racing refreshes may log in more than once but never per call.
	assert.LessOrEqual(t, logins.Load(), int32(8))
	assert.GreaterOrEqual(t, logins.Load(), int32(1))
}

func TestMonnifyLoginFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewMonnifyProvider(srv.URL, "bad", "creds", "contract", 0, zap.NewNop())
	_, err := m.ListBanks(context.Background())
	assert.ErrorIs(t, err, ErrProviderAuth)
}
