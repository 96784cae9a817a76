package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// TransferStatus is the provider-reported state of an outbound transfer.
type TransferStatus string

const (
	StatusPending  TransferStatus = "pending"
	StatusSuccess  TransferStatus = "success"
	StatusFailed   TransferStatus = "failed"
	StatusReversed TransferStatus = "reversed"
)

var (
	// ErrProviderAuth means the provider rejected our credentials.
	ErrProviderAuth = errors.New("payment provider authentication failed")
	// ErrAccountResolution means the destination account could not be verified.
	ErrAccountResolution = errors.New("could not resolve bank account")
)

// RejectedError is a well-formed business rejection (4xx) from the provider.
// Not retryable without user correction.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request (%d): %s", e.StatusCode, e.Message)
}

// UnavailableError is a network-level failure (timeout, connection refused,
// 5xx). Retryable.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// ResolvedAccount is the bank's registered holder for an account number.
type ResolvedAccount struct {
	AccountNumber string
	AccountName   string
}

// TransferRequest initiates a payout to a previously registered recipient.
// Amount is in major units; implementations convert to minor units exactly.
type TransferRequest struct {
	RecipientCode string
	Amount        decimal.Decimal
	Reference     string // caller-supplied, globally unique per attempt
	Reason        string
}

// TransferResult is the provider's acknowledgment of an initiated transfer.
type TransferResult struct {
	Status     TransferStatus
	Reference  string
	TransferID int64
}

// DedicatedAccount is a per-user virtual account for receiving deposits.
type DedicatedAccount struct {
	AccountNumber string
	AccountName   string
	BankName      string
}

// Customer identifies a user on the provider side.
type Customer struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// TransferProvider abstracts a money-movement provider (Paystack-style or
// Monnify-style). All network operations return *UnavailableError for
// network/5xx failures and *RejectedError for business-level 4xx rejections.
type TransferProvider interface {
	// ResolveAccount verifies a destination account exists and returns the
	// bank's registered holder name. Fails with ErrAccountResolution when the
	// provider reports the account or bank code invalid.
	ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*ResolvedAccount, error)

	// EnsureRecipient registers (or reuses) a payout destination and returns
	// its recipient code. Idempotent from the caller's perspective.
	EnsureRecipient(ctx context.Context, accountName, accountNumber, bankCode string) (string, error)

	// InitiateTransfer sends money to a recipient.
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)

	// CheckTransferStatus is the polling fallback when webhook delivery lags.
	CheckTransferStatus(ctx context.Context, reference string) (TransferStatus, error)

	// VerifyWebhookSignature authenticates an inbound webhook body before any
	// of its fields may be trusted. Comparison is constant time.
	VerifyWebhookSignature(body []byte, signature string) bool

	// CreateCustomer registers the user with the provider and returns their
	// customer code.
	CreateCustomer(ctx context.Context, c Customer) (string, error)

	// CreateDedicatedAccount assigns a virtual account for deposits to the
	// given provider customer.
	CreateDedicatedAccount(ctx context.Context, customerCode string, c Customer) (*DedicatedAccount, error)

	// ListBanks returns the provider's bank directory (name -> code).
	ListBanks(ctx context.Context) ([]Bank, error)
}

// Bank is a provider bank directory entry.
type Bank struct {
	Name string
	Code string
	Slug string
}
