package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StubProvider is an in-memory provider for development and tests.
type StubProvider struct {
	mu        sync.Mutex
	transfers map[string]TransferStatus

	// Knobs for tests.
	FailResolve  bool
	FailTransfer error
}

func NewStubProvider() *StubProvider {
	return &StubProvider{transfers: make(map[string]TransferStatus)}
}

func (s *StubProvider) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*ResolvedAccount, error) {
	if s.FailResolve {
		return nil, fmt.Errorf("%w: account not found", ErrAccountResolution)
	}
	return &ResolvedAccount{AccountNumber: accountNumber, AccountName: "STUB ACCOUNT HOLDER"}, nil
}

func (s *StubProvider) EnsureRecipient(ctx context.Context, accountName, accountNumber, bankCode string) (string, error) {
	return "RCP_stub_" + accountNumber, nil
}

func (s *StubProvider) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if s.FailTransfer != nil {
		return nil, s.FailTransfer
	}
	s.mu.Lock()
	s.transfers[req.Reference] = StatusPending
	s.mu.Unlock()
	return &TransferResult{Status: StatusPending, Reference: req.Reference, TransferID: int64(len(req.Reference))}, nil
}

func (s *StubProvider) CheckTransferStatus(ctx context.Context, reference string) (TransferStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.transfers[reference]; ok {
		return st, nil
	}
	return "", &RejectedError{StatusCode: 404, Message: "unknown transfer"}
}

// SetTransferStatus lets tests drive asynchronous outcomes.
func (s *StubProvider) SetTransferStatus(reference string, st TransferStatus) {
	s.mu.Lock()
	s.transfers[reference] = st
	s.mu.Unlock()
}

func (s *StubProvider) VerifyWebhookSignature(body []byte, signature string) bool {
	return strings.HasPrefix(signature, "stub_")
}

func (s *StubProvider) CreateCustomer(ctx context.Context, c Customer) (string, error) {
	return "CUS_stub_" + uuid.NewString()[:8], nil
}

func (s *StubProvider) CreateDedicatedAccount(ctx context.Context, customerCode string, c Customer) (*DedicatedAccount, error) {
	return &DedicatedAccount{
		AccountNumber: fmt.Sprintf("90%08d", time.Now().UnixNano()%100000000),
		AccountName:   strings.TrimSpace(c.FirstName + " " + c.LastName),
		BankName:      "Stub Bank",
	}, nil
}

func (s *StubProvider) ListBanks(ctx context.Context) ([]Bank, error) {
	return []Bank{
		{Name: "Wema Bank", Code: "035", Slug: "wema-bank"},
		{Name: "Zenith Bank", Code: "057", Slug: "zenith-bank"},
	}, nil
}
