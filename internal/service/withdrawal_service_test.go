package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"agbado/internal/domain"
	"agbado/internal/models"
	"agbado/internal/repository"
	"agbado/pkg/payment"
)

// fakeLedger reimplements the ledger store contract in memory: atomic
// debit-with-rows, optimistic transitions, and compensation that refuses to
// run twice.
type fakeLedger struct {
	mu          sync.Mutex
	balance     decimal.Decimal
	nextID      uint
	withdrawals map[uint]*models.Withdrawal
	txns        map[uint]*models.Transaction // keyed by withdrawal ID

	failCompensate error
	failMark       error
}

func newFakeLedger(balance string) *fakeLedger {
	return &fakeLedger{
		balance:     decimal.RequireFromString(balance),
		withdrawals: make(map[uint]*models.Withdrawal),
		txns:        make(map[uint]*models.Transaction),
	}
}

func (f *fakeLedger) GetOrCreate(userID uint) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.Wallet{UserID: userID, Balance: f.balance}, nil
}

func (f *fakeLedger) DebitForWithdrawal(userID uint, amount decimal.Decimal, bankName, accountNumber string, idemKey *string) (*models.Withdrawal, *models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance.LessThan(amount) {
		return nil, nil, repository.ErrInsufficientBalance
	}
	f.balance = f.balance.Sub(amount)
	f.nextID++
	wd := &models.Withdrawal{
		ID:             f.nextID,
		UserID:         userID,
		BankName:       bankName,
		AccountNumber:  accountNumber,
		Amount:         amount,
		Status:         domain.WithdrawalPending,
		IdempotencyKey: idemKey,
	}
	txn := &models.Transaction{
		ID:           f.nextID,
		UserID:       userID,
		Type:         domain.TxnWithdrawal,
		Amount:       amount,
		Status:       domain.TxnPending,
		WithdrawalID: &wd.ID,
	}
	f.withdrawals[wd.ID] = wd
	f.txns[wd.ID] = txn
	return wd, txn, nil
}

func (f *fakeLedger) UpdateResolvedAccount(withdrawalID uint, accountName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawals[withdrawalID].AccountName = &accountName
	return nil
}

func (f *fakeLedger) UpdateRecipient(withdrawalID uint, recipientCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawals[withdrawalID].RecipientCode = &recipientCode
	return nil
}

func (f *fakeLedger) AssignTransferReference(withdrawalID uint, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawals[withdrawalID].TransferReference = &reference
	f.txns[withdrawalID].Reference = &reference
	return nil
}

func (f *fakeLedger) MarkProcessing(withdrawalID uint, reference string, transferID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMark != nil {
		return f.failMark
	}
	wd := f.withdrawals[withdrawalID]
	if wd.Status != domain.WithdrawalPending {
		return repository.ErrAlreadySettled
	}
	wd.Status = domain.WithdrawalProcessing
	wd.TransferReference = &reference
	wd.TransferID = &transferID
	txn := f.txns[withdrawalID]
	txn.Status = domain.TxnProcessing
	txn.Reference = &reference
	return nil
}

func (f *fakeLedger) Compensate(withdrawalID uint, reason, syntheticRef, toStatus string) (*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCompensate != nil {
		return nil, f.failCompensate
	}
	wd := f.withdrawals[withdrawalID]
	if domain.IsTerminalWithdrawal(wd.Status) {
		return nil, repository.ErrAlreadySettled
	}
	f.balance = f.balance.Add(wd.Amount)
	wd.Status = toStatus
	wd.FailureReason = &reason
	txn := f.txns[withdrawalID]
	txn.Status = toStatus
	if syntheticRef != "" {
		txn.Reference = &syntheticRef
	}
	return wd, nil
}

func (f *fakeLedger) CompleteProcessing(reference string) (*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, wd := range f.withdrawals {
		if wd.TransferReference != nil && *wd.TransferReference == reference {
			if wd.Status != domain.WithdrawalProcessing {
				return nil, repository.ErrAlreadySettled
			}
			wd.Status = domain.WithdrawalCompleted
			f.txns[wd.ID].Status = domain.TxnCompleted
			return wd, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// WithdrawalReader over the same state.
func (f *fakeLedger) GetByReference(reference string) (*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, wd := range f.withdrawals {
		if wd.TransferReference != nil && *wd.TransferReference == reference {
			return wd, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) FindActiveByIdempotencyKey(userID uint, key string) (*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, wd := range f.withdrawals {
		if wd.UserID == userID && wd.IdempotencyKey != nil && *wd.IdempotencyKey == key &&
			!domain.IsTerminalWithdrawal(wd.Status) {
			return wd, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) ListStale(cutoff time.Time, limit int) ([]models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Withdrawal
	for _, wd := range f.withdrawals {
		if wd.Status == domain.WithdrawalPending || wd.Status == domain.WithdrawalProcessing {
			out = append(out, *wd)
		}
	}
	return out, nil
}

type fakeBanks struct{}

func (fakeBanks) CodeForName(name string) (string, error) {
	if strings.EqualFold(name, "Guaranty Trust Bank") {
		return "058", nil
	}
	return "", repository.ErrUnknownBank
}

type recordingNotifier struct {
	mu    sync.Mutex
	types []string
}

func (n *recordingNotifier) Notify(userID uint, notifType, title, body string, data map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, notifType)
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.types...)
}

func newTestService(ledger *fakeLedger, provider payment.TransferProvider) (*WithdrawalService, *recordingNotifier) {
	notifier := &recordingNotifier{}
	svc := NewWithdrawalService(ledger, ledger, fakeBanks{}, provider, notifier, zap.NewNop())
	return svc, notifier
}

func validRequest() WithdrawalRequest {
	return WithdrawalRequest{
		BankName:      "Guaranty Trust Bank",
		AccountNumber: "0123456789",
		Amount:        decimal.RequireFromString("1500.50"),
	}
}

func TestRequestWithdrawalSuccess(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	svc, notifier := newTestService(ledger, payment.NewStubProvider())

	wd, err := svc.RequestWithdrawal(context.Background(), 7, validRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.WithdrawalProcessing, wd.Status)
	require.NotNil(t, wd.TransferReference)
	assert.True(t, strings.HasPrefix(*wd.TransferReference, "WD-7-"))
	require.NotNil(t, wd.AccountName)
	assert.Equal(t, "STUB ACCOUNT HOLDER", *wd.AccountName)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))

	txn := ledger.txns[wd.ID]
	assert.Equal(t, domain.TxnProcessing, txn.Status)
	assert.Equal(t, *wd.TransferReference, *txn.Reference)
	assert.Equal(t, []string{domain.NotifWithdrawalProcessing}, notifier.sent())
}

func TestRequestWithdrawalValidation(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	svc, _ := newTestService(ledger, payment.NewStubProvider())
	ctx := context.Background()

	cases := []struct {
		name string
		mut  func(*WithdrawalRequest)
		want error
	}{
		{"negative amount", func(r *WithdrawalRequest) { r.Amount = decimal.RequireFromString("-5") }, ErrInvalidAmount},
		{"zero amount", func(r *WithdrawalRequest) { r.Amount = decimal.Zero }, ErrInvalidAmount},
		{"sub-minor precision", func(r *WithdrawalRequest) { r.Amount = decimal.RequireFromString("10.005") }, ErrInvalidAmount},
		{"short account number", func(r *WithdrawalRequest) { r.AccountNumber = "12345" }, ErrInvalidAccountNumber},
		{"alpha account number", func(r *WithdrawalRequest) { r.AccountNumber = "01234abcde" }, ErrInvalidAccountNumber},
		{"unknown bank", func(r *WithdrawalRequest) { r.BankName = "Bank of Nowhere" }, repository.ErrUnknownBank},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mut(&req)
			_, err := svc.RequestWithdrawal(ctx, 1, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	// No validation failure may touch the ledger.
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
	assert.Empty(t, ledger.withdrawals)
}

func TestRequestWithdrawalInsufficientFunds(t *testing.T) {
	ledger := newFakeLedger("100.00")
	svc, notifier := newTestService(ledger, payment.NewStubProvider())

	_, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("100.00")))
	assert.Empty(t, notifier.sent())
}

func TestRequestWithdrawalResolveFailureCompensates(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	stub := payment.NewStubProvider()
	stub.FailResolve = true
	svc, notifier := newTestService(ledger, stub)

	_, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.Error(t, err)

	var pf *ProviderFailure
	require.ErrorAs(t, err, &pf)
	assert.True(t, pf.FundsReturned)
	assert.ErrorIs(t, pf.Cause, payment.ErrAccountResolution)

	// Balance restored, rows terminal Failed, synthetic reference assigned.
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
	wd := ledger.withdrawals[1]
	assert.Equal(t, domain.WithdrawalFailed, wd.Status)
	require.NotNil(t, wd.FailureReason)
	txn := ledger.txns[1]
	assert.Equal(t, domain.TxnFailed, txn.Status)
	require.NotNil(t, txn.Reference)
	assert.True(t, strings.HasPrefix(*txn.Reference, "FAILED-1-"))
	assert.Equal(t, []string{domain.NotifWithdrawalFailed}, notifier.sent())
}

func TestRequestWithdrawalTransferUnavailable(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	stub := payment.NewStubProvider()
	stub.FailTransfer = &payment.UnavailableError{Err: errors.New("connection refused")}
	svc, _ := newTestService(ledger, stub)

	_, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	var pf *ProviderFailure
	require.ErrorAs(t, err, &pf)
	assert.True(t, pf.FundsReturned)
	assert.True(t, payment.IsRetryable(pf.Cause))
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
}

func TestRequestWithdrawalCompensationFailureIsSurfaced(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	ledger.failCompensate = errors.New("deadlock")
	stub := payment.NewStubProvider()
	stub.FailTransfer = &payment.RejectedError{StatusCode: 400, Message: "insufficient provider balance"}
	svc, notifier := newTestService(ledger, stub)

	_, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	var pf *ProviderFailure
	require.ErrorAs(t, err, &pf)
	assert.False(t, pf.FundsReturned)
	// Debit stands until the compensation is retried out of band.
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))
	assert.Empty(t, notifier.sent())
}

func TestRequestWithdrawalIdempotencyKeyReplay(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	svc, _ := newTestService(ledger, payment.NewStubProvider())
	ctx := context.Background()

	req := validRequest()
	req.IdempotencyKey = "req-abc-123"

	first, err := svc.RequestWithdrawal(ctx, 1, req)
	require.NoError(t, err)
	second, err := svc.RequestWithdrawal(ctx, 1, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, ledger.withdrawals, 1)
	// Only one debit happened.
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))
}

func TestFinalizeTransferSuccess(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	svc, notifier := newTestService(ledger, payment.NewStubProvider())

	wd, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.NoError(t, err)
	ref := *wd.TransferReference

	require.NoError(t, svc.FinalizeTransfer(ref, payment.StatusSuccess, ""))
	assert.Equal(t, domain.WithdrawalCompleted, ledger.withdrawals[wd.ID].Status)
	assert.Equal(t, domain.TxnCompleted, ledger.txns[wd.ID].Status)
	// Completion must not move the balance again.
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))

	// Webhook replay is a no-op.
	require.NoError(t, svc.FinalizeTransfer(ref, payment.StatusSuccess, ""))
	assert.Equal(t, []string{domain.NotifWithdrawalProcessing, domain.NotifWithdrawalCompleted}, notifier.sent())
}

func TestFinalizeTransferFailureReverses(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	svc, notifier := newTestService(ledger, payment.NewStubProvider())

	wd, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.NoError(t, err)
	ref := *wd.TransferReference

	require.NoError(t, svc.FinalizeTransfer(ref, payment.StatusFailed, "beneficiary bank unreachable"))

	got := ledger.withdrawals[wd.ID]
	assert.Equal(t, domain.WithdrawalReversed, got.Status)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
	// The real provider reference stays on the transaction.
	assert.Equal(t, ref, *ledger.txns[wd.ID].Reference)

	// A late duplicate failure event changes nothing.
	require.NoError(t, svc.FinalizeTransfer(ref, payment.StatusFailed, "retry"))
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
	assert.Equal(t, []string{domain.NotifWithdrawalProcessing, domain.NotifWithdrawalReversed}, notifier.sent())
}

func TestFinalizeTransferPendingIsNoop(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	svc, _ := newTestService(ledger, payment.NewStubProvider())

	wd, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.FinalizeTransfer(*wd.TransferReference, payment.StatusPending, ""))
	assert.Equal(t, domain.WithdrawalProcessing, ledger.withdrawals[wd.ID].Status)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ledger := newFakeLedger("1000.00")
	svc, _ := newTestService(ledger, payment.NewStubProvider())

	req := validRequest()
	req.Amount = decimal.RequireFromString("400.00")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RequestWithdrawal(context.Background(), 1, req)
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, insufficient)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("200.00")))
}

func TestMarkProcessingFailureAfterAcceptedTransferKeepsDebit(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	ledger.failMark = errors.New("connection reset during commit")
	stub := payment.NewStubProvider()
	svc, notifier := newTestService(ledger, stub)

	wd, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	// The transfer was accepted, so the request succeeds even though the
	// Processing mark did not land. Crediting back here would double pay.
	require.NoError(t, err)

	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))
	got := ledger.withdrawals[wd.ID]
	assert.Equal(t, domain.WithdrawalPending, got.Status)
	require.NotNil(t, got.TransferReference)
	assert.True(t, strings.HasPrefix(*got.TransferReference, "WD-1-"))
	assert.Equal(t, []string{domain.NotifWithdrawalProcessing}, notifier.sent())

	// The reconciler settles the row once writes succeed again.
	ledger.failMark = nil
	stub.SetTransferStatus(*got.TransferReference, payment.StatusSuccess)
	require.NoError(t, svc.ReconcileStale(context.Background(), got))
	assert.Equal(t, domain.WithdrawalCompleted, ledger.withdrawals[wd.ID].Status)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))
}

func TestReconcileStalePendingWithoutReferenceCompensates(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	stub := payment.NewStubProvider()
	stub.FailResolve = true
	ledger.failCompensate = errors.New("deadlock")
	svc, notifier := newTestService(ledger, stub)

	// Leaves a debited Pending row with no reference and no compensation.
	_, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.Error(t, err)
	require.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))

	ledger.failCompensate = nil
	wd := ledger.withdrawals[1]
	require.NoError(t, svc.ReconcileStale(context.Background(), wd))

	assert.Equal(t, domain.WithdrawalFailed, wd.Status)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
	require.NotNil(t, ledger.txns[1].Reference)
	assert.True(t, strings.HasPrefix(*ledger.txns[1].Reference, "FAILED-1-"))
	assert.Equal(t, []string{domain.NotifWithdrawalFailed}, notifier.sent())
}

func TestReconcileStalePendingUnknownAtProviderCompensates(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	stub := payment.NewStubProvider()
	stub.FailTransfer = &payment.UnavailableError{Err: errors.New("gateway timeout")}
	svc, _ := newTestService(ledger, stub)

	// Initiation timed out after the reference was persisted and the
	// compensation write failed too. The provider never recorded the
	// transfer.
	ledger.failCompensate = errors.New("deadlock")
	_, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.Error(t, err)
	ledger.failCompensate = nil

	wd := ledger.withdrawals[1]
	require.NotNil(t, wd.TransferReference)
	require.NoError(t, svc.ReconcileStale(context.Background(), wd))

	assert.Equal(t, domain.WithdrawalFailed, wd.Status)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
}

func TestReconcileStalePendingWithAcceptedTransferPromotes(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	ledger.failMark = errors.New("connection reset")
	stub := payment.NewStubProvider()
	svc, _ := newTestService(ledger, stub)

	wd, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.NoError(t, err)
	ledger.failMark = nil

	// Still pending at the provider: the row is promoted but not settled.
	got := ledger.withdrawals[wd.ID]
	require.NoError(t, svc.ReconcileStale(context.Background(), got))
	assert.Equal(t, domain.WithdrawalProcessing, got.Status)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))

	// A later sweep finds the provider outcome and finalizes.
	stub.SetTransferStatus(*got.TransferReference, payment.StatusFailed)
	require.NoError(t, svc.ReconcileStale(context.Background(), got))
	assert.Equal(t, domain.WithdrawalReversed, ledger.withdrawals[wd.ID].Status)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
}
