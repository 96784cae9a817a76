package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agbado/internal/domain"
	"agbado/pkg/payment"
)

func TestReconcilerCompletesStaleTransfer(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	stub := payment.NewStubProvider()
	svc, _ := newTestService(ledger, stub)
	rec := NewReconciler(ledger, svc, time.Minute, time.Minute, zap.NewNop())

	wd, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.NoError(t, err)
	ref := *wd.TransferReference

	// Provider settled the transfer but the webhook never arrived.
	stub.SetTransferStatus(ref, payment.StatusSuccess)
	rec.Sweep(context.Background())

	assert.Equal(t, domain.WithdrawalCompleted, ledger.withdrawals[wd.ID].Status)
}

func TestReconcilerReversesFailedTransfer(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	stub := payment.NewStubProvider()
	svc, _ := newTestService(ledger, stub)
	rec := NewReconciler(ledger, svc, time.Minute, time.Minute, zap.NewNop())

	wd, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.NoError(t, err)

	stub.SetTransferStatus(*wd.TransferReference, payment.StatusFailed)
	rec.Sweep(context.Background())

	assert.Equal(t, domain.WithdrawalReversed, ledger.withdrawals[wd.ID].Status)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
}

func TestReconcilerLeavesPendingTransfersAlone(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	stub := payment.NewStubProvider()
	svc, _ := newTestService(ledger, stub)
	rec := NewReconciler(ledger, svc, time.Minute, time.Minute, zap.NewNop())

	wd, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.NoError(t, err)

	// Still pending at the provider; two sweeps change nothing.
	rec.Sweep(context.Background())
	rec.Sweep(context.Background())

	assert.Equal(t, domain.WithdrawalProcessing, ledger.withdrawals[wd.ID].Status)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))
}

func TestReconcilerAbandonsStuckPendingWithdrawal(t *testing.T) {
	ledger := newFakeLedger("5000.00")
	stub := payment.NewStubProvider()
	stub.FailResolve = true
	ledger.failCompensate = assert.AnError
	svc, _ := newTestService(ledger, stub)
	rec := NewReconciler(ledger, svc, time.Minute, time.Minute, zap.NewNop())

	// The request stalled before any transfer existed and its compensation
	// write failed, leaving a debited Pending row behind.
	_, err := svc.RequestWithdrawal(context.Background(), 1, validRequest())
	require.Error(t, err)
	require.True(t, ledger.balance.Equal(decimal.RequireFromString("3499.50")))

	ledger.failCompensate = nil
	rec.Sweep(context.Background())

	assert.Equal(t, domain.WithdrawalFailed, ledger.withdrawals[1].Status)
	assert.True(t, ledger.balance.Equal(decimal.RequireFromString("5000.00")))
}
