package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agbado/internal/domain"
	"agbado/internal/models"
	"agbado/internal/repository"
	"agbado/pkg/currency"
	"agbado/pkg/payment"
)

var (
	ErrInvalidAmount        = errors.New("amount must be a positive value with at most two decimal places")
	ErrInvalidAccountNumber = errors.New("account number must be a 10-digit NUBAN")
)

var accountNumberRe = regexp.MustCompile(`^\d{10}$`)

// ProviderFailure wraps a provider-side error surfaced after the wallet was
// debited. FundsReturned tells the caller whether the compensating credit
// ran, so the client is never left guessing about fund location.
type ProviderFailure struct {
	Cause         error
	FundsReturned bool
	Withdrawal    *models.Withdrawal
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("withdrawal failed: %v (funds returned: %t)", e.Cause, e.FundsReturned)
}

func (e *ProviderFailure) Unwrap() error { return e.Cause }

// Ledger is the slice of the wallet repository the orchestrator needs. All
// balance mutations behind it are atomic with their record writes.
type Ledger interface {
	GetOrCreate(userID uint) (*models.Wallet, error)
	DebitForWithdrawal(userID uint, amount decimal.Decimal, bankName, accountNumber string, idemKey *string) (*models.Withdrawal, *models.Transaction, error)
	UpdateResolvedAccount(withdrawalID uint, accountName string) error
	UpdateRecipient(withdrawalID uint, recipientCode string) error
	AssignTransferReference(withdrawalID uint, reference string) error
	MarkProcessing(withdrawalID uint, reference string, transferID int64) error
	Compensate(withdrawalID uint, reason, syntheticRef, toStatus string) (*models.Withdrawal, error)
	CompleteProcessing(reference string) (*models.Withdrawal, error)
}

// WithdrawalReader provides the lookups the orchestrator and reconciler use.
type WithdrawalReader interface {
	GetByReference(reference string) (*models.Withdrawal, error)
	FindActiveByIdempotencyKey(userID uint, key string) (*models.Withdrawal, error)
	ListStale(cutoff time.Time, limit int) ([]models.Withdrawal, error)
}

// BankDirectory resolves bank names to provider codes.
type BankDirectory interface {
	CodeForName(name string) (string, error)
}

// Notifier is the notification sink informed of status transitions.
type Notifier interface {
	Notify(userID uint, notifType, title, body string, data map[string]interface{}) error
}

// WithdrawalService coordinates balance debit, record creation, provider
// calls, and compensating rollback on failure.
type WithdrawalService struct {
	ledger      Ledger
	withdrawals WithdrawalReader
	banks       BankDirectory
	provider    payment.TransferProvider
	notifier    Notifier
	log         *zap.Logger
}

func NewWithdrawalService(
	ledger Ledger,
	withdrawals WithdrawalReader,
	banks BankDirectory,
	provider payment.TransferProvider,
	notifier Notifier,
	log *zap.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		ledger:      ledger,
		withdrawals: withdrawals,
		banks:       banks,
		provider:    provider,
		notifier:    notifier,
		log:         log,
	}
}

// WithdrawalRequest is the validated client input for a payout.
type WithdrawalRequest struct {
	BankName       string
	AccountNumber  string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// RequestWithdrawal runs the withdrawal protocol:
//
//  1. validate input (no ledger access on failure),
//  2. atomically debit the wallet and create the Pending rows,
//  3. resolve account, ensure recipient, and initiate the transfer with the
//     provider, all outside any database lock,
//  4. mark Processing on acceptance, or run the single compensation path on
//     any provider failure.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID uint, req WithdrawalRequest) (*models.Withdrawal, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if _, err := currency.ToMinorUnits(req.Amount); err != nil {
		return nil, ErrInvalidAmount
	}
	if !accountNumberRe.MatchString(req.AccountNumber) {
		return nil, ErrInvalidAccountNumber
	}
	bankCode, err := s.banks.CodeForName(req.BankName)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.withdrawals.FindActiveByIdempotencyKey(userID, req.IdempotencyKey)
		if err == nil {
			s.log.Info("withdrawal request replayed",
				zap.Uint("withdrawal_id", existing.ID),
				zap.String("idempotency_key", req.IdempotencyKey))
			return existing, nil
		}
	}

	if _, err := s.ledger.GetOrCreate(userID); err != nil {
		return nil, err
	}
	var idemKey *string
	if req.IdempotencyKey != "" {
		idemKey = &req.IdempotencyKey
	}
	wd, _, err := s.ledger.DebitForWithdrawal(userID, req.Amount, req.BankName, req.AccountNumber, idemKey)
	if err != nil {
		return nil, err
	}
	s.log.Info("wallet debited for withdrawal",
		zap.Uint("user_id", userID),
		zap.Uint("withdrawal_id", wd.ID),
		zap.String("amount", req.Amount.StringFixed(2)))

	// Provider calls happen strictly after the debit transaction committed;
	// holding a row lock across a network round-trip would block every other
	// operation on the wallet.
	if err := s.submitToProvider(ctx, wd, bankCode); err != nil {
		return wd, s.failWithdrawal(wd, err)
	}

	s.notify(userID, domain.NotifWithdrawalProcessing, "Withdrawal in progress",
		fmt.Sprintf("Your withdrawal of %s to %s is being processed.", req.Amount.StringFixed(2), req.BankName),
		map[string]interface{}{"withdrawal_id": wd.ID})
	return wd, nil
}

func (s *WithdrawalService) submitToProvider(ctx context.Context, wd *models.Withdrawal, bankCode string) error {
	resolved, err := s.provider.ResolveAccount(ctx, bankCode, wd.AccountNumber)
	if err != nil {
		return err
	}
	if err := s.ledger.UpdateResolvedAccount(wd.ID, resolved.AccountName); err != nil {
		return err
	}
	wd.AccountName = &resolved.AccountName

	recipientCode, err := s.provider.EnsureRecipient(ctx, resolved.AccountName, wd.AccountNumber, bankCode)
	if err != nil {
		return err
	}
	if err := s.ledger.UpdateRecipient(wd.ID, recipientCode); err != nil {
		return err
	}
	wd.RecipientCode = &recipientCode

	// Unique per attempt: a retried orchestrator builds a fresh reference and
	// cannot collide with an earlier submission. The reference is persisted
	// BEFORE initiation so the transfer stays traceable even if every write
	// after acceptance fails.
	reference := fmt.Sprintf("WD-%d-%d-%s", wd.UserID, wd.ID, uuid.NewString()[:12])
	if err := s.ledger.AssignTransferReference(wd.ID, reference); err != nil {
		return err
	}
	wd.TransferReference = &reference

	result, err := s.provider.InitiateTransfer(ctx, payment.TransferRequest{
		RecipientCode: recipientCode,
		Amount:        wd.Amount,
		Reference:     reference,
		Reason:        fmt.Sprintf("Withdrawal #%d", wd.ID),
	})
	if err != nil {
		return err
	}
	if err := s.ledger.MarkProcessing(wd.ID, reference, result.TransferID); err != nil {
		// The transfer is live at the provider. Crediting the wallet back now
		// would pay the user twice once it settles, so the row stays Pending
		// with its reference for the reconciler to settle.
		s.log.Error("processing mark failed after accepted transfer",
			zap.Bool("alert", true),
			zap.Uint("withdrawal_id", wd.ID),
			zap.String("reference", reference),
			zap.Error(err))
		return nil
	}
	wd.Status = domain.WithdrawalProcessing
	wd.TransferID = &result.TransferID
	return nil
}

// failWithdrawal is the single compensation path for every provider-side
// failure before Processing: credit the debited amount back, mark the rows
// Failed, and give the transaction a synthetic unique reference.
func (s *WithdrawalService) failWithdrawal(wd *models.Withdrawal, cause error) error {
	syntheticRef := fmt.Sprintf("FAILED-%d-%s", wd.ID, uuid.NewString()[:8])
	compensated, err := s.ledger.Compensate(wd.ID, cause.Error(), syntheticRef, domain.WithdrawalFailed)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadySettled) {
			return &ProviderFailure{Cause: cause, FundsReturned: true, Withdrawal: wd}
		}
		// Funds are debited with no compensating credit. This must never be
		// silently swallowed.
		s.log.Error("withdrawal compensation failed",
			zap.Bool("alert", true),
			zap.Uint("withdrawal_id", wd.ID),
			zap.Uint("user_id", wd.UserID),
			zap.String("amount", wd.Amount.StringFixed(2)),
			zap.NamedError("compensation_error", err),
			zap.NamedError("provider_error", cause))
		return &ProviderFailure{Cause: cause, FundsReturned: false, Withdrawal: wd}
	}
	s.log.Warn("withdrawal failed, funds returned",
		zap.Uint("withdrawal_id", wd.ID),
		zap.Uint("user_id", wd.UserID),
		zap.Error(cause))
	s.notify(wd.UserID, domain.NotifWithdrawalFailed, "Withdrawal failed",
		fmt.Sprintf("Your withdrawal of %s could not be completed. The funds are back in your wallet.", wd.Amount.StringFixed(2)),
		map[string]interface{}{"withdrawal_id": wd.ID, "reason": cause.Error()})
	return &ProviderFailure{Cause: cause, FundsReturned: true, Withdrawal: compensated}
}

// FinalizeTransfer consumes an asynchronous provider outcome (webhook or
// polling) for a transfer reference. Transitions are optimistic: only a
// Processing withdrawal moves, so replays are no-ops.
func (s *WithdrawalService) FinalizeTransfer(reference string, status payment.TransferStatus, reason string) error {
	switch status {
	case payment.StatusSuccess:
		wd, err := s.ledger.CompleteProcessing(reference)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadySettled) {
				return nil
			}
			return err
		}
		s.log.Info("withdrawal completed",
			zap.Uint("withdrawal_id", wd.ID),
			zap.String("reference", reference))
		s.notify(wd.UserID, domain.NotifWithdrawalCompleted, "Withdrawal completed",
			fmt.Sprintf("Your withdrawal of %s has been paid out.", wd.Amount.StringFixed(2)),
			map[string]interface{}{"withdrawal_id": wd.ID})
		return nil

	case payment.StatusFailed, payment.StatusReversed:
		wd, err := s.withdrawals.GetByReference(reference)
		if err != nil {
			return err
		}
		if wd.Status != domain.WithdrawalProcessing {
			return nil
		}
		if reason == "" {
			reason = "transfer failed at provider"
		}
		// The transaction keeps its real provider reference; only the status
		// flips to Reversed alongside the compensating credit.
		reversed, err := s.ledger.Compensate(wd.ID, reason, "", domain.WithdrawalReversed)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadySettled) {
				return nil
			}
			s.log.Error("reversal compensation failed",
				zap.Bool("alert", true),
				zap.Uint("withdrawal_id", wd.ID),
				zap.Error(err))
			return err
		}
		s.log.Warn("withdrawal reversed",
			zap.Uint("withdrawal_id", reversed.ID),
			zap.String("reference", reference),
			zap.String("reason", reason))
		s.notify(reversed.UserID, domain.NotifWithdrawalReversed, "Withdrawal reversed",
			fmt.Sprintf("Your withdrawal of %s could not reach the destination account. The funds are back in your wallet.", reversed.Amount.StringFixed(2)),
			map[string]interface{}{"withdrawal_id": reversed.ID, "reason": reason})
		return nil
	}
	// Still pending at the provider; nothing to do.
	return nil
}

// ReconcileStale resolves one withdrawal the sweep found sitting too long in
// a non-terminal state.
//
// A Pending row with no transfer reference never reached the provider, so its
// debit is compensated. A Pending row with a reference is checked against the
// provider: unknown means the transfer was never accepted (compensate), any
// known status promotes the row to Processing and settles it through the
// normal finalize path. Processing rows are simply polled and finalized.
func (s *WithdrawalService) ReconcileStale(ctx context.Context, wd *models.Withdrawal) error {
	switch wd.Status {
	case domain.WithdrawalPending:
		if wd.TransferReference == nil {
			return s.abandon(wd, "no transfer was initiated before the request stalled")
		}
		ref := *wd.TransferReference
		status, err := s.provider.CheckTransferStatus(ctx, ref)
		if err != nil {
			var rej *payment.RejectedError
			if errors.As(err, &rej) {
				return s.abandon(wd, "provider has no record of the transfer")
			}
			return err
		}
		if err := s.ledger.MarkProcessing(wd.ID, ref, 0); err != nil &&
			!errors.Is(err, repository.ErrAlreadySettled) {
			return err
		}
		if status == payment.StatusPending {
			return nil
		}
		return s.FinalizeTransfer(ref, status, "reconciled from provider status")

	case domain.WithdrawalProcessing:
		if wd.TransferReference == nil {
			return nil
		}
		status, err := s.provider.CheckTransferStatus(ctx, *wd.TransferReference)
		if err != nil {
			return err
		}
		if status == payment.StatusPending {
			return nil
		}
		return s.FinalizeTransfer(*wd.TransferReference, status, "reconciled from provider status")
	}
	return nil
}

// abandon compensates a withdrawal whose transfer never reached the provider.
func (s *WithdrawalService) abandon(wd *models.Withdrawal, reason string) error {
	syntheticRef := fmt.Sprintf("FAILED-%d-%s", wd.ID, uuid.NewString()[:8])
	compensated, err := s.ledger.Compensate(wd.ID, reason, syntheticRef, domain.WithdrawalFailed)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadySettled) {
			return nil
		}
		s.log.Error("stale withdrawal compensation failed",
			zap.Bool("alert", true),
			zap.Uint("withdrawal_id", wd.ID),
			zap.Error(err))
		return err
	}
	s.log.Warn("stale withdrawal abandoned, funds returned",
		zap.Uint("withdrawal_id", compensated.ID),
		zap.String("reason", reason))
	s.notify(compensated.UserID, domain.NotifWithdrawalFailed, "Withdrawal failed",
		fmt.Sprintf("Your withdrawal of %s could not be completed. The funds are back in your wallet.", compensated.Amount.StringFixed(2)),
		map[string]interface{}{"withdrawal_id": compensated.ID, "reason": reason})
	return nil
}

func (s *WithdrawalService) notify(userID uint, notifType, title, body string, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(userID, notifType, title, body, data); err != nil {
		s.log.Warn("notification failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}
