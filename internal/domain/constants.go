package domain

// Transaction types
const (
	TxnDeposit    = "Deposit"
	TxnWithdrawal = "Withdrawal"
	TxnPayment    = "Payment"
)

// Transaction statuses
const (
	TxnPending    = "Pending"
	TxnProcessing = "Processing"
	TxnCompleted  = "Completed"
	TxnFailed     = "Failed"
	TxnReversed   = "Reversed"
)

// Withdrawal statuses. Forward-only: Pending -> Processing -> Completed,
// with Failed (never left our system) and Reversed (failed after being sent)
// as the failure terminals.
const (
	WithdrawalPending    = "Pending"
	WithdrawalProcessing = "Processing"
	WithdrawalCompleted  = "Completed"
	WithdrawalFailed     = "Failed"
	WithdrawalReversed   = "Reversed"
)

// Notification types
const (
	NotifWithdrawalProcessing = "WITHDRAWAL_PROCESSING"
	NotifWithdrawalCompleted  = "WITHDRAWAL_COMPLETED"
	NotifWithdrawalFailed     = "WITHDRAWAL_FAILED"
	NotifWithdrawalReversed   = "WITHDRAWAL_REVERSED"
	NotifDepositReceived      = "DEPOSIT_RECEIVED"
)

// IsTerminalWithdrawal reports whether a withdrawal status admits no further
// transitions.
func IsTerminalWithdrawal(status string) bool {
	switch status {
	case WithdrawalCompleted, WithdrawalFailed, WithdrawalReversed:
		return true
	}
	return false
}
