package repository

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agbado/internal/domain"
	"agbado/internal/models"
)

var (
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrAlreadySettled      = errors.New("withdrawal already in a terminal state")
	ErrNonPositiveAmount   = errors.New("amount must be greater than zero")
	ErrDuplicateReference  = errors.New("transaction reference already recorded")
)

// WalletRepository is the ledger store. Every balance mutation happens inside
// a single database transaction together with its Transaction/Withdrawal
// rows, under a row-level lock on the wallet.
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(userID uint) (*models.Wallet, error) {
	var w models.Wallet
	if err := r.db.Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// GetOrCreate returns the user's wallet, creating a zero-balance one if the
// provisioning call at registration was missed.
func (r *WalletRepository) GetOrCreate(userID uint) (*models.Wallet, error) {
	w, err := r.GetByUserID(userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w = &models.Wallet{UserID: userID, Balance: decimal.Zero}
	if err := r.db.Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

func (r *WalletRepository) Save(w *models.Wallet) error {
	return r.db.Save(w).Error
}

// GetByCustomerCode finds the wallet tied to a provider customer code, used
// to attribute inbound deposit webhooks.
func (r *WalletRepository) GetByCustomerCode(code string) (*models.Wallet, error) {
	var w models.Wallet
	if err := r.db.Where("provider_customer_code = ?", code).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// DebitForWithdrawal atomically locks the wallet, verifies the balance,
// debits it, and creates the Pending Withdrawal and linked Transaction rows.
// This is the only place a withdrawal changes the balance.
func (r *WalletRepository) DebitForWithdrawal(userID uint, amount decimal.Decimal, bankName, accountNumber string, idemKey *string) (*models.Withdrawal, *models.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, ErrNonPositiveAmount
	}
	var (
		wd  models.Withdrawal
		txn models.Transaction
	)
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var w models.Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&w).Error; err != nil {
			return err
		}
		if w.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		if err := tx.Model(&w).Update("balance", w.Balance.Sub(amount)).Error; err != nil {
			return err
		}
		wd = models.Withdrawal{
			UserID:         userID,
			BankName:       bankName,
			AccountNumber:  accountNumber,
			Amount:         amount,
			Status:         domain.WithdrawalPending,
			IdempotencyKey: idemKey,
		}
		if err := tx.Create(&wd).Error; err != nil {
			return err
		}
		txn = models.Transaction{
			UserID:       userID,
			Type:         domain.TxnWithdrawal,
			Amount:       amount,
			Status:       domain.TxnPending,
			WithdrawalID: &wd.ID,
		}
		return tx.Create(&txn).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &wd, &txn, nil
}

// UpdateResolvedAccount records the holder name returned by account
// resolution.
func (r *WalletRepository) UpdateResolvedAccount(withdrawalID uint, accountName string) error {
	return r.db.Model(&models.Withdrawal{}).Where("id = ?", withdrawalID).
		Update("account_name", accountName).Error
}

// UpdateRecipient records the provider recipient code.
func (r *WalletRepository) UpdateRecipient(withdrawalID uint, recipientCode string) error {
	return r.db.Model(&models.Withdrawal{}).Where("id = ?", withdrawalID).
		Update("recipient_code", recipientCode).Error
}

// AssignTransferReference persists the transfer reference on the Pending rows
// before the transfer is initiated, so a crash or write failure after the
// provider accepts it still leaves the reference on record for the
// reconciler to settle by.
func (r *WalletRepository) AssignTransferReference(withdrawalID uint, reference string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Withdrawal{}).Where("id = ?", withdrawalID).
			Update("transfer_reference", reference).Error; err != nil {
			return err
		}
		return tx.Model(&models.Transaction{}).
			Where("withdrawal_id = ?", withdrawalID).
			Update("reference", reference).Error
	})
}

// MarkProcessing moves a Pending withdrawal to Processing once the provider
// accepts the transfer, mirroring reference and status onto the linked
// transaction.
func (r *WalletRepository) MarkProcessing(withdrawalID uint, reference string, transferID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status = ?", withdrawalID, domain.WithdrawalPending).
			Updates(map[string]interface{}{
				"status":             domain.WithdrawalProcessing,
				"transfer_reference": reference,
				"transfer_id":        transferID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySettled
		}
		return tx.Model(&models.Transaction{}).
			Where("withdrawal_id = ?", withdrawalID).
			Updates(map[string]interface{}{
				"status":          domain.TxnProcessing,
				"reference":       reference,
				"provider_txn_id": transferID,
			}).Error
	})
}

// Compensate credits the debited amount back and marks the withdrawal and its
// transaction Failed or Reversed. syntheticRef, when non-empty, is assigned
// to the transaction so the unique-reference invariant holds even though no
// provider reference exists. Safe to call once per withdrawal: terminal rows
// return ErrAlreadySettled with no balance change.
func (r *WalletRepository) Compensate(withdrawalID uint, reason, syntheticRef, toStatus string) (*models.Withdrawal, error) {
	var wd models.Withdrawal
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&wd, withdrawalID).Error; err != nil {
			return err
		}
		if domain.IsTerminalWithdrawal(wd.Status) {
			return ErrAlreadySettled
		}
		var w models.Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", wd.UserID).First(&w).Error; err != nil {
			return err
		}
		if err := tx.Model(&w).Update("balance", w.Balance.Add(wd.Amount)).Error; err != nil {
			return err
		}
		if err := tx.Model(&wd).Updates(map[string]interface{}{
			"status":         toStatus,
			"failure_reason": reason,
		}).Error; err != nil {
			return err
		}
		txnUpdates := map[string]interface{}{"status": toStatus}
		if syntheticRef != "" {
			txnUpdates["reference"] = syntheticRef
		}
		return tx.Model(&models.Transaction{}).
			Where("withdrawal_id = ?", withdrawalID).
			Updates(txnUpdates).Error
	})
	if err != nil {
		return nil, err
	}
	wd.Status = toStatus
	return &wd, nil
}

// CompleteProcessing finalizes a transfer the provider confirmed. Optimistic:
// only a Processing withdrawal moves to Completed, so replayed webhooks and
// the polling reconciler cannot double-apply.
func (r *WalletRepository) CompleteProcessing(reference string) (*models.Withdrawal, error) {
	var wd models.Withdrawal
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("transfer_reference = ?", reference).First(&wd).Error; err != nil {
			return err
		}
		if wd.Status != domain.WithdrawalProcessing {
			return ErrAlreadySettled
		}
		if err := tx.Model(&wd).Update("status", domain.WithdrawalCompleted).Error; err != nil {
			return err
		}
		return tx.Model(&models.Transaction{}).
			Where("withdrawal_id = ?", wd.ID).
			Update("status", domain.TxnCompleted).Error
	})
	if err != nil {
		return nil, err
	}
	wd.Status = domain.WithdrawalCompleted
	return &wd, nil
}

// CreditDeposit credits inbound funds confirmed by the provider, matched by
// reference. Idempotent: a reference seen before returns ErrDuplicateReference
// with no balance change.
func (r *WalletRepository) CreditDeposit(userID uint, amount decimal.Decimal, reference string, providerTxnID *int64) (*models.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNonPositiveAmount
	}
	var txn models.Transaction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Transaction
		err := tx.Where("reference = ?", reference).First(&existing).Error
		if err == nil {
			return ErrDuplicateReference
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		var w models.Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&w).Error; err != nil {
			return err
		}
		if err := tx.Model(&w).Update("balance", w.Balance.Add(amount)).Error; err != nil {
			return err
		}
		txn = models.Transaction{
			UserID:        userID,
			Type:          domain.TxnDeposit,
			Reference:     &reference,
			Amount:        amount,
			Status:        domain.TxnCompleted,
			ProviderTxnID: providerTxnID,
		}
		return tx.Create(&txn).Error
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
