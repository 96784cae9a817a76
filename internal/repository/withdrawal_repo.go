package repository

import (
	"time"

	"gorm.io/gorm"

	"agbado/internal/domain"
	"agbado/internal/models"
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) GetByID(id uint) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.db.First(&w, id).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepository) GetByIDForUser(id, userID uint) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepository) GetByReference(reference string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.db.Where("transfer_reference = ?", reference).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepository) ListByUser(userID uint) ([]models.Withdrawal, error) {
	var ws []models.Withdrawal
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&ws).Error
	return ws, err
}

// FindActiveByIdempotencyKey returns a non-terminal withdrawal previously
// created for the same key, if any. Used to keep crash-and-retry of the
// orchestrator from debiting twice.
func (r *WithdrawalRepository) FindActiveByIdempotencyKey(userID uint, key string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.db.Where("user_id = ? AND idempotency_key = ? AND status IN ?",
		userID, key, []string{domain.WithdrawalPending, domain.WithdrawalProcessing}).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListStale returns non-terminal withdrawals untouched since before the
// cutoff, for the polling reconciler. Pending rows are included: a crash
// between debit and provider acceptance leaves a withdrawal stuck there with
// the wallet debited.
func (r *WithdrawalRepository) ListStale(cutoff time.Time, limit int) ([]models.Withdrawal, error) {
	var ws []models.Withdrawal
	err := r.db.Where("status IN ? AND updated_at < ?",
		[]string{domain.WithdrawalPending, domain.WithdrawalProcessing}, cutoff).
		Order("updated_at ASC").Limit(limit).Find(&ws).Error
	return ws, err
}
