package repository

import (
	"gorm.io/gorm"

	"agbado/internal/models"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) ListByUser(userID uint) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&txns).Error
	return txns, err
}

// Recent returns the user's newest transactions, most recent first.
func (r *TransactionRepository) Recent(userID uint, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&txns).Error
	return txns, err
}

func (r *TransactionRepository) GetByIDForUser(id, userID uint) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *TransactionRepository) GetByReference(reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.Where("reference = ?", reference).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}
