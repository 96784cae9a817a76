package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"agbado/internal/models"
)

// ErrUnknownBank means a bank name did not resolve to a provider code. This
// is a hard validation error, never a silent fallback.
var ErrUnknownBank = errors.New("unknown or inactive bank")

type BankRepository struct {
	db *gorm.DB
}

func NewBankRepository(db *gorm.DB) *BankRepository {
	return &BankRepository{db: db}
}

func (r *BankRepository) ListActive() ([]models.Bank, error) {
	var banks []models.Bank
	err := r.db.Where("is_active = ?", true).Order("name ASC").Find(&banks).Error
	return banks, err
}

// CodeForName looks a bank code up by normalized name.
func (r *BankRepository) CodeForName(name string) (string, error) {
	var bank models.Bank
	err := r.db.Where("LOWER(name) = ? AND is_active = ?", normalizeBankName(name), true).
		First(&bank).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUnknownBank
		}
		return "", err
	}
	return bank.Code, nil
}

// Upsert inserts or refreshes a bank keyed by code, reactivating it. A
// missing slug is stored as NULL; an empty string would collide on the
// unique index as soon as a second slug-less bank arrives.
func (r *BankRepository) Upsert(name, code, slug string) error {
	var bank models.Bank
	err := r.db.Where("code = ?", code).First(&bank).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(&models.Bank{Name: name, Code: code, Slug: nullableSlug(slug), IsActive: true}).Error
	}
	if err != nil {
		return err
	}
	return r.db.Model(&bank).Updates(map[string]interface{}{
		"name":      name,
		"slug":      nullableSlug(slug),
		"is_active": true,
	}).Error
}

func nullableSlug(slug string) *string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil
	}
	return &slug
}

func normalizeBankName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
