package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet holds a user's balance. One per user; mutated only through atomic
// balance adjustments tied to a Transaction.
type Wallet struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	UserID               uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	ProviderCustomerCode *string         `gorm:"uniqueIndex;size:50" json:"provider_customer_code,omitempty"`
	DVAAccountNumber     *string         `gorm:"uniqueIndex;size:20" json:"dva_account_number,omitempty"`
	DVAAccountName       *string         `gorm:"size:200" json:"dva_account_name,omitempty"`
	DVABankName          *string         `gorm:"size:100" json:"dva_bank_name,omitempty"`
	DVAAssignedAt        *time.Time      `json:"dva_assigned_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// HasDVA reports whether a dedicated virtual account has been assigned.
func (w *Wallet) HasDVA() bool {
	return w.DVAAccountNumber != nil && *w.DVAAccountNumber != ""
}
