package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is an append-mostly ledger entry. Amount and type never change
// after creation; only status and reference transition. Reference is globally
// unique once assigned.
type Transaction struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        uint            `gorm:"not null;index" json:"user_id"`
	Type          string          `gorm:"size:20;not null;index" json:"type"` // Deposit, Withdrawal, Payment
	Reference     *string         `gorm:"uniqueIndex;size:100" json:"reference,omitempty"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status        string          `gorm:"size:12;not null;index;default:'Pending'" json:"status"`
	ProviderTxnID *int64          `json:"provider_txn_id,omitempty"`
	WithdrawalID  *uint           `gorm:"index" json:"withdrawal_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
