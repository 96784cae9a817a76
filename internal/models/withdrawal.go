package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Withdrawal is a payout request. Status only moves forward through
// Pending -> Processing -> {Completed, Failed, Reversed}; Reversed is only
// reachable after funds were debited and the transfer did not complete.
type Withdrawal struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UserID            uint            `gorm:"not null;index" json:"user_id"`
	BankName          string          `gorm:"size:100;not null" json:"bank_name"`
	AccountNumber     string          `gorm:"size:20;not null" json:"account_number"`
	AccountName       *string         `gorm:"size:200" json:"account_name,omitempty"` // filled by provider resolution
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status            string          `gorm:"size:12;not null;index;default:'Pending'" json:"status"`
	RecipientCode     *string         `gorm:"size:100" json:"recipient_code,omitempty"`
	TransferReference *string         `gorm:"uniqueIndex;size:100" json:"transfer_reference,omitempty"`
	TransferID        *int64          `json:"transfer_id,omitempty"`
	FailureReason     *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	IdempotencyKey    *string         `gorm:"index;size:64" json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}
