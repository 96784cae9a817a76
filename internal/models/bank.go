package models

import (
	"time"
)

// Bank maps a human bank name to a provider bank code. Seeded at migration
// time and refreshed from the provider's bank directory; immutable apart from
// the activation flag.
type Bank struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Code      string    `gorm:"uniqueIndex;size:10;not null" json:"code"`
	Slug      *string   `gorm:"uniqueIndex;size:100" json:"slug,omitempty"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Bank) TableName() string {
	return "banks"
}
