package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StipendPayment marks the nth monthly stipend of a purchase as paid.
type StipendPayment struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stipend_month" json:"purchase_id"`
	MonthIndex int             `gorm:"not null;uniqueIndex:idx_stipend_month" json:"month_index"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PaidAt     time.Time       `gorm:"not null" json:"paid_at"`
}

func (s *StipendPayment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
