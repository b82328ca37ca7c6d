package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PurchaseStatus string

const (
	PurchasePending PurchaseStatus = "pending"
	PurchasePaid    PurchaseStatus = "paid"
	PurchaseFailed  PurchaseStatus = "failed"
)

type Purchase struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	PlanName      string          `gorm:"size:100;not null" json:"plan_name"`
	OriginalPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"original_price"`
	Discount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount"`
	FinalPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"final_price"`
	ReferralCode  *string         `gorm:"size:8" json:"referral_code,omitempty"`
	Status        PurchaseStatus  `gorm:"size:20;not null;default:'pending';index" json:"status"`
	PaymentID     *string         `gorm:"size:255;uniqueIndex" json:"payment_id,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
