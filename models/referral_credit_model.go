package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReferralCredit records one payout of referral earnings. IdempotencyKey is the
// purchase or payment id that triggered it.
type ReferralCredit struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IdempotencyKey string          `gorm:"size:255;not null;uniqueIndex" json:"idempotency_key"`
	OwnerUserID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	ReferralID     *uuid.UUID      `gorm:"type:uuid" json:"referral_id,omitempty"`
	Discount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`

	CreatedAt time.Time `json:"created_at"`
}

func (c *ReferralCredit) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
