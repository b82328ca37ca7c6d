package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReferralStatus string

const (
	ReferralPending ReferralStatus = "pending"
	ReferralActive  ReferralStatus = "active"
)

type Referral struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Code              string         `gorm:"size:8;not null;uniqueIndex:idx_referral_code_email" json:"code"`
	ReferredUserID    *uuid.UUID     `gorm:"type:uuid;uniqueIndex" json:"referred_user_id,omitempty"`
	ReferredUserName  string         `gorm:"size:255;not null" json:"referred_user_name"`
	ReferredUserEmail string         `gorm:"size:255;not null;uniqueIndex:idx_referral_code_email" json:"referred_user_email"`
	Status            ReferralStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	JoinedAt          time.Time      `gorm:"not null" json:"joined_at"`
	ActivatedAt       *time.Time     `json:"activated_at,omitempty"`
}

func (r *Referral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
