package models

import (
	"time"

	"github.com/google/uuid"
)

// ReferralCode is the single shareable code a user owns. Both columns are
// unique: one code per user, one user per code.
type ReferralCode struct {
	Code        string    `gorm:"size:8;primaryKey" json:"code"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"owner_user_id"`

	CreatedAt time.Time `json:"created_at"`
}
