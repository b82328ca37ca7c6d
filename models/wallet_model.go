package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Wallet struct {
	UserID    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"user_id"`
	Available decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"available"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WalletTransactionKind string

const (
	TxnWithdrawalReservation WalletTransactionKind = "withdrawal_reservation"
	TxnWithdrawalReversal    WalletTransactionKind = "withdrawal_reversal"
	TxnReferralCredit        WalletTransactionKind = "referral_credit"
	TxnStipend               WalletTransactionKind = "stipend"
)

// WalletTransaction is the append-only journal of balance movements. Amount is
// signed.
type WalletTransaction struct {
	ID           uuid.UUID             `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID             `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind         WalletTransactionKind `gorm:"size:40;not null" json:"kind"`
	Amount       decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"amount"`
	BalanceAfter decimal.Decimal       `gorm:"type:numeric(12,2);not null" json:"balance_after"`
	Reference    string                `gorm:"size:255" json:"reference"`

	CreatedAt time.Time `json:"created_at"`
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
