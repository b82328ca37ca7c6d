package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WithdrawalMethod string

const (
	MethodBank   WithdrawalMethod = "bank"
	MethodCrypto WithdrawalMethod = "crypto"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

type CryptoNetwork string

const (
	NetworkTRC20 CryptoNetwork = "TRC20"
	NetworkBEP20 CryptoNetwork = "BEP20"
	NetworkERC20 CryptoNetwork = "ERC20"
)

func (n CryptoNetwork) Valid() bool {
	switch n {
	case NetworkTRC20, NetworkBEP20, NetworkERC20:
		return true
	}
	return false
}

type BankDetails struct {
	AccountHolder string `gorm:"size:255" json:"account_holder"`
	BankName      string `gorm:"size:255" json:"bank_name"`
	AccountNumber string `gorm:"size:64" json:"account_number"`
	RoutingCode   string `gorm:"size:64" json:"routing_code"`
}

type CryptoDetails struct {
	Network CryptoNetwork `gorm:"size:20" json:"network"`
	Address string        `gorm:"size:255" json:"address"`
}

type WithdrawalRequest struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount      decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"amount"`
	Method      WithdrawalMethod `gorm:"size:20;not null" json:"method"`
	Bank        BankDetails      `gorm:"embedded;embeddedPrefix:bank_" json:"bank"`
	Crypto      CryptoDetails    `gorm:"embedded;embeddedPrefix:crypto_" json:"crypto"`
	Status      WithdrawalStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	AdminNotes  *string          `gorm:"type:text" json:"admin_notes,omitempty"`
	RequestedAt time.Time        `gorm:"not null" json:"requested_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
}

func (w *WithdrawalRequest) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
