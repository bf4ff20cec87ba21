package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"chainvend.com/internal/chain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool { return s != StatusPending }

// MerchantPayment is a deposit a merchant expects on its custodial address. TxHash stays
// NULL until the payer submits it, so the unique index only binds submitted hashes.
type MerchantPayment struct {
	ID               string          `gorm:"size:36;primaryKey" json:"id"`
	MerchantID       string          `gorm:"size:64;index" json:"merchantId"`
	Chain            chain.Chain     `gorm:"size:16" json:"chain"`
	Network          string          `gorm:"size:16" json:"network"`
	DepositAddress   string          `gorm:"size:128" json:"depositAddress"`
	ExpectedAmount   decimal.Decimal `gorm:"type:decimal(36,18)" json:"expectedAmount"`
	FiatAmount       decimal.Decimal `gorm:"type:decimal(20,2)" json:"fiatAmount"`
	TolerancePercent decimal.Decimal `gorm:"type:decimal(5,2)" json:"tolerancePercent"`
	TxHash           *string         `gorm:"size:160;uniqueIndex" json:"txHash,omitempty"`
	Status           Status          `gorm:"size:16;index:idx_payment_status_expiry,priority:1" json:"status"`
	ExpiresAt        time.Time       `gorm:"index:idx_payment_status_expiry,priority:2" json:"expiresAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (MerchantPayment) TableName() string { return "merchant_payments" }

func (p *MerchantPayment) Hash() string {
	if p.TxHash == nil {
		return ""
	}
	return *p.TxHash
}

func (p *MerchantPayment) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type CreateRequest struct {
	MerchantID string          `json:"-" validate:"required,max=64"`
	Chain      string          `json:"chain" validate:"required"`
	Network    string          `json:"network" validate:"omitempty,oneof=mainnet testnet"`
	Amount     decimal.Decimal `json:"amount"`
	FiatAmount decimal.Decimal `json:"fiatAmount"`
}

type SubmitTxRequest struct {
	TransactionHash string `json:"transactionHash" validate:"required,min=3,max=160,printascii"`
}
