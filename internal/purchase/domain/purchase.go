package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"

	"chainvend.com/internal/chain"
)

type Product string

const (
	Airtime     Product = "airtime"
	Data        Product = "data"
	Electricity Product = "electricity"
)

func Products() []Product { return []Product{Airtime, Data, Electricity} }

func ParseProduct(s string) (Product, bool) {
	switch p := Product(s); p {
	case Airtime, Data, Electricity:
		return p, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// CanTransition reports whether s may move to next. Terminal states never move.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

type Security struct {
	ValidatedAt *time.Time `json:"validatedAt,omitempty"`
	ClaimedAt   *time.Time `json:"claimedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

const RefundPending = "pending"

// Refund is the intent handed to settlement. Nothing here moves funds.
type Refund struct {
	Initiated  bool            `json:"initiated"`
	Reason     string          `json:"reason"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Metadata is the audit trail kept on every purchase row.
type Metadata struct {
	Error            string            `json:"error,omitempty"`
	ProviderResponse map[string]string `json:"providerResponse,omitempty"`
	Security         Security          `json:"security"`
	Refund           *Refund           `json:"refund,omitempty"`
}

func (m Metadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported type %T", src)
	}
	if len(b) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(b, m)
}

// Purchase is the shape all three product tables share.
type Purchase struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	UserID            string          `gorm:"size:64;index" json:"userId"`
	FiatAmount        decimal.Decimal `gorm:"type:decimal(20,2)" json:"fiatAmount"`
	CryptoAmount      decimal.Decimal `gorm:"type:decimal(36,18)" json:"cryptoAmount"`
	CryptoCurrency    string          `gorm:"size:16" json:"cryptoCurrency"`
	Blockchain        chain.Chain     `gorm:"size:16" json:"blockchain"`
	TransactionHash   string          `gorm:"size:160;index" json:"transactionHash"`
	Status            Status          `gorm:"size:16;index" json:"status"`
	ProviderReference string          `gorm:"size:128" json:"providerReference,omitempty"`
	Metadata          Metadata        `gorm:"type:json" json:"metadata"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (p *Purchase) Base() *Purchase { return p }

// Record is any product row.
type Record interface {
	Base() *Purchase
	Product() Product
}

type AirtimePurchase struct {
	Purchase
	PhoneNumber   string `gorm:"size:20" json:"phoneNumber"`
	MobileNetwork string `gorm:"size:16" json:"mobileNetwork"`
}

func (AirtimePurchase) TableName() string { return "airtime_purchases" }
func (AirtimePurchase) Product() Product  { return Airtime }

type DataPurchase struct {
	Purchase
	PhoneNumber   string `gorm:"size:20" json:"phoneNumber"`
	MobileNetwork string `gorm:"size:16" json:"mobileNetwork"`
	DataPlan      string `gorm:"size:32" json:"dataPlan"`
}

func (DataPurchase) TableName() string { return "data_purchases" }
func (DataPurchase) Product() Product  { return Data }

type ElectricityPurchase struct {
	Purchase
	MeterNumber  string `gorm:"size:16" json:"meterNumber"`
	MeterType    string `gorm:"size:16" json:"meterType"`
	Company      string `gorm:"size:32" json:"company"`
	MeterToken   string `gorm:"size:128" json:"meterToken,omitempty"`
	CustomerName string `gorm:"size:128" json:"customerName,omitempty"`
}

func (ElectricityPurchase) TableName() string { return "electricity_purchases" }
func (ElectricityPurchase) Product() Product  { return Electricity }

// NewRecord returns an empty row of the product's table.
func NewRecord(p Product) (Record, error) {
	switch p {
	case Airtime:
		return &AirtimePurchase{}, nil
	case Data:
		return &DataPurchase{}, nil
	case Electricity:
		return &ElectricityPurchase{}, nil
	default:
		return nil, errors.New("unknown product " + string(p))
	}
}

type LedgerStatus string

const (
	LedgerClaimed   LedgerStatus = "claimed"
	LedgerCompleted LedgerStatus = "completed"
)

// SpentTransaction makes a payment hash usable once across every product.
type SpentTransaction struct {
	ID         uint64       `gorm:"primaryKey;autoIncrement"`
	TxHash     string       `gorm:"size:160;uniqueIndex"`
	Chain      chain.Chain  `gorm:"size:16"`
	Product    Product      `gorm:"size:16"`
	PurchaseID string       `gorm:"size:36"`
	Status     LedgerStatus `gorm:"size:16"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (SpentTransaction) TableName() string { return "spent_transactions" }
