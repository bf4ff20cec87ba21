package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is what every purchase request carries about the on-chain payment.
type Payment struct {
	UserID          string          `json:"-" validate:"required,max=64"`
	Amount          decimal.Decimal `json:"amount"`
	Chain           string          `json:"chain" validate:"required"`
	TransactionHash string          `json:"transactionHash" validate:"required,min=3,max=160,printascii"`
}

type AirtimeRequest struct {
	Payment
	PhoneNumber   string `json:"phoneNumber" validate:"required,ngphone"`
	MobileNetwork string `json:"mobileNetwork" validate:"required,oneof=mtn glo 9mobile etisalat airtel"`
}

type DataRequest struct {
	Payment
	PhoneNumber   string `json:"phoneNumber" validate:"required,ngphone"`
	MobileNetwork string `json:"mobileNetwork" validate:"required,oneof=mtn glo 9mobile etisalat airtel"`
	DataPlan      string `json:"dataPlan" validate:"required,max=32"`
}

type ElectricityRequest struct {
	Payment
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,ngphone"`
	MeterNumber string `json:"meterNumber" validate:"required,meter"`
	MeterType   string `json:"meterType" validate:"required,oneof=prepaid postpaid"`
	Company     string `json:"company" validate:"required,max=32"`
}

// Result is what a caller learns about a purchase, including failed ones that were persisted.
type Result struct {
	PurchaseID        string          `json:"purchaseId"`
	Product           Product         `json:"type"`
	Status            Status          `json:"status"`
	CryptoAmount      decimal.Decimal `json:"cryptoAmount"`
	CryptoCurrency    string          `json:"cryptoCurrency"`
	ProviderReference string          `json:"providerReference,omitempty"`
	MeterToken        string          `json:"meterToken,omitempty"`
	DeliveredAt       *time.Time      `json:"deliveredAt,omitempty"`
}
