package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"

	"chainvend.com/internal/chain"
)

type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

func Networks() []Network { return []Network{Mainnet, Testnet} }

func ParseNetwork(s string) (Network, bool) {
	switch n := Network(s); n {
	case Mainnet, Testnet:
		return n, true
	case "":
		return Mainnet, true
	default:
		return "", false
	}
}

// StringList is stored as a JSON array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	default:
		return fmt.Errorf("string list: unsupported type %T", src)
	}
}

// WalletAddress is one custodial address of a user on one chain and network.
type WalletAddress struct {
	ID                  uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              string          `gorm:"size:64;uniqueIndex:uk_wallet_user,priority:1" json:"userId"`
	Chain               chain.Chain     `gorm:"size:16;uniqueIndex:uk_wallet_user,priority:2;uniqueIndex:uk_wallet_address,priority:1" json:"chain"`
	Network             Network         `gorm:"size:16;uniqueIndex:uk_wallet_user,priority:3;uniqueIndex:uk_wallet_address,priority:2" json:"network"`
	Address             string          `gorm:"size:128;uniqueIndex:uk_wallet_address,priority:3" json:"address"`
	EncryptedPrivateKey string          `gorm:"type:text" json:"-"`
	PublicKey           string          `gorm:"size:132" json:"publicKey"`
	ConstructorCalldata StringList      `gorm:"type:json" json:"constructorCalldata,omitempty"`
	ClassHash           string          `gorm:"size:68" json:"classHash,omitempty"`
	IsDeployed          bool            `json:"isDeployed"`
	DeployTxHash        string          `gorm:"size:68" json:"deployTxHash,omitempty"`
	LastKnownBalance    decimal.Decimal `gorm:"type:decimal(36,18)" json:"lastKnownBalance"`
	BalanceCheckedAt    *time.Time      `json:"balanceCheckedAt,omitempty"`
	DerivationIndex     uint32          `json:"derivationIndex"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func (WalletAddress) TableName() string { return "wallet_addresses" }

// UserIndex hands every user a stable HD derivation index.
type UserIndex struct {
	ID        uint32 `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"size:64;uniqueIndex"`
	CreatedAt time.Time
}

func (UserIndex) TableName() string { return "wallet_user_indexes" }
