// Package starknet gates and performs counterfactual account deployment for custodial
// Starknet wallets.
package starknet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	chainstarknet "chainvend.com/internal/chain/starknet"
	"chainvend.com/pkg/logger"
)

// Fee token contracts, identical on mainnet and sepolia.
const (
	TokenSTRK = chainstarknet.TokenSTRK
	TokenETH  = "0x049d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7"

	tokenDecimals = 18
)

// Reader is the subset of the JSON-RPC client eligibility needs.
type Reader interface {
	ClassHashAt(ctx context.Context, address string) (string, error)
	BalanceOf(ctx context.Context, token, owner string) (*big.Int, error)
}

var _ Reader = (*chainstarknet.Client)(nil)

type Eligibility struct {
	Eligible  bool            `json:"eligible"`
	Deployed  bool            `json:"deployed"`
	Token     string          `json:"token"`
	Balance   decimal.Decimal `json:"balance"`
	Threshold decimal.Decimal `json:"threshold"`
}

type Checker struct {
	reader    Reader
	threshold decimal.Decimal
}

func NewChecker(reader Reader, threshold decimal.Decimal) *Checker {
	if threshold.Sign() <= 0 {
		threshold = decimal.RequireFromString("0.5")
	}
	return &Checker{reader: reader, threshold: threshold}
}

// Check reports whether address can pay for its own deployment. A deployed account is never
// eligible. STRK is preferred; ETH is the fallback fee token.
func (c *Checker) Check(ctx context.Context, address string) (*Eligibility, error) {
	out := &Eligibility{Token: "STRK", Threshold: c.threshold}

	_, err := c.reader.ClassHashAt(ctx, address)
	if err == nil {
		out.Deployed = true
		return out, nil
	}
	if !errors.Is(err, chainstarknet.ErrContractNotFound) {
		return nil, fmt.Errorf("class hash of %s: %w", address, err)
	}

	strk, err := c.balance(ctx, TokenSTRK, address)
	if err != nil {
		return nil, err
	}
	out.Balance = strk
	if strk.GreaterThanOrEqual(c.threshold) {
		out.Eligible = true
	} else {
		eth, err := c.balance(ctx, TokenETH, address)
		if err != nil {
			return nil, err
		}
		if eth.GreaterThanOrEqual(c.threshold) {
			out.Eligible, out.Token, out.Balance = true, "ETH", eth
		}
	}
	logger.Debug(ctx, "starknet deployment eligibility",
		zap.String("address", address), zap.Bool("eligible", out.Eligible),
		zap.String("token", out.Token), zap.String("balance", out.Balance.String()))
	return out, nil
}

// Balance is the STRK balance of address in whole tokens.
func (c *Checker) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	return c.balance(ctx, TokenSTRK, address)
}

func (c *Checker) balance(ctx context.Context, token, address string) (decimal.Decimal, error) {
	raw, err := c.reader.BalanceOf(ctx, token, address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf %s: %w", token, err)
	}
	return chain.FromBaseUnits(raw, tokenDecimals), nil
}
