// Package chain holds what every on-chain payment validator shares: the chain enum, the
// Validator contract, the ranked endpoint pool and the registry that binds validators to
// treasury addresses.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Chain string

const (
	Ethereum Chain = "ethereum"
	USDT     Chain = "usdt"
	Bitcoin  Chain = "bitcoin"
	Solana   Chain = "solana"
	Stellar  Chain = "stellar"
	Polkadot Chain = "polkadot"
	Starknet Chain = "starknet"
)

var all = []Chain{Ethereum, USDT, Bitcoin, Solana, Stellar, Polkadot, Starknet}

var aliases = map[string]Chain{
	"eth": Ethereum, "ethereum": Ethereum,
	"usdt": USDT, "usdt-erc20": USDT, "usdt_erc20": USDT, "erc20": USDT,
	"btc": Bitcoin, "bitcoin": Bitcoin,
	"sol": Solana, "solana": Solana,
	"xlm": Stellar, "stellar": Stellar,
	"dot": Polkadot, "polkadot": Polkadot,
	"strk": Starknet, "starknet": Starknet,
}

var ErrUnsupported = errors.New("unsupported chain")

// Parse accepts chain ids and ticker symbols in any case.
func Parse(s string) (Chain, error) {
	c, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
	return c, nil
}

func All() []Chain {
	out := make([]Chain, len(all))
	copy(out, all)
	return out
}

func (c Chain) String() string { return string(c) }

func (c Chain) Symbol() string {
	switch c {
	case Ethereum:
		return "ETH"
	case USDT:
		return "USDT"
	case Bitcoin:
		return "BTC"
	case Solana:
		return "SOL"
	case Stellar:
		return "XLM"
	case Polkadot:
		return "DOT"
	case Starknet:
		return "STRK"
	default:
		return strings.ToUpper(string(c))
	}
}

// Decimals is the number of decimals of the chain's smallest unit.
func (c Chain) Decimals() int32 {
	switch c {
	case Ethereum, Starknet:
		return 18
	case USDT:
		return 6
	case Bitcoin:
		return 8
	case Solana:
		return 9
	case Stellar:
		return 7
	case Polkadot:
		return 10
	default:
		return 18
	}
}

// NormalizeHash gives every spelling of one transaction the same key, so a payment can
// only be claimed once. Hex hashes are canonicalized per chain; anything that does not
// parse is only trimmed and lower-cased. Base58 (Solana) is case-sensitive and kept.
func (c Chain) NormalizeHash(h string) string {
	h = strings.TrimSpace(h)
	switch c {
	case Ethereum, USDT:
		if x := trimHexPrefix(h); isHex(x, 64) {
			return common.HexToHash(x).Hex()
		}
	case Starknet:
		if f, err := new(felt.Felt).SetString("0x" + trimHexPrefix(h)); err == nil {
			return f.String()
		}
	case Bitcoin:
		if x := trimHexPrefix(h); isHex(x, 64) {
			if id, err := chainhash.NewHashFromStr(x); err == nil {
				return id.String()
			}
		}
	case Polkadot:
		if x := trimHexPrefix(h); isHex(x, 64) {
			return "0x" + strings.ToLower(x)
		}
	case Solana:
		return h
	}
	return strings.ToLower(h)
}

func trimHexPrefix(h string) string {
	if len(h) >= 2 && h[0] == '0' && (h[1] == 'x' || h[1] == 'X') {
		return h[2:]
	}
	return h
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

// Validator confirms a finalized transaction moved an amount inside [min, max] to `to`.
// It answers false for anything it cannot confirm, including a transaction no endpoint knows.
type Validator interface {
	Validate(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool

func (f ValidatorFunc) Validate(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool {
	return f(ctx, txHash, to, min, max)
}

// InBand is the inclusive band check every validator uses.
func InBand(x, min, max decimal.Decimal) bool {
	return x.GreaterThanOrEqual(min) && x.LessThanOrEqual(max)
}

// FromBaseUnits shifts an integer amount of the smallest unit into whole coins.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0).Shift(-decimals)
}
