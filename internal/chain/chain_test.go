package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Chain
	}{
		{"ethereum", Ethereum},
		{"ETH", Ethereum},
		{"USDT-ERC20", USDT},
		{" btc ", Bitcoin},
		{"Solana", Solana},
		{"xlm", Stellar},
		{"dot", Polkadot},
		{"STRK", Starknet},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Parse("dogecoin")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestInBand_Inclusive(t *testing.T) {
	min, max := decimal.RequireFromString("99"), decimal.RequireFromString("101")
	assert.True(t, InBand(decimal.RequireFromString("99.0"), min, max))
	assert.True(t, InBand(decimal.RequireFromString("101.0"), min, max))
	assert.False(t, InBand(decimal.RequireFromString("98.99"), min, max))
	assert.False(t, InBand(decimal.RequireFromString("101.01"), min, max))
}

func TestFromBaseUnits(t *testing.T) {
	wei, _ := new(big.Int).SetString("250000000000000", 10)
	assert.Equal(t, "0.00025", FromBaseUnits(wei, 18).String())
	assert.Equal(t, "1.5", FromBaseUnits(big.NewInt(1_500_000), 6).String())
	assert.True(t, FromBaseUnits(nil, 8).IsZero())
}

func TestNormalizeHash(t *testing.T) {
	evm := "0xAB" + strings.Repeat("0", 61) + "C"
	btcid := strings.Repeat("0", 60) + "beef"
	tests := []struct {
		name  string
		chain Chain
		in    []string
		want  string
	}{
		{"evm prefix optional", Ethereum, []string{evm, " " + evm[2:] + " ", strings.ToLower(evm)}, "0xab" + strings.Repeat("0", 61) + "c"},
		{"usdt follows evm", USDT, []string{evm[2:]}, "0xab" + strings.Repeat("0", 61) + "c"},
		{"starknet leading zeros", Starknet, []string{"0x00000ABC", "0xabc", "abc"}, "0xabc"},
		{"btc case and prefix", Bitcoin, []string{strings.ToUpper(btcid), "0x" + btcid}, btcid},
		{"polkadot prefix forced", Polkadot, []string{"0x" + btcid, strings.ToUpper(btcid)}, "0x" + btcid},
		{"unparseable only lowered", Ethereum, []string{" 0xABC "}, "0xabc"},
		{"stellar lowered", Stellar, []string{strings.ToUpper(btcid)}, btcid},
		{"solana kept", Solana, []string{"5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"}, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, in := range tt.in {
				assert.Equal(t, tt.want, tt.chain.NormalizeHash(in), in)
			}
		})
	}
}
