package starknet

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/chain/chaintest"
)

const (
	strkToken = TokenSTRK
	treasury  = "0x0000a1b2c3d4e5f60718293a4b5c6d7e8f901234567890abcdef1234567890ab"
	payer     = "0x0123"
	txHash    = "0x05d3f1c2b0a9e8d7c6b5a4f3e2d1c0b9a8f7e6d5c4b3a2f1e0d9c8b7a6f5e4d3"
)

func receipt(finality, execution string, events ...Event) Receipt {
	return Receipt{
		Type:            "INVOKE",
		TransactionHash: txHash,
		FinalityStatus:  finality,
		ExecutionStatus: execution,
		Events:          events,
	}
}

func receiptServer(t *testing.T, r interface{}) *chaintest.Server {
	return chaintest.NewRPCServer(t, map[string]chaintest.Handler{
		"starknet_getTransactionReceipt": func([]json.RawMessage) (interface{}, *chaintest.RPCError) {
			if r == nil {
				return nil, &chaintest.RPCError{Code: 29, Message: "Transaction hash not found"}
			}
			return r, nil
		},
	})
}

func newValidator(t *testing.T, urls ...string) *Validator {
	t.Helper()
	pool := chain.NewPool(chain.Starknet, urls, chain.PoolOptions{AttemptTimeout: 2 * time.Second})
	v, err := NewValidator(pool, WithTokens(strkToken))
	require.NoError(t, err)
	return v
}

func TestNewValidator_RequiresToken(t *testing.T) {
	pool := chain.NewPool(chain.Starknet, []string{"http://127.0.0.1:1"}, chain.PoolOptions{})
	_, err := NewValidator(pool)
	assert.ErrorIs(t, err, ErrNoTokens)
	_, err = NewValidator(pool, WithTokens(""))
	assert.ErrorIs(t, err, ErrNoTokens)
}

// 2 STRK
var two = "0x1bc16d674ec80000"

func TestValidate(t *testing.T) {
	min, max := decimal.RequireFromString("1.98"), decimal.RequireFromString("2.02")
	compactTreasury := "0xa1b2c3d4e5f60718293a4b5c6d7e8f901234567890abcdef1234567890ab"

	tests := []struct {
		name    string
		receipt Receipt
		want    bool
	}{
		{"three element payload", receipt(FinalityAcceptedOnL2, ExecutionSucceeded,
			Event{FromAddress: strkToken, Data: []string{payer, compactTreasury, two}}), true},
		{"u256 payload", receipt(FinalityAcceptedOnL1, ExecutionSucceeded,
			Event{FromAddress: strkToken, Data: []string{payer, treasury, two, "0x0"}}), true},
		{"keys layout", receipt(FinalityAcceptedOnL2, ExecutionSucceeded,
			Event{FromAddress: strkToken, Keys: []string{TransferSelector, payer, treasury}, Data: []string{two, "0x0"}}), true},
		{"split and summed", receipt(FinalityAcceptedOnL2, ExecutionSucceeded,
			Event{FromAddress: strkToken, Data: []string{payer, treasury, "0xde0b6b3a7640000"}},
			Event{FromAddress: strkToken, Data: []string{payer, treasury, "0xde0b6b3a7640000"}}), true},
		{"other token", receipt(FinalityAcceptedOnL2, ExecutionSucceeded,
			Event{FromAddress: "0x49d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7", Data: []string{payer, treasury, two}}), false},
		{"look-alike contract", receipt(FinalityAcceptedOnL2, ExecutionSucceeded,
			Event{FromAddress: "0x0666", Keys: []string{TransferSelector, payer, treasury}, Data: []string{two, "0x0"}}), false},
		{"other recipient", receipt(FinalityAcceptedOnL2, ExecutionSucceeded,
			Event{FromAddress: strkToken, Data: []string{payer, payer, two}}), false},
		{"not final", receipt("RECEIVED", "",
			Event{FromAddress: strkToken, Data: []string{payer, treasury, two}}), false},
		{"reverted", receipt(FinalityAcceptedOnL2, "REVERTED",
			Event{FromAddress: strkToken, Data: []string{payer, treasury, two}}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := receiptServer(t, tt.receipt)
			assert.Equal(t, tt.want, newValidator(t, srv.URL).Validate(context.Background(), txHash, treasury, min, max))
		})
	}
}

func TestValidate_HashNotFound(t *testing.T) {
	srv := receiptServer(t, nil)
	assert.False(t, newValidator(t, srv.URL).Validate(context.Background(), txHash, treasury, decimal.Zero, decimal.NewFromInt(1)))
	assert.Equal(t, 1, srv.Calls("starknet_getTransactionReceipt"))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, NormalizeAddress("0x0000ABC"), NormalizeAddress("0xabc"))
	assert.Equal(t, "0", NormalizeAddress("0x000"))
}

func TestU256(t *testing.T) {
	v, err := U256("0x1", "0x1")
	require.NoError(t, err)
	want := new(big.Int).Lsh(big.NewInt(1), 128)
	want.Add(want, big.NewInt(1))
	assert.Equal(t, 0, v.Cmp(want))

	_, err = U256("0xzz", "0x0")
	assert.Error(t, err)
}

func TestClient_ClassHashAndBalance(t *testing.T) {
	srv := chaintest.NewRPCServer(t, map[string]chaintest.Handler{
		"starknet_getClassHashAt": func(params []json.RawMessage) (interface{}, *chaintest.RPCError) {
			var addr string
			_ = json.Unmarshal(params[1], &addr)
			if addr == payer {
				return "0x61dac032f228abef9c6626f995015233097ae253a7f72d68552db02f2971b8f", nil
			}
			return nil, &chaintest.RPCError{Code: 20, Message: "Contract not found"}
		},
		"starknet_call": func([]json.RawMessage) (interface{}, *chaintest.RPCError) {
			return []string{two, "0x0"}, nil
		},
	})

	c, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer c.Close()

	hash, err := c.ClassHashAt(context.Background(), payer)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	_, err = c.ClassHashAt(context.Background(), treasury)
	assert.ErrorIs(t, err, ErrContractNotFound)

	bal, err := c.BalanceOf(context.Background(), strkToken, treasury)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", bal.String())
}
