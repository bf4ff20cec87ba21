// Package evm validates native ETH and ERC-20 token payments.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	"chainvend.com/pkg/logger"
)

var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Token selects ERC-20 mode.
type Token struct {
	Contract common.Address
	Decimals int32
}

type Validator struct {
	pool  *chain.Pool
	token *Token

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

var _ chain.Validator = (*Validator)(nil)

// NewNative checks plain value transfers.
func NewNative(pool *chain.Pool) *Validator {
	return &Validator{pool: pool, clients: map[string]*ethclient.Client{}}
}

// NewToken checks Transfer events emitted by contract.
func NewToken(pool *chain.Pool, contract string, decimals int32) (*Validator, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid token contract %q", contract)
	}
	return &Validator{
		pool:    pool,
		token:   &Token{Contract: common.HexToAddress(contract), Decimals: decimals},
		clients: map[string]*ethclient.Client{},
	}, nil
}

func (v *Validator) Validate(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool {
	if !isTxHash(txHash) || !common.IsHexAddress(to) {
		logger.Warn(ctx, "evm validate: malformed input", zap.String("tx", txHash), zap.String("to", to))
		return false
	}
	hash := common.HexToHash(txHash)
	want := common.HexToAddress(to)

	var amount decimal.Decimal
	err := v.pool.Do(ctx, txHash, func(ctx context.Context, ep string) error {
		client, err := v.client(ctx, ep)
		if err != nil {
			return err
		}
		if v.token != nil {
			amount, err = v.tokenAmount(ctx, client, hash, want)
		} else {
			amount, err = v.nativeAmount(ctx, client, hash, want)
		}
		return err
	})
	if err != nil {
		logger.Info(ctx, "evm validate: not confirmed", zap.String("tx", txHash), zap.Error(err))
		return false
	}
	return chain.InBand(amount, min, max)
}

func (v *Validator) nativeAmount(ctx context.Context, c *ethclient.Client, hash common.Hash, want common.Address) (decimal.Decimal, error) {
	tx, pending, err := c.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return decimal.Zero, chain.NotFound(hash.Hex())
	}
	if err != nil {
		return decimal.Zero, err
	}
	if pending {
		// not mined yet, same as unknown for our purposes
		return decimal.Zero, chain.NotFound(hash.Hex())
	}

	if _, err := v.successfulReceipt(ctx, c, hash); err != nil {
		return decimal.Zero, err
	}
	if tx.To() == nil || *tx.To() != want {
		return decimal.Zero, nil
	}
	return chain.FromBaseUnits(tx.Value(), 18), nil
}

func (v *Validator) tokenAmount(ctx context.Context, c *ethclient.Client, hash common.Hash, want common.Address) (decimal.Decimal, error) {
	receipt, err := v.successfulReceipt(ctx, c, hash)
	if err != nil {
		return decimal.Zero, err
	}
	return sumTransfers(receipt.Logs, v.token.Contract, want, v.token.Decimals), nil
}

// successfulReceipt returns the receipt of a mined, non-reverted transaction.
func (v *Validator) successfulReceipt(ctx context.Context, c *ethclient.Client, hash common.Hash) (*types.Receipt, error) {
	receipt, err := c.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, chain.NotFound(hash.Hex())
	}
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, errReverted
	}
	return receipt, nil
}

// sumTransfers adds every Transfer(_, want, value) log of contract.
func sumTransfers(logs []*types.Log, contract, want common.Address, decimals int32) decimal.Decimal {
	total := new(big.Int)
	for _, l := range logs {
		if l == nil || l.Address != contract || len(l.Topics) != 3 || l.Topics[0] != TransferTopic {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != want {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	return chain.FromBaseUnits(total, decimals)
}

func (v *Validator) client(ctx context.Context, ep string) (*ethclient.Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.clients[ep]; ok {
		return c, nil
	}
	c, err := ethclient.DialContext(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ep, err)
	}
	v.clients[ep] = c
	return c, nil
}

// Close releases the cached clients.
func (v *Validator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ep, c := range v.clients {
		c.Close()
		delete(v.clients, ep)
	}
}

func isTxHash(h string) bool {
	h = strings.TrimPrefix(strings.ToLower(h), "0x")
	if len(h) != 64 {
		return false
	}
	for _, r := range h {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
