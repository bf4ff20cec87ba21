package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"chainvend.com/internal/chain"
)

// EVMBalance reads native ether balances at the latest block.
type EVMBalance struct {
	client *ethclient.Client
}

func NewEVMBalance(client *ethclient.Client) *EVMBalance {
	return &EVMBalance{client: client}
}

func (b *EVMBalance) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	wei, err := b.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, err
	}
	return chain.FromBaseUnits(wei, chain.Ethereum.Decimals()), nil
}
