package starknet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/account"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"go.uber.org/zap"

	chainstarknet "chainvend.com/internal/chain/starknet"
	"chainvend.com/pkg/logger"
)

const cairoVersion = 2

var ErrAddressMismatch = errors.New("precomputed address differs from stored address")

type DeployRequest struct {
	PrivateKey []byte
	PublicKey  string
	Address    string
}

type DeployResult struct {
	TxHash  string `json:"txHash"`
	Address string `json:"address"`
}

type Deployer interface {
	Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error)
}

// AccountDeployer signs and broadcasts DEPLOY_ACCOUNT transactions with starknet.go and waits
// for acceptance through the JSON-RPC reader.
type AccountDeployer struct {
	provider      *rpc.Provider
	receipts      ReceiptReader
	classHash     *felt.Felt
	poll          time.Duration
	feeMultiplier float64
}

var _ Deployer = (*AccountDeployer)(nil)

func NewAccountDeployer(url, classHash string, receipts ReceiptReader, poll time.Duration, feeMultiplier float64) (*AccountDeployer, error) {
	provider, err := rpc.NewProvider(url)
	if err != nil {
		return nil, fmt.Errorf("starknet provider %s: %w", url, err)
	}
	ch, err := utils.HexToFelt(classHash)
	if err != nil {
		return nil, fmt.Errorf("account class hash: %w", err)
	}
	if feeMultiplier <= 0 {
		feeMultiplier = 1.5
	}
	return &AccountDeployer{provider: provider, receipts: receipts, classHash: ch, poll: poll, feeMultiplier: feeMultiplier}, nil
}

func (d *AccountDeployer) Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	pub, err := utils.HexToFelt(req.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	addr, err := utils.HexToFelt(req.Address)
	if err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}

	priv := new(big.Int).SetBytes(req.PrivateKey)
	defer func() {
		words := priv.Bits()
		for i := range words {
			words[i] = 0
		}
	}()
	ks := account.NewMemKeystore()
	ks.Put(pub.String(), priv)

	acct, err := account.NewAccount(d.provider, addr, pub.String(), ks, cairoVersion)
	if err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}

	tx, precomputed, err := acct.BuildAndEstimateDeployAccountTxn(ctx, pub, d.classHash, []*felt.Felt{pub}, d.feeMultiplier)
	if err != nil {
		return nil, fmt.Errorf("build deploy account tx: %w", err)
	}
	if chainstarknet.NormalizeAddress(precomputed.String()) != chainstarknet.NormalizeAddress(req.Address) {
		return nil, fmt.Errorf("%w: %s != %s", ErrAddressMismatch, precomputed.String(), req.Address)
	}

	resp, err := acct.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("send deploy account tx: %w", err)
	}
	hash := resp.TransactionHash.String()
	logger.Info(ctx, "starknet deploy submitted", zap.String("address", req.Address), zap.String("tx", hash))

	if _, err := WaitForReceipt(ctx, d.receipts, hash, d.poll); err != nil {
		return &DeployResult{TxHash: hash, Address: req.Address}, err
	}
	return &DeployResult{TxHash: hash, Address: precomputed.String()}, nil
}
