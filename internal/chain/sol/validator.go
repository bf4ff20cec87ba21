// Package sol validates native SOL transfers.
package sol

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	"chainvend.com/pkg/logger"
)

const lamportDecimals = 9

type failedTxError struct{}

func (failedTxError) Error() string  { return "transaction failed on chain" }
func (failedTxError) Expected() bool { return true }

type Validator struct {
	pool *chain.Pool

	mu      sync.Mutex
	clients map[string]*rpc.Client
}

var _ chain.Validator = (*Validator)(nil)

func New(pool *chain.Pool) *Validator {
	return &Validator{pool: pool, clients: map[string]*rpc.Client{}}
}

func (v *Validator) Validate(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool {
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		logger.Warn(ctx, "sol validate: bad signature", zap.String("tx", txHash), zap.Error(err))
		return false
	}
	want, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		logger.Warn(ctx, "sol validate: bad address", zap.String("to", to), zap.Error(err))
		return false
	}

	var lamports uint64
	err = v.pool.Do(ctx, txHash, func(ctx context.Context, ep string) error {
		out, err := v.client(ep).GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &rpc.MaxSupportedTransactionVersion0,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return chain.NotFound(txHash)
		}
		if err != nil {
			return err
		}
		lamports, err = received(out, want)
		return err
	})
	if err != nil {
		logger.Info(ctx, "sol validate: not confirmed", zap.String("tx", txHash), zap.Error(err))
		return false
	}
	amount := chain.FromBaseUnits(new(big.Int).SetUint64(lamports), lamportDecimals)
	return chain.InBand(amount, min, max)
}

// received prefers decoded system transfers to want. When none of them pays want, it falls
// back to the balance delta of want's account index.
func received(out *rpc.GetTransactionResult, want solana.PublicKey) (uint64, error) {
	if out == nil || out.Meta == nil || out.Transaction == nil {
		return 0, errors.New("incomplete transaction result")
	}
	if out.Meta.Err != nil {
		return 0, failedTxError{}
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return 0, err
	}

	if sum := sumTransfers(tx, want); sum > 0 {
		return sum, nil
	}
	return balanceDelta(tx, out.Meta, want), nil
}

func sumTransfers(tx *solana.Transaction, want solana.PublicKey) uint64 {
	var sum uint64
	for _, inst := range tx.Message.Instructions {
		programID, err := tx.Message.Program(inst.ProgramIDIndex)
		if err != nil || !programID.Equals(solana.SystemProgramID) {
			continue
		}
		accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			continue
		}
		ix, err := system.DecodeInstruction(accounts, inst.Data)
		if err != nil {
			continue
		}
		transfer, ok := ix.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil {
			continue
		}
		if transfer.GetRecipientAccount().PublicKey.Equals(want) {
			sum += *transfer.Lamports
		}
	}
	return sum
}

func balanceDelta(tx *solana.Transaction, meta *rpc.TransactionMeta, want solana.PublicKey) uint64 {
	keys := append(solana.PublicKeySlice{}, tx.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)

	for i, k := range keys {
		if !k.Equals(want) {
			continue
		}
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			return 0
		}
		if meta.PostBalances[i] <= meta.PreBalances[i] {
			return 0
		}
		return meta.PostBalances[i] - meta.PreBalances[i]
	}
	return 0
}

func (v *Validator) client(ep string) *rpc.Client {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.clients[ep]
	if !ok {
		c = rpc.New(ep)
		v.clients[ep] = c
	}
	return c
}
