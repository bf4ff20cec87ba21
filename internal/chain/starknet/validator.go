package starknet

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	"chainvend.com/pkg/logger"
)

const feeTokenDecimals = 18

// TokenSTRK is the STRK fee token contract, counted when no token is configured.
const TokenSTRK = "0x04718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d"

var ErrNoTokens = errors.New("starknet validator: no token contract configured")

const (
	FinalityAcceptedOnL2 = "ACCEPTED_ON_L2"
	FinalityAcceptedOnL1 = "ACCEPTED_ON_L1"
	ExecutionSucceeded   = "SUCCEEDED"
)

type notFinalError struct{ status string }

func (e notFinalError) Error() string  { return "transaction not final: " + e.status }
func (e notFinalError) Expected() bool { return true }

type Validator struct {
	pool   *chain.Pool
	tokens map[string]bool // normalized emitter addresses, never empty

	mu      sync.Mutex
	clients map[string]*Client
}

var _ chain.Validator = (*Validator)(nil)

type Option func(*Validator)

// WithTokens restricts counted transfers to events emitted by these token contracts.
func WithTokens(addrs ...string) Option {
	return func(v *Validator) {
		for _, a := range addrs {
			if a != "" {
				v.tokens[NormalizeAddress(a)] = true
			}
		}
	}
}

// NewValidator only counts Transfer events emitted by the configured token contracts, so a
// look-alike token cannot pay for goods.
func NewValidator(pool *chain.Pool, opts ...Option) (*Validator, error) {
	v := &Validator{pool: pool, tokens: map[string]bool{}, clients: map[string]*Client{}}
	for _, o := range opts {
		o(v)
	}
	if len(v.tokens) == 0 {
		return nil, ErrNoTokens
	}
	return v, nil
}

func (v *Validator) Validate(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool {
	if _, err := ParseFelt(txHash); err != nil {
		logger.Warn(ctx, "starknet validate: bad hash", zap.String("tx", txHash))
		return false
	}
	if _, err := ParseFelt(to); err != nil {
		logger.Warn(ctx, "starknet validate: bad address", zap.String("to", to))
		return false
	}

	var total *big.Int
	err := v.pool.Do(ctx, txHash, func(ctx context.Context, ep string) error {
		c, err := v.client(ctx, ep)
		if err != nil {
			return err
		}
		r, err := c.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ErrTxNotFound) {
			return chain.NotFound(txHash)
		}
		if err != nil {
			return err
		}
		if r.FinalityStatus != FinalityAcceptedOnL2 && r.FinalityStatus != FinalityAcceptedOnL1 {
			return notFinalError{status: r.FinalityStatus}
		}
		if r.ExecutionStatus != "" && r.ExecutionStatus != ExecutionSucceeded {
			return notFinalError{status: r.ExecutionStatus}
		}
		total = v.sumTransfers(r.Events, NormalizeAddress(to))
		return nil
	})
	if err != nil {
		logger.Info(ctx, "starknet validate: not confirmed", zap.String("tx", txHash), zap.Error(err))
		return false
	}
	return chain.InBand(chain.FromBaseUnits(total, feeTokenDecimals), min, max)
}

func (v *Validator) sumTransfers(events []Event, want string) *big.Int {
	total := new(big.Int)
	for _, ev := range events {
		if !v.tokens[NormalizeAddress(ev.FromAddress)] {
			continue
		}
		if len(ev.Keys) > 0 && NormalizeAddress(ev.Keys[0]) != NormalizeAddress(TransferSelector) {
			continue
		}
		dest, amount, ok := transferPayload(ev)
		if ok && dest == want {
			total.Add(total, amount)
		}
	}
	return total
}

// transferPayload understands the Cairo 0 layout (data=[from,to,amount] or
// [from,to,low,high]) and the Cairo 1 layout (keys=[selector,from,to], data=[low,high]).
func transferPayload(ev Event) (string, *big.Int, bool) {
	var (
		dest   string
		amount *big.Int
		err    error
	)
	switch {
	case len(ev.Keys) == 3 && len(ev.Data) == 2:
		dest = ev.Keys[2]
		amount, err = U256(ev.Data[0], ev.Data[1])
	case len(ev.Data) == 3:
		dest = ev.Data[1]
		amount, err = ParseFelt(ev.Data[2])
	case len(ev.Data) == 4:
		dest = ev.Data[1]
		amount, err = U256(ev.Data[2], ev.Data[3])
	default:
		return "", nil, false
	}
	if err != nil {
		return "", nil, false
	}
	return NormalizeAddress(dest), amount, true
}

func (v *Validator) client(ctx context.Context, ep string) (*Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.clients[ep]; ok {
		return c, nil
	}
	c, err := Dial(ctx, ep)
	if err != nil {
		return nil, err
	}
	v.clients[ep] = c
	return c, nil
}
