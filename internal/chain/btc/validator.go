// Package btc validates Bitcoin payments against an Esplora-compatible explorer
// (blockstream.info, mempool.space).
package btc

import (
	"context"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/xhttp"
)

// esploraTx is the subset of GET /tx/{txid} we read.
type esploraTx struct {
	TxID string `json:"txid"`
	Vout []struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"`
	} `json:"vout"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

type Validator struct {
	pool   *chain.Pool
	client *xhttp.Client
	params *chaincfg.Params

	requireConfirmed bool
}

var _ chain.Validator = (*Validator)(nil)

type Option func(*Validator)

// AllowUnconfirmed accepts mempool transactions. Only meant for testnet setups.
func AllowUnconfirmed() Option { return func(v *Validator) { v.requireConfirmed = false } }

func WithParams(p *chaincfg.Params) Option { return func(v *Validator) { v.params = p } }

func New(pool *chain.Pool, client *xhttp.Client, opts ...Option) *Validator {
	v := &Validator{
		pool:             pool,
		client:           client,
		params:           &chaincfg.MainNetParams,
		requireConfirmed: true,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *Validator) Validate(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool {
	hash, err := chainhash.NewHashFromStr(txHash)
	if err != nil {
		logger.Warn(ctx, "btc validate: bad txid", zap.String("tx", txHash), zap.Error(err))
		return false
	}
	want, err := btcutil.DecodeAddress(to, v.params)
	if err != nil {
		logger.Warn(ctx, "btc validate: bad address", zap.String("to", to), zap.Error(err))
		return false
	}
	txid := hash.String()

	var tx esploraTx
	err = v.pool.Do(ctx, txid, func(ctx context.Context, ep string) error {
		err := v.client.Get(ctx, strings.TrimRight(ep, "/")+"/tx/"+txid, &tx)
		if xhttp.IsNotFound(err) {
			return chain.NotFound(txid)
		}
		return err
	})
	if err != nil {
		logger.Info(ctx, "btc validate: lookup failed", zap.String("tx", txid), zap.Error(err))
		return false
	}
	if v.requireConfirmed && !tx.Status.Confirmed {
		logger.Info(ctx, "btc validate: unconfirmed", zap.String("tx", txid))
		return false
	}

	// any single output paying the treasury inside the band is enough
	for _, out := range tx.Vout {
		if !sameAddress(out.ScriptPubKeyAddress, want, v.params) {
			continue
		}
		amount := decimal.New(out.Value, -8)
		if chain.InBand(amount, min, max) {
			return true
		}
	}
	return false
}

func sameAddress(s string, want btcutil.Address, params *chaincfg.Params) bool {
	if s == "" {
		return false
	}
	got, err := btcutil.DecodeAddress(s, params)
	if err != nil {
		return false
	}
	return got.EncodeAddress() == want.EncodeAddress()
}
