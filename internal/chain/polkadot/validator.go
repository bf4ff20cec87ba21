// Package polkadot validates DOT transfers through a Subscan-compatible indexer and
// carries the SS58 address codec.
package polkadot

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/xhttp"
)

const (
	planckDecimals = 10

	// subscan answers 200 with this code for unknown hashes
	codeRecordNotFound = 10004
)

type extrinsicResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Success bool    `json:"success"`
		Events  []event `json:"event"`
	} `json:"data"`
}

type event struct {
	ModuleID string `json:"module_id"`
	EventID  string `json:"event_id"`
	// a JSON array, or a string holding one on older indexer versions
	Params json.RawMessage `json:"params"`
}

type param struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type failedError struct{}

func (failedError) Error() string  { return "extrinsic failed" }
func (failedError) Expected() bool { return true }

type Validator struct {
	pool   *chain.Pool
	client *xhttp.Client
}

var _ chain.Validator = (*Validator)(nil)

// New expects client to carry the X-API-Key header when the indexer needs one.
func New(pool *chain.Pool, client *xhttp.Client) *Validator {
	return &Validator{pool: pool, client: client}
}

func (v *Validator) Validate(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool {
	want, err := PublicKey(to)
	if err != nil {
		logger.Warn(ctx, "polkadot validate: bad address", zap.String("to", to), zap.Error(err))
		return false
	}
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if !strings.HasPrefix(txHash, "0x") {
		txHash = "0x" + txHash
	}

	var planck *big.Int
	err = v.pool.Do(ctx, txHash, func(ctx context.Context, ep string) error {
		var resp extrinsicResponse
		url := strings.TrimRight(ep, "/") + "/api/scan/extrinsic"
		if err := v.client.Post(ctx, url, map[string]string{"hash": txHash}, &resp); err != nil {
			if xhttp.IsNotFound(err) {
				return chain.NotFound(txHash)
			}
			return err
		}
		if resp.Code == codeRecordNotFound || (resp.Code == 0 && resp.Data == nil) {
			return chain.NotFound(txHash)
		}
		if resp.Code != 0 {
			return fmt.Errorf("subscan code %d: %s", resp.Code, resp.Message)
		}
		if !resp.Data.Success {
			return failedError{}
		}
		planck = sumTransfers(resp.Data.Events, want)
		return nil
	})
	if err != nil {
		logger.Info(ctx, "polkadot validate: not confirmed", zap.String("tx", txHash), zap.Error(err))
		return false
	}
	return chain.InBand(chain.FromBaseUnits(planck, planckDecimals), min, max)
}

func sumTransfers(events []event, want []byte) *big.Int {
	total := new(big.Int)
	for _, ev := range events {
		if !strings.EqualFold(ev.ModuleID, "balances") || !strings.EqualFold(ev.EventID, "Transfer") {
			continue
		}
		params, err := decodeParams(ev.Params)
		if err != nil {
			continue
		}
		var (
			dest   []byte
			amount *big.Int
		)
		for _, p := range params {
			switch strings.ToLower(p.Name) {
			case "to", "dest":
				dest, _ = PublicKey(unquote(p.Value))
			case "amount", "value":
				amount, _ = new(big.Int).SetString(unquote(p.Value), 10)
			}
		}
		if amount != nil && bytes.Equal(dest, want) {
			total.Add(total, amount)
		}
	}
	return total
}

func decodeParams(raw json.RawMessage) ([]param, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		raw = []byte(s)
	}
	var params []param
	err := json.Unmarshal(raw, &params)
	return params, err
}

// unquote accepts both "123" and 123.
func unquote(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(v))
}
