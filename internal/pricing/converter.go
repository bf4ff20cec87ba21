// Package pricing converts NGN amounts into coin amounts and builds the tolerance band a
// payment must fall in.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	"chainvend.com/pkg/cache"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
)

// cryptoScale is the precision quotes are computed with, enough for any supported chain.
const cryptoScale = 18

var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Where a rate came from.
const (
	SourceOracle = "oracle"
	SourceCache  = "cache"
	SourceStale  = "stale"
	SourceStore  = "store"
	SourceStatic = "static"
)

type Quote struct {
	Chain        chain.Chain
	Symbol       string
	FiatAmount   decimal.Decimal
	CryptoAmount decimal.Decimal
	Rate         decimal.Decimal
	Source       string
	Band         Band
}

type Converter struct {
	source Source
	store  RateStore // optional
	static Rates
	chains []chain.Chain
	cell   *cache.Cell[Rates]
}

func NewConverter(source Source, store RateStore, static Rates, ttl time.Duration) *Converter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if static == nil {
		static = Rates{}
	}
	return &Converter{
		source: source,
		store:  store,
		static: static.clone(),
		chains: chain.All(),
		cell:   cache.NewCell[Rates](ttl),
	}
}

// Rate returns the NGN price of one coin and where it came from.
//
// The order is: fresh cache, oracle, last good in-process value, last good shared value,
// static table. Only when all of them miss is ErrRateUnavailable returned.
func (c *Converter) Rate(ctx context.Context, ch chain.Chain) (decimal.Decimal, string, error) {
	rates, st, err := c.cell.Get(ctx, c.fetch)
	if err != nil {
		logger.Warn(ctx, "rate refresh failed", zap.String("chain", ch.String()), zap.Error(err))
	}

	rate, source := decimal.Zero, ""
	if r, ok := rates[ch]; ok && r.IsPositive() {
		rate = r
		switch st {
		case cache.Fresh:
			source = SourceCache
		case cache.Loaded:
			source = SourceOracle
		default:
			source = SourceStale
		}
	} else if r, ok := c.fromStore(ctx, ch); ok {
		rate, source = r, SourceStore
	} else if r, ok := c.static[ch]; ok && r.IsPositive() {
		rate, source = r, SourceStatic
	}

	if source == "" {
		return decimal.Zero, "", fmt.Errorf("%w: %s", ErrRateUnavailable, ch)
	}
	metrics.PriceSourceTotal.WithLabelValues(ch.String(), source).Inc()
	return rate, source, nil
}

// FiatToCrypto converts NGN into coins of ch.
func (c *Converter) FiatToCrypto(ctx context.Context, fiat decimal.Decimal, ch chain.Chain) (decimal.Decimal, error) {
	rate, _, err := c.Rate(ctx, ch)
	if err != nil {
		return decimal.Zero, err
	}
	return fiat.DivRound(rate, cryptoScale), nil
}

// CryptoToFiat prices amount coins of ch in NGN.
func (c *Converter) CryptoToFiat(ctx context.Context, amount decimal.Decimal, ch chain.Chain) (decimal.Decimal, error) {
	rate, _, err := c.Rate(ctx, ch)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// Quote prices fiat in coins of ch and derives the acceptance band.
func (c *Converter) Quote(ctx context.Context, fiat decimal.Decimal, ch chain.Chain, tolerancePercent decimal.Decimal) (Quote, error) {
	rate, source, err := c.Rate(ctx, ch)
	if err != nil {
		return Quote{}, err
	}
	amount := fiat.DivRound(rate, cryptoScale)
	return Quote{
		Chain:        ch,
		Symbol:       ch.Symbol(),
		FiatAmount:   fiat,
		CryptoAmount: amount,
		Rate:         rate,
		Source:       source,
		Band:         NewBand(amount, tolerancePercent),
	}, nil
}

// Refresh forces an oracle fetch. The rate warmer calls it ahead of expiry.
func (c *Converter) Refresh(ctx context.Context) error {
	_, err := c.cell.Refresh(ctx, c.fetch)
	return err
}

func (c *Converter) fetch(ctx context.Context) (Rates, error) {
	if c.source == nil {
		return nil, ErrRateUnavailable
	}
	rates, err := c.source.Fetch(ctx, c.chains)
	if err != nil {
		return nil, err
	}
	if c.store != nil {
		if err := c.store.Save(ctx, rates, time.Now()); err != nil {
			logger.Warn(ctx, "save rates snapshot failed", zap.Error(err))
		}
	}
	return rates, nil
}

func (c *Converter) fromStore(ctx context.Context, ch chain.Chain) (decimal.Decimal, bool) {
	if c.store == nil {
		return decimal.Zero, false
	}
	rates, fetchedAt, ok, err := c.store.Load(ctx)
	if err != nil {
		logger.Warn(ctx, "load rates snapshot failed", zap.Error(err))
		return decimal.Zero, false
	}
	r, found := rates[ch]
	if !ok || !found || !r.IsPositive() {
		return decimal.Zero, false
	}
	logger.Info(ctx, "serving rate from shared snapshot",
		zap.String("chain", ch.String()), zap.Time("fetched_at", fetchedAt))
	return r, true
}
