// Package service runs the purchase state machine: input checks, duplicate guard, pricing,
// on-chain validation, the ledger claim, provider fulfillment and refund compensation.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/config"
	"chainvend.com/internal/pricing"
	"chainvend.com/internal/provider"
	"chainvend.com/internal/purchase/domain"
	"chainvend.com/internal/purchase/repo"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
	"chainvend.com/pkg/trace"
	"chainvend.com/pkg/xerr"
)

// Store is the persistence the engine needs; *repo.Repo implements it.
type Store interface {
	spentChecker
	metadataWriter
	Create(ctx context.Context, rec domain.Record) error
	Get(ctx context.Context, product domain.Product, id string) (domain.Record, error)
	ListByUser(ctx context.Context, product domain.Product, userID string, page, limit int) ([]domain.Record, error)
	MarkFailed(ctx context.Context, product domain.Product, id string, meta domain.Metadata) error
	MarkCompleted(ctx context.Context, product domain.Product, id, providerRef string, meta domain.Metadata, extra map[string]interface{}) error
	Claim(ctx context.Context, e *domain.SpentTransaction) error
	Promote(ctx context.Context, txHash, purchaseID string) error
	Release(ctx context.Context, txHash, purchaseID string) error
	LedgerEntry(ctx context.Context, txHash string) (*domain.SpentTransaction, error)
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Chains resolves treasuries and validates payments; *chain.Registry implements it.
type Chains interface {
	Treasury(c chain.Chain) (string, bool)
	Validate(ctx context.Context, c chain.Chain, txHash, to string, min, max decimal.Decimal) (bool, error)
}

type Rates interface {
	Quote(ctx context.Context, fiat decimal.Decimal, ch chain.Chain, tolerancePercent decimal.Decimal) (pricing.Quote, error)
}

// Fulfiller delivers the goods; *provider.Client implements it.
type Fulfiller interface {
	BuyAirtime(ctx context.Context, o provider.AirtimeOrder) (*provider.Response, error)
	BuyData(ctx context.Context, o provider.DataOrder) (*provider.Response, error)
	BuyElectricity(ctx context.Context, o provider.ElectricityOrder) (*provider.Response, error)
	VerifyMeter(ctx context.Context, company provider.Company, meterNo string, meterType provider.MeterType) (*provider.Customer, error)
	FindPlan(ctx context.Context, network provider.Network, planID string) (provider.Plan, bool, error)
}

type Engine struct {
	store       Store
	chains      Chains
	rates       Rates
	provider    Fulfiller
	guard       *Guard
	compensator *Compensator
	opts        config.PurchaseConfig
	validate    *validator.Validate
	now         func() time.Time
}

func NewEngine(store Store, chains Chains, rates Rates, fulfiller Fulfiller, opts config.PurchaseConfig) *Engine {
	if opts.TolerancePercent.IsZero() {
		opts.TolerancePercent = decimal.NewFromInt(1)
	}
	return &Engine{
		store:       store,
		chains:      chains,
		rates:       rates,
		provider:    fulfiller,
		guard:       NewGuard(store),
		compensator: NewCompensator(store),
		opts:        opts,
		validate:    newValidator(),
		now:         time.Now,
	}
}

func (e *Engine) TolerancePercent() decimal.Decimal { return e.opts.TolerancePercent }

// order is one purchase on its way through run.
type order struct {
	product domain.Product
	record  domain.Record
	chain   chain.Chain
	fiat    decimal.Decimal

	// prepare runs after the duplicate guard and before pricing
	prepare func(ctx context.Context) error
	// fulfil asks the provider for the goods; requestID is the purchase id
	fulfil func(ctx context.Context, requestID string) (*provider.Response, error)
	// completed returns product columns to store with the COMPLETED transition
	completed func(resp *provider.Response) map[string]interface{}
}

func (e *Engine) newPurchase(p domain.Payment, ch chain.Chain) domain.Purchase {
	return domain.Purchase{
		UserID:          p.UserID,
		FiatAmount:      p.Amount,
		CryptoCurrency:  ch.Symbol(),
		Blockchain:      ch,
		TransactionHash: ch.NormalizeHash(p.TransactionHash),
		Status:          domain.StatusPending,
	}
}

func (e *Engine) run(ctx context.Context, o *order) (*domain.Result, error) {
	p := o.record.Base()
	ctx, span := trace.Tracer("purchase").Start(ctx, "purchase."+string(o.product))
	defer span.End()
	span.SetAttributes(
		attribute.String("product", string(o.product)),
		attribute.String("chain", o.chain.String()),
		attribute.String("tx_hash", p.TransactionHash),
		attribute.String("fiat", o.fiat.String()),
	)

	res, err := e.process(ctx, o)
	outcome := "completed"
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, xerr.MessageOf(err))
		outcome = outcomeOf(err)
	}
	metrics.PurchaseTotal.WithLabelValues(string(o.product), o.chain.String(), outcome).Inc()
	return res, err
}

func (e *Engine) process(ctx context.Context, o *order) (*domain.Result, error) {
	p := o.record.Base()

	if err := e.guard.Check(ctx, p.TransactionHash); err != nil {
		return nil, err
	}
	if o.prepare != nil {
		if err := o.prepare(ctx); err != nil {
			return nil, err
		}
	}

	treasury, ok := e.chains.Treasury(o.chain)
	if !ok {
		return nil, domain.ConfigurationError(nil, "treasury address not configured for "+o.chain.String())
	}
	quote, err := e.rates.Quote(ctx, o.fiat, o.chain, e.opts.TolerancePercent)
	if err != nil {
		return nil, domain.ConfigurationError(err, "exchange rate unavailable for "+o.chain.String())
	}

	p.ID = uuid.NewString()
	p.CryptoAmount = quote.CryptoAmount
	p.Status = domain.StatusProcessing
	if err := e.store.Create(ctx, o.record); err != nil {
		return nil, err
	}
	logger.Info(ctx, "purchase processing",
		zap.String("purchase_id", p.ID),
		zap.String("product", string(o.product)),
		zap.String("chain", o.chain.String()),
		zap.String("expected", quote.CryptoAmount.String()),
		zap.String("rate_source", quote.Source),
	)

	valid, err := e.chains.Validate(ctx, o.chain, p.TransactionHash, treasury, quote.Band.Min, quote.Band.Max)
	if err != nil {
		// no validator wired for a chain we accepted: leave the row where it is
		return e.result(o, nil), domain.ConfigurationError(err, "no validator for "+o.chain.String())
	}
	if !valid {
		e.fail(ctx, o, domain.MsgValidationFailed, nil)
		return e.result(o, nil), domain.BlockchainValidationError()
	}
	validatedAt := e.now().UTC()
	p.Metadata.Security.ValidatedAt = &validatedAt

	err = e.store.Claim(ctx, &domain.SpentTransaction{
		TxHash:     p.TransactionHash,
		Chain:      o.chain,
		Product:    o.product,
		PurchaseID: p.ID,
	})
	if errors.Is(err, repo.ErrAlreadyClaimed) {
		consumer := e.claimant(ctx, p.TransactionHash)
		e.fail(ctx, o, domain.MsgAlreadyUsed, nil)
		return e.result(o, nil), domain.DuplicateTransactionError(consumer)
	}
	if err != nil {
		return e.result(o, nil), err
	}
	claimedAt := e.now().UTC()
	p.Metadata.Security.ClaimedAt = &claimedAt

	resp, err := o.fulfil(ctx, p.ID)
	if err != nil {
		if rerr := e.store.Release(ctx, p.TransactionHash, p.ID); rerr != nil {
			logger.Error(ctx, "release claim failed", zap.String("purchase_id", p.ID), zap.Error(rerr))
		}
		reason := providerReason(err)
		e.fail(ctx, o, reason, providerResponseOf(err, resp))
		e.compensator.Record(ctx, o.product, p, reason)
		return e.result(o, nil), domain.ProviderFulfillmentError(err, reason)
	}

	completedAt := e.now().UTC()
	p.Metadata.Security.CompletedAt = &completedAt
	p.Metadata.ProviderResponse = responseFields(resp)
	p.ProviderReference = resp.OrderID
	var extra map[string]interface{}
	if o.completed != nil {
		extra = o.completed(resp)
	}

	err = e.store.Transaction(ctx, func(txCtx context.Context) error {
		if err := e.store.Promote(txCtx, p.TransactionHash, p.ID); err != nil {
			return err
		}
		return e.store.MarkCompleted(txCtx, o.product, p.ID, p.ProviderReference, p.Metadata, extra)
	})
	if err != nil {
		// goods are out; the claim stays so the hash cannot fund anything else
		logger.Error(ctx, "purchase delivered but completion not recorded",
			zap.String("purchase_id", p.ID),
			zap.String("provider_reference", p.ProviderReference),
			zap.Error(err),
		)
		return e.result(o, resp), err
	}
	p.Status = domain.StatusCompleted

	logger.Info(ctx, "purchase completed",
		zap.String("purchase_id", p.ID),
		zap.String("product", string(o.product)),
		zap.String("provider_reference", p.ProviderReference),
	)
	return e.result(o, resp), nil
}

// fail moves the row to FAILED with reason. A row that already left PROCESSING is left
// alone.
func (e *Engine) fail(ctx context.Context, o *order, reason string, resp *provider.Response) {
	p := o.record.Base()
	p.Metadata.Error = reason
	if resp != nil {
		p.Metadata.ProviderResponse = responseFields(resp)
	}
	if err := e.store.MarkFailed(ctx, o.product, p.ID, p.Metadata); err != nil {
		logger.Error(ctx, "mark purchase failed", zap.String("purchase_id", p.ID), zap.Error(err))
		return
	}
	p.Status = domain.StatusFailed
	logger.Warn(ctx, "purchase failed",
		zap.String("purchase_id", p.ID),
		zap.String("product", string(o.product)),
		zap.String("reason", reason),
	)
}

// claimant names the product holding the ledger row for txHash, if it can be read.
func (e *Engine) claimant(ctx context.Context, txHash string) domain.Product {
	entry, err := e.store.LedgerEntry(ctx, txHash)
	if err != nil || entry == nil {
		return ""
	}
	return entry.Product
}

func (e *Engine) result(o *order, resp *provider.Response) *domain.Result {
	p := o.record.Base()
	res := &domain.Result{
		PurchaseID:        p.ID,
		Product:           o.product,
		Status:            p.Status,
		CryptoAmount:      p.CryptoAmount,
		CryptoCurrency:    p.CryptoCurrency,
		ProviderReference: p.ProviderReference,
	}
	if resp != nil {
		res.MeterToken = resp.MeterToken
		res.DeliveredAt = p.Metadata.Security.CompletedAt
	}
	return res
}

func providerReason(err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return pe.Reason()
	}
	return err.Error()
}

func providerResponseOf(err error, resp *provider.Response) *provider.Response {
	var pe *provider.Error
	if errors.As(err, &pe) && pe.Response != nil {
		return pe.Response
	}
	return resp
}

func responseFields(r *provider.Response) map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("orderid", r.OrderID)
	set("statuscode", r.StatusCode)
	set("status", r.Status)
	set("remark", r.Remark)
	set("metertoken", r.MeterToken)
	set("customer_name", r.CustomerName)
	set("category", string(provider.Classify(r)))
	return out
}

func outcomeOf(err error) string {
	switch xerr.CodeOf(err) {
	case xerr.InputValidation:
		return "invalid"
	case xerr.DuplicateTransaction:
		return "duplicate"
	case xerr.BlockchainValidation:
		return "validation_failed"
	case xerr.ProviderFulfillment:
		return "provider_failed"
	case xerr.Configuration:
		return "misconfigured"
	default:
		return "error"
	}
}

// Expected is what a payer needs to know before sending funds.
type Expected struct {
	CryptoAmount     decimal.Decimal `json:"cryptoAmount"`
	CryptoCurrency   string          `json:"cryptoCurrency"`
	TolerancePercent decimal.Decimal `json:"tolerancePercent"`
	MinAmount        decimal.Decimal `json:"minAmount"`
	MaxAmount        decimal.Decimal `json:"maxAmount"`
	Treasury         string          `json:"treasuryAddress"`
	RateSource       string          `json:"rateSource"`
	Instructions     string          `json:"instructions"`
}

// ExpectedAmount quotes fiat NGN in the chain's coin.
func (e *Engine) ExpectedAmount(ctx context.Context, fiat decimal.Decimal, chainName string) (*Expected, error) {
	if !fiat.IsPositive() {
		return nil, domain.InputValidationError("amount must be positive")
	}
	ch, err := chain.Parse(chainName)
	if err != nil {
		return nil, domain.InputValidationError(err.Error())
	}
	treasury, ok := e.chains.Treasury(ch)
	if !ok {
		return nil, domain.ConfigurationError(nil, "treasury address not configured for "+ch.String())
	}
	q, err := e.rates.Quote(ctx, fiat, ch, e.opts.TolerancePercent)
	if err != nil {
		return nil, domain.ConfigurationError(err, "exchange rate unavailable for "+ch.String())
	}
	amount := q.CryptoAmount.Round(ch.Decimals())
	return &Expected{
		CryptoAmount:     amount,
		CryptoCurrency:   q.Symbol,
		TolerancePercent: e.opts.TolerancePercent,
		MinAmount:        q.Band.Min,
		MaxAmount:        q.Band.Max,
		Treasury:         treasury,
		RateSource:       q.Source,
		Instructions: fmt.Sprintf("Send %s %s to %s. Amounts within %s%% of this are accepted.",
			amount.String(), q.Symbol, treasury, e.opts.TolerancePercent.String()),
	}, nil
}

// Get returns one of userID's purchases. Someone else's purchase reads as not found.
func (e *Engine) Get(ctx context.Context, userID string, product domain.Product, id string) (domain.Record, error) {
	rec, err := e.store.Get(ctx, product, id)
	if err != nil {
		return nil, err
	}
	if rec.Base().UserID != userID {
		return nil, xerr.New(xerr.RecordNotFound, "purchase not found")
	}
	return rec, nil
}

func (e *Engine) List(ctx context.Context, userID string, product domain.Product, page, limit int) ([]domain.Record, error) {
	return e.store.ListByUser(ctx, product, userID, page, limit)
}
