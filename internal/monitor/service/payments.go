// Package service creates merchant deposit requests and confirms them on-chain in the
// background.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	custody "chainvend.com/internal/custody/domain"
	"chainvend.com/internal/monitor/domain"
	"chainvend.com/internal/monitor/repo"
	"chainvend.com/internal/pricing"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/xerr"
)

// AddressBook resolves the merchant's custodial deposit address.
type AddressBook interface {
	Find(ctx context.Context, userID string, c chain.Chain, network custody.Network) (*custody.WalletAddress, error)
}

type Rates interface {
	Quote(ctx context.Context, fiat decimal.Decimal, ch chain.Chain, tolerancePercent decimal.Decimal) (pricing.Quote, error)
}

type Payments struct {
	store     *repo.Repo
	wallets   AddressBook
	rates     Rates
	scheduler *Scheduler
	validate  *validator.Validate
	tolerance decimal.Decimal
	ttl       time.Duration
}

func NewPayments(store *repo.Repo, wallets AddressBook, rates Rates, scheduler *Scheduler, tolerance decimal.Decimal, ttl time.Duration) *Payments {
	return &Payments{
		store:     store,
		wallets:   wallets,
		rates:     rates,
		scheduler: scheduler,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		tolerance: tolerance,
		ttl:       ttl,
	}
}

func invalid(msg string) error { return xerr.New(xerr.InputValidation, msg) }

// Create opens a pending deposit on the merchant's own address. The expected amount is
// either given in coins or priced from fiatAmount.
func (s *Payments) Create(ctx context.Context, req *domain.CreateRequest) (*domain.MerchantPayment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalid("invalid merchant payment: " + err.Error())
	}
	ch, err := chain.Parse(req.Chain)
	if err != nil {
		return nil, invalid(err.Error())
	}
	network, ok := custody.ParseNetwork(req.Network)
	if !ok {
		return nil, invalid("network must be mainnet or testnet")
	}

	wallet, err := s.wallets.Find(ctx, req.MerchantID, ch, network)
	if xerr.IsCode(err, xerr.RecordNotFound) {
		return nil, invalid("no " + ch.String() + " wallet provisioned for merchant")
	}
	if err != nil {
		return nil, err
	}

	amount, fiat := req.Amount, req.FiatAmount
	switch {
	case amount.IsPositive():
	case fiat.IsPositive():
		q, err := s.rates.Quote(ctx, fiat, ch, s.tolerance)
		if err != nil {
			return nil, xerr.Wrap(err, xerr.Configuration, "exchange rate unavailable for "+ch.String())
		}
		amount = q.CryptoAmount
	default:
		return nil, invalid("amount or fiatAmount must be positive")
	}

	p := &domain.MerchantPayment{
		ID:               uuid.NewString(),
		MerchantID:       req.MerchantID,
		Chain:            ch,
		Network:          string(network),
		DepositAddress:   wallet.Address,
		ExpectedAmount:   amount.Round(ch.Decimals()),
		FiatAmount:       fiat,
		TolerancePercent: s.tolerance,
		Status:           domain.StatusPending,
		ExpiresAt:        time.Now().Add(s.ttl),
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.scheduler.Watch(p)
	logger.Info(ctx, "merchant payment opened",
		zap.String("payment_id", p.ID), zap.String("chain", ch.String()), zap.String("amount", p.ExpectedAmount.String()))
	return p, nil
}

// SubmitTx attaches the payer's transaction hash; the next tick validates it.
func (s *Payments) SubmitTx(ctx context.Context, merchantID, id string, req *domain.SubmitTxRequest) (*domain.MerchantPayment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalid("transactionHash is invalid")
	}
	p, err := s.Get(ctx, merchantID, id)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, invalid("payment is " + string(p.Status))
	}

	hash := p.Chain.NormalizeHash(strings.TrimSpace(req.TransactionHash))
	ok, err := s.store.SetTxHash(ctx, id, hash)
	if errors.Is(err, repo.ErrHashInUse) {
		return nil, xerr.New(xerr.DuplicateTransaction, "Transaction already used for another payment")
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid("payment is no longer pending")
	}

	p, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.scheduler.Watch(p)
	return p, nil
}

// Get returns one of merchantID's payments. Someone else's payment reads as not found.
func (s *Payments) Get(ctx context.Context, merchantID, id string) (*domain.MerchantPayment, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.MerchantID != merchantID {
		return nil, xerr.New(xerr.RecordNotFound, "payment not found")
	}
	return p, nil
}
