package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/provider"
	"chainvend.com/internal/purchase/domain"
	"chainvend.com/pkg/logger"
)

func parseChain(name string) (chain.Chain, error) {
	ch, err := chain.Parse(name)
	if err != nil {
		return "", domain.InputValidationError("unsupported chain " + name)
	}
	return ch, nil
}

func (e *Engine) BuyAirtime(ctx context.Context, req domain.AirtimeRequest) (*domain.Result, error) {
	normalizePayment(&req.Payment)
	req.MobileNetwork = strings.ToLower(strings.TrimSpace(req.MobileNetwork))
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if err := e.check(&req); err != nil {
		return nil, err
	}
	ch, err := parseChain(req.Chain)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(req.Amount, e.opts.Airtime.Min, e.opts.Airtime.Max); err != nil {
		return nil, err
	}
	network, _ := provider.LookupNetwork(req.MobileNetwork)

	rec := &domain.AirtimePurchase{
		Purchase:      e.newPurchase(req.Payment, ch),
		PhoneNumber:   req.PhoneNumber,
		MobileNetwork: network.Name,
	}
	return e.run(ctx, &order{
		product: domain.Airtime,
		record:  rec,
		chain:   ch,
		fiat:    req.Amount,
		fulfil: func(ctx context.Context, requestID string) (*provider.Response, error) {
			return e.provider.BuyAirtime(ctx, provider.AirtimeOrder{
				Network:   network,
				Amount:    req.Amount,
				Phone:     req.PhoneNumber,
				RequestID: requestID,
			})
		},
	})
}

// BuyData checks the plan against the provider catalog when the catalog can be read. An
// unreadable catalog does not block the sale; the provider has the final word on the plan.
func (e *Engine) BuyData(ctx context.Context, req domain.DataRequest) (*domain.Result, error) {
	normalizePayment(&req.Payment)
	req.MobileNetwork = strings.ToLower(strings.TrimSpace(req.MobileNetwork))
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.DataPlan = strings.TrimSpace(req.DataPlan)
	if err := e.check(&req); err != nil {
		return nil, err
	}
	ch, err := parseChain(req.Chain)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(req.Amount, e.opts.Data.Min, e.opts.Data.Max); err != nil {
		return nil, err
	}
	network, _ := provider.LookupNetwork(req.MobileNetwork)

	plan, found, err := e.provider.FindPlan(ctx, network, req.DataPlan)
	switch {
	case err != nil:
		logger.Warn(ctx, "data plan catalog unavailable, skipping plan check",
			zap.String("network", network.Name), zap.Error(err))
	case !found:
		return nil, domain.InputValidationError("unknown data plan " + req.DataPlan + " for " + network.Name)
	case !plan.Amount.Equal(req.Amount):
		logger.Warn(ctx, "data plan price differs from request amount",
			zap.String("plan", plan.ID),
			zap.String("plan_amount", plan.Amount.String()),
			zap.String("amount", req.Amount.String()),
		)
	}

	rec := &domain.DataPurchase{
		Purchase:      e.newPurchase(req.Payment, ch),
		PhoneNumber:   req.PhoneNumber,
		MobileNetwork: network.Name,
		DataPlan:      req.DataPlan,
	}
	return e.run(ctx, &order{
		product: domain.Data,
		record:  rec,
		chain:   ch,
		fiat:    req.Amount,
		fulfil: func(ctx context.Context, requestID string) (*provider.Response, error) {
			return e.provider.BuyData(ctx, provider.DataOrder{
				Network:   network,
				PlanID:    req.DataPlan,
				Phone:     req.PhoneNumber,
				RequestID: requestID,
			})
		},
	})
}

// BuyElectricity applies the tighter of the company and configured limits and verifies the
// meter before pricing.
func (e *Engine) BuyElectricity(ctx context.Context, req domain.ElectricityRequest) (*domain.Result, error) {
	normalizePayment(&req.Payment)
	req.MeterType = strings.ToLower(strings.TrimSpace(req.MeterType))
	req.MeterNumber = strings.TrimSpace(req.MeterNumber)
	req.Company = strings.ToLower(strings.TrimSpace(req.Company))
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if err := e.check(&req); err != nil {
		return nil, err
	}
	ch, err := parseChain(req.Chain)
	if err != nil {
		return nil, err
	}
	company, ok := provider.LookupCompany(req.Company)
	if !ok {
		return nil, domain.InputValidationError("unknown electricity company " + req.Company)
	}
	meterType, err := provider.ParseMeterType(req.MeterType)
	if err != nil {
		return nil, domain.InputValidationError(err.Error())
	}
	min, max := company.Min, company.Max
	if e.opts.Electricity.Min.GreaterThan(min) {
		min = e.opts.Electricity.Min
	}
	if e.opts.Electricity.Max.IsPositive() && e.opts.Electricity.Max.LessThan(max) {
		max = e.opts.Electricity.Max
	}
	if err := checkBounds(req.Amount, min, max); err != nil {
		return nil, err
	}

	rec := &domain.ElectricityPurchase{
		Purchase:    e.newPurchase(req.Payment, ch),
		MeterNumber: req.MeterNumber,
		MeterType:   string(meterType),
		Company:     company.Key,
	}
	return e.run(ctx, &order{
		product: domain.Electricity,
		record:  rec,
		chain:   ch,
		fiat:    req.Amount,
		prepare: func(ctx context.Context) error {
			customer, err := e.provider.VerifyMeter(ctx, company, req.MeterNumber, meterType)
			if err != nil {
				if provider.CategoryOf(err) == provider.InvalidRecipient {
					return domain.InputValidationError("meter number " + req.MeterNumber + " could not be verified")
				}
				return domain.ProviderFulfillmentError(err, "meter verification unavailable")
			}
			rec.CustomerName = customer.Name
			return nil
		},
		fulfil: func(ctx context.Context, requestID string) (*provider.Response, error) {
			return e.provider.BuyElectricity(ctx, provider.ElectricityOrder{
				Company:     company,
				MeterType:   meterType,
				MeterNumber: req.MeterNumber,
				Amount:      req.Amount,
				Phone:       req.PhoneNumber,
				RequestID:   requestID,
			})
		},
		completed: func(resp *provider.Response) map[string]interface{} {
			return map[string]interface{}{"meter_token": resp.MeterToken}
		},
	})
}
