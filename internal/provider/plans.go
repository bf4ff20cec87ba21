package provider

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainvend.com/pkg/logger"
)

type Plan struct {
	NetworkCode string          `json:"networkCode"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
}

// Catalog holds data plans keyed by network code.
type Catalog map[string][]Plan

type plansResponse struct {
	MobileNetwork map[string][]struct {
		ID      string `json:"ID"`
		Product []struct {
			ProductID     json.RawMessage `json:"PRODUCT_ID"`
			ProductName   string          `json:"PRODUCT_NAME"`
			ProductAmount json.RawMessage `json:"PRODUCT_AMOUNT"`
		} `json:"PRODUCT"`
	} `json:"MOBILE_NETWORK"`
}

// DataPlans returns the plans of one network. The catalog is cached for PlanTTL and a
// failed refresh keeps serving the previous catalog.
func (c *Client) DataPlans(ctx context.Context, network Network) ([]Plan, error) {
	catalog, state, err := c.plans.Get(ctx, c.fetchPlans)
	if err != nil {
		if catalog == nil {
			return nil, err
		}
		logger.Warn(ctx, "data plan refresh failed, serving last catalog", zap.Error(err))
	}
	logger.Debug(ctx, "data plans", zap.String("network", network.Name), zap.String("source", state.String()))
	return catalog[network.Code], nil
}

// FindPlan looks a plan up by id within a network.
func (c *Client) FindPlan(ctx context.Context, network Network, planID string) (Plan, bool, error) {
	plans, err := c.DataPlans(ctx, network)
	if err != nil {
		return Plan{}, false, err
	}
	for _, p := range plans {
		if strings.EqualFold(p.ID, planID) {
			return p, true, nil
		}
	}
	return Plan{}, false, nil
}

func (c *Client) fetchPlans(ctx context.Context) (Catalog, error) {
	if c.opts.BaseURL == "" || c.opts.UserID == "" {
		return nil, ErrNotConfigured
	}
	q := url.Values{}
	q.Set("UserID", c.opts.UserID)
	body, _, err := c.http.Raw(ctx, http.MethodGet, c.opts.BaseURL+"/"+EndpointDataPlans+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var resp plansResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	catalog := Catalog{}
	for _, groups := range resp.MobileNetwork {
		for _, g := range groups {
			for _, p := range g.Product {
				amount, err := decimal.NewFromString(scalar(p.ProductAmount))
				if err != nil {
					continue
				}
				catalog[g.ID] = append(catalog[g.ID], Plan{
					NetworkCode: g.ID,
					ID:          scalar(p.ProductID),
					Name:        strings.TrimSpace(p.ProductName),
					Amount:      amount,
				})
			}
		}
	}
	for code := range catalog {
		plans := catalog[code]
		sort.SliceStable(plans, func(i, j int) bool { return plans[i].Amount.LessThan(plans[j].Amount) })
	}
	return catalog, nil
}
