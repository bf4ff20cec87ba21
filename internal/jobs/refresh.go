package jobs

import (
	"context"
	"time"

	"chainvend.com/internal/provider"
)

type rateRefresher interface {
	Refresh(ctx context.Context) error
}

type planReader interface {
	DataPlans(ctx context.Context, network provider.Network) ([]provider.Plan, error)
}

// RefreshRates pulls oracle prices at half their cache lifetime so quotes rarely hit a cold cache.
func RefreshRates(c rateRefresher, ttl time.Duration) Job {
	return Job{
		Name:    "refresh_rates",
		Spec:    Every(ttl / 2),
		Timeout: 30 * time.Second,
		Run:     c.Refresh,
	}
}

// WarmPlans keeps the provider data plan catalog loaded.
func WarmPlans(p planReader, ttl time.Duration) Job {
	mtn, _ := provider.LookupNetwork("mtn")
	return Job{
		Name:    "warm_data_plans",
		Spec:    Every(ttl),
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			_, err := p.DataPlans(ctx, mtn)
			return err
		},
	}
}
