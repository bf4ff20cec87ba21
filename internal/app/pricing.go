package app

import (
	"github.com/redis/go-redis/v9"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/config"
	"chainvend.com/internal/pricing"
	"chainvend.com/pkg/xhttp"
)

func newConverter(cfg config.PricingConfig, rdb *redis.Client) *pricing.Converter {
	static := pricing.Rates{}
	for k, v := range cfg.Static {
		c, err := chain.Parse(k)
		if err != nil || !v.IsPositive() {
			continue
		}
		static[c] = v
	}
	client := xhttp.New(cfg.Timeout, xhttp.WithHeader("x-cg-demo-api-key", cfg.APIKey))
	return pricing.NewConverter(
		pricing.NewCoinGecko(cfg.OracleURL, client),
		pricing.NewRedisRateStore(rdb, cfg.TTL),
		static,
		cfg.TTL,
	)
}
