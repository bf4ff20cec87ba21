package app

import (
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/time/rate"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/chain/btc"
	"chainvend.com/internal/chain/evm"
	"chainvend.com/internal/chain/polkadot"
	"chainvend.com/internal/chain/sol"
	chainstarknet "chainvend.com/internal/chain/starknet"
	"chainvend.com/internal/chain/stellar"
	"chainvend.com/internal/config"
	"chainvend.com/pkg/ratelimit"
	"chainvend.com/pkg/xhttp"
)

// newRegistry binds a validator to every chain that has endpoints configured. Chains left
// out stay unsupported and purchases on them are rejected.
func newRegistry(cfg config.ChainsConfig, breakers *ratelimit.Manager) (*chain.Registry, error) {
	reg := chain.NewRegistry()
	for _, c := range chain.All() {
		cc, ok := cfg.Networks[c.String()]
		if !ok || len(cc.Endpoints) == 0 {
			continue
		}
		pool := chain.NewPool(c, cc.Endpoints, chain.PoolOptions{
			AttemptTimeout: cfg.AttemptTimeout,
			Breakers:       breakers,
			Limiter:        ratelimit.NewStore(rate.Limit(cfg.RatePerSecond), cfg.Burst, 0),
		})
		v, err := newValidator(c, cc, pool, cfg)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", c, err)
		}
		reg.Register(c, v, cc.Treasury)
	}
	return reg, nil
}

func newValidator(c chain.Chain, cc config.ChainConfig, pool *chain.Pool, cfg config.ChainsConfig) (chain.Validator, error) {
	switch c {
	case chain.Ethereum:
		return evm.NewNative(pool), nil
	case chain.USDT:
		decimals := cc.Decimals
		if decimals == 0 {
			decimals = c.Decimals()
		}
		return evm.NewToken(pool, cc.Contract, decimals)
	case chain.Bitcoin:
		return btc.New(pool, xhttp.New(cfg.AttemptTimeout), btc.WithParams(&chaincfg.MainNetParams)), nil
	case chain.Solana:
		return sol.New(pool), nil
	case chain.Stellar:
		return stellar.New(pool, &http.Client{Timeout: cfg.AttemptTimeout}), nil
	case chain.Polkadot:
		return polkadot.New(pool, xhttp.New(cfg.AttemptTimeout, xhttp.WithHeader("X-API-Key", cc.APIKey))), nil
	case chain.Starknet:
		token := cc.Contract
		if token == "" {
			token = chainstarknet.TokenSTRK
		}
		return chainstarknet.NewValidator(pool, chainstarknet.WithTokens(token))
	default:
		return nil, chain.ErrUnsupported
	}
}
