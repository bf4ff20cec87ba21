package pricing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"chainvend.com/internal/chain"
	"chainvend.com/pkg/xhttp"
)

// Rates is the NGN price of one whole coin per chain.
type Rates map[chain.Chain]decimal.Decimal

func (r Rates) clone() Rates {
	out := make(Rates, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Source fetches current rates for the given chains.
type Source interface {
	Fetch(ctx context.Context, chains []chain.Chain) (Rates, error)
}

// coingeckoIDs maps chains onto CoinGecko asset ids.
var coingeckoIDs = map[chain.Chain]string{
	chain.Ethereum: "ethereum",
	chain.USDT:     "tether",
	chain.Bitcoin:  "bitcoin",
	chain.Solana:   "solana",
	chain.Stellar:  "stellar",
	chain.Polkadot: "polkadot",
	chain.Starknet: "starknet",
}

const vsCurrency = "ngn"

type CoinGecko struct {
	baseURL string
	client  *xhttp.Client
}

// NewCoinGecko expects client to carry the x-cg-demo-api-key header when a key is used.
func NewCoinGecko(baseURL string, client *xhttp.Client) *CoinGecko {
	return &CoinGecko{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (g *CoinGecko) Fetch(ctx context.Context, chains []chain.Chain) (Rates, error) {
	ids := make([]string, 0, len(chains))
	for _, c := range chains {
		if id, ok := coingeckoIDs[c]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Rates{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", vsCurrency)

	var resp map[string]map[string]decimal.Decimal
	if err := g.client.Get(ctx, g.baseURL+"/simple/price?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("coingecko simple/price: %w", err)
	}

	out := make(Rates, len(chains))
	for _, c := range chains {
		price, ok := resp[coingeckoIDs[c]][vsCurrency]
		if ok && price.IsPositive() {
			out[c] = price
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("coingecko returned no %s prices", vsCurrency)
	}
	return out, nil
}
