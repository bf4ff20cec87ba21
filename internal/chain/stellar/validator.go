// Package stellar validates native XLM payments through Horizon.
package stellar

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon/operations"
	"go.uber.org/zap"

	"chainvend.com/internal/chain"
	"chainvend.com/pkg/logger"
)

const opsPageLimit = 200

var errFailedTx = expectedError("transaction not successful")

type expectedError string

func (e expectedError) Error() string  { return string(e) }
func (e expectedError) Expected() bool { return true }

type Validator struct {
	pool *chain.Pool
	http *http.Client
}

var _ chain.Validator = (*Validator)(nil)

func New(pool *chain.Pool, httpClient *http.Client) *Validator {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Validator{pool: pool, http: httpClient}
}

func (v *Validator) Validate(ctx context.Context, txHash, to string, min, max decimal.Decimal) bool {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if len(txHash) != 64 {
		logger.Warn(ctx, "stellar validate: bad hash", zap.String("tx", txHash))
		return false
	}
	if _, err := keypair.ParseAddress(to); err != nil {
		logger.Warn(ctx, "stellar validate: bad address", zap.String("to", to), zap.Error(err))
		return false
	}

	var total decimal.Decimal
	err := v.pool.Do(ctx, txHash, func(ctx context.Context, ep string) error {
		client := &horizonclient.Client{HorizonURL: ep, HTTP: ctxHTTP{ctx: ctx, c: v.http}}
		var err error
		total, err = nativeReceived(client, txHash, to)
		return err
	})
	if err != nil {
		logger.Info(ctx, "stellar validate: not confirmed", zap.String("tx", txHash), zap.Error(err))
		return false
	}
	return chain.InBand(total, min, max)
}

// nativeReceived costs two round trips: the transaction, then its operations.
func nativeReceived(client *horizonclient.Client, txHash, to string) (decimal.Decimal, error) {
	tx, err := client.TransactionDetail(txHash)
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return decimal.Zero, chain.NotFound(txHash)
		}
		return decimal.Zero, err
	}
	if !tx.Successful {
		return decimal.Zero, errFailedTx
	}

	page, err := client.Operations(horizonclient.OperationRequest{ForTransaction: txHash, Limit: opsPageLimit})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return decimal.Zero, chain.NotFound(txHash)
		}
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, rec := range page.Embedded.Records {
		p, ok := rec.(operations.Payment)
		if !ok || p.Asset.Type != "native" || p.To != to {
			continue
		}
		amt, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amt)
	}
	return total, nil
}

// ctxHTTP binds every Horizon request to the attempt's context.
type ctxHTTP struct {
	ctx context.Context
	c   *http.Client
}

func (h ctxHTTP) Do(req *http.Request) (*http.Response, error) {
	return h.c.Do(req.WithContext(h.ctx))
}

func (h ctxHTTP) Get(u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return h.c.Do(req)
}

func (h ctxHTTP) PostForm(u string, data url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodPost, u, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.c.Do(req)
}
