package chain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
	"chainvend.com/pkg/ratelimit"
)

const DefaultAttemptTimeout = 12 * time.Second

// Pool tries a ranked endpoint list one by one. Public nodes are rate limited, so endpoints
// are never raced in parallel: each gets one attempt under its own timeout, its own token
// bucket and its own circuit breaker.
type Pool struct {
	chain     Chain
	endpoints []string
	timeout   time.Duration
	breakers  *ratelimit.Manager
	limiter   *ratelimit.Store
}

type PoolOptions struct {
	AttemptTimeout time.Duration
	Breakers       *ratelimit.Manager // optional
	Limiter        *ratelimit.Store   // optional
}

func NewPool(c Chain, endpoints []string, opts PoolOptions) *Pool {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	eps := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e != "" {
			eps = append(eps, e)
		}
	}
	return &Pool{
		chain:     c,
		endpoints: eps,
		timeout:   opts.AttemptTimeout,
		breakers:  opts.Breakers,
		limiter:   opts.Limiter,
	}
}

func (p *Pool) Chain() Chain { return p.chain }

func (p *Pool) Endpoints() []string { return p.endpoints }

// Do runs fn against the endpoints in order until one succeeds.
//
// A NotFoundError does not stop the walk because a lagging node may miss a fresh
// transaction another node already has; when every endpoint answered "not found" the
// result is a NotFoundError, otherwise the last transport error.
func (p *Pool) Do(ctx context.Context, txHash string, fn func(ctx context.Context, endpoint string) error) error {
	if len(p.endpoints) == 0 {
		return ErrNoEndpoints
	}

	var lastErr error
	notFound := 0
	for _, ep := range p.endpoints {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := p.attempt(ctx, ep, fn)
		host := hostOf(ep)
		switch {
		case err == nil:
			metrics.ChainRPCAttemptTotal.WithLabelValues(p.chain.String(), host, "ok").Inc()
			return nil
		case IsNotFound(err):
			metrics.ChainRPCAttemptTotal.WithLabelValues(p.chain.String(), host, "not_found").Inc()
			notFound++
		case ratelimit.IsRejected(err):
			metrics.ChainRPCAttemptTotal.WithLabelValues(p.chain.String(), host, "breaker_open").Inc()
			lastErr = err
		default:
			metrics.ChainRPCAttemptTotal.WithLabelValues(p.chain.String(), host, "error").Inc()
			logger.Warn(ctx, "rpc attempt failed",
				zap.String("chain", p.chain.String()),
				zap.String("endpoint", host),
				zap.String("tx", txHash),
				zap.Error(err),
			)
			lastErr = err
		}
	}

	if notFound > 0 {
		// a reachable node said the tx does not exist, the failures elsewhere are noise
		return NotFound(txHash)
	}
	return fmt.Errorf("%s: all %d endpoints failed: %w", p.chain, len(p.endpoints), lastErr)
}

func (p *Pool) attempt(ctx context.Context, ep string, fn func(ctx context.Context, endpoint string) error) error {
	key := p.chain.String() + "|" + ep
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, key); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	call := func() error {
		actx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		err := fn(actx, ep)
		if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("attempt timed out after %s: %w", p.timeout, err)
		}
		return err
	}
	if p.breakers == nil {
		return call()
	}
	return p.breakers.Execute(key, call)
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
