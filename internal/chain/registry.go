package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
	"chainvend.com/pkg/trace"
)

type binding struct {
	validator Validator
	treasury  string
}

// Registry binds each supported chain to its validator and treasury address.
type Registry struct {
	mu sync.RWMutex
	m  map[Chain]binding
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[Chain]binding, len(all))}
}

func (r *Registry) Register(c Chain, v Validator, treasury string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[c] = binding{validator: v, treasury: strings.TrimSpace(treasury)}
}

// SetTreasury swaps the address after a config reload.
func (r *Registry) SetTreasury(c Chain, treasury string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.m[c]
	b.treasury = strings.TrimSpace(treasury)
	r.m[c] = b
}

func (r *Registry) Treasury(c Chain) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.m[c]
	return b.treasury, ok && b.treasury != ""
}

func (r *Registry) Supported(c Chain) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.m[c]
	return ok && b.validator != nil
}

// Validate runs the chain's validator with tracing and metrics around it.
// The error is only for a chain that has no validator.
func (r *Registry) Validate(ctx context.Context, c Chain, txHash, to string, min, max decimal.Decimal) (bool, error) {
	r.mu.RLock()
	b, ok := r.m[c]
	r.mu.RUnlock()
	if !ok || b.validator == nil {
		return false, fmt.Errorf("%w: %s", ErrUnsupported, c)
	}

	ctx, span := trace.Tracer("chain").Start(ctx, "chain.Validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("chain", c.String()),
		attribute.String("tx_hash", txHash),
		attribute.String("min", min.String()),
		attribute.String("max", max.String()),
	)

	ok = b.validator.Validate(ctx, txHash, to, min, max)
	result := "rejected"
	if ok {
		result = "confirmed"
	} else {
		span.SetStatus(codes.Error, "not confirmed")
	}
	metrics.ChainValidationTotal.WithLabelValues(c.String(), result).Inc()
	logger.Info(ctx, "chain validation",
		zap.String("chain", c.String()),
		zap.String("tx", txHash),
		zap.String("to", to),
		zap.String("result", result),
	)
	return ok, nil
}
