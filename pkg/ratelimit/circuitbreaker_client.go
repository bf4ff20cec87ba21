package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"chainvend.com/pkg/metrics"
)

type Rule struct {
	// probes allowed while half-open (0 is treated as 1 by gobreaker)
	MaxRequests uint32

	// counting window while closed
	Interval time.Duration

	// >0 switches the closed window to a rolling one
	BucketPeriod time.Duration

	// how long the breaker stays open before going half-open
	Timeout time.Duration

	// either condition trips the breaker
	TripConsecutiveFailures uint32
	TripFailureRate         float64 // 0~1
	TripMinRequests         uint32  // sample size for the failure rate
}

// Expected is implemented by errors that describe a healthy dependency answering "no",
// e.g. a transaction that does not exist. Those never count against the breaker.
type Expected interface {
	Expected() bool
}

// Manager hands out one breaker per key (an RPC endpoint, a provider route).
type Manager struct {
	service string

	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[struct{}]

	defaultRule Rule
	rules       map[string]Rule
}

func NewManager(service string, defaultRule Rule, perKey map[string]Rule) *Manager {
	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 5
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 30 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = 60 * time.Second
	}
	if defaultRule.TripConsecutiveFailures == 0 && defaultRule.TripFailureRate == 0 {
		defaultRule.TripConsecutiveFailures = 5
	}
	if defaultRule.TripMinRequests == 0 {
		defaultRule.TripMinRequests = 20
	}

	return &Manager{
		service:     service,
		m:           make(map[string]*gobreaker.CircuitBreaker[struct{}], 16),
		defaultRule: defaultRule,
		rules:       perKey,
	}
}

func (m *Manager) Get(key string) *gobreaker.CircuitBreaker[struct{}] {
	m.mu.RLock()
	cb := m.m[key]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb = m.m[key]; cb != nil {
		return cb
	}

	rule, ok := m.rules[key]
	if !ok {
		rule = m.defaultRule
	}
	st := gobreaker.Settings{
		Name:         key,
		MaxRequests:  rule.MaxRequests,
		Interval:     rule.Interval,
		BucketPeriod: rule.BucketPeriod,
		Timeout:      rule.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				return float64(c.TotalFailures)/float64(c.Requests) >= rule.TripFailureRate
			}
			return false
		},
		IsSuccessful: isSuccessfulForBreaker,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(m.service, name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(m.service, name, to.String()).Set(1)
		},
	}

	cb = gobreaker.NewCircuitBreaker[struct{}](st)
	m.m[key] = cb
	return cb
}

// Execute runs fn through the breaker for key. A rejected call returns gobreaker.ErrOpenState
// or gobreaker.ErrTooManyRequests without invoking fn.
func (m *Manager) Execute(key string, fn func() error) error {
	_, err := m.Get(key).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if IsRejected(err) {
		metrics.CBRejectTotal.WithLabelValues(m.service, key, err.Error()).Inc()
	}
	return err
}

func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func isSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}
	// caller gave up, says nothing about the dependency
	if errors.Is(err, context.Canceled) {
		return true
	}
	var exp Expected
	if errors.As(err, &exp) && exp.Expected() {
		return true
	}
	return false
}
