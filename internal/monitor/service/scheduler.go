package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chainvend.com/internal/chain"
	"chainvend.com/internal/config"
	"chainvend.com/internal/monitor/domain"
	"chainvend.com/internal/pricing"
	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
)

// Store is the persistence the scheduler drives.
type Store interface {
	ListPending(ctx context.Context) ([]*domain.MerchantPayment, error)
	Complete(ctx context.Context, id string, at time.Time) (bool, error)
	Expire(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, id string) (bool, error)
}

type Validator interface {
	Validate(ctx context.Context, c chain.Chain, txHash, to string, min, max decimal.Decimal) (bool, error)
}

// Leader elects the replica that ticks.
type Leader interface {
	TryAcquireMaster(ctx context.Context, key string, ttl time.Duration) bool
	Release(ctx context.Context, key string) error
}

type target struct {
	payment domain.MerchantPayment
	ctx     context.Context
	cancel  context.CancelFunc
}

// Scheduler holds the active watch targets and checks them all on one ticker with bounded
// fan-out. Unwatch cancels a check that is still in flight.
type Scheduler struct {
	store  Store
	chains Validator
	leader Leader // nil runs single-replica
	cfg    config.MonitorConfig
	now    func() time.Time

	// leading is set while this replica holds the lock; followers keep no targets
	leading atomic.Bool

	mu      sync.Mutex
	targets map[string]*target
}

func NewScheduler(store Store, chains Validator, leader Leader, cfg config.MonitorConfig) *Scheduler {
	return &Scheduler{
		store:   store,
		chains:  chains,
		leader:  leader,
		cfg:     cfg,
		now:     time.Now,
		targets: make(map[string]*target),
	}
}

// Watch adds p or refreshes the snapshot of an already watched payment. A follower ignores
// it; the leader loads the row on its next Sync.
func (s *Scheduler) Watch(p *domain.MerchantPayment) {
	if s.leader != nil && !s.leading.Load() {
		return
	}
	s.watch(p)
}

func (s *Scheduler) watch(p *domain.MerchantPayment) {
	if p == nil || p.Status.Terminal() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.targets[p.ID]; ok {
		t.payment = *p
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.targets[p.ID] = &target{payment: *p, ctx: ctx, cancel: cancel}
	metrics.MonitorWatched.Set(float64(len(s.targets)))
}

func (s *Scheduler) Unwatch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.targets[id]; ok {
		t.cancel()
		delete(s.targets, id)
		metrics.MonitorWatched.Set(float64(len(s.targets)))
	}
}

func (s *Scheduler) Watching(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.targets[id]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.targets)
}

func (s *Scheduler) snapshot() []*target {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*target, 0, len(s.targets))
	for _, t := range s.targets {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// Sync replaces the watch set with the pending rows in the database, so a replica that
// becomes leader also picks up payments created on other replicas.
func (s *Scheduler) Sync(ctx context.Context) error {
	rows, err := s.store.ListPending(ctx)
	if err != nil {
		return err
	}
	pending := make(map[string]struct{}, len(rows))
	for _, p := range rows {
		pending[p.ID] = struct{}{}
		s.watch(p)
	}
	for _, t := range s.snapshot() {
		if _, ok := pending[t.payment.ID]; !ok {
			s.Unwatch(t.payment.ID)
		}
	}
	return nil
}

// Run checks the pending payments on every tick until ctx ends. Only the lock holder
// syncs and checks; the others drop whatever they were asked to watch.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info(ctx, "payment monitor started", zap.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.stop()

	s.step(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "payment monitor stopping")
			return
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

func (s *Scheduler) step(ctx context.Context) {
	if !s.lead(ctx) {
		if s.leading.Swap(false) {
			logger.Info(ctx, "payment monitor lost leadership")
		}
		s.clear()
		return
	}
	if !s.leading.Swap(true) {
		logger.Info(ctx, "payment monitor leading")
	}
	if err := s.Sync(ctx); err != nil {
		logger.Warn(ctx, "monitor sync failed", zap.Error(err))
	}
	s.Tick(ctx)
}

func (s *Scheduler) lead(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}
	return s.leader.TryAcquireMaster(ctx, s.cfg.LockKey, s.cfg.LockTTL)
}

func (s *Scheduler) stop() {
	s.leading.Store(false)
	if s.leader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.leader.Release(ctx, s.cfg.LockKey)
	}
	s.clear()
}

func (s *Scheduler) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.targets {
		t.cancel()
		delete(s.targets, id)
	}
	metrics.MonitorWatched.Set(0)
}

// Tick checks every watched payment once and returns when all checks are done.
func (s *Scheduler) Tick(ctx context.Context) {
	targets := s.snapshot()
	if len(targets) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, t := range targets {
		g.Go(func() error {
			s.check(gctx, t)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) check(ctx context.Context, t *target) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	p := t.payment
	outcome := s.evaluate(ctx, &p)
	metrics.MonitorCheckTotal.WithLabelValues(p.Chain.String(), outcome).Inc()
}

func (s *Scheduler) evaluate(ctx context.Context, p *domain.MerchantPayment) string {
	if ctx.Err() != nil {
		return "canceled"
	}
	fields := []zap.Field{zap.String("payment_id", p.ID), zap.String("chain", p.Chain.String())}

	// a hash submitted before the deadline still gets its check
	expired := p.Expired(s.now())
	if p.Hash() == "" {
		if expired {
			return s.expire(ctx, p, fields)
		}
		return "waiting"
	}

	band := pricing.NewBand(p.ExpectedAmount, p.TolerancePercent)
	ok, err := s.chains.Validate(ctx, p.Chain, p.Hash(), p.DepositAddress, band.Min, band.Max)
	if ctx.Err() != nil {
		return "canceled"
	}
	if err != nil {
		// only an unwired chain errors; it will never confirm
		logger.Error(ctx, "merchant payment cannot be validated", append(fields, zap.Error(err))...)
		if _, ferr := s.store.Fail(ctx, p.ID); ferr != nil {
			logger.Error(ctx, "fail payment failed", append(fields, zap.Error(ferr))...)
			return "error"
		}
		s.Unwatch(p.ID)
		return "failed"
	}
	if !ok {
		if expired {
			return s.expire(ctx, p, fields)
		}
		return "unconfirmed"
	}

	changed, err := s.store.Complete(ctx, p.ID, s.now())
	if err != nil {
		logger.Error(ctx, "complete payment failed", append(fields, zap.Error(err))...)
		return "error"
	}
	s.Unwatch(p.ID)
	if !changed {
		return "noop"
	}
	logger.Info(ctx, "merchant payment confirmed", append(fields, zap.String("tx", p.Hash()))...)
	return "completed"
}

func (s *Scheduler) expire(ctx context.Context, p *domain.MerchantPayment, fields []zap.Field) string {
	if _, err := s.store.Expire(ctx, p.ID); err != nil {
		logger.Error(ctx, "expire payment failed", append(fields, zap.Error(err))...)
		return "error"
	}
	s.Unwatch(p.ID)
	logger.Info(ctx, "merchant payment expired", fields...)
	return "expired"
}
