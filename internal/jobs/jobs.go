package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
	"chainvend.com/pkg/safe"
)

// Job is one periodic task. Spec takes the robfig/cron syntax, "@every 2m" included.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Every builds a "@every" spec, never shorter than a second.
func Every(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return "@every " + d.String()
}

// Runner drives jobs on a cron. A run that is still going when its next slot comes up is skipped.
type Runner struct {
	cron *cron.Cron
	base context.Context
}

func NewRunner(base context.Context) *Runner {
	return &Runner{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		base: base,
	}
}

func (r *Runner) Add(j Job) error {
	if j.Run == nil {
		return fmt.Errorf("job %s has no func", j.Name)
	}
	if _, err := r.cron.AddFunc(j.Spec, func() { r.run(j) }); err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	return nil
}

func (r *Runner) run(j Job) {
	ctx := r.base
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := safe.Run(ctx, j.Run)
	if err != nil {
		metrics.JobRunTotal.WithLabelValues(j.Name, "error").Inc()
		logger.Warn(ctx, "job failed", zap.String("job", j.Name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}
	metrics.JobRunTotal.WithLabelValues(j.Name, "ok").Inc()
	logger.Debug(ctx, "job done", zap.String("job", j.Name), zap.Duration("took", time.Since(start)))
}

func (r *Runner) Start() { r.cron.Start() }

// Stop waits for running jobs.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}
