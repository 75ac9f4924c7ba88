package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Reconciler on a cron schedule. Overlapping runs are
// skipped.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	opts       Options
	logger     *slog.Logger
}

// NewScheduler registers r to run with opts on spec, a standard five-field
// cron expression or a descriptor such as "@daily".
func NewScheduler(r *Reconciler, spec string, opts Options, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if _, err := r.Run(ctx, opts); err != nil {
			logger.Error("scheduled reconciliation failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}

	return &Scheduler{cron: c, reconciler: r, opts: opts, logger: logger}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("reconcile scheduler started")
}

// Stop halts the schedule and waits for a running job or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the job immediately, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (*Result, error) {
	return s.reconciler.Run(ctx, s.opts)
}
