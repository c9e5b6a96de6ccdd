package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// Runner runs named jobs on six-field cron specs (seconds first) in UTC.
type Runner struct {
	cron    *cron.Cron
	logger  *logger.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(lgr *logger.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  lgr,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Add registers job under spec. A run still in progress skips the next tick.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(r.baseCtx); err != nil {
			r.logger.Error("scheduled job failed",
				logger.String("job", name),
				logger.Duration("took", time.Since(start)),
				logger.Error(err))
			return
		}
		r.logger.Info("scheduled job done",
			logger.String("job", name),
			logger.Duration("took", time.Since(start)))
	})
}

// Entries is the number of registered jobs.
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	r.logger.Info("scheduler started", logger.Int("jobs", r.Entries()))
	r.cron.Start()
}

// Stop cancels running jobs and waits for them, or for ctx.
func (r *Runner) Stop(ctx context.Context) error {
	r.cancel()
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
