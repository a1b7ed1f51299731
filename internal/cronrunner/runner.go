// Package cronrunner schedules periodic jobs with second-resolution cron
// specs. Jobs receive the runner's base context and are skipped, not
// queued, while a previous run of the same job is still going.
package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(baseCtx context.Context, logger *zap.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under name. A panicking job is logged and the
// schedule continues.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		r.run(name, job)
	})
}

func (r *Runner) run(name string, job func(context.Context) error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("cron job panicked", zap.String("job", name), zap.Any("panic", p))
		}
	}()
	if err := job(r.baseCtx); err != nil {
		r.logger.Warn("cron job failed",
			zap.String("job", name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return
	}
	r.logger.Debug("cron job done",
		zap.String("job", name),
		zap.Duration("took", time.Since(start)))
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop stops scheduling and waits for running jobs.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
