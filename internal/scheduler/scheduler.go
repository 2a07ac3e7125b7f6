// internal/scheduler/scheduler.go
//
// Periodic all-tenant sync.
//
// Context
// -------
// robfig/cron drives SyncAllTenants on a standard five-field schedule.
// A run still in progress when the next tick fires is skipped, not queued,
// so a slow platform never stacks runs.
//
// Notes
// -----
//   - Stop waits for the running job to return.
//   - Cron's own log lines go through zap.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/yanizio/adsync/internal/orchestrator"
)

// Runner is the orchestrator entry point the scheduler calls.
type Runner interface {
	SyncAllTenants(ctx context.Context, opts orchestrator.Options) ([]orchestrator.Result, error)
}

// Scheduler wraps one cron instance.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	opts   orchestrator.Options
	log    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// New parses spec and registers the sync job.  Nothing runs until Start.
func New(spec string, runner Runner, opts orchestrator.Options, log *zap.SugaredLogger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, runner: runner, opts: opts, log: log, ctx: ctx, cancel: cancel}

	if _, err := c.AddFunc(spec, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Infow("sync scheduled", "next", e.Next)
	}
}

// Stop cancels an in-flight run and waits for it, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warnw("scheduled sync did not stop in time")
	}
}

func (s *Scheduler) run() {
	start := time.Now()
	results, err := s.runner.SyncAllTenants(s.ctx, s.opts)
	if err != nil {
		s.log.Errorw("scheduled sync failed", "err", err)
		return
	}
	failed, skipped := 0, 0
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case !r.Success:
			failed++
		}
	}
	s.log.Infow("scheduled sync done",
		"connections", len(results), "failed", failed, "skipped", skipped,
		"duration", time.Since(start).Round(time.Millisecond))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debugw("cron: "+msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Errorw("cron: "+msg, append(kv, "err", err)...)
}
