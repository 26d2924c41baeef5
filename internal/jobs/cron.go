// Package jobs runs the incremental sync on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/danielolaszy/cadence/internal/collector"
	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/pkg/models"
)

// syncLockKey is the advisory lock shared by every instance syncing into
// the same database.
const syncLockKey int64 = 0x63616465

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Runner performs one sync.
type Runner interface {
	Run(ctx context.Context, opts collector.Options) (collector.Result, error)
}

// Locker guards a sync against concurrent runs on other instances.
type Locker interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error)
}

// Cron schedules incremental syncs.
type Cron struct {
	runner   Runner
	locker   Locker
	base     collector.Options
	lookback time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
	sched    cron.Schedule
	c        *cron.Cron
}

// NewCron schedules a sync of base.Projects on the standard five-field
// schedule. Each run fetches issues updated within lookback. locker may be
// nil for a single instance.
func NewCron(schedule string, runner Runner, locker Locker, base collector.Options, lookback, timeout time.Duration) (*Cron, error) {
	log := logging.With("component", "jobs")
	cr := &Cron{
		runner:   runner,
		locker:   locker,
		base:     base,
		lookback: lookback,
		timeout:  timeout,
		now:      time.Now,
		log:      log,
	}

	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	cr.sched = sched

	adapter := cronLogger{log: log}
	cr.c = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	if _, err := cr.c.AddFunc(schedule, cr.sync); err != nil {
		return nil, fmt.Errorf("failed to schedule sync: %w", err)
	}
	return cr, nil
}

// Lookback returns twice the gap between the two firings of schedule that
// follow now. A sync looking back this far still covers the window of one
// skipped run.
func Lookback(schedule string, now time.Time) (time.Duration, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return 0, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	first := sched.Next(now)
	return 2 * sched.Next(first).Sub(first), nil
}

// Start runs the scheduler in its own goroutine.
func (cr *Cron) Start() { cr.c.Start() }

// Stop halts the scheduler and waits for a running sync to finish.
func (cr *Cron) Stop() {
	<-cr.c.Stop().Done()
}

// Next is the time of the next scheduled sync. It does not depend on the
// scheduler having started.
func (cr *Cron) Next() time.Time {
	return cr.sched.Next(cr.now())
}

func (cr *Cron) sync() {
	ctx, cancel := context.WithTimeout(context.Background(), cr.timeout)
	defer cancel()

	if cr.locker == nil {
		if err := cr.run(ctx); err != nil {
			cr.log.Error("scheduled sync failed", "error", err)
		}
		return
	}

	ran, err := cr.locker.WithAdvisoryLock(ctx, syncLockKey, cr.run)
	if err != nil {
		cr.log.Error("scheduled sync failed", "error", err)
		return
	}
	if !ran {
		cr.log.Info("sync already running elsewhere")
	}
}

func (cr *Cron) run(ctx context.Context) error {
	opts := cr.base
	opts.Type = models.SyncTypeIncremental
	opts.Since = cr.now().Add(-cr.lookback)

	cr.log.Info("scheduled sync", "since", opts.Since)
	_, err := cr.runner.Run(ctx, opts)
	return err
}

// cronLogger routes scheduler messages through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
