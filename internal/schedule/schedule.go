// Package schedule repeats a probe on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one probe run. Its error is logged and counted, never fatal.
type Job func(ctx context.Context) error

// Runner executes a Job on a cron schedule until its context ends. Runs do
// not overlap: a tick that arrives while the previous run is busy is skipped.
type Runner struct {
	cron       *cron.Cron
	schedule   cron.Schedule
	job        Job
	logger     *log.Logger
	runOnStart bool
	timeout    time.Duration
	rootCtx    context.Context
	entry      cron.EntryID

	runs     atomic.Int64
	failures atomic.Int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for run results.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRunOnStart runs the job once immediately when Run starts.
func WithRunOnStart() Option {
	return func(r *Runner) { r.runOnStart = true }
}

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New parses spec, a five field cron expression or a descriptor such as
// "@every 15m" or "@hourly".
func New(spec string, job Job, opts ...Option) (*Runner, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	r := &Runner{schedule: sched, job: job, logger: log.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(r.logger))),
	)
	r.entry = r.cron.Schedule(sched, cron.FuncJob(r.execute))
	return r, nil
}

// Next returns the first activation after t.
func (r *Runner) Next(t time.Time) time.Time {
	return r.schedule.Next(t)
}

// Runs and Failures count finished runs.
func (r *Runner) Runs() int64     { return r.runs.Load() }
func (r *Runner) Failures() int64 { return r.failures.Load() }

// Run blocks until ctx is cancelled, then waits up to five seconds for an
// in-flight run to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.rootCtx = ctx
	r.cron.Start()
	r.logger.Printf("schedule: next run at %s", r.Next(time.Now()).Format(time.RFC3339))
	if r.runOnStart {
		r.cron.Entry(r.entry).WrappedJob.Run()
	}

	<-ctx.Done()
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		r.logger.Printf("schedule: timed out waiting for the current run to finish")
	}
	return nil
}

func (r *Runner) execute() {
	ctx := r.rootCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		err = r.job(ctx)
	}()

	r.runs.Add(1)
	if err != nil {
		r.failures.Add(1)
		r.logger.Printf("schedule: run failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return
	}
	r.logger.Printf("schedule: run succeeded in %s", time.Since(start).Round(time.Millisecond))
}
