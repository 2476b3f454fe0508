// Package jobs runs the periodic maintenance sweeps on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/hall-booking/internal/logging"
)

// Task is one unit of periodic work. The returned count is logged.
type Task func(ctx context.Context) (int, error)

// Job binds a task to a cron expression.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      Task
}

// Runner owns the cron scheduler and the registered jobs.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger
	jobs   []Job
}

// NewRunner builds a runner evaluating schedules in loc.
func NewRunner(loc *time.Location, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	adapter := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	return &Runner{cron: c, logger: logger}
}

// Add registers job. An empty schedule disables the job.
func (r *Runner) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("jobs: %s has no task", job.Name)
	}
	if job.Schedule == "" {
		r.logger.Info("job disabled", "job", job.Name)
		return nil
	}
	if _, err := r.cron.AddFunc(job.Schedule, func() { r.RunOnce(context.Background(), job) }); err != nil {
		return fmt.Errorf("jobs: schedule %s %q: %w", job.Name, job.Schedule, err)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// RunOnce executes job immediately with its timeout and logs the outcome.
func (r *Runner) RunOnce(ctx context.Context, job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := r.logger.With("job", job.Name)
	ctx = logging.ContextWithLogger(ctx, logger)

	started := time.Now()
	count, err := job.Run(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "job failed", "error", err, "duration", time.Since(started))
		return
	}
	logger.InfoContext(ctx, "job finished", "affected", count, "duration", time.Since(started))
}

// Jobs returns the registered jobs.
func (r *Runner) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs.
func (r *Runner) Run(ctx context.Context) error {
	r.cron.Start()
	r.logger.Info("job runner started", "jobs", len(r.jobs))
	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	r.logger.Info("job runner stopped")
	return nil
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
