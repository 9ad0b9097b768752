// Package scheduler runs the posting and download jobs on cron
// schedules in the configured timezone.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

// Job names used in logs and metrics.
const (
	JobPost     = "post"
	JobDownload = "download"
)

// Scheduler wraps a cron runner with job-level metrics.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	entries  map[string]cron.EntryID
}

// cronLogger adapts the service logger to cron's logging interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error("cron: %s: %v %v", msg, err, keysAndValues)
}

// New creates a scheduler in the given timezone.
func New(tz string) (*Scheduler, error) {
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	c := cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.Recover(cronLogger{})),
	)

	return &Scheduler{
		cron:     c,
		location: location,
		entries:  make(map[string]cron.EntryID),
	}, nil
}

// Location returns the scheduler's timezone.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// Add registers a named job on a cron spec. The job is wrapped so every
// run records duration, outcome, and last-run timestamp.
func (s *Scheduler) Add(name, spec string, job func(ctx context.Context) error) error {
	entryID, err := s.cron.AddFunc(spec, s.wrap(name, job))
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s job: %w", spec, name, err)
	}
	s.entries[name] = entryID
	logging.Debug("Scheduled %s job: %s (%s)", name, spec, s.location)
	return nil
}

func (s *Scheduler) wrap(name string, job func(ctx context.Context) error) func() {
	return func() {
		start := time.Now()
		logging.Info("Running scheduled %s job", name)

		err := job(context.Background())

		duration := time.Since(start)
		metrics.JobDuration.WithLabelValues(name).Observe(duration.Seconds())
		metrics.JobLastRunTimestamp.WithLabelValues(name).Set(float64(start.Unix()))

		if err != nil {
			metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
			logging.Error("Scheduled %s job failed after %v: %v", name, duration.Round(time.Second), err)
			return
		}
		metrics.JobRunsTotal.WithLabelValues(name, "success").Inc()
		logging.Info("Scheduled %s job finished in %v", name, duration.Round(time.Second))
	}
}

// Next returns the next scheduled run of a named job, or the zero time
// if the job is unknown or the scheduler has not started.
func (s *Scheduler) Next(name string) time.Time {
	entryID, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(entryID).Next
}

// Start launches the cron runner.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		logging.Warn("Timed out waiting for running jobs to finish")
	}
}
