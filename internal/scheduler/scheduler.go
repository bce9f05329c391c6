// Package scheduler wraps a cron-triggered capture job: a single
// non-overlapping job id, started and stopped on demand, reporting its
// next scheduled run time to any control surface.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

const jobName = "periodic_capture"

// RunFunc executes one capture batch. The scheduler never constructs
// CaptureParams itself; it only triggers a default-parameter run.
type RunFunc func(ctx context.Context) error

// Scheduler owns at most one cron job at a time. A fresh gocron instance
// is created on every Start, matching the source's "fresh scheduler
// per start" behavior rather than reusing one across stop/start cycles.
type Scheduler struct {
	run    RunFunc
	logger *slog.Logger

	mu        sync.Mutex
	running   bool
	cron      gocron.Scheduler
	jobID     uuid.UUID
	haveJobID bool
}

// New returns a Scheduler that invokes run on every cron firing.
func New(run RunFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{run: run, logger: logger}
}

// Start builds a fresh cron scheduler from cronExpr and starts it. Job
// overlap is suppressed in reschedule mode: a firing that lands while the
// previous run is still in flight is pushed to the next valid time
// instead of running concurrently or queueing.
func (s *Scheduler) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("scheduler is already running")
		return nil
	}
	if cronExpr == "" {
		return fmt.Errorf("no cron expression provided for scheduler")
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	job, err := cron.NewJob(
		gocron.CronJob(cronExpr, withSeconds(cronExpr)),
		gocron.NewTask(func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("scheduled capture panicked", "panic", r)
				}
			}()
			if err := s.run(context.Background()); err != nil {
				s.logger.Error("scheduled capture failed", "error", err)
			}
		}),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.logger.Info("starting scheduler", "cron", cronExpr)
	cron.Start()

	s.cron = cron
	s.jobID = job.ID()
	s.haveJobID = true
	s.running = true
	return nil
}

// Stop shuts the scheduler down, clearing all jobs. Idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("stopping scheduler")
	s.running = false
	s.haveJobID = false

	if s.cron == nil {
		return nil
	}
	err := s.cron.Shutdown()
	s.cron = nil
	if err != nil {
		return fmt.Errorf("shutting down scheduler: %w", err)
	}
	return nil
}

// IsRunning reports whether a cron job is currently active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRunTime returns the nearest upcoming firing across the scheduler's
// jobs (there is only ever one), or false when idle.
func (s *Scheduler) NextRunTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil || !s.haveJobID {
		return time.Time{}, false
	}

	var earliest time.Time
	found := false
	for _, j := range s.cron.Jobs() {
		next, err := j.NextRun()
		if err != nil {
			continue
		}
		if !found || next.Before(earliest) {
			earliest = next
			found = true
		}
	}
	return earliest, found
}

// withSeconds reports whether cronExpr carries a leading seconds field
// (6 space-separated fields instead of the standard 5).
func withSeconds(cronExpr string) bool {
	return len(strings.Fields(cronExpr)) == 6
}

// JobCount returns how many jobs are registered (0 or 1), matching the
// source's get_status() scheduled_jobs_count.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Jobs())
}
