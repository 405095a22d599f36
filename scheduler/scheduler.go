// Package scheduler runs the periodic background jobs of the front end:
// probing the prescriptions API, expiring idle sessions and dropping idle
// rate limiter buckets.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/prescriptions-web/interfaces"
	"github.com/giygas/prescriptions-web/logging"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// Intervals between job runs
type Intervals struct {
	Probe        time.Duration
	SessionSweep time.Duration
	BucketSweep  time.Duration
}

// DefaultIntervals probes every 30s, sweeps sessions every minute and buckets every 5 minutes
func DefaultIntervals() Intervals {
	return Intervals{
		Probe:        30 * time.Second,
		SessionSweep: time.Minute,
		BucketSweep:  5 * time.Minute,
	}
}

// Scheduler wires the jobs onto a gocron scheduler
type Scheduler struct {
	health    interfaces.HealthChecker
	sessions  interfaces.Sweeper
	buckets   interfaces.Sweeper
	intervals Intervals
	scheduler *gocron.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler; nil sweepers are skipped
func NewScheduler(health interfaces.HealthChecker, sessions, buckets interfaces.Sweeper, intervals Intervals) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		health:    health,
		sessions:  sessions,
		buckets:   buckets,
		intervals: intervals,
		scheduler: gocron.NewScheduler(time.Local),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.scheduler.SingletonModeAll()
	return s
}

// Start probes the API once, then schedules every job. An unreachable API is
// logged, not fatal: pages render the error until it comes back.
func (s *Scheduler) Start() error {
	if s.health != nil {
		s.probe()
		if err := s.every(s.intervals.Probe, "probe", s.probe); err != nil {
			return err
		}
	}
	if s.sessions != nil {
		if err := s.every(s.intervals.SessionSweep, "session sweep", s.sweepSessions); err != nil {
			return err
		}
	}
	if s.buckets != nil {
		if err := s.every(s.intervals.BucketSweep, "bucket sweep", s.sweepBuckets); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	logging.Info("Scheduler started", "jobs", len(s.scheduler.Jobs()))
	return nil
}

// Stop stops the scheduler and cancels a running probe
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *Scheduler) every(interval time.Duration, name string, job func()) error {
	if interval <= 0 {
		return fmt.Errorf("%s interval must be positive, got %v", name, interval)
	}
	if _, err := s.scheduler.Every(interval).WaitForSchedule().Do(job); err != nil {
		logging.Error("Failed to schedule job", "job", name, "error", err)
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) probe() {
	if err := s.health.Probe(s.ctx); err != nil {
		logging.Warn("Prescriptions API probe failed", "error", err)
	}
}

func (s *Scheduler) sweepSessions() {
	remaining := s.sessions.Sweep()
	logging.Debug("Session sweep done", "remaining", remaining)
}

func (s *Scheduler) sweepBuckets() {
	remaining := s.buckets.Sweep()
	logging.Debug("Rate limiter sweep done", "remaining", remaining)
}
