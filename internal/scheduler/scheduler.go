// Package scheduler runs the listener's periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// WindowTicker resolves crossing windows that expired while the feed was quiet
type WindowTicker interface {
	Tick(ctx context.Context, now time.Time) bool
}

// StatsReporter renders ingestion statistics for the log
type StatsReporter interface {
	String() string
}

// Scheduler manages the listener's scheduled jobs
type Scheduler struct {
	cron      *cron.Cron
	clock     clockwork.Clock
	logger    *logrus.Entry
	mu        sync.RWMutex
	isRunning bool
	jobIDs    []cron.EntryID
}

// NewScheduler creates a new scheduler. A job still running when its next
// run is due is skipped.
func NewScheduler(log *logrus.Logger, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		clock:  clock,
		logger: log.WithField("component", "scheduler"),
		jobIDs: make([]cron.EntryID, 0),
	}
}

// ScheduleWindowTick drives crossing window resolution every interval.
// Intervals below one second run every second.
func (s *Scheduler) ScheduleWindowTick(ctx context.Context, interval time.Duration, ticker WindowTicker) error {
	return s.schedule("window tick", interval, func() {
		if ctx.Err() != nil {
			return
		}
		if ticker.Tick(ctx, s.clock.Now()) {
			s.logger.Debug("Resolved crossing window on tick")
		}
	})
}

// ScheduleStatsReport logs ingestion statistics every interval
func (s *Scheduler) ScheduleStatsReport(interval time.Duration, stats StatsReporter) error {
	return s.schedule("stats report", interval, func() {
		s.logger.WithField("stats", stats.String()).Info("Ingestion statistics")
	})
}

func (s *Scheduler) schedule(name string, interval time.Duration, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s for %s", interval, name)
	}

	entryID := s.cron.Schedule(cron.Every(interval), cron.FuncJob(job))
	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"interval": interval,
	}).Info("Scheduled job")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("Scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Entries returns information about scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			entries = append(entries, entry)
		}
	}

	return entries
}
