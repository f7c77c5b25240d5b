// Package maintenance runs periodic housekeeping next to the poll loop:
// purging expired key-value entries and snapshotting pool usage.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/observability"
)

// Default schedules in robfig/cron descriptor syntax.
const (
	DefaultPurgeSchedule    = "@every 1h"
	DefaultSnapshotSchedule = "@every 1m"
)

const jobTimeout = time.Minute

// Purger deletes expired key-value entries.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Config configures a Scheduler. Empty schedules use the defaults; "off"
// disables a job.
type Config struct {
	PurgeSchedule    string
	SnapshotSchedule string

	Purger   Purger
	Snapshot func(ctx context.Context)
	Logger   observability.Logger
}

// Scheduler owns a cron instance with the housekeeping jobs.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	logger  observability.Logger
	purger  Purger
	snap    func(ctx context.Context)
	entries map[string]cron.EntryID
	started bool
}

// New validates the schedules and registers the jobs. Start runs them.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Purger == nil && cfg.Snapshot == nil {
		return nil, errors.New("maintenance needs a purger or a snapshot func")
	}

	s := &Scheduler{
		cron:    cron.New(),
		logger:  observability.OrNop(cfg.Logger),
		purger:  cfg.Purger,
		snap:    cfg.Snapshot,
		entries: make(map[string]cron.EntryID, 2),
	}

	if cfg.Purger != nil {
		if err := s.add("purge", orDefault(cfg.PurgeSchedule, DefaultPurgeSchedule), s.Purge); err != nil {
			return nil, err
		}
	}
	if cfg.Snapshot != nil {
		if err := s.add("snapshot", orDefault(cfg.SnapshotSchedule, DefaultSnapshotSchedule), s.Snapshot); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, job func()) error {
	if spec == "off" {
		return nil
	}
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("schedule %s job %q: %w", name, spec, err)
	}
	s.entries[name] = id
	return nil
}

// Start begins running the scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.entries))
	for _, name := range []string{"purge", "snapshot"} {
		if _, ok := s.entries[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Next returns when the named job runs next. Zero when not scheduled or
// before Start.
func (s *Scheduler) Next(name string) time.Time {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Purge deletes expired entries once.
func (s *Scheduler) Purge() {
	if s.purger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("Expired entry purge failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Debug("Purged expired entries", zap.Int64("removed", removed))
	}
}

// Snapshot runs the snapshot func once.
func (s *Scheduler) Snapshot() {
	if s.snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.snap(ctx)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
