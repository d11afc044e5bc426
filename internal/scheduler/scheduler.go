// Package scheduler runs the daily housekeeping jobs of the watch daemon:
// reloading the schedule at midnight, pruning the trigger ledger and the
// calendar cache, and retrying while no schedule is available.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/smokyabdulrahman/prayer-notifier/internal/clock"
	"github.com/smokyabdulrahman/prayer-notifier/internal/store"
)

const (
	ReloadSpec = "0 0 * * *"
	PruneSpec  = "30 0 * * *"
	RetrySpec  = "*/5 * * * *"

	// CacheMaxAge keeps the current and previous month's calendars.
	CacheMaxAge = 62 * 24 * time.Hour

	jobTimeout = time.Minute
)

// Reloader is the part of store.Store the jobs use.
type Reloader interface {
	Refresh(ctx context.Context, date time.Time) error
	Snapshot() store.Snapshot
}

// LedgerPruner drops old trigger records.
type LedgerPruner interface {
	Prune(ctx context.Context, today time.Time) (int, error)
}

// CachePruner drops old cached calendars.
type CachePruner interface {
	Prune(maxAge time.Duration) (int, error)
}

// Scheduler wraps a cron engine running in the schedule's timezone. The
// engine is rebuilt when a loaded schedule reports another zone.
type Scheduler struct {
	clock  clock.Clock
	log    logrus.FieldLogger
	store  Reloader
	ledger LedgerPruner
	cache  CachePruner

	mu      sync.Mutex
	cron    *cron.Cron
	loc     *time.Location
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock used to pick "today".
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithCache enables calendar cache pruning.
func WithCache(c CachePruner) Option {
	return func(s *Scheduler) { s.cache = c }
}

// New returns a scheduler; call Start to run it. l may be nil.
func New(loc *time.Location, st Reloader, l LedgerPruner, log logrus.FieldLogger, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		clock:  clock.Real{},
		loc:    loc,
		log:    log,
		store:  st,
		ledger: l,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = s.newCron(loc)
	return s
}

func (s *Scheduler) newCron(loc *time.Location) *cron.Cron {
	return cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.log))),
	)
}

// Start registers the jobs and starts the cron engine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.addJobs(s.cron); err != nil {
		return err
	}
	s.cron.Start()
	s.started = true
	s.log.WithField("location", s.loc.String()).Info("Scheduler started")
	return nil
}

func (s *Scheduler) addJobs(c *cron.Cron) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"reload", ReloadSpec, s.Reload},
		{"prune", PruneSpec, s.Prune},
		{"retry", RetrySpec, s.Retry},
	}

	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(j.spec, func() { s.run(j.name, j.run) }); err != nil {
			return fmt.Errorf("add %s job: %w", j.name, err)
		}
	}
	return nil
}

// Relocate moves the jobs to loc. It is safe to call from a running job:
// the old engine is stopped without waiting for it.
func (s *Scheduler) Relocate(loc *time.Location) error {
	s.mu.Lock()
	if loc == nil || loc.String() == s.loc.String() {
		s.mu.Unlock()
		return nil
	}
	c := s.newCron(loc)
	if s.started {
		if err := s.addJobs(c); err != nil {
			s.mu.Unlock()
			return err
		}
		c.Start()
	}
	old, started := s.cron, s.started
	s.cron, s.loc = c, loc
	s.mu.Unlock()

	if started {
		old.Stop()
	}
	s.log.WithField("location", loc.String()).Info("Scheduler moved to the schedule's timezone")
	return nil
}

// Location returns the timezone the jobs run in.
func (s *Scheduler) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Scheduler) run(name string, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	log := s.log.WithField("job", name)
	log.Debug("Cron job triggered")
	if err := job(ctx); err != nil {
		log.WithError(err).Warn("Cron job failed")
	}
}

// Stop stops the engine and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.started = false
	s.mu.Unlock()

	<-c.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cron.Entries())
}

// today is midnight in the loaded schedule's zone, or in the scheduler's
// own zone before any schedule is loaded.
func (s *Scheduler) today() time.Time {
	loc := s.Location()
	if snap := s.store.Snapshot(); snap.Today != nil {
		loc = snap.Today.Location()
	}
	now := s.clock.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}

// follow relocates the jobs to the zone of the loaded schedule.
func (s *Scheduler) follow() {
	snap := s.store.Snapshot()
	if snap.Today == nil {
		return
	}
	if err := s.Relocate(snap.Today.Location()); err != nil {
		s.log.WithError(err).Warn("Failed to move scheduler to the schedule's timezone")
	}
}

// Reload loads today's and tomorrow's schedules. Past midnight this rolls
// the store to the new day, fetching the next month when needed.
func (s *Scheduler) Reload(ctx context.Context) error {
	if err := s.store.Refresh(ctx, s.today()); err != nil {
		return err
	}
	s.follow()
	return nil
}

// Prune drops ledger records older than the retention window and calendar
// files older than CacheMaxAge.
func (s *Scheduler) Prune(ctx context.Context) error {
	if s.ledger != nil {
		n, err := s.ledger.Prune(ctx, s.today())
		if err != nil {
			return fmt.Errorf("prune ledger: %w", err)
		}
		s.log.WithField("removed", n).Info("Ledger pruned")
	}
	if s.cache != nil {
		n, err := s.cache.Prune(CacheMaxAge)
		if err != nil {
			return fmt.Errorf("prune cache: %w", err)
		}
		s.log.WithField("removed", n).Debug("Calendar cache pruned")
	}
	return nil
}

// Retry reloads only when the store has no schedule for today.
func (s *Scheduler) Retry(ctx context.Context) error {
	snap := s.store.Snapshot()
	if !snap.HasKey {
		return nil
	}
	today := s.today()
	if snap.Err == nil && snap.Today != nil && snap.Today.DateString() == today.Format("2006-01-02") {
		return nil
	}
	s.log.Info("Retrying schedule load")
	if err := s.store.Refresh(ctx, today); err != nil {
		return err
	}
	s.follow()
	return nil
}
