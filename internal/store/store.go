// Package store keeps the prayer schedules for the active location key and
// reloads them when the key or the day changes.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smokyabdulrahman/prayer-notifier/internal/api"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
)

// ErrStale is returned by Load when a newer load started before it finished.
var ErrStale = errors.New("schedule load superseded")

const (
	loadTimeout = 30 * time.Second
	retryAfter  = time.Minute
)

// Key identifies the location and calculation settings of a schedule.
type Key struct {
	api.Query
}

// String renders the key for logs.
func (k Key) String() string {
	loc := fmt.Sprintf("%.4f,%.4f", k.Latitude, k.Longitude)
	if k.ByCity() {
		loc = k.City + "/" + k.Country
	}
	return fmt.Sprintf("%s method=%d school=%d", loc, k.Method, k.School)
}

// Snapshot is a consistent view of the store.
type Snapshot struct {
	Key      Key
	HasKey   bool
	Today    *prayer.Schedule
	Tomorrow *prayer.Schedule
	// Version changes whenever the schedules are replaced.
	Version uint64
	// Err is the error of the last failed load, cleared on success.
	Err error
}

// Store holds the current schedules. Loads are last-key-wins: a load that
// finishes after a newer one has started is discarded.
type Store struct {
	src Source
	log logrus.FieldLogger

	mu       sync.Mutex
	key      Key
	hasKey   bool
	gen      uint64
	today    *prayer.Schedule
	tomorrow *prayer.Schedule
	version  uint64
	lastErr  error
	inflight map[string]bool
	failedAt map[string]time.Time
	updates  chan struct{}
}

// New returns an empty store reading from src.
func New(src Source, log logrus.FieldLogger) *Store {
	return &Store{
		src:      src,
		log:      log,
		inflight: make(map[string]bool),
		failedAt: make(map[string]time.Time),
		updates:  make(chan struct{}, 1),
	}
}

// Updates signals, coalesced, whenever the schedules change.
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Key:      s.key,
		HasKey:   s.hasKey,
		Today:    s.today,
		Tomorrow: s.tomorrow,
		Version:  s.version,
		Err:      s.lastErr,
	}
}

// Load fetches date and the following day for key and publishes them.
// A failure keeps the previous schedules when the key is unchanged and
// clears them otherwise, since another location's times are never valid.
func (s *Store) Load(ctx context.Context, key Key, date time.Time) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{"key": key.String(), "date": date.Format("2006-01-02")})

	today, err := s.src.FetchDay(ctx, key, date)
	var tomorrow *prayer.Schedule
	if err == nil {
		var terr error
		tomorrow, terr = s.src.FetchDay(ctx, key, date.AddDate(0, 0, 1))
		if terr != nil {
			log.WithError(terr).Warn("Tomorrow's schedule unavailable, will extrapolate")
			tomorrow = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		log.Debug("Discarding superseded schedule load")
		return ErrStale
	}

	keyChanged := !s.hasKey || s.key != key
	s.key, s.hasKey = key, true

	if err != nil {
		s.lastErr = err
		if keyChanged && (s.today != nil || s.tomorrow != nil) {
			s.today, s.tomorrow = nil, nil
			s.publishLocked()
		}
		log.WithError(err).Warn("Failed to load schedule")
		return err
	}

	s.today, s.tomorrow = today, tomorrow
	s.lastErr = nil
	s.publishLocked()
	log.Info("Schedule loaded")
	return nil
}

// Refresh reloads date for the current key.
func (s *Store) Refresh(ctx context.Context, date time.Time) error {
	s.mu.Lock()
	key, ok := s.key, s.hasKey
	s.mu.Unlock()
	if !ok {
		return prayer.ErrDataUnavailable
	}
	return s.Load(ctx, key, date)
}

// Ensure starts a background load of date unless it is already loaded, being
// loaded, or failed less than a minute ago. It never blocks.
func (s *Store) Ensure(date time.Time) {
	day := date.Format("2006-01-02")

	s.mu.Lock()
	if !s.hasKey || s.inflight[day] || (s.today != nil && s.today.DateString() == day) {
		s.mu.Unlock()
		return
	}
	if at, ok := s.failedAt[day]; ok && time.Since(at) < retryAfter {
		s.mu.Unlock()
		return
	}
	s.inflight[day] = true
	key := s.key
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		err := s.Load(ctx, key, date)

		s.mu.Lock()
		delete(s.inflight, day)
		if err != nil && !errors.Is(err, ErrStale) {
			s.failedAt[day] = time.Now()
		} else {
			delete(s.failedAt, day)
		}
		s.mu.Unlock()
	}()
}

// Preview fetches date and the following day for the current key without
// publishing them, for showing another day while the live schedules stay in
// place. Tomorrow is best effort.
func (s *Store) Preview(ctx context.Context, date time.Time) (*prayer.Schedule, *prayer.Schedule, error) {
	s.mu.Lock()
	key, ok := s.key, s.hasKey
	s.mu.Unlock()
	if !ok {
		return nil, nil, prayer.ErrDataUnavailable
	}

	today, err := s.src.FetchDay(ctx, key, date)
	if err != nil {
		return nil, nil, err
	}
	tomorrow, err := s.src.FetchDay(ctx, key, date.AddDate(0, 0, 1))
	if err != nil {
		s.log.WithError(err).Debug("Preview of the following day unavailable")
		tomorrow = nil
	}
	return today, tomorrow, nil
}

// Set replaces today's schedule directly, cancelling any load in flight.
// Tomorrow is kept only if it is the day after sched.
func (s *Store) Set(sched *prayer.Schedule) error {
	if sched == nil {
		return fmt.Errorf("%w: nil schedule", prayer.ErrInvalidSchedule)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.tomorrow != nil && s.tomorrow.DateString() != sched.Date().AddDate(0, 0, 1).Format("2006-01-02") {
		s.tomorrow = nil
	}
	s.today = sched
	s.lastErr = nil
	s.publishLocked()
	return nil
}

func (s *Store) publishLocked() {
	s.version++
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
