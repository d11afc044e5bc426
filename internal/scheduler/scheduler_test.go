package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/smokyabdulrahman/prayer-notifier/internal/clock"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notifier/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	snap     store.Snapshot
	refresh  []time.Time
	failWith error
}

func (f *fakeStore) Refresh(_ context.Context, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = append(f.refresh, date)
	return f.failWith
}

func (f *fakeStore) Snapshot() store.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type fakeLedger struct {
	today time.Time
	err   error
}

func (f *fakeLedger) Prune(_ context.Context, today time.Time) (int, error) {
	f.today = today
	return 3, f.err
}

type fakeCache struct{ maxAge time.Duration }

func (f *fakeCache) Prune(maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return 1, nil
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s unavailable: %v", name, err)
	}
	return loc
}

func schedule(t *testing.T, date time.Time) *prayer.Schedule {
	t.Helper()
	s, err := prayer.NewSchedule(date, date.Location(), map[prayer.Name]prayer.TimeOfDay{
		prayer.Fajr: {Hour: 5}, prayer.Sunrise: {Hour: 6, Minute: 30}, prayer.Dhuhr: {Hour: 12},
		prayer.Asr: {Hour: 15, Minute: 30}, prayer.Maghrib: {Hour: 18}, prayer.Isha: {Hour: 19, Minute: 30},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func TestReload_UsesScheduleTimezone(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	log, _ := test.NewNullLogger()
	st := &fakeStore{}
	// 16:30 UTC on the 10th is already the 11th in Tokyo.
	c := clock.NewManual(time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC))

	s := New(tokyo, st, nil, log, WithClock(c))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(st.refresh) != 1 || st.refresh[0].Format("2006-01-02") != "2026-03-11" {
		t.Errorf("refresh = %v", st.refresh)
	}
}

func TestPrune(t *testing.T) {
	log, _ := test.NewNullLogger()
	l := &fakeLedger{}
	fc := &fakeCache{}
	c := clock.NewManual(time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC))

	s := New(time.UTC, &fakeStore{}, l, log, WithClock(c), WithCache(fc))
	if err := s.Prune(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.today.Format("2006-01-02") != "2026-03-10" {
		t.Errorf("ledger pruned against %v", l.today)
	}
	if fc.maxAge != CacheMaxAge {
		t.Errorf("cache maxAge = %v", fc.maxAge)
	}
}

func TestPrune_LedgerError(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := New(time.UTC, &fakeStore{}, &fakeLedger{err: errors.New("boom")}, log)
	if err := s.Prune(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRetry(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		snap store.Snapshot
		want int
	}{
		{"no key yet", store.Snapshot{}, 0},
		{"up to date", store.Snapshot{HasKey: true, Today: schedule(t, today)}, 0},
		{"no schedule", store.Snapshot{HasKey: true, Err: prayer.ErrDataUnavailable}, 1},
		{"stale day", store.Snapshot{HasKey: true, Today: schedule(t, today.AddDate(0, 0, -1))}, 1},
		{"last load failed", store.Snapshot{HasKey: true, Today: schedule(t, today), Err: prayer.ErrDataUnavailable}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, _ := test.NewNullLogger()
			st := &fakeStore{snap: tt.snap}
			s := New(time.UTC, st, nil, log, WithClock(clock.NewManual(now)))
			_ = s.Retry(context.Background())
			if len(st.refresh) != tt.want {
				t.Errorf("refreshed %d times, want %d", len(st.refresh), tt.want)
			}
		})
	}
}

func TestRetry_MovesToScheduleTimezone(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	log, _ := test.NewNullLogger()
	// The first load failed, so the daemon started in its local zone. The
	// store now holds yesterday's Tokyo schedule.
	st := &fakeStore{snap: store.Snapshot{HasKey: true, Today: schedule(t, time.Date(2026, 3, 10, 0, 0, 0, 0, tokyo))}}
	c := clock.NewManual(time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC))

	s := New(time.UTC, st, &fakeLedger{}, log, WithClock(c))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.Retry(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(st.refresh) != 1 || st.refresh[0].Format("2006-01-02") != "2026-03-11" {
		t.Errorf("refresh = %v, want the Tokyo date", st.refresh)
	}
	if got := s.Location().String(); got != "Asia/Tokyo" {
		t.Errorf("Location() = %s, want Asia/Tokyo", got)
	}
	if s.Jobs() != 3 {
		t.Errorf("Jobs() = %d after relocation, want 3", s.Jobs())
	}
}

func TestRelocate_FailedRefreshKeepsZone(t *testing.T) {
	log, _ := test.NewNullLogger()
	st := &fakeStore{snap: store.Snapshot{HasKey: true, Err: prayer.ErrDataUnavailable}, failWith: prayer.ErrDataUnavailable}
	s := New(time.UTC, st, nil, log, WithClock(clock.NewManual(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))))

	if err := s.Retry(context.Background()); !errors.Is(err, prayer.ErrDataUnavailable) {
		t.Errorf("Retry = %v", err)
	}
	if s.Location() != time.UTC {
		t.Errorf("Location() = %s", s.Location())
	}
}

func TestStartStop(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := New(time.UTC, &fakeStore{}, &fakeLedger{}, log)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Jobs() != 3 {
		t.Errorf("Jobs() = %d, want 3", s.Jobs())
	}
	s.Stop()
}
