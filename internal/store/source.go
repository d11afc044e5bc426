package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smokyabdulrahman/prayer-notifier/internal/api"
	"github.com/smokyabdulrahman/prayer-notifier/internal/cache"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
)

// Source produces a validated schedule for one day.
type Source interface {
	FetchDay(ctx context.Context, key Key, date time.Time) (*prayer.Schedule, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, key Key, date time.Time) (*prayer.Schedule, error)

// FetchDay calls f.
func (f SourceFunc) FetchDay(ctx context.Context, key Key, date time.Time) (*prayer.Schedule, error) {
	return f(ctx, key, date)
}

// APISource fetches whole months from the Al Adhan calendar endpoint and
// serves days out of them, caching each month on disk. A day in the next
// month triggers a fetch of that month.
type APISource struct {
	client   *api.Client
	cache    *cache.Cache // optional
	fallback *time.Location
	log      logrus.FieldLogger
}

// NewAPISource returns a source. cache may be nil; fallback is used when the
// API does not report a timezone.
func NewAPISource(client *api.Client, c *cache.Cache, fallback *time.Location, log logrus.FieldLogger) *APISource {
	if fallback == nil {
		fallback = time.Local
	}
	return &APISource{client: client, cache: c, fallback: fallback, log: log}
}

// Month returns the calendar for a month, from the cache when possible.
func (s *APISource) Month(ctx context.Context, key Key, year int, month time.Month) (*api.CalendarResponse, error) {
	if s.cache != nil {
		if entry := s.cache.LoadCalendar(year, month, key.Query); entry != nil {
			return entry.Calendar(), nil
		}
	}

	resp, err := s.client.FetchMonth(ctx, year, month, key.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", prayer.ErrDataUnavailable, err)
	}

	if s.cache != nil {
		if err := s.cache.SaveCalendar(year, month, key.Query, resp); err != nil {
			// Non-fatal: next run will just re-fetch.
			s.log.WithError(err).Warn("Failed to cache calendar")
		}
	}
	return resp, nil
}

// Data returns the raw API entry for date, including Hijri date and metadata.
// When the month cannot be fetched or lacks the day, the single-day endpoint
// is tried before giving up.
func (s *APISource) Data(ctx context.Context, key Key, date time.Time) (api.Data, error) {
	day := date.Format("2006-01-02")
	cal, err := s.Month(ctx, key, date.Year(), date.Month())
	if err == nil {
		if d, ok := cal.Find(day); ok {
			return d, nil
		}
		err = fmt.Errorf("%w: no entry for %s", prayer.ErrDataUnavailable, day)
	}

	resp, derr := s.client.FetchDay(ctx, date, key.Query)
	if derr != nil {
		s.log.WithError(derr).WithField("date", day).Debug("Single-day fetch failed")
		return api.Data{}, err
	}
	s.log.WithField("date", day).Debug("Served day from the single-day endpoint")
	return resp.Data, nil
}

// FetchDay implements Source.
func (s *APISource) FetchDay(ctx context.Context, key Key, date time.Time) (*prayer.Schedule, error) {
	d, err := s.Data(ctx, key, date)
	if err != nil {
		return nil, err
	}
	loc, err := d.Meta.Location(s.fallback)
	if err != nil {
		s.log.WithError(err).Warn("Using fallback timezone")
		loc = s.fallback
	}
	sched, err := prayer.ScheduleFromTimings(d.Timings, time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc), loc)
	if err != nil {
		return nil, fmt.Errorf("schedule for %s: %w", date.Format("2006-01-02"), err)
	}
	return sched, nil
}

// Today returns midnight of now's date in the schedule's own timezone, which
// differs from the local one when watching a remote city.
func (s *APISource) Today(ctx context.Context, key Key, now time.Time) (time.Time, error) {
	d, err := s.Data(ctx, key, now.In(s.fallback))
	if err != nil {
		return time.Time{}, err
	}
	loc, err := d.Meta.Location(s.fallback)
	if err != nil {
		loc = s.fallback
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}
