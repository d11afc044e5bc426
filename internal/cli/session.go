package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notifier/internal/api"
	"github.com/smokyabdulrahman/prayer-notifier/internal/cache"
	"github.com/smokyabdulrahman/prayer-notifier/internal/config"
	"github.com/smokyabdulrahman/prayer-notifier/internal/geo"
	"github.com/smokyabdulrahman/prayer-notifier/internal/logger"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notifier/internal/settings"
	"github.com/smokyabdulrahman/prayer-notifier/internal/store"
)

// detectLocation is replaced in tests.
var detectLocation = geo.DetectLocation

// newClient is replaced in tests to point at an httptest server.
var newClient = api.NewClient

// session bundles what every view needs to fetch schedules for the
// configured location.
type session struct {
	cfg      *config.Config
	settings settings.Settings
	cache    *cache.Cache // nil when the cache directory is unusable
	source   *store.APISource
	key      store.Key
	label    string
	zone     *time.Location // hint until a schedule reports its own zone
	log      *logrus.Logger
}

// newSession merges the configuration and resolves the location.
// Priority: CLI flags > config > cached geolocation > IP auto-detect.
func newSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return nil, err
	}
	set, err := cfg.Settings()
	if err != nil {
		return nil, fmt.Errorf("invalid notification settings: %w", err)
	}

	log := logger.NewWithOutput(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if cmd.Name() != "watch" && FlagLogLevel == "" {
		// One-shot views stay quiet unless asked.
		log.SetLevel(logrus.WarnLevel)
	}

	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		c = nil
		log.WithError(err).Warn("Cache disabled")
	}

	q, label, zone, err := resolveLocation(ctx, cfg, c, log)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		zone = time.Local
	}

	return &session{
		cfg:      cfg,
		settings: set,
		cache:    c,
		source:   store.NewAPISource(newClient(), c, zone, logger.Component(log, "source")),
		key:      store.Key{Query: q},
		label:    label,
		zone:     zone,
		log:      log,
	}, nil
}

// resolveLocation builds the API query. The returned zone is a hint used
// until the API reports the schedule's own timezone.
func resolveLocation(ctx context.Context, cfg *config.Config, c *cache.Cache, log logrus.FieldLogger) (api.Query, string, *time.Location, error) {
	q := api.Query{
		Method: cfg.MethodOrDefault(-1),
		School: cfg.SchoolOrDefault(-1),
	}

	switch {
	case cfg.Latitude != 0 || cfg.Longitude != 0:
		q.Latitude, q.Longitude = cfg.Latitude, cfg.Longitude
		return q, fmt.Sprintf("%.4f, %.4f", q.Latitude, q.Longitude), time.Local, nil
	case cfg.City != "":
		if cfg.Country == "" {
			return q, "", nil, fmt.Errorf("--country is required when using --city")
		}
		q.City, q.Country = cfg.City, cfg.Country
		return q, q.City + ", " + q.Country, time.Local, nil
	}

	var loc *geo.Location
	if c != nil {
		loc = c.LoadGeo()
	}
	if loc == nil {
		detected, err := detectLocation(ctx)
		if err != nil {
			return q, "", nil, fmt.Errorf("no location specified and auto-detection failed: %w", err)
		}
		loc = detected
		if c != nil {
			if err := c.SaveGeo(loc); err != nil {
				log.WithError(err).Debug("Failed to cache geolocation")
			}
		}
	}

	q.Latitude, q.Longitude = loc.Latitude, loc.Longitude
	label := fmt.Sprintf("%.4f, %.4f", loc.Latitude, loc.Longitude)
	if loc.City != "" && loc.Country != "" {
		label = loc.City + ", " + loc.Country
	}
	return q, label, loc.Zone(time.Local), nil
}

// trackedNames returns the prayers shown by the views: the configured list,
// or the defaults plus Imsak when Imsak tracking is on.
func (s *session) trackedNames() ([]prayer.Name, error) {
	if s.cfg.Prayers != "" {
		return prayer.ParseNames(s.cfg.Prayers)
	}
	if s.settings.TrackImsak {
		return prayer.Order, nil
	}
	return prayer.DefaultNames, nil
}

// day is one fetched day with its raw API data.
type day struct {
	Schedule *prayer.Schedule
	Data     api.Data
}

// days fetches n consecutive days starting at the schedule's today.
func (s *session) days(ctx context.Context, now time.Time, n int) ([]day, error) {
	today, err := s.source.Today(ctx, s.key, now)
	if err != nil {
		return nil, err
	}
	out := make([]day, 0, n)
	for i := 0; i < n; i++ {
		date := today.AddDate(0, 0, i)
		data, err := s.source.Data(ctx, s.key, date)
		if err != nil {
			return nil, err
		}
		sched, err := s.source.FetchDay(ctx, s.key, date)
		if err != nil {
			return nil, err
		}
		out = append(out, day{Schedule: sched, Data: data})
	}
	return out, nil
}

// iqamaAt returns the Iqama time of n on sched, or false when n has none.
func (s *session) iqamaAt(sched *prayer.Schedule, n prayer.Name) (time.Time, bool) {
	d := s.settings.Iqama(n)
	if d <= 0 {
		return time.Time{}, false
	}
	at, ok := sched.At(n)
	if !ok {
		return time.Time{}, false
	}
	return at.Add(d), true
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func stdout(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
