package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smokyabdulrahman/prayer-notifier/internal/api"
	"github.com/smokyabdulrahman/prayer-notifier/internal/geo"
)

const (
	calendarCacheFile = "calendar_%s.json" // keyed by hash
	geoCacheFile      = "geolocation.json"
	geoTTL            = 24 * time.Hour
)

// Cache provides file-based caching for monthly prayer calendars and
// geolocation data.
type Cache struct {
	dir string
	now func() time.Time
}

// CalendarEntry stores a month of prayer times along with the parameters
// that produced it.
type CalendarEntry struct {
	Year     int        `json:"year"`
	Month    int        `json:"month"`
	Method   int        `json:"method"`
	School   int        `json:"school"`
	Days     []api.Data `json:"days"`
	CachedAt time.Time  `json:"cached_at"`
}

// Calendar returns the entry as an API calendar response.
func (e *CalendarEntry) Calendar() *api.CalendarResponse {
	return &api.CalendarResponse{Code: 200, Status: "OK", Data: e.Days}
}

// GeoCacheEntry stores a cached geolocation result with a timestamp.
type GeoCacheEntry struct {
	Location geo.Location `json:"location"`
	CachedAt time.Time    `json:"cached_at"`
}

// New creates a Cache rooted at the given directory.
// If dir is empty, it defaults to ~/.cache/prayer-notifier/.
func New(dir string) (*Cache, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".cache", "prayer-notifier")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", dir, err)
	}

	return &Cache{dir: dir, now: time.Now}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// calendarKey builds a deterministic hash from the parameters that affect
// prayer times, so different locations/methods/schools get separate files.
func calendarKey(year int, month time.Month, q api.Query) string {
	raw := fmt.Sprintf("%04d-%02d|%.6f|%.6f|%s|%s|%d|%d",
		year, int(month), q.Latitude, q.Longitude, q.City, q.Country, q.Method, q.School)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8]) // 16 hex chars is plenty for uniqueness
}

func (c *Cache) calendarPath(year int, month time.Month, q api.Query) string {
	return filepath.Join(c.dir, fmt.Sprintf(calendarCacheFile, calendarKey(year, month, q)))
}

// LoadCalendar reads a cached month for the given parameters.
// Returns nil if the cache is missing, corrupt or for another month.
func (c *Cache) LoadCalendar(year int, month time.Month, q api.Query) *CalendarEntry {
	data, err := os.ReadFile(c.calendarPath(year, month, q))
	if err != nil {
		return nil
	}

	var entry CalendarEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}

	if entry.Year != year || entry.Month != int(month) || len(entry.Days) == 0 {
		return nil
	}

	return &entry
}

// SaveCalendar writes a month of prayer times to the cache.
func (c *Cache) SaveCalendar(year int, month time.Month, q api.Query, resp *api.CalendarResponse) error {
	entry := CalendarEntry{
		Year:     year,
		Month:    int(month),
		Method:   q.Method,
		School:   q.School,
		Days:     resp.Data,
		CachedAt: c.now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := writeFileAtomic(c.calendarPath(year, month, q), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// Prune removes calendar files not modified within maxAge.
func (c *Cache) Prune(maxAge time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, fmt.Sprintf(calendarCacheFile, "*")))
	if err != nil {
		return 0, err
	}

	cutoff := c.now().Add(-maxAge)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// LoadGeo attempts to read a cached geolocation result.
// Returns nil if the cache is missing or older than the TTL (24 hours).
func (c *Cache) LoadGeo() *geo.Location {
	path := filepath.Join(c.dir, geoCacheFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var entry GeoCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}

	if c.now().Sub(entry.CachedAt) > geoTTL {
		return nil
	}

	return &entry.Location
}

// SaveGeo writes a geolocation result to the cache.
func (c *Cache) SaveGeo(loc *geo.Location) error {
	path := filepath.Join(c.dir, geoCacheFile)

	entry := GeoCacheEntry{
		Location: *loc,
		CachedAt: c.now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal geo cache: %w", err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write geo cache: %w", err)
	}

	return nil
}

// writeFileAtomic writes through a temp file and rename so concurrent
// readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
