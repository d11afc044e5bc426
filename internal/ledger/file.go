package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File persists records as a JSON object of "{date}:{prayer}:{kind}" to an
// RFC 3339 timestamp. Every mark rewrites the file through a rename so a
// crash never leaves it half written.
type File struct {
	path    string
	mu      sync.Mutex
	records map[string]time.Time
}

// OpenFile loads path, creating its directory. A missing file is an empty ledger.
func OpenFile(path string) (*File, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, ".local", "state", "prayer-notifier", "ledger.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create ledger directory: %w", err)
	}

	f := &File{path: path, records: make(map[string]time.Time)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.records); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	return f, nil
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) HasFired(_ context.Context, key Key) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[key.String()]
	return ok, nil
}

func (f *File) MarkFired(_ context.Context, key Key, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key.String()
	if _, ok := f.records[k]; ok {
		return false, nil
	}
	f.records[k] = at
	if err := f.flush(); err != nil {
		delete(f.records, k)
		return false, err
	}
	return true, nil
}

func (f *File) Prune(_ context.Context, today time.Time) (int, error) {
	cutoff := PruneCutoff(today)
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := make(map[string]time.Time)
	for k, at := range f.records {
		key, err := ParseKey(k)
		if err != nil || key.Date < cutoff {
			removed[k] = at
			delete(f.records, k)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := f.flush(); err != nil {
		for k, at := range removed {
			f.records[k] = at
		}
		return 0, err
	}
	return len(removed), nil
}

func (f *File) List(_ context.Context) ([]Record, error) {
	f.mu.Lock()
	recs := make([]Record, 0, len(f.records))
	for k, at := range f.records {
		key, err := ParseKey(k)
		if err != nil {
			continue
		}
		recs = append(recs, Record{Key: key, FiredAt: at})
	}
	f.mu.Unlock()
	sortRecords(recs)
	return recs, nil
}

func (f *File) Close() error { return nil }

// flush writes the records atomically. Caller holds f.mu.
func (f *File) flush() error {
	data, err := json.MarshalIndent(f.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
