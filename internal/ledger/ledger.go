// Package ledger records which prayer triggers have already fired so each
// notification goes out exactly once per occurrence.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
)

// Kind is the type of a trigger.
type Kind string

const (
	PreAdhan   Kind = "pre-adhan"
	Adhan      Kind = "adhan"
	IqamaStart Kind = "iqama-start"
	IqamaEnd   Kind = "iqama-end"
)

// Kinds lists every trigger kind.
var Kinds = []Kind{PreAdhan, Adhan, IqamaStart, IqamaEnd}

// ErrBadKey is returned when a stored key cannot be parsed.
var ErrBadKey = errors.New("malformed ledger key")

// RetainDays is how many days before today are kept by Prune.
const RetainDays = 2

const dateLayout = "2006-01-02"

// Key identifies a single trigger occurrence.
type Key struct {
	Date   string // YYYY-MM-DD in the schedule's location
	Prayer prayer.Name
	Kind   Kind
}

// NewKey builds a key for the calendar day of date.
func NewKey(date time.Time, p prayer.Name, kind Kind) Key {
	return Key{Date: date.Format(dateLayout), Prayer: p, Kind: kind}
}

// String renders the key as "{date}:{prayer}:{kind}".
func (k Key) String() string {
	return k.Date + ":" + k.Prayer.String() + ":" + string(k.Kind)
}

// ParseKey parses the String form of a key.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	if _, err := time.Parse(dateLayout, parts[0]); err != nil {
		return Key{}, fmt.Errorf("%w: bad date in %q", ErrBadKey, s)
	}
	n, err := prayer.ParseName(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	kind := Kind(parts[2])
	switch kind {
	case PreAdhan, Adhan, IqamaStart, IqamaEnd:
	default:
		return Key{}, fmt.Errorf("%w: unknown kind in %q", ErrBadKey, s)
	}
	return Key{Date: parts[0], Prayer: n, Kind: kind}, nil
}

// Record is a fired trigger.
type Record struct {
	Key     Key       `json:"key"`
	FiredAt time.Time `json:"fired_at"`
}

// Ledger is the append-only store of fired triggers. Implementations are safe
// for concurrent use.
type Ledger interface {
	// HasFired reports whether key has been marked.
	HasFired(ctx context.Context, key Key) (bool, error)
	// MarkFired records key. It returns true only for the call that created
	// the record; later calls for the same key are no-ops returning false.
	MarkFired(ctx context.Context, key Key, at time.Time) (bool, error)
	// Prune drops records dated more than RetainDays before today and
	// returns how many were removed. Same-day records are never removed.
	Prune(ctx context.Context, today time.Time) (int, error)
	// List returns every record ordered by date then fire time.
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// PruneCutoff returns the oldest date (YYYY-MM-DD) Prune keeps.
func PruneCutoff(today time.Time) string {
	return today.AddDate(0, 0, -RetainDays).Format(dateLayout)
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Key.Date != recs[j].Key.Date {
			return recs[i].Key.Date < recs[j].Key.Date
		}
		if !recs[i].FiredAt.Equal(recs[j].FiredAt) {
			return recs[i].FiredAt.Before(recs[j].FiredAt)
		}
		return recs[i].Key.String() < recs[j].Key.String()
	})
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Path        string // file backend
	RedisAddr   string
	RedisPass   string
	PostgresDSN string
}

// Open constructs the configured backend.
func Open(ctx context.Context, opts Options) (Ledger, error) {
	var (
		l   Ledger
		err error
	)
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		var f *File
		f, err = OpenFile(opts.Path)
		l = f
	case BackendRedis:
		var r *Redis
		r, err = OpenRedis(ctx, opts.RedisAddr, opts.RedisPass)
		l = r
	case BackendPostgres:
		var p *Postgres
		p, err = OpenPostgres(ctx, opts.PostgresDSN)
		l = p
	default:
		return nil, fmt.Errorf("unknown ledger backend %q: must be memory, file, redis or postgres", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}
