package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory keeps records in process memory. Contents are lost on restart.
type Memory struct {
	mu      sync.Mutex
	records map[Key]time.Time
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{records: make(map[Key]time.Time)}
}

func (m *Memory) HasFired(_ context.Context, key Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[key]
	return ok, nil
}

func (m *Memory) MarkFired(_ context.Context, key Key, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.records[key] = at
	return true, nil
}

func (m *Memory) Prune(_ context.Context, today time.Time) (int, error) {
	cutoff := PruneCutoff(today)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.records {
		if k.Date < cutoff {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) List(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	recs := make([]Record, 0, len(m.records))
	for k, at := range m.records {
		recs = append(recs, Record{Key: k, FiredAt: at})
	}
	m.mu.Unlock()
	sortRecords(recs)
	return recs, nil
}

func (m *Memory) Close() error { return nil }
