package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory. Totals are lost on exit.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	totals  map[string]*ModelStats
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{totals: make(map[string]*ModelStats)}
}

func (m *MemoryStore) Append(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, r)
	t, ok := m.totals[r.ModelName]
	if !ok {
		t = &ModelStats{Model: r.ModelName}
		m.totals[r.ModelName] = t
	}
	t.Calls++
	t.InputTokens += int64(r.InputTokens)
	t.OutputTokens += int64(r.OutputTokens)
	t.TotalPrice += r.Price
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) ([]ModelStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]ModelStats, 0, len(m.totals))
	for _, t := range m.totals {
		stats = append(stats, *t)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Model < stats[j].Model })
	return stats, nil
}

func (m *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	for _, r := range m.records {
		if !r.Time.Before(before) {
			kept = append(kept, r)
		}
	}
	n := int64(len(m.records) - len(kept))
	m.records = kept
	return n, nil
}

// Records returns a copy of the ledger rows.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

func (m *MemoryStore) Close() error { return nil }
