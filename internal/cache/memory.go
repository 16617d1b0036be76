package cache

import (
	"context"
	"sync"
	"time"

	"tillsync/internal/core/scope"
)

// Memory is an in-memory Cache. It backs tests and the degraded mode used
// when the durable store is unavailable for the session.
type Memory struct {
	mu      sync.RWMutex
	records map[memKey]Record
}

type memKey struct {
	org, store, kind, entityID string
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{records: make(map[memKey]Record)}
}

// Get returns cached records for (scope, kind) only.
func (m *Memory) Get(_ context.Context, sc scope.Scope, kind string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for k, r := range m.records {
		if k.kind != kind {
			continue
		}
		if !sc.Matches(k.org, k.store) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Put upserts records, last write wins.
func (m *Memory) Put(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = time.Now().UTC()
		}
		m.records[memKey{r.Scope.OrgID, r.Scope.StoreID, r.Kind, r.EntityID}] = r
	}
	return nil
}

// Clear removes all records for (scope, kind).
func (m *Memory) Clear(_ context.Context, sc scope.Scope, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.records {
		if k.kind == kind && sc.Matches(k.org, k.store) {
			delete(m.records, k)
		}
	}
	return nil
}

// Len returns the number of cached records. For tests.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
