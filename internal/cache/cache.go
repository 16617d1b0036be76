// Package cache provides the tenant-scoped local cache of entity snapshots.
// The cache is an optimization and an offline read fallback only: session
// correctness never depends on it, and callers must swallow storage errors.
package cache

import (
	"context"
	"time"

	"tillsync/internal/core/scope"
)

// Record is one cached entity snapshot.
// One logical record exists per (org, store, kind, entity id); writes are
// last-write-wins with no versioning and no merge.
type Record struct {
	Scope     scope.Scope
	Kind      string
	EntityID  string
	Payload   []byte // JSON snapshot of the entity
	UpdatedAt time.Time
}

// Cache is the tenant-scoped cache contract.
// Get must never return a record whose scope differs from the requested one.
type Cache interface {
	// Get returns all cached records for (scope, kind).
	Get(ctx context.Context, sc scope.Scope, kind string) ([]Record, error)

	// Put upserts records keyed by (scope, kind, entity id).
	Put(ctx context.Context, records []Record) error

	// Clear removes all records for (scope, kind).
	Clear(ctx context.Context, sc scope.Scope, kind string) error
}
