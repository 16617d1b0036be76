// Package store provides the reactive entity stores the UI works against.
// Each store owns the in-memory projection of one entity kind for one tenant
// session, reads and writes the local cache, talks to the remote API, and
// queues mutations it cannot confirm. Stores are created per session and
// addressed through their handle, never through global lookup.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"tillsync/internal/cache"
	"tillsync/internal/core/apperror"
	"tillsync/internal/core/id"
	"tillsync/internal/core/scope"
	"tillsync/internal/queue"
	"tillsync/pkg/logger"
)

// CachePolicy selects how Load treats the local cache.
type CachePolicy int

const (
	// CacheFirst serves the cached snapshot immediately, then overwrites it
	// with the remote result when it arrives.
	CacheFirst CachePolicy = iota

	// RemoteFirst skips the cache on read; the cache is written only as a
	// write-through for future offline lookups.
	RemoteFirst
)

// Entity is the contract shared by all synced entity kinds.
type Entity interface {
	EntityID() string
	SetEntityID(entityID string)
}

// Adapter is the remote CRUD surface for one entity kind.
type Adapter[T any] interface {
	List(ctx context.Context, orgID string) ([]T, error)
	Create(ctx context.Context, item T) (*T, error)
	Update(ctx context.Context, entityID string, item T) (*T, error)
	Delete(ctx context.Context, entityID string) error
}

// Config configures a Store.
type Config[T any] struct {
	// Kind names the entity kind; it is also the cache namespace.
	Kind string

	// EntityType tags queued transactions for this store.
	EntityType queue.EntityType

	// Scope is the tenant session scope. All reads and writes are bound
	// to it.
	Scope scope.Scope

	Policy CachePolicy
	Remote Adapter[T]
	Cache  cache.Cache
	Queue  queue.Queue

	// SearchText extracts the searchable field values of an item.
	SearchText func(item *T) []string

	// Payload wraps an item into its queue payload variant.
	Payload func(item T) queue.Payload

	// Decode extracts the item from a queued transaction payload.
	Decode func(tx *queue.Transaction) (T, error)

	Log *logger.Logger
}

// Store is the generic entity store. T is the entity value type; PT is its
// pointer type carrying the Entity methods.
type Store[T any, PT interface {
	Entity
	*T
}] struct {
	cfg Config[T]
	log *logger.Logger

	mu          sync.RWMutex
	items       []T
	pendingSync []T
	promoted    map[string]string // provisional id -> server id
	loading     bool
	lastErr     error
}

// New creates a store for one entity kind and one tenant session.
func New[T any, PT interface {
	Entity
	*T
}](cfg Config[T]) *Store[T, PT] {
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	return &Store[T, PT]{
		cfg:      cfg,
		log:      log.WithComponent("store." + cfg.Kind),
		promoted: make(map[string]string),
	}
}

// Scope returns the session scope the store is bound to.
func (s *Store[T, PT]) Scope() scope.Scope { return s.cfg.Scope }

// Kind returns the entity kind name.
func (s *Store[T, PT]) Kind() string { return s.cfg.Kind }

// --- Observable state ---

// Items returns a copy of the current in-memory state.
func (s *Store[T, PT]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.items...)
}

// PendingSync returns the entities awaiting server confirmation.
func (s *Store[T, PT]) PendingSync() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.pendingSync...)
}

// Loading reports whether a load is in flight.
func (s *Store[T, PT]) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last action error, or nil after a successful action.
func (s *Store[T, PT]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// --- Load / sync ---

// Load populates the store according to its cache policy. Both policies end
// with in-memory state and cache fully replaced by the remote result when
// the remote call succeeds; remote is always authoritative.
func (s *Store[T, PT]) Load(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if s.cfg.Policy == CacheFirst {
		if cached, ok := s.readCache(ctx); ok {
			s.replaceItems(cached)
		}
	}

	return s.SyncWithServer(ctx)
}

// SyncWithServer fetches the authoritative state and fully replaces the
// in-memory projection and the cache. Entities still awaiting server
// confirmation stay in the projection: the server cannot know about them
// yet, so dropping them would hide queued work from the UI.
func (s *Store[T, PT]) SyncWithServer(ctx context.Context) error {
	items, err := s.cfg.Remote.List(ctx, s.cfg.Scope.OrgID)
	if err != nil {
		s.setErr(err)
		return err
	}

	merged := s.mergeServerItems(items)
	s.setErr(nil)
	s.writeCacheAll(ctx, merged)
	return nil
}

// mergeServerItems replaces the projection with the server list plus any
// pendingSync entity the server does not carry, and returns the result.
func (s *Store[T, PT]) mergeServerItems(items []T) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := append([]T(nil), items...)
	for i := range s.pendingSync {
		pendingID := PT(&s.pendingSync[i]).EntityID()
		known := false
		for j := range merged {
			if PT(&merged[j]).EntityID() == pendingID {
				known = true
				break
			}
		}
		if !known {
			merged = append(merged, s.pendingSync[i])
		}
	}
	s.items = append([]T(nil), merged...)
	return merged
}

// --- Mutations ---

// Create attempts a remote create. On success the server entity is appended
// to state and cache. On a transient failure a provisional entity is
// synthesized, queued as a CREATE transaction, and the error is re-raised so
// the caller can show a queued state. Terminal failures synthesize and
// queue nothing.
func (s *Store[T, PT]) Create(ctx context.Context, item T) (*T, error) {
	created, err := s.cfg.Remote.Create(ctx, item)
	if err == nil {
		s.appendItem(*created)
		s.setErr(nil)
		s.writeCacheOne(ctx, *created)
		return created, nil
	}

	s.setErr(err)
	if !apperror.IsRetryable(err) {
		return nil, err
	}

	// Offline: synthesize a provisional entity and queue the intent.
	PT(&item).SetEntityID(id.NewProvisional())
	provisionalID := PT(&item).EntityID()

	if _, qErr := s.cfg.Queue.Enqueue(ctx, s.cfg.EntityType, queue.TypeCreate, provisionalID, s.cfg.Payload(item)); qErr != nil {
		if apperror.IsStorage(qErr) {
			// Queue storage lost durability for this session; keep the
			// in-memory intent and carry on.
			s.log.Warnw("queue unavailable, mutation held in memory only", "error", qErr)
		} else {
			return nil, qErr
		}
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.pendingSync = append(s.pendingSync, item)
	s.mu.Unlock()

	s.writeCacheOne(ctx, item)

	s.log.Infow("queued offline create", "entity_id", provisionalID)
	return &item, err
}

// Update optimistically replaces the in-memory entity, then attempts the
// remote update. A terminal rejection rolls the optimistic change back; a
// transient failure keeps it, but nothing is queued automatically - use
// QueueUpdate for that.
func (s *Store[T, PT]) Update(ctx context.Context, entityID string, item T) (*T, error) {
	prev, found := s.findItem(entityID)
	if !found {
		err := apperror.NewNotFound(s.cfg.Kind, entityID)
		s.setErr(err)
		return nil, err
	}

	PT(&item).SetEntityID(entityID)
	s.replaceItem(entityID, item)

	updated, err := s.cfg.Remote.Update(ctx, entityID, item)
	if err == nil {
		s.replaceItem(entityID, *updated)
		s.setErr(nil)
		s.writeCacheOne(ctx, *updated)
		return updated, nil
	}

	s.setErr(err)
	if apperror.IsTerminal(err) {
		s.replaceItem(entityID, prev)
	}
	return nil, err
}

// Delete optimistically removes the entity, then attempts the remote
// delete. A terminal rejection restores it; a transient failure keeps the
// removal, but nothing is queued automatically - use QueueDelete for that.
func (s *Store[T, PT]) Delete(ctx context.Context, entityID string) error {
	prev, found := s.findItem(entityID)
	if !found {
		err := apperror.NewNotFound(s.cfg.Kind, entityID)
		s.setErr(err)
		return err
	}

	s.removeItem(entityID)

	err := s.cfg.Remote.Delete(ctx, entityID)
	if err == nil {
		s.setErr(nil)
		return nil
	}

	s.setErr(err)
	if apperror.IsTerminal(err) {
		s.appendItem(prev)
	}
	return err
}

// QueueUpdate runs Update and, when the failure is transient, queues the
// mutation for replay. Terminal errors are never queued: retrying them
// cannot succeed.
func (s *Store[T, PT]) QueueUpdate(ctx context.Context, entityID string, item T) (*T, error) {
	updated, err := s.Update(ctx, entityID, item)
	if err == nil {
		return updated, nil
	}
	if !apperror.IsRetryable(err) {
		return nil, err
	}

	PT(&item).SetEntityID(entityID)
	if _, qErr := s.cfg.Queue.Enqueue(ctx, s.cfg.EntityType, queue.TypeUpdate, entityID, s.cfg.Payload(item)); qErr != nil {
		if !apperror.IsStorage(qErr) {
			return nil, qErr
		}
		s.log.Warnw("queue unavailable, mutation held in memory only", "error", qErr)
	}

	s.mu.Lock()
	s.pendingSync = append(s.pendingSync, item)
	s.mu.Unlock()

	s.log.Infow("queued offline update", "entity_id", entityID)
	return &item, err
}

// QueueDelete runs Delete and, when the failure is transient, queues the
// mutation for replay.
func (s *Store[T, PT]) QueueDelete(ctx context.Context, entityID string) error {
	err := s.Delete(ctx, entityID)
	if err == nil {
		return nil
	}
	if !apperror.IsRetryable(err) {
		return err
	}

	if _, qErr := s.cfg.Queue.Enqueue(ctx, s.cfg.EntityType, queue.TypeDelete, entityID, nil); qErr != nil {
		if !apperror.IsStorage(qErr) {
			return qErr
		}
		s.log.Warnw("queue unavailable, mutation held in memory only", "error", qErr)
	}

	s.log.Infow("queued offline delete", "entity_id", entityID)
	return err
}

// Search returns items whose searchable fields contain the query,
// case-insensitively. It operates on current in-memory state only.
func (s *Store[T, PT]) Search(query string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.Items()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []T
	for i := range s.items {
		for _, field := range s.cfg.SearchText(&s.items[i]) {
			if strings.Contains(strings.ToLower(field), q) {
				out = append(out, s.items[i])
				break
			}
		}
	}
	return out
}

// --- Internal state helpers ---

func (s *Store[T, PT]) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Store[T, PT]) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Store[T, PT]) replaceItems(items []T) {
	s.mu.Lock()
	s.items = append([]T(nil), items...)
	s.mu.Unlock()
}

func (s *Store[T, PT]) appendItem(item T) {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
}

func (s *Store[T, PT]) findItem(entityID string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.items {
		if PT(&s.items[i]).EntityID() == entityID {
			return s.items[i], true
		}
	}
	var zero T
	return zero, false
}

func (s *Store[T, PT]) replaceItem(entityID string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if PT(&s.items[i]).EntityID() == entityID {
			s.items[i] = item
			return
		}
	}
	s.items = append(s.items, item)
}

func (s *Store[T, PT]) removeItem(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if PT(&s.items[i]).EntityID() == entityID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// --- Cache plumbing ---
// Storage failures degrade to in-memory-only operation: they are logged and
// swallowed, never propagated to the business action.

func (s *Store[T, PT]) readCache(ctx context.Context) ([]T, bool) {
	records, err := s.cfg.Cache.Get(ctx, s.cfg.Scope, s.cfg.Kind)
	if err != nil {
		s.log.Warnw("cache read failed, skipping snapshot", "error", err)
		return nil, false
	}
	if len(records) == 0 {
		return nil, false
	}

	items := make([]T, 0, len(records))
	for _, r := range records {
		var item T
		if err := json.Unmarshal(r.Payload, &item); err != nil {
			s.log.Warnw("cache record corrupt, skipping", "entity_id", r.EntityID, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, true
}

func (s *Store[T, PT]) writeCacheAll(ctx context.Context, items []T) {
	if err := s.cfg.Cache.Clear(ctx, s.cfg.Scope, s.cfg.Kind); err != nil {
		s.log.Warnw("cache clear failed", "error", err)
		return
	}

	records := make([]cache.Record, 0, len(items))
	now := time.Now().UTC()
	for i := range items {
		payload, err := json.Marshal(items[i])
		if err != nil {
			continue
		}
		records = append(records, cache.Record{
			Scope:     s.cfg.Scope,
			Kind:      s.cfg.Kind,
			EntityID:  PT(&items[i]).EntityID(),
			Payload:   payload,
			UpdatedAt: now,
		})
	}
	if err := s.cfg.Cache.Put(ctx, records); err != nil {
		s.log.Warnw("cache write failed", "error", err)
	}
}

func (s *Store[T, PT]) writeCacheOne(ctx context.Context, item T) {
	payload, err := json.Marshal(item)
	if err != nil {
		return
	}
	record := cache.Record{
		Scope:     s.cfg.Scope,
		Kind:      s.cfg.Kind,
		EntityID:  PT(&item).EntityID(),
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.cfg.Cache.Put(ctx, []cache.Record{record}); err != nil {
		s.log.Warnw("cache write failed", "error", err)
	}
}
