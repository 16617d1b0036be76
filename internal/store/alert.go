package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tillsync/internal/cache"
	"tillsync/internal/core/scope"
	"tillsync/internal/domain/alert"
	"tillsync/internal/remote"
	"tillsync/pkg/logger"
)

// KindAlert is the inventory alert cache namespace.
const KindAlert = "inventory-alert"

// AlertStore is the read-only inventory alert projection: low-stock and
// expiring products as reported by the server. It has no mutations and
// therefore never queues anything.
type AlertStore struct {
	sc    scope.Scope
	api   remote.ProductAPI
	cache cache.Cache
	log   *logger.Logger

	mu      sync.RWMutex
	items   []*alert.Alert
	lastErr error
}

// NewAlertStore creates the alert projection for a session.
func NewAlertStore(sc scope.Scope, api remote.ProductAPI, c cache.Cache, log *logger.Logger) *AlertStore {
	if log == nil {
		log = logger.Default()
	}
	return &AlertStore{
		sc:    sc,
		api:   api,
		cache: c,
		log:   log.WithComponent("store." + KindAlert),
	}
}

// Kind returns the alert kind name.
func (s *AlertStore) Kind() string { return KindAlert }

// Items returns the current alerts.
func (s *AlertStore) Items() []*alert.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*alert.Alert(nil), s.items...)
}

// Err returns the last sync error.
func (s *AlertStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Load serves the cached alerts, then refreshes from the server.
func (s *AlertStore) Load(ctx context.Context) error {
	if cached, ok := s.readCache(ctx); ok {
		s.mu.Lock()
		s.items = cached
		s.mu.Unlock()
	}
	return s.SyncWithServer(ctx)
}

// SyncWithServer rebuilds the projection from the low-stock and expiring
// listings. Alert derivation itself stays on the server.
func (s *AlertStore) SyncWithServer(ctx context.Context) error {
	lowStock, err := s.api.ListLowStockProducts(ctx, s.sc.OrgID)
	if err != nil {
		s.setErr(err)
		return err
	}
	expiring, err := s.api.ListExpiringProducts(ctx, s.sc.OrgID)
	if err != nil {
		s.setErr(err)
		return err
	}

	alerts := make([]*alert.Alert, 0, len(lowStock)+len(expiring))
	for _, p := range lowStock {
		alerts = append(alerts, alert.FromLowStock(p))
	}
	for _, p := range expiring {
		alerts = append(alerts, alert.FromExpiring(p))
	}

	s.mu.Lock()
	s.items = alerts
	s.lastErr = nil
	s.mu.Unlock()

	s.writeCache(ctx, alerts)
	return nil
}

func (s *AlertStore) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *AlertStore) readCache(ctx context.Context) ([]*alert.Alert, bool) {
	records, err := s.cache.Get(ctx, s.sc, KindAlert)
	if err != nil || len(records) == 0 {
		return nil, false
	}
	alerts := make([]*alert.Alert, 0, len(records))
	for _, r := range records {
		var a alert.Alert
		if err := json.Unmarshal(r.Payload, &a); err != nil {
			continue
		}
		alerts = append(alerts, &a)
	}
	return alerts, true
}

func (s *AlertStore) writeCache(ctx context.Context, alerts []*alert.Alert) {
	if err := s.cache.Clear(ctx, s.sc, KindAlert); err != nil {
		s.log.Warnw("cache clear failed", "error", err)
		return
	}
	records := make([]cache.Record, 0, len(alerts))
	now := time.Now().UTC()
	for _, a := range alerts {
		payload, err := json.Marshal(a)
		if err != nil {
			continue
		}
		records = append(records, cache.Record{
			Scope:     s.sc,
			Kind:      KindAlert,
			EntityID:  a.ID,
			Payload:   payload,
			UpdatedAt: now,
		})
	}
	if err := s.cache.Put(ctx, records); err != nil {
		s.log.Warnw("cache write failed", "error", err)
	}
}
