package store

import (
	"context"

	"github.com/shopspring/decimal"

	"tillsync/internal/cache"
	"tillsync/internal/core/scope"
	"tillsync/internal/domain/product"
	"tillsync/internal/queue"
	"tillsync/internal/remote"
	"tillsync/pkg/logger"
)

// KindProduct is the product cache namespace.
const KindProduct = "product"

// ProductStore is the product projection for one tenant session.
// Stock mutations go through dedicated endpoints that return acceptance
// only; the store reloads products and alerts afterwards instead of
// computing stock locally. Stock mutations are never queued.
type ProductStore struct {
	*Store[product.Product, *product.Product]
	api    remote.ProductAPI
	alerts *AlertStore
}

// NewProductStore creates the product store for a session. Products are
// cache-first: the cached snapshot is served while the remote result loads.
func NewProductStore(sc scope.Scope, api remote.ProductAPI, c cache.Cache, q queue.Queue, log *logger.Logger) *ProductStore {
	base := New[product.Product, *product.Product](Config[product.Product]{
		Kind:       KindProduct,
		EntityType: queue.EntityProduct,
		Scope:      sc,
		Policy:     CacheFirst,
		Remote:     productAdapter{api},
		Cache:      c,
		Queue:      q,
		SearchText: func(p *product.Product) []string {
			return []string{p.Name, p.Category, p.Brand}
		},
		Payload: func(p product.Product) queue.Payload {
			return queue.ProductPayload{Product: p}
		},
		Decode: func(tx *queue.Transaction) (product.Product, error) {
			p, err := queue.DecodeProduct(tx)
			if err != nil {
				return product.Product{}, err
			}
			return p.Product, nil
		},
		Log: log,
	})
	return &ProductStore{Store: base, api: api}
}

// BindAlerts makes stock mutations reload the given alert projection.
func (s *ProductStore) BindAlerts(alerts *AlertStore) {
	s.alerts = alerts
}

// RecordStockIn records an incoming stock movement and reloads.
func (s *ProductStore) RecordStockIn(ctx context.Context, productID string, qty decimal.Decimal) error {
	return s.stockMutation(ctx, productID, qty, s.api.RecordStockIn)
}

// RecordStockOut records an outgoing stock movement and reloads. A rejected
// decrement (insufficient stock) leaves local state unchanged: the store
// never touched it.
func (s *ProductStore) RecordStockOut(ctx context.Context, productID string, qty decimal.Decimal) error {
	return s.stockMutation(ctx, productID, qty, s.api.RecordStockOut)
}

// AdjustStock sets an absolute stock correction and reloads.
func (s *ProductStore) AdjustStock(ctx context.Context, productID string, qty decimal.Decimal) error {
	return s.stockMutation(ctx, productID, qty, s.api.AdjustStock)
}

func (s *ProductStore) stockMutation(ctx context.Context, productID string, qty decimal.Decimal, call func(context.Context, string, decimal.Decimal, string) error) error {
	if err := call(ctx, productID, qty, s.cfg.Scope.OrgID); err != nil {
		s.setErr(err)
		return err
	}

	if err := s.SyncWithServer(ctx); err != nil {
		return err
	}
	if s.alerts != nil {
		if err := s.alerts.SyncWithServer(ctx); err != nil {
			s.log.Warnw("alert reload after stock mutation failed", "error", err)
		}
	}
	return nil
}

type productAdapter struct {
	api remote.ProductAPI
}

func (a productAdapter) List(ctx context.Context, orgID string) ([]product.Product, error) {
	return a.api.ListProducts(ctx, orgID)
}

func (a productAdapter) Create(ctx context.Context, p product.Product) (*product.Product, error) {
	return a.api.CreateProduct(ctx, p)
}

func (a productAdapter) Update(ctx context.Context, entityID string, p product.Product) (*product.Product, error) {
	return a.api.UpdateProduct(ctx, entityID, p)
}

func (a productAdapter) Delete(ctx context.Context, entityID string) error {
	return a.api.DeleteProduct(ctx, entityID)
}
