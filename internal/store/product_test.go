package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillsync/internal/cache"
	"tillsync/internal/core/apperror"
	"tillsync/internal/domain/alert"
	"tillsync/internal/domain/product"
	"tillsync/internal/queue"
	"tillsync/pkg/logger"
)

// fakeProductAPI adapts fakeAdapter to the full remote product surface and
// models server-side stock accounting: mutations change authoritative stock,
// rejections change nothing.
type fakeProductAPI struct {
	*fakeAdapter
	stockErr error
	lowStock []product.Product
	expiring []product.Product
}

func (f *fakeProductAPI) ListProducts(ctx context.Context, orgID string) ([]product.Product, error) {
	return f.List(ctx, orgID)
}

func (f *fakeProductAPI) CreateProduct(ctx context.Context, p product.Product) (*product.Product, error) {
	return f.Create(ctx, p)
}

func (f *fakeProductAPI) UpdateProduct(ctx context.Context, entityID string, p product.Product) (*product.Product, error) {
	return f.Update(ctx, entityID, p)
}

func (f *fakeProductAPI) DeleteProduct(ctx context.Context, entityID string) error {
	return f.Delete(ctx, entityID)
}

func (f *fakeProductAPI) ListLowStockProducts(context.Context, string) ([]product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.lowStock, nil
}

func (f *fakeProductAPI) ListExpiringProducts(context.Context, string) ([]product.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.expiring, nil
}

func (f *fakeProductAPI) RecordStockIn(_ context.Context, productID string, qty decimal.Decimal, _ string) error {
	return f.applyStock(productID, qty)
}

func (f *fakeProductAPI) RecordStockOut(_ context.Context, productID string, qty decimal.Decimal, _ string) error {
	return f.applyStock(productID, qty.Neg())
}

func (f *fakeProductAPI) AdjustStock(_ context.Context, productID string, qty decimal.Decimal, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stockErr != nil {
		return f.stockErr
	}
	p, ok := f.items[productID]
	if !ok {
		return apperror.NewNotFound("product", productID)
	}
	p.QuantityInStock = qty
	f.items[productID] = p
	return nil
}

func (f *fakeProductAPI) applyStock(productID string, delta decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stockErr != nil {
		return f.stockErr
	}
	p, ok := f.items[productID]
	if !ok {
		return apperror.NewNotFound("product", productID)
	}
	p.QuantityInStock = p.QuantityInStock.Add(delta)
	f.items[productID] = p
	return nil
}

func newProductHarness() (*ProductStore, *fakeProductAPI, *queue.Memory) {
	api := &fakeProductAPI{fakeAdapter: newFakeAdapter()}
	q := queue.NewMemory()
	st := NewProductStore(testScope, api, cache.NewMemory(), q, logger.Nop())
	return st, api, q
}

func TestStockOutRejectedLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	st, api, q := newProductHarness()
	api.seed(product.Product{ID: "p1", Name: "Milk 1L", QuantityInStock: decimal.NewFromInt(2)})
	require.NoError(t, st.Load(ctx))

	api.stockErr = apperror.NewInsufficientStock("p1", 5, 2)

	err := st.RecordStockOut(ctx, "p1", decimal.NewFromInt(5))
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInsufficientStock, apperror.Code(err))

	// local stock untouched, nothing queued, nothing retried
	items := st.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].QuantityInStock.Equal(decimal.NewFromInt(2)))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "stock mutations are never queued")
}

func TestStockInReloadsAuthoritativeStock(t *testing.T) {
	ctx := context.Background()
	st, api, _ := newProductHarness()
	api.seed(product.Product{ID: "p1", Name: "Milk 1L", QuantityInStock: decimal.NewFromInt(2)})
	require.NoError(t, st.Load(ctx))

	require.NoError(t, st.RecordStockIn(ctx, "p1", decimal.NewFromInt(10)))

	// the store shows whatever the server says, never a local computation
	items := st.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].QuantityInStock.Equal(decimal.NewFromInt(12)),
		"stock = %s", items[0].QuantityInStock)
}

func TestAdjustStockSetsAbsoluteLevel(t *testing.T) {
	ctx := context.Background()
	st, api, _ := newProductHarness()
	api.seed(product.Product{ID: "p1", Name: "Milk 1L", QuantityInStock: decimal.NewFromInt(7)})
	require.NoError(t, st.Load(ctx))

	require.NoError(t, st.AdjustStock(ctx, "p1", decimal.NewFromInt(3)))

	items := st.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].QuantityInStock.Equal(decimal.NewFromInt(3)))
}

func TestStockMutationReloadsAlerts(t *testing.T) {
	ctx := context.Background()
	api := &fakeProductAPI{fakeAdapter: newFakeAdapter()}
	api.seed(product.Product{ID: "p1", Name: "Milk 1L",
		QuantityInStock: decimal.NewFromInt(10), MinStockLevel: decimal.NewFromInt(5)})

	c := cache.NewMemory()
	st := NewProductStore(testScope, api, c, queue.NewMemory(), logger.Nop())
	alerts := NewAlertStore(testScope, api, c, logger.Nop())
	st.BindAlerts(alerts)
	require.NoError(t, st.Load(ctx))
	require.NoError(t, alerts.Load(ctx))
	assert.Empty(t, alerts.Items())

	// the mutation drops stock below the minimum; the server now reports it
	api.lowStock = []product.Product{{ID: "p1", Name: "Milk 1L",
		QuantityInStock: decimal.NewFromInt(4), MinStockLevel: decimal.NewFromInt(5)}}

	require.NoError(t, st.RecordStockOut(ctx, "p1", decimal.NewFromInt(6)))

	got := alerts.Items()
	require.Len(t, got, 1)
	assert.Equal(t, alert.KindLowStock, got[0].Kind)
	assert.Equal(t, "p1", got[0].ProductID)
}
