// Package remote defines the contracts of the authoritative remote API and
// provides its HTTP client. The server owns every business invariant (stock
// conservation, bill immutability); all client writes are provisional until
// the server accepts them, and its rejections are final.
package remote

import (
	"context"

	"github.com/shopspring/decimal"

	"tillsync/internal/domain/bill"
	"tillsync/internal/domain/customer"
	"tillsync/internal/domain/product"
)

// ProductAPI is the product slice of the remote API.
// Stock endpoints return acceptance only: the client must never compute
// resulting stock locally, it reloads after any mutation.
type ProductAPI interface {
	ListProducts(ctx context.Context, orgID string) ([]product.Product, error)
	CreateProduct(ctx context.Context, p product.Product) (*product.Product, error)
	UpdateProduct(ctx context.Context, entityID string, p product.Product) (*product.Product, error)
	DeleteProduct(ctx context.Context, entityID string) error

	ListLowStockProducts(ctx context.Context, orgID string) ([]product.Product, error)
	ListExpiringProducts(ctx context.Context, orgID string) ([]product.Product, error)

	RecordStockIn(ctx context.Context, productID string, qty decimal.Decimal, orgID string) error
	RecordStockOut(ctx context.Context, productID string, qty decimal.Decimal, orgID string) error
	AdjustStock(ctx context.Context, productID string, qty decimal.Decimal, orgID string) error
}

// CustomerAPI is the customer slice of the remote API.
type CustomerAPI interface {
	ListCustomers(ctx context.Context, orgID string) ([]customer.Customer, error)
	CreateCustomer(ctx context.Context, c customer.Customer) (*customer.Customer, error)
	UpdateCustomer(ctx context.Context, entityID string, c customer.Customer) (*customer.Customer, error)
	DeleteCustomer(ctx context.Context, entityID string) error
}

// BillAPI is the billing slice of the remote API.
type BillAPI interface {
	ListBills(ctx context.Context, orgID string) ([]bill.Bill, error)
	CreateBill(ctx context.Context, b bill.Bill) (*bill.Bill, error)
	UpdateBill(ctx context.Context, entityID string, b bill.Bill) (*bill.Bill, error)
	DeleteBill(ctx context.Context, entityID string) error
}

// API aggregates the full remote surface the engine consumes.
type API interface {
	ProductAPI
	CustomerAPI
	BillAPI
}

// Probe reports connectivity to the remote authority.
type Probe interface {
	Online(ctx context.Context) bool
}
