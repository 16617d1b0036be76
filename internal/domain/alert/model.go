// Package alert provides the inventory alert projection.
// Alerts are derived server-side from stock levels and expiry dates; the
// client only lists them and reloads after any stock mutation.
package alert

import (
	"time"

	"github.com/shopspring/decimal"

	"tillsync/internal/domain/product"
)

// Kind discriminates alert types.
type Kind string

const (
	// KindLowStock - quantity at or below the product minimum
	KindLowStock Kind = "low_stock"

	// KindExpiring - product expires soon
	KindExpiring Kind = "expiring"
)

// Alert represents one inventory alert row.
type Alert struct {
	ID          string          `db:"id" json:"id"`
	Kind        Kind            `db:"kind" json:"kind"`
	ProductID   string          `db:"product_id" json:"productId"`
	ProductName string          `db:"product_name" json:"productName"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	MinLevel    decimal.Decimal `db:"min_level" json:"minLevel"`
	ExpiryDate  *time.Time      `db:"expiry_date" json:"expiryDate,omitempty"`
}

// EntityID returns the alert id.
func (a *Alert) EntityID() string { return a.ID }

// SetEntityID replaces the id. Alerts are read-only; this exists to satisfy
// the shared entity contract.
func (a *Alert) SetEntityID(id string) { a.ID = id }

// FromLowStock builds an alert from a low-stock product listing.
func FromLowStock(p product.Product) *Alert {
	return &Alert{
		ID:          string(KindLowStock) + ":" + p.ID,
		Kind:        KindLowStock,
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    p.QuantityInStock,
		MinLevel:    p.MinStockLevel,
	}
}

// FromExpiring builds an alert from an expiring product listing.
func FromExpiring(p product.Product) *Alert {
	return &Alert{
		ID:          string(KindExpiring) + ":" + p.ID,
		Kind:        KindExpiring,
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    p.QuantityInStock,
		ExpiryDate:  p.ExpiryDate,
	}
}
