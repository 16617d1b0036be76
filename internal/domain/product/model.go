// Package product provides the Product catalog for the retail client.
package product

import (
	"time"

	"github.com/shopspring/decimal"

	"tillsync/internal/core/apperror"
)

// Product represents a sellable item.
// QuantityInStock is server-computed: the client never derives stock locally,
// it reloads after every stock mutation.
type Product struct {
	// ID is the server-assigned id, or a provisional id while a CREATE is
	// queued offline (see id.ProvisionalPrefix).
	ID string `db:"id" json:"id"`

	// Code is the item SKU (unique within organization)
	Code string `db:"code" json:"code"`

	// Barcode is the item barcode (EAN-13, etc.)
	Barcode string `db:"barcode" json:"barcode,omitempty"`

	// Name is the display name
	Name string `db:"name" json:"name"`

	Category string `db:"category" json:"category,omitempty"`
	Brand    string `db:"brand" json:"brand,omitempty"`

	// Unit is the unit of measure (pcs, kg, ...)
	Unit string `db:"unit" json:"unit,omitempty"`

	// Price is the selling price
	Price decimal.Decimal `db:"price" json:"price"`

	// QuantityInStock is the authoritative stock level, never negative
	QuantityInStock decimal.Decimal `db:"quantity_in_stock" json:"quantityInStock"`

	// MinStockLevel triggers a low-stock alert when stock falls below it
	MinStockLevel decimal.Decimal `db:"min_stock_level" json:"minStockLevel"`

	// ExpiryDate for perishable goods
	ExpiryDate *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// EntityID returns the current id (server-assigned or provisional).
func (p *Product) EntityID() string { return p.ID }

// SetEntityID replaces the id. Used for provisional assignment and for
// promotion to the server-assigned id after a queued CREATE syncs.
func (p *Product) SetEntityID(id string) { p.ID = id }

// Validate checks entity invariants (no database or network access).
func (p *Product) Validate() error {
	if p.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	if p.Price.IsNegative() {
		return apperror.NewValidation("price must not be negative").
			WithDetail("field", "price")
	}
	return nil
}

// IsLowStock reports whether the product is at or below its minimum level.
func (p *Product) IsLowStock() bool {
	if p.MinStockLevel.IsZero() {
		return false
	}
	return p.QuantityInStock.LessThanOrEqual(p.MinStockLevel)
}

// ExpiresWithin reports whether the product expires within d from now.
func (p *Product) ExpiresWithin(now time.Time, d time.Duration) bool {
	if p.ExpiryDate == nil {
		return false
	}
	return p.ExpiryDate.Before(now.Add(d))
}
