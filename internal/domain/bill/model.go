// Package bill provides the Bill document for the retail client.
// Finalization is enforced by the remote authority: once a bill is
// finalized the server rejects every mutation, and the client treats that
// rejection as terminal (never queued, never retried).
package bill

import (
	"time"

	"github.com/shopspring/decimal"

	"tillsync/internal/core/apperror"
	"tillsync/internal/core/id"
)

// Status represents bill lifecycle state.
type Status string

const (
	// StatusDraft - bill is editable
	StatusDraft Status = "draft"

	// StatusFinalized - bill is immutable, awaiting payment
	StatusFinalized Status = "finalized"

	// StatusPaid - bill is immutable and settled
	StatusPaid Status = "paid"
)

// Bill represents a customer bill.
type Bill struct {
	// ID is the server-assigned id, or a provisional id while a CREATE is
	// queued offline.
	ID string `db:"id" json:"id"`

	// Number is the human-readable bill number (server-assigned)
	Number string `db:"number" json:"number,omitempty"`

	CustomerID   string `db:"customer_id" json:"customerId,omitempty"`
	CustomerName string `db:"customer_name" json:"customerName,omitempty"`

	Status Status `db:"status" json:"status"`

	// Totals (calculated from lines)
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxAmount decimal.Decimal `db:"tax_amount" json:"taxAmount"`
	Total     decimal.Decimal `db:"total" json:"total"`

	// Table part: billed items
	Lines []Line `db:"-" json:"lines"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Line represents a line in the bill.
type Line struct {
	LineID      string          `db:"line_id" json:"lineId"`
	ProductID   string          `db:"product_id" json:"productId"`
	ProductName string          `db:"product_name" json:"productName,omitempty"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unitPrice"`
	TaxRate     decimal.Decimal `db:"tax_rate" json:"taxRate"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
}

// New creates a draft bill for a customer.
func New(customerID string) *Bill {
	now := time.Now().UTC()
	return &Bill{
		Status:     StatusDraft,
		CustomerID: customerID,
		Lines:      make([]Line, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// EntityID returns the current id (server-assigned or provisional).
func (b *Bill) EntityID() string { return b.ID }

// SetEntityID replaces the id.
func (b *Bill) SetEntityID(entityID string) { b.ID = entityID }

// AddLine adds a line and recalculates totals.
func (b *Bill) AddLine(productID, productName string, quantity, unitPrice, taxRate decimal.Decimal) {
	amount := quantity.Mul(unitPrice)
	b.Lines = append(b.Lines, Line{
		LineID:      id.NewString(),
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TaxRate:     taxRate,
		Amount:      amount,
	})
	b.recalculateTotals()
}

func (b *Bill) recalculateTotals() {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, l := range b.Lines {
		subtotal = subtotal.Add(l.Amount)
		tax = tax.Add(l.Amount.Mul(l.TaxRate).Div(decimal.NewFromInt(100)))
	}
	b.Subtotal = subtotal
	b.TaxAmount = tax
	b.Total = subtotal.Add(tax)
}

// IsFinal reports whether the bill is immutable.
func (b *Bill) IsFinal() bool {
	return b.Status == StatusFinalized || b.Status == StatusPaid
}

// Validate checks entity invariants.
func (b *Bill) Validate() error {
	if len(b.Lines) == 0 {
		return apperror.NewValidation("bill must have at least one line").
			WithDetail("field", "lines")
	}
	for i, l := range b.Lines {
		if l.ProductID == "" {
			return apperror.NewValidation("line product id is required").
				WithDetail("line", i)
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("line", i)
		}
	}
	return nil
}
