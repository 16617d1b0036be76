// Package customer provides the Customer catalog for the retail client.
package customer

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"tillsync/internal/core/apperror"
)

// Pre-compiled regex patterns for validation
var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Customer represents a buyer known to the organization.
type Customer struct {
	// ID is the server-assigned id, or a provisional id while a CREATE is
	// queued offline.
	ID string `db:"id" json:"id"`

	// Code is a human-readable identifier (unique within organization)
	Code string `db:"code" json:"code,omitempty"`

	// Name is the display name
	Name string `db:"name" json:"name"`

	Email string `db:"email" json:"email,omitempty"`
	Phone string `db:"phone" json:"phone,omitempty"`

	Address string `db:"address" json:"address,omitempty"`

	// CreditBalance is server-computed; read-only on the client
	CreditBalance decimal.Decimal `db:"credit_balance" json:"creditBalance"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// EntityID returns the current id (server-assigned or provisional).
func (c *Customer) EntityID() string { return c.ID }

// SetEntityID replaces the id.
func (c *Customer) SetEntityID(id string) { c.ID = id }

// Validate checks entity invariants.
func (c *Customer) Validate() error {
	if c.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	if c.Email != "" && !emailRE.MatchString(c.Email) {
		return apperror.NewValidation("invalid email format").
			WithDetail("field", "email")
	}
	return nil
}
