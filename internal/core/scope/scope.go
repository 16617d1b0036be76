// Package scope provides the tenant scope every read and write is filtered by.
// A scope is the (organization, store) pair; records from one scope must never
// leak into another.
package scope

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoScopeInContext is returned when a scope is required but absent.
var ErrNoScopeInContext = errors.New("tenant scope not found in context")

// Scope identifies the tenant boundary for cached and in-memory state.
type Scope struct {
	// OrgID is the organization identifier. Required.
	OrgID string `json:"orgId" db:"org"`

	// StoreID is the store/branch identifier within the organization.
	// Optional: an empty StoreID means org-wide scope.
	StoreID string `json:"storeId" db:"store"`
}

// New creates a scope for the given organization and store.
func New(orgID, storeID string) Scope {
	return Scope{OrgID: orgID, StoreID: storeID}
}

// Validate checks scope invariants.
func (s Scope) Validate() error {
	if s.OrgID == "" {
		return fmt.Errorf("scope: org id is required")
	}
	return nil
}

// IsZero reports whether the scope is empty.
func (s Scope) IsZero() bool {
	return s.OrgID == "" && s.StoreID == ""
}

// Matches reports whether a record scoped by (org, store) belongs to s.
// An org-wide scope (empty StoreID) matches any store in the org.
func (s Scope) Matches(orgID, storeID string) bool {
	if s.OrgID != orgID {
		return false
	}
	if s.StoreID == "" {
		return true
	}
	return s.StoreID == storeID
}

func (s Scope) String() string {
	if s.StoreID == "" {
		return s.OrgID
	}
	return s.OrgID + "/" + s.StoreID
}

// --- Context plumbing ---

type ctxKey struct{}

// WithScope stores the tenant scope in context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext retrieves the tenant scope from context.
func FromContext(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	if !ok || s.OrgID == "" {
		return Scope{}, ErrNoScopeInContext
	}
	return s, nil
}

// MustFromContext retrieves the tenant scope or panics.
// Use in places where a missing scope is a programming error.
func MustFromContext(ctx context.Context) Scope {
	s, err := FromContext(ctx)
	if err != nil {
		panic("tenant scope not in context")
	}
	return s
}
