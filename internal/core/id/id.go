// Package id provides UUIDv7 generation for entities and queued transactions.
// UUIDv7 is time-ordered, which gives queued transactions monotonic-enough
// ids for FIFO replay without a separate sequence.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// ID is a type alias for UUID.
type ID = uuid.UUID

// ProvisionalPrefix marks a client-synthesized, non-authoritative id.
// A provisional id is assigned when a CREATE cannot reach the server and is
// retired once the server assigns the real id. It must never be reused.
const ProvisionalPrefix = "local-"

// New generates a new UUIDv7 (time-ordered UUID).
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if V7 fails (should never happen)
		return uuid.New()
	}
	return id
}

// NewString generates a new UUIDv7 as a string.
func NewString() string {
	return New().String()
}

// NewProvisional generates a provisional entity id.
func NewProvisional() string {
	return ProvisionalPrefix + New().String()
}

// IsProvisional reports whether s carries the non-authoritative marker.
func IsProvisional(s string) bool {
	return strings.HasPrefix(s, ProvisionalPrefix)
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}
