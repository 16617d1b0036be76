// Package queue provides the durable, FIFO-ordered log of mutation intents
// awaiting confirmation by the remote authority. It guarantees at-least-once
// delivery of offline mutations: an entry survives until synced or removed.
package queue

import (
	"context"
	"time"

	"tillsync/internal/core/apperror"
)

// EntityType identifies the entity kind a transaction targets.
type EntityType string

const (
	EntityProduct  EntityType = "product"
	EntityCustomer EntityType = "customer"
	EntityBill     EntityType = "bill"
)

// Type identifies the mutation kind.
type Type string

const (
	TypeCreate Type = "CREATE"
	TypeUpdate Type = "UPDATE"
	TypeDelete Type = "DELETE"
)

// Status represents the transaction lifecycle state.
//
// pending -> (processing) -> synced     terminal, eligible for pruning
//
//	-> failed     terminal-inspectable, manual retry or removal
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
	StatusSynced     Status = "synced"
)

// DefaultMaxRetries bounds automatic replay attempts per transaction.
const DefaultMaxRetries = 3

// ProcessingStaleAfter is the window after which a processing transaction is
// treated as resumable. A sync cycle that never resolved must not wedge the
// queue, so ListPending picks these rows up again.
const ProcessingStaleAfter = 5 * time.Minute

// Transaction is one queued mutation intent.
// Created by an EntityStore when a mutating call cannot be confirmed
// remotely; mutated only by the replay engine or explicit user action.
type Transaction struct {
	// ID is a UUIDv7: the embedded timestamp preserves enqueue order.
	ID string `db:"id" json:"id"`

	EntityType EntityType `db:"entity_type" json:"entityType"`
	Type       Type       `db:"tx_type" json:"type"`

	// EntityID is the target entity; provisional for offline CREATEs.
	EntityID string `db:"entity_id" json:"entityId,omitempty"`

	// Payload is the encoded tagged payload, validated at enqueue time.
	Payload []byte `db:"payload" json:"payload,omitempty"`

	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
	RetryCount int       `db:"retry_count" json:"retryCount"`
	MaxRetries int       `db:"max_retries" json:"maxRetries"`
	Status     Status    `db:"status" json:"status"`
	LastError  string    `db:"last_error" json:"error,omitempty"`
}

// Replayable reports whether the transaction should be picked up by a
// replay pass: pending, or processing long enough to be presumed abandoned.
func (t *Transaction) Replayable(now time.Time) bool {
	switch t.Status {
	case StatusPending:
		return true
	case StatusProcessing:
		return now.Sub(t.UpdatedAt) >= ProcessingStaleAfter
	}
	return false
}

// StatusPatch is a partial update applied by UpdateStatus.
type StatusPatch struct {
	Status     *Status
	RetryCount *int
	LastError  *string
}

// Queue is the pending transaction log contract.
// Ordering: transactions for the same entity id replay in enqueue order;
// transactions for different entities carry no relative ordering guarantee.
type Queue interface {
	// Enqueue validates the payload and appends a pending transaction.
	Enqueue(ctx context.Context, et EntityType, tt Type, entityID string, p Payload) (*Transaction, error)

	// UpdateStatus applies a partial status update.
	UpdateStatus(ctx context.Context, txID string, patch StatusPatch) error

	// Remove deletes a transaction (user dismissal of a failed entry).
	Remove(ctx context.Context, txID string) error

	// Retry moves a failed transaction back to pending with a fresh retry
	// budget.
	Retry(ctx context.Context, txID string) error

	// ReassignEntity rewrites the entity id on every unsynced transaction
	// targeting fromEntityID. Called when a provisional entity is promoted,
	// so that queued dependents survive a restart with the server id.
	ReassignEntity(ctx context.Context, fromEntityID, toEntityID string) error

	// ListPending returns replayable transactions in insertion order.
	ListPending(ctx context.Context) ([]*Transaction, error)

	// ListFailed returns exhausted transactions for inspection.
	ListFailed(ctx context.Context) ([]*Transaction, error)

	// ClearSynced prunes terminal synced transactions.
	ClearSynced(ctx context.Context) error

	// CountUnsynced counts entries not yet confirmed by the server:
	// pending, processing, or failed.
	CountUnsynced(ctx context.Context) (int, error)
}

// ValidateIntent checks the (entity type, tx type, entity id, payload)
// combination before anything is persisted. Failing fast here keeps
// malformed intents out of the replay path entirely.
func ValidateIntent(et EntityType, tt Type, entityID string, p Payload) error {
	switch et {
	case EntityProduct, EntityCustomer, EntityBill:
	default:
		return apperror.NewValidation("unknown entity type").WithDetail("entity_type", string(et))
	}

	switch tt {
	case TypeCreate:
		if p == nil {
			return apperror.NewValidation("create requires a payload")
		}
	case TypeUpdate:
		if entityID == "" {
			return apperror.NewValidation("update requires an entity id")
		}
		if p == nil {
			return apperror.NewValidation("update requires a payload")
		}
	case TypeDelete:
		if entityID == "" {
			return apperror.NewValidation("delete requires an entity id")
		}
	default:
		return apperror.NewValidation("unknown transaction type").WithDetail("tx_type", string(tt))
	}

	if p != nil {
		if p.EntityType() != et {
			return apperror.NewValidation("payload entity type mismatch").
				WithDetail("entity_type", string(et)).
				WithDetail("payload_type", string(p.EntityType()))
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
