package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"tillsync/internal/core/apperror"
	"tillsync/internal/core/id"
)

// Memory is an in-memory Queue. It backs engine tests and the degraded mode
// used when the durable store is unavailable for the session.
type Memory struct {
	mu  sync.RWMutex
	txs map[string]*Transaction
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{txs: make(map[string]*Transaction)}
}

// Enqueue validates the intent and appends a pending transaction.
func (m *Memory) Enqueue(_ context.Context, et EntityType, tt Type, entityID string, p Payload) (*Transaction, error) {
	if err := ValidateIntent(et, tt, entityID, p); err != nil {
		return nil, err
	}
	payload, err := EncodePayload(p)
	if err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	now := time.Now().UTC()
	tx := &Transaction{
		ID:         id.NewString(),
		EntityType: et,
		Type:       tt,
		EntityID:   entityID,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
		Status:     StatusPending,
	}

	m.mu.Lock()
	m.txs[tx.ID] = tx
	m.mu.Unlock()
	return cloneTx(tx), nil
}

// UpdateStatus applies a partial status update.
func (m *Memory) UpdateStatus(_ context.Context, txID string, patch StatusPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[txID]
	if !ok {
		return apperror.NewNotFound("transaction", txID)
	}
	applyPatch(tx, patch)
	return nil
}

// Remove deletes a transaction.
func (m *Memory) Remove(_ context.Context, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txs, txID)
	return nil
}

// Retry moves a failed transaction back to pending.
func (m *Memory) Retry(_ context.Context, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[txID]
	if !ok {
		return apperror.NewNotFound("transaction", txID)
	}
	if tx.Status != StatusFailed {
		return apperror.NewValidation("only failed transactions can be retried").
			WithDetail("status", string(tx.Status))
	}
	tx.Status = StatusPending
	tx.RetryCount = 0
	tx.LastError = ""
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

// ReassignEntity rewrites the entity id on every unsynced transaction.
func (m *Memory) ReassignEntity(_ context.Context, fromEntityID, toEntityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, tx := range m.txs {
		if tx.Status != StatusSynced && tx.EntityID == fromEntityID {
			tx.EntityID = toEntityID
			tx.UpdatedAt = now
		}
	}
	return nil
}

// ListPending returns replayable transactions in insertion order.
func (m *Memory) ListPending(_ context.Context) ([]*Transaction, error) {
	now := time.Now().UTC()
	return m.list(func(tx *Transaction) bool { return tx.Replayable(now) }), nil
}

// ListFailed returns exhausted transactions in insertion order.
func (m *Memory) ListFailed(_ context.Context) ([]*Transaction, error) {
	return m.list(func(tx *Transaction) bool { return tx.Status == StatusFailed }), nil
}

// ClearSynced prunes synced transactions.
func (m *Memory) ClearSynced(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for txID, tx := range m.txs {
		if tx.Status == StatusSynced {
			delete(m.txs, txID)
		}
	}
	return nil
}

// CountUnsynced counts pending and failed entries.
func (m *Memory) CountUnsynced(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, tx := range m.txs {
		if tx.Status == StatusPending || tx.Status == StatusFailed || tx.Status == StatusProcessing {
			n++
		}
	}
	return n, nil
}

func (m *Memory) list(keep func(*Transaction) bool) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transaction
	for _, tx := range m.txs {
		if keep(tx) {
			out = append(out, cloneTx(tx))
		}
	}
	// UUIDv7 ids sort by creation time
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func applyPatch(tx *Transaction, patch StatusPatch) {
	if patch.Status != nil {
		tx.Status = *patch.Status
	}
	if patch.RetryCount != nil {
		tx.RetryCount = *patch.RetryCount
	}
	if patch.LastError != nil {
		tx.LastError = *patch.LastError
	}
	tx.UpdatedAt = time.Now().UTC()
}

func cloneTx(tx *Transaction) *Transaction {
	c := *tx
	if tx.Payload != nil {
		c.Payload = append([]byte(nil), tx.Payload...)
	}
	return &c
}
