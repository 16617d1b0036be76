package sqlite

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"tillsync/internal/core/apperror"
	"tillsync/internal/core/id"
	"tillsync/internal/queue"
)

// QueueStore is the durable pending transaction log. Entries survive
// process restarts until synced or removed, giving the engine its
// at-least-once delivery guarantee.
type QueueStore struct {
	db *sql.DB
}

var _ queue.Queue = (*QueueStore)(nil)

// NewQueueStore creates the queue repository over an opened database.
func NewQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

type txRow struct {
	ID         string `db:"id"`
	EntityType string `db:"entity_type"`
	TxType     string `db:"tx_type"`
	EntityID   string `db:"entity_id"`
	Payload    []byte `db:"payload"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
	RetryCount int    `db:"retry_count"`
	MaxRetries int    `db:"max_retries"`
	Status     string `db:"status"`
	LastError  string `db:"last_error"`
}

func (r txRow) toTransaction() *queue.Transaction {
	return &queue.Transaction{
		ID:         r.ID,
		EntityType: queue.EntityType(r.EntityType),
		Type:       queue.Type(r.TxType),
		EntityID:   r.EntityID,
		Payload:    r.Payload,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt).UTC(),
		RetryCount: r.RetryCount,
		MaxRetries: r.MaxRetries,
		Status:     queue.Status(r.Status),
		LastError:  r.LastError,
	}
}

// Enqueue validates the intent and appends a pending transaction.
// The UUIDv7 id preserves enqueue order, which is what same-entity FIFO
// replay is built on.
func (s *QueueStore) Enqueue(ctx context.Context, et queue.EntityType, tt queue.Type, entityID string, p queue.Payload) (*queue.Transaction, error) {
	if err := queue.ValidateIntent(et, tt, entityID, p); err != nil {
		return nil, err
	}
	payload, err := queue.EncodePayload(p)
	if err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	now := time.Now().UTC()
	tx := &queue.Transaction{
		ID:         id.NewString(),
		EntityType: et,
		Type:       tt,
		EntityID:   entityID,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: queue.DefaultMaxRetries,
		Status:     queue.StatusPending,
	}

	query, args, err := sq.Insert("pending_transactions").
		Columns("id", "entity_type", "tx_type", "entity_id", "payload",
			"created_at", "updated_at", "retry_count", "max_retries", "status", "last_error").
		Values(tx.ID, string(tx.EntityType), string(tx.Type), tx.EntityID, tx.Payload,
			now.UnixMilli(), now.UnixMilli(), 0, tx.MaxRetries, string(tx.Status), "").
		ToSql()
	if err != nil {
		return nil, apperror.NewStorage(err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, apperror.NewStorage(err)
	}
	return tx, nil
}

// UpdateStatus applies a partial status update.
func (s *QueueStore) UpdateStatus(ctx context.Context, txID string, patch queue.StatusPatch) error {
	q := sq.Update("pending_transactions").
		Set("updated_at", time.Now().UTC().UnixMilli()).
		Where(sq.Eq{"id": txID})
	if patch.Status != nil {
		q = q.Set("status", string(*patch.Status))
	}
	if patch.RetryCount != nil {
		q = q.Set("retry_count", *patch.RetryCount)
	}
	if patch.LastError != nil {
		q = q.Set("last_error", *patch.LastError)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return apperror.NewStorage(err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperror.NewStorage(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NewNotFound("transaction", txID)
	}
	return nil
}

// Remove deletes a transaction.
func (s *QueueStore) Remove(ctx context.Context, txID string) error {
	query, args, err := sq.Delete("pending_transactions").Where(sq.Eq{"id": txID}).ToSql()
	if err != nil {
		return apperror.NewStorage(err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperror.NewStorage(err)
	}
	return nil
}

// Retry moves a failed transaction back to pending with a fresh budget.
func (s *QueueStore) Retry(ctx context.Context, txID string) error {
	query, args, err := sq.Update("pending_transactions").
		Set("status", string(queue.StatusPending)).
		Set("retry_count", 0).
		Set("last_error", "").
		Set("updated_at", time.Now().UTC().UnixMilli()).
		Where(sq.Eq{"id": txID, "status": string(queue.StatusFailed)}).
		ToSql()
	if err != nil {
		return apperror.NewStorage(err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperror.NewStorage(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NewValidation("only failed transactions can be retried").
			WithDetail("tx_id", txID)
	}
	return nil
}

// ReassignEntity rewrites the entity id on every unsynced transaction
// targeting fromEntityID. Persisted so queued dependents of a promoted
// provisional entity survive a restart.
func (s *QueueStore) ReassignEntity(ctx context.Context, fromEntityID, toEntityID string) error {
	query, args, err := sq.Update("pending_transactions").
		Set("entity_id", toEntityID).
		Set("updated_at", time.Now().UTC().UnixMilli()).
		Where(sq.Eq{"entity_id": fromEntityID}).
		Where(sq.NotEq{"status": string(queue.StatusSynced)}).
		ToSql()
	if err != nil {
		return apperror.NewStorage(err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperror.NewStorage(err)
	}
	return nil
}

// ListPending returns replayable transactions in insertion order: pending
// rows plus processing rows old enough to be presumed abandoned.
func (s *QueueStore) ListPending(ctx context.Context) ([]*queue.Transaction, error) {
	staleBefore := time.Now().UTC().Add(-queue.ProcessingStaleAfter).UnixMilli()
	query, args, err := sq.Select("*").
		From("pending_transactions").
		Where(sq.Or{
			sq.Eq{"status": string(queue.StatusPending)},
			sq.And{
				sq.Eq{"status": string(queue.StatusProcessing)},
				sq.LtOrEq{"updated_at": staleBefore},
			},
		}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, apperror.NewStorage(err)
	}
	return s.list(ctx, query, args)
}

// ListFailed returns exhausted transactions in insertion order.
func (s *QueueStore) ListFailed(ctx context.Context) ([]*queue.Transaction, error) {
	query, args, err := sq.Select("*").
		From("pending_transactions").
		Where(sq.Eq{"status": string(queue.StatusFailed)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, apperror.NewStorage(err)
	}
	return s.list(ctx, query, args)
}

// ClearSynced prunes terminal synced transactions.
func (s *QueueStore) ClearSynced(ctx context.Context) error {
	query, args, err := sq.Delete("pending_transactions").
		Where(sq.Eq{"status": string(queue.StatusSynced)}).
		ToSql()
	if err != nil {
		return apperror.NewStorage(err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperror.NewStorage(err)
	}
	return nil
}

// CountUnsynced counts entries awaiting confirmation or inspection.
func (s *QueueStore) CountUnsynced(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("pending_transactions").
		Where(sq.Eq{"status": []string{
			string(queue.StatusPending),
			string(queue.StatusProcessing),
			string(queue.StatusFailed),
		}}).
		ToSql()
	if err != nil {
		return 0, apperror.NewStorage(err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperror.NewStorage(err)
	}
	return n, nil
}

func (s *QueueStore) list(ctx context.Context, query string, args []any) ([]*queue.Transaction, error) {
	var rows []txRow
	if err := sqlscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, apperror.NewStorage(err)
	}
	txs := make([]*queue.Transaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, r.toTransaction())
	}
	return txs, nil
}
