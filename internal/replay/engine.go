// Package replay drains the pending transaction queue against the remote
// API. It is the only component allowed to move queued transactions through
// their lifecycle (besides explicit user retry/removal).
package replay

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"tillsync/internal/core/apperror"
	"tillsync/internal/core/id"
	"tillsync/internal/queue"
	"tillsync/pkg/logger"
)

// HandlerFunc applies one queued transaction against the remote API.
// Handlers are registered per (entity type, transaction type) by the owning
// entity store; on a successful CREATE the store also promotes the
// provisional id to the server-assigned one.
type HandlerFunc func(ctx context.Context, tx *queue.Transaction) error

type handlerKey struct {
	et queue.EntityType
	tt queue.Type
}

// Report summarizes one replay pass.
type Report struct {
	Processed int // transactions dispatched
	Synced    int // confirmed by the server
	Failed    int // moved to terminal failed
	Deferred  int // held back behind an unconfirmed CREATE
}

// Engine replays queued transactions in FIFO order with partial-failure
// isolation: one failing transaction never aborts independent ones.
type Engine struct {
	queue    queue.Queue
	handlers map[handlerKey]HandlerFunc
	log      *logger.Logger
	tracer   trace.Tracer
}

// New creates a replay engine over the given queue.
func New(q queue.Queue, log *logger.Logger) *Engine {
	return &Engine{
		queue:    q,
		handlers: make(map[handlerKey]HandlerFunc),
		log:      log.WithComponent("replay"),
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
}

// WithTracer sets the tracer used for replay spans.
func (e *Engine) WithTracer(t trace.Tracer) *Engine {
	e.tracer = t
	return e
}

// Register installs the handler for (entity type, transaction type).
func (e *Engine) Register(et queue.EntityType, tt queue.Type, fn HandlerFunc) {
	e.handlers[handlerKey{et, tt}] = fn
}

// Run executes one replay pass over the current pending queue.
//
// Ordering: transactions for the same entity id run in enqueue order; a
// dependent UPDATE/DELETE for a still-provisional entity is deferred until
// its CREATE is confirmed. Transactions for different entities are
// independent.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "replay.run")
	defer span.End()

	var report Report

	txs, err := e.queue.ListPending(ctx)
	if err != nil {
		return report, err
	}
	if len(txs) == 0 {
		return report, nil
	}

	// Provisional entities whose CREATE has not been confirmed yet gate
	// their dependent transactions. Failed CREATEs gate too: the dependent
	// must wait until the CREATE is retried or abandoned.
	blocked := make(map[string]bool)
	for _, tx := range txs {
		if tx.Type == queue.TypeCreate && id.IsProvisional(tx.EntityID) {
			blocked[tx.EntityID] = true
		}
	}
	failedCreates, err := e.queue.ListFailed(ctx)
	if err == nil {
		for _, tx := range failedCreates {
			if tx.Type == queue.TypeCreate && id.IsProvisional(tx.EntityID) {
				blocked[tx.EntityID] = true
			}
		}
	}

	for _, tx := range txs {
		// Replaying a synced transaction must never re-invoke the remote API.
		if tx.Status == queue.StatusSynced {
			continue
		}

		if tx.Type != queue.TypeCreate && blocked[tx.EntityID] {
			report.Deferred++
			continue
		}

		report.Processed++
		if e.processOne(ctx, tx) {
			report.Synced++
			if tx.Type == queue.TypeCreate {
				delete(blocked, tx.EntityID)
			}
		} else if tx.Status == queue.StatusFailed {
			report.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("replay.processed", report.Processed),
		attribute.Int("replay.synced", report.Synced),
		attribute.Int("replay.failed", report.Failed),
	)
	return report, nil
}

// processOne dispatches a single transaction and updates its status.
// Returns true when the transaction reached synced. tx is mutated to
// reflect the stored status.
func (e *Engine) processOne(ctx context.Context, tx *queue.Transaction) bool {
	e.setStatus(ctx, tx, queue.StatusProcessing, nil)

	handler, ok := e.handlers[handlerKey{tx.EntityType, tx.Type}]
	if !ok {
		err := apperror.NewValidation("no handler registered").
			WithDetail("entity_type", string(tx.EntityType)).
			WithDetail("tx_type", string(tx.Type))
		e.setStatus(ctx, tx, queue.StatusFailed, err)
		return false
	}

	err := handler(ctx, tx)
	if err == nil {
		e.setStatus(ctx, tx, queue.StatusSynced, nil)
		e.log.Infow("transaction synced", "tx_id", tx.ID, "entity_id", tx.EntityID, "type", string(tx.Type))
		return true
	}

	tx.RetryCount++
	switch {
	case apperror.IsTerminal(err):
		// Retrying cannot change the outcome.
		e.setStatus(ctx, tx, queue.StatusFailed, err)
		e.log.Warnw("transaction failed terminally", "tx_id", tx.ID, "error", err)
	case tx.RetryCount >= tx.MaxRetries:
		e.setStatus(ctx, tx, queue.StatusFailed, err)
		e.log.Warnw("transaction retries exhausted", "tx_id", tx.ID, "retries", tx.RetryCount, "error", err)
	default:
		e.setStatus(ctx, tx, queue.StatusPending, err)
		e.log.Debugw("transaction deferred to next cycle", "tx_id", tx.ID, "retries", tx.RetryCount)
	}
	return false
}

func (e *Engine) setStatus(ctx context.Context, tx *queue.Transaction, st queue.Status, cause error) {
	patch := queue.StatusPatch{Status: &st, RetryCount: &tx.RetryCount}
	if cause != nil {
		msg := cause.Error()
		patch.LastError = &msg
	}
	if err := e.queue.UpdateStatus(ctx, tx.ID, patch); err != nil {
		// Queue storage failing mid-replay degrades to at-least-once with
		// extra redelivery; nothing else to do here.
		e.log.Warnw("queue status update failed", "tx_id", tx.ID, "error", err)
	}
	tx.Status = st
}
