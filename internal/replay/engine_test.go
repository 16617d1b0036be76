package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillsync/internal/core/apperror"
	"tillsync/internal/core/id"
	"tillsync/internal/domain/product"
	"tillsync/internal/queue"
	"tillsync/pkg/logger"
)

func payload(name string) queue.ProductPayload {
	return queue.ProductPayload{Product: product.Product{Name: name}}
}

// scriptedHandler fails with the scripted error until attempts run out, then
// succeeds. It records every invocation.
type scriptedHandler struct {
	failures int
	err      error
	calls    []string
}

func (h *scriptedHandler) handle(_ context.Context, tx *queue.Transaction) error {
	h.calls = append(h.calls, tx.EntityID)
	if h.failures > 0 {
		h.failures--
		return h.err
	}
	return nil
}

func TestRunSyncsPendingInOrder(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		_, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, "p-"+name, payload(name))
		require.NoError(t, err)
	}

	h := &scriptedHandler{}
	e := New(q, logger.Nop())
	e.Register(queue.EntityProduct, queue.TypeUpdate, h.handle)

	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 2, Synced: 2}, report)
	assert.Equal(t, []string{"p-first", "p-second"}, h.calls)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunDoesNotRedeliverSynced(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeDelete, "p1", nil)
	require.NoError(t, err)

	h := &scriptedHandler{}
	e := New(q, logger.Nop())
	e.Register(queue.EntityProduct, queue.TypeDelete, h.handle)

	_, err = e.Run(ctx)
	require.NoError(t, err)
	require.Len(t, h.calls, 1)

	// a second pass must not call the remote API again
	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Len(t, h.calls, 1)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, "p1", payload("Milk 1L"))
	require.NoError(t, err)

	h := &scriptedHandler{failures: 2, err: apperror.NewNetwork(nil)}
	e := New(q, logger.Nop())
	e.Register(queue.EntityProduct, queue.TypeUpdate, h.handle)

	// two failing passes leave the transaction pending with a retry count
	for i := 0; i < 2; i++ {
		report, err := e.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, Report{Processed: 1}, report)
	}

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
	assert.NotEmpty(t, pending[0].LastError)

	// third pass succeeds
	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 1, Synced: 1}, report)
}

func TestRunExhaustsRetries(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, "p1", payload("Milk 1L"))
	require.NoError(t, err)

	h := &scriptedHandler{failures: 100, err: apperror.NewNetwork(nil)}
	e := New(q, logger.Nop())
	e.Register(queue.EntityProduct, queue.TypeUpdate, h.handle)

	var failedPass Report
	for i := 0; i < queue.DefaultMaxRetries; i++ {
		failedPass, err = e.Run(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, Report{Processed: 1, Failed: 1}, failedPass)
	assert.Len(t, h.calls, queue.DefaultMaxRetries)

	failed, err := q.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, queue.DefaultMaxRetries, failed[0].RetryCount)

	// failed is terminal for automatic replay
	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestRunFailsTerminalErrorsImmediately(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, "p1", payload("Milk 1L"))
	require.NoError(t, err)

	h := &scriptedHandler{failures: 100, err: apperror.NewConflict("version mismatch")}
	e := New(q, logger.Nop())
	e.Register(queue.EntityProduct, queue.TypeUpdate, h.handle)

	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 1, Failed: 1}, report)
	assert.Len(t, h.calls, 1, "a terminal rejection must not be retried")

	failed, err := q.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].LastError, apperror.CodeConflict)
}

func TestRunIsolatesFailures(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, "p-bad", payload("Bad"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, "p-good", payload("Good"))
	require.NoError(t, err)

	e := New(q, logger.Nop())
	e.Register(queue.EntityProduct, queue.TypeUpdate, func(_ context.Context, tx *queue.Transaction) error {
		if tx.EntityID == "p-bad" {
			return apperror.NewConflict("rejected")
		}
		return nil
	})

	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 2, Synced: 1, Failed: 1}, report)
}

func TestRunDefersDependentsBehindProvisionalCreate(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()
	provisional := id.NewProvisional()

	_, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeCreate, provisional, payload("Milk 1L"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, provisional, payload("Milk 2L"))
	require.NoError(t, err)

	var order []string
	e := New(q, logger.Nop())
	e.Register(queue.EntityProduct, queue.TypeCreate, func(_ context.Context, tx *queue.Transaction) error {
		order = append(order, "create")
		return apperror.NewNetwork(nil) // still offline
	})
	e.Register(queue.EntityProduct, queue.TypeUpdate, func(_ context.Context, tx *queue.Transaction) error {
		order = append(order, "update")
		return nil
	})

	// while the CREATE cannot be confirmed, its dependent UPDATE is held back
	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 1, Deferred: 1}, report)
	assert.Equal(t, []string{"create"}, order)

	// once the CREATE syncs, the dependent runs in the same pass, after it
	e.Register(queue.EntityProduct, queue.TypeCreate, func(_ context.Context, tx *queue.Transaction) error {
		order = append(order, "create")
		return nil
	})
	report, err = e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 2, Synced: 2}, report)
	assert.Equal(t, []string{"create", "create", "update"}, order)
}

func TestRunDefersDependentsBehindFailedCreate(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()
	provisional := id.NewProvisional()

	create, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeCreate, provisional, payload("Milk 1L"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, provisional, payload("Milk 2L"))
	require.NoError(t, err)

	// the CREATE already exhausted its budget
	st := queue.StatusFailed
	require.NoError(t, q.UpdateStatus(ctx, create.ID, queue.StatusPatch{Status: &st}))

	e := New(q, logger.Nop())
	e.Register(queue.EntityProduct, queue.TypeUpdate, func(_ context.Context, tx *queue.Transaction) error {
		t.Fatal("dependent must not run while its create is failed")
		return nil
	})

	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Deferred: 1}, report)
}

func TestRunFailsWhenNoHandlerRegistered(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, queue.EntityCustomer, queue.TypeDelete, "c1", nil)
	require.NoError(t, err)

	e := New(q, logger.Nop())
	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 1, Failed: 1}, report)
}
