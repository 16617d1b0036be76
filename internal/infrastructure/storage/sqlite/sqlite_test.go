package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillsync/internal/cache"
	"tillsync/internal/core/apperror"
	"tillsync/internal/core/id"
	"tillsync/internal/core/scope"
	"tillsync/internal/domain/product"
	"tillsync/internal/queue"
	"tillsync/pkg/logger"
)

func payload(name string) queue.ProductPayload {
	return queue.ProductPayload{Product: product.Product{Name: name}}
}

func TestQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tillsync.db")

	db, err := Open(ctx, path, logger.Nop())
	require.NoError(t, err)

	q := NewQueueStore(db)
	tx, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeCreate, id.NewProvisional(), payload("Milk 1L"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// restart
	db, err = Open(ctx, path, logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	pending, err := NewQueueStore(db).ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, tx.ID, pending[0].ID)
	assert.Equal(t, queue.StatusPending, pending[0].Status)
	assert.Equal(t, tx.EntityID, pending[0].EntityID)

	decoded, err := queue.DecodeProduct(pending[0])
	require.NoError(t, err)
	assert.Equal(t, "Milk 1L", decoded.Product.Name)
}

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "tillsync.db"), logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	q := NewQueueStore(db)

	first, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, "p1", payload("first"))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, "p2", payload("second"))
	require.NoError(t, err)

	// insertion order via the time-ordered primary key
	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	// fail one, then manually retry it
	st := queue.StatusFailed
	retries := 3
	msg := "NETWORK_ERROR: unreachable"
	require.NoError(t, q.UpdateStatus(ctx, first.ID, queue.StatusPatch{Status: &st, RetryCount: &retries, LastError: &msg}))

	failed, err := q.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, msg, failed[0].LastError)

	n, err := q.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, q.Retry(ctx, first.ID))
	pending, err = q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 0, pending[0].RetryCount)

	// sync and prune
	st = queue.StatusSynced
	require.NoError(t, q.UpdateStatus(ctx, first.ID, queue.StatusPatch{Status: &st}))
	require.NoError(t, q.UpdateStatus(ctx, second.ID, queue.StatusPatch{Status: &st}))
	require.NoError(t, q.ClearSynced(ctx))

	n, err = q.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestQueueReassignEntitySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tillsync.db")

	db, err := Open(ctx, path, logger.Nop())
	require.NoError(t, err)

	q := NewQueueStore(db)
	provisional := id.NewProvisional()

	create, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeCreate, provisional, payload("Milk 1L"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, queue.EntityProduct, queue.TypeUpdate, provisional, payload("Milk 2L"))
	require.NoError(t, err)

	// the CREATE is confirmed, its dependents are rewritten to the server id
	st := queue.StatusSynced
	require.NoError(t, q.UpdateStatus(ctx, create.ID, queue.StatusPatch{Status: &st}))
	require.NoError(t, q.ReassignEntity(ctx, provisional, "srv-1"))
	require.NoError(t, db.Close())

	// the rewrite is durable: a restarted session replays against the
	// server id without any in-memory promotion state
	db, err = Open(ctx, path, logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	pending, err := NewQueueStore(db).ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, queue.TypeUpdate, pending[0].Type)
	assert.Equal(t, "srv-1", pending[0].EntityID)
}

func TestQueueRejectsMalformedIntent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "tillsync.db"), logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	q := NewQueueStore(db)
	_, err = q.Enqueue(ctx, queue.EntityProduct, queue.TypeCreate, "", nil)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueueUpdateStatusUnknownTx(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "tillsync.db"), logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	st := queue.StatusSynced
	err = NewQueueStore(db).UpdateStatus(ctx, "missing", queue.StatusPatch{Status: &st})
	assert.True(t, apperror.IsNotFound(err))
}

func TestQueueRetryRequiresFailed(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "tillsync.db"), logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	q := NewQueueStore(db)
	tx, err := q.Enqueue(ctx, queue.EntityProduct, queue.TypeDelete, "p1", nil)
	require.NoError(t, err)

	err = q.Retry(ctx, tx.ID)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))
}

func TestCacheRoundTripWithCompression(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "tillsync.db"), logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	c, err := NewCacheStore(db)
	require.NoError(t, err)

	sc := scope.New("org-1", "store-a")
	snapshot := []byte(`{"id":"p1","name":"Milk 1L","price":"2.50"}`)
	require.NoError(t, c.Put(ctx, []cache.Record{{
		Scope: sc, Kind: "product", EntityID: "p1", Payload: snapshot,
	}}))

	got, err := c.Get(ctx, sc, "product")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, snapshot, got[0].Payload)
	assert.Equal(t, sc, got[0].Scope)
	assert.False(t, got[0].UpdatedAt.IsZero())
}

func TestCacheScopeIsolation(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "tillsync.db"), logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	c, err := NewCacheStore(db)
	require.NoError(t, err)

	scA := scope.New("org-1", "store-a")
	scB := scope.New("org-1", "store-b")
	other := scope.New("org-2", "store-a")

	require.NoError(t, c.Put(ctx, []cache.Record{
		{Scope: scA, Kind: "product", EntityID: "p1", Payload: []byte(`{}`)},
		{Scope: scB, Kind: "product", EntityID: "p2", Payload: []byte(`{}`)},
		{Scope: other, Kind: "product", EntityID: "p3", Payload: []byte(`{}`)},
	}))

	got, err := c.Get(ctx, scA, "product")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].EntityID)

	// org-wide scope reads every store in the org
	got, err = c.Get(ctx, scope.New("org-1", ""), "product")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// clearing one store leaves the other alone
	require.NoError(t, c.Clear(ctx, scA, "product"))
	got, err = c.Get(ctx, scope.New("org-1", ""), "product")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].EntityID)
}

func TestCacheUpsertLastWriteWins(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "tillsync.db"), logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	c, err := NewCacheStore(db)
	require.NoError(t, err)
	sc := scope.New("org-1", "store-a")

	require.NoError(t, c.Put(ctx, []cache.Record{{Scope: sc, Kind: "product", EntityID: "p1", Payload: []byte(`{"v":1}`)}}))
	require.NoError(t, c.Put(ctx, []cache.Record{{Scope: sc, Kind: "product", EntityID: "p1", Payload: []byte(`{"v":2}`)}}))

	got, err := c.Get(ctx, sc, "product")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"v":2}`, string(got[0].Payload))
}

func TestSchemaVersionMismatchDiscardsLocalState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tillsync.db")

	db, err := Open(ctx, path, logger.Nop())
	require.NoError(t, err)

	q := NewQueueStore(db)
	_, err = q.Enqueue(ctx, queue.EntityProduct, queue.TypeDelete, "p1", nil)
	require.NoError(t, err)

	// simulate a database written by an older build
	_, err = db.ExecContext(ctx, `UPDATE schema_info SET version = ?`, SchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path, logger.Nop())
	require.NoError(t, err)
	defer db.Close()

	// local state discarded, schema rebuilt at the current version
	pending, err := NewQueueStore(db).ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var version int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT version FROM schema_info`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}
