package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillsync/internal/core/scope"
)

func record(sc scope.Scope, kind, entityID, payload string) Record {
	return Record{Scope: sc, Kind: kind, EntityID: entityID, Payload: []byte(payload)}
}

func TestScopeIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	scA := scope.New("org-1", "store-a")
	scB := scope.New("org-1", "store-b")
	other := scope.New("org-2", "store-a")

	require.NoError(t, m.Put(ctx, []Record{
		record(scA, "product", "p1", `{"id":"p1"}`),
		record(scB, "product", "p2", `{"id":"p2"}`),
		record(other, "product", "p3", `{"id":"p3"}`),
	}))

	// a store-level scope sees only its own records
	got, err := m.Get(ctx, scA, "product")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].EntityID)

	// an org-wide scope sees every store in the org, nothing beyond it
	got, err = m.Get(ctx, scope.New("org-1", ""), "product")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = m.Get(ctx, scope.New("org-3", ""), "product")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKindIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sc := scope.New("org-1", "store-a")

	require.NoError(t, m.Put(ctx, []Record{
		record(sc, "product", "p1", `{}`),
		record(sc, "customer", "c1", `{}`),
	}))

	got, err := m.Get(ctx, sc, "customer")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].EntityID)
}

func TestPutLastWriteWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sc := scope.New("org-1", "store-a")

	require.NoError(t, m.Put(ctx, []Record{record(sc, "product", "p1", `{"v":1}`)}))
	require.NoError(t, m.Put(ctx, []Record{record(sc, "product", "p1", `{"v":2}`)}))

	got, err := m.Get(ctx, sc, "product")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"v":2}`, string(got[0].Payload))
}

func TestClearRespectsScopeAndKind(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	scA := scope.New("org-1", "store-a")
	scB := scope.New("org-1", "store-b")

	require.NoError(t, m.Put(ctx, []Record{
		record(scA, "product", "p1", `{}`),
		record(scA, "customer", "c1", `{}`),
		record(scB, "product", "p2", `{}`),
	}))

	require.NoError(t, m.Clear(ctx, scA, "product"))

	got, err := m.Get(ctx, scA, "product")
	require.NoError(t, err)
	assert.Empty(t, got)

	// other kind and other store untouched
	got, err = m.Get(ctx, scA, "customer")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = m.Get(ctx, scB, "product")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
