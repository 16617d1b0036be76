package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/klauspost/compress/zstd"

	"tillsync/internal/cache"
	"tillsync/internal/core/apperror"
	"tillsync/internal/core/scope"
)

// CacheStore is the durable tenant-scoped cache. Payloads are compressed
// with zstd; entity snapshots are JSON and compress well.
type CacheStore struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ cache.Cache = (*CacheStore)(nil)

// NewCacheStore creates the cache repository over an opened database.
func NewCacheStore(db *sql.DB) (*CacheStore, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &CacheStore{db: db, enc: enc, dec: dec}, nil
}

type cacheRow struct {
	Org       string `db:"org"`
	Store     string `db:"store"`
	Kind      string `db:"kind"`
	EntityID  string `db:"entity_id"`
	Payload   []byte `db:"payload"`
	UpdatedAt int64  `db:"updated_at"` // unix milliseconds
}

// Get returns cached records for (scope, kind). Scope filtering happens in
// the query; an org-wide scope matches every store in the org.
func (c *CacheStore) Get(ctx context.Context, sc scope.Scope, kind string) ([]cache.Record, error) {
	q := sq.Select("org", "store", "kind", "entity_id", "payload", "updated_at").
		From("cache_records").
		Where(sq.Eq{"org": sc.OrgID, "kind": kind}).
		OrderBy("entity_id")
	if sc.StoreID != "" {
		q = q.Where(sq.Eq{"store": sc.StoreID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, apperror.NewStorage(err)
	}

	var rows []cacheRow
	if err := sqlscan.Select(ctx, c.db, &rows, query, args...); err != nil {
		return nil, apperror.NewStorage(err)
	}

	records := make([]cache.Record, 0, len(rows))
	for _, r := range rows {
		payload, err := c.dec.DecodeAll(r.Payload, nil)
		if err != nil {
			// A corrupt record is dropped, not fatal: the cache is an
			// optimization only.
			continue
		}
		records = append(records, cache.Record{
			Scope:     scope.New(r.Org, r.Store),
			Kind:      r.Kind,
			EntityID:  r.EntityID,
			Payload:   payload,
			UpdatedAt: time.UnixMilli(r.UpdatedAt).UTC(),
		})
	}
	return records, nil
}

// Put upserts records keyed by (org, store, kind, entity id).
// Last write wins, no merge.
func (c *CacheStore) Put(ctx context.Context, records []cache.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.NewStorage(err)
	}
	defer tx.Rollback()

	for _, r := range records {
		updatedAt := r.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		query, args, err := sq.Insert("cache_records").
			Columns("org", "store", "kind", "entity_id", "payload", "updated_at").
			Values(r.Scope.OrgID, r.Scope.StoreID, r.Kind, r.EntityID,
				c.enc.EncodeAll(r.Payload, nil), updatedAt.UnixMilli()).
			Suffix(`ON CONFLICT (org, store, kind, entity_id)
				DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`).
			ToSql()
		if err != nil {
			return apperror.NewStorage(err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return apperror.NewStorage(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.NewStorage(err)
	}
	return nil
}

// Clear removes all records for (scope, kind).
func (c *CacheStore) Clear(ctx context.Context, sc scope.Scope, kind string) error {
	q := sq.Delete("cache_records").
		Where(sq.Eq{"org": sc.OrgID, "kind": kind})
	if sc.StoreID != "" {
		q = q.Where(sq.Eq{"store": sc.StoreID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return apperror.NewStorage(err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return apperror.NewStorage(err)
	}
	return nil
}
