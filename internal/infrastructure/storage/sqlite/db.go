// Package sqlite provides the durable local stores of the sync engine: the
// tenant-scoped cache and the pending transaction queue, both in a single
// embedded SQLite database using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"tillsync/pkg/logger"
)

// SchemaVersion is the compiled-in local schema version. On mismatch the
// local state is discarded and rehydrated from the remote API; there are no
// field-level migrations, the local store is only a cache and an intent log.
const SchemaVersion = 1

// Open opens (or creates) the local database at path with WAL and a busy
// timeout, and reconciles the schema version.
func Open(ctx context.Context, path string, log *logger.Logger) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := ensureSchema(ctx, db, log); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, log *logger.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_info (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_info: %w", err)
	}

	var version int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_info LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		return initSchema(ctx, db)
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != SchemaVersion:
		if log != nil {
			log.Warnw("local schema version mismatch, discarding local state",
				"found", version, "want", SchemaVersion)
		}
		if err := dropSchema(ctx, db); err != nil {
			return err
		}
		return initSchema(ctx, db)
	}
	return nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache_records (
			org        TEXT NOT NULL,
			store      TEXT NOT NULL DEFAULT '',
			kind       TEXT NOT NULL,
			entity_id  TEXT NOT NULL,
			payload    BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (org, store, kind, entity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_transactions (
			id          TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			tx_type     TEXT NOT NULL,
			entity_id   TEXT NOT NULL DEFAULT '',
			payload     BLOB,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL,
			status      TEXT NOT NULL,
			last_error  TEXT NOT NULL DEFAULT ''
		)`,
		// UUIDv7 ids sort by creation time, so the primary key doubles as
		// the FIFO index; status gets its own for the pending scans.
		`CREATE INDEX IF NOT EXISTS idx_pending_transactions_status
			ON pending_transactions (status)`,
		`DELETE FROM schema_info`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO schema_info (version) VALUES (?)`, SchemaVersion); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

func dropSchema(ctx context.Context, db *sql.DB) error {
	for _, table := range []string{"cache_records", "pending_transactions", "schema_info"} {
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE schema_info (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("recreate schema_info: %w", err)
	}
	return nil
}
