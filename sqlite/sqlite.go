// Package sqlite stores run history and the delivery ledger in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// migrations are applied in order. The database's user_version records
// how many have run; append new entries, never edit old ones.
var migrations = []string{
	`CREATE TABLE runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		pages INTEGER NOT NULL DEFAULT 0,
		items INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		discarded INTEGER NOT NULL DEFAULT 0,
		units_delivered INTEGER NOT NULL DEFAULT 0,
		units_failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_runs_source ON runs(source);`,

	`CREATE TABLE deliveries (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		item_id TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL,
		units_delivered INTEGER NOT NULL DEFAULT 0,
		units_failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		delivered_at TEXT NOT NULL
	);
	CREATE INDEX idx_deliveries_source_item ON deliveries(source, item_id);
	CREATE INDEX idx_deliveries_run_id ON deliveries(run_id);`,

	// Run history is listed newest first.
	`CREATE INDEX idx_runs_started_at ON runs(started_at);`,
}

// SchemaVersion is the user_version of a fully migrated database.
var SchemaVersion = len(migrations)

// DB is the SQLite database shared by the run history and the ledger.
type DB struct {
	db   *sql.DB
	path string
}

// NewDB returns a DB for path. Use ":memory:" for an in-memory database.
func NewDB(path string) *DB {
	return &DB{path: path}
}

// Open connects and migrates the schema to SchemaVersion.
func (db *DB) Open() error {
	return db.OpenContext(context.Background())
}

// OpenContext is Open with a context bounding the connect and migration.
func (db *DB) OpenContext(ctx context.Context) error {
	conn, err := sql.Open("sqlite3", db.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// The uploader worker and the collector write through one connection.
	conn.SetMaxOpenConns(1)

	if err := configure(ctx, conn, db.path != ":memory:"); err != nil {
		conn.Close()
		return err
	}
	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	db.db = conn
	return nil
}

// configure pings conn and applies connection pragmas. WAL needs a file.
func configure(ctx context.Context, conn *sql.DB, wal bool) error {
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	pragmas := []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// migrate runs the migrations newer than the database's user_version, each
// in its own transaction together with the version bump.
func migrate(ctx context.Context, conn *sql.DB) error {
	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// QueryRowContext executes a query that returns a single row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement that doesn't return rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}
