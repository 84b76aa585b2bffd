// Package sqlite is the embedded storage backend used when no PostgreSQL URL
// is configured.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kozaktomas/gatewatch/internal/config"
	"github.com/kozaktomas/gatewatch/internal/database"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS exit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exit_events_recorded_at ON exit_events (recorded_at);
	CREATE INDEX IF NOT EXISTS idx_exit_events_identity ON exit_events (identity, recorded_at);

	CREATE TABLE IF NOT EXISTS gallery_identities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		key TEXT NOT NULL UNIQUE,
		embedding BLOB NOT NULL,
		sample_count INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL DEFAULT '',
		dim INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
`

// DB wraps a single-connection SQLite handle. SQLite allows one writer at a
// time, so writes are additionally serialized in process.
type DB struct {
	*sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &DB{DB: db}, nil
}

func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Initialize opens the SQLite database and registers it as the active
// storage backend.
func Initialize(cfg *config.DatabaseConfig) error {
	if cfg == nil {
		return errors.New("database config is required")
	}
	db, err := Open(cfg.SQLitePath)
	if err != nil {
		return err
	}

	exits := NewExitRepository(db)
	gallery := NewGalleryRepository(db)
	database.RegisterBackend(database.BackendSQLite,
		func() database.ExitWriter { return exits },
		func() database.GalleryWriter { return gallery },
		db.Close,
	)
	return nil
}
