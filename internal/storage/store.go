// Package storage provides the namespaced key-value persistence layer backed
// by SQLite. Every row is scoped by the owning app's id, so one app can
// never read or enumerate another app's keys.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed key-value store.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (creating if needed) the store at the given path and
// initializes the schema.
func NewStore(dbPath string) (*Store, error) {
	normalizedPath := normalizeSQLitePath(dbPath)
	if err := ensureSQLiteDir(normalizedPath); err != nil {
		return nil, fmt.Errorf("failed to prepare database path: %w", err)
	}

	// Single writer connection with WAL keeps concurrent handler I/O from
	// tripping over SQLITE_BUSY.
	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL",
		normalizedPath,
	)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to close database after schema error: %w", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA optimize")
	return s.db.Close()
}

func ensureSQLiteDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func normalizeSQLitePath(dbPath string) string {
	if dbPath == "" {
		return dbPath
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_entries (
		app_id     TEXT NOT NULL,
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (app_id, namespace, key)
	);

	CREATE INDEX IF NOT EXISTS idx_kv_entries_scope
		ON kv_entries(app_id, namespace);
	`
	_, err := s.db.Exec(schema)
	return err
}

// entry is the sqlx row shape for kv_entries.
type entry struct {
	AppID     string    `db:"app_id"`
	Namespace string    `db:"namespace"`
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Get returns the stored value, or (nil, nil) when the key does not exist.
// A missing key is a routine outcome for callers, not an error.
func (s *Store) Get(ctx context.Context, appID, namespace, key string) (json.RawMessage, error) {
	var e entry
	err := s.db.GetContext(ctx, &e,
		`SELECT app_id, namespace, key, value, updated_at
		 FROM kv_entries WHERE app_id = ? AND namespace = ? AND key = ?`,
		appID, namespace, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return json.RawMessage(e.Value), nil
}

// Set stores a value, replacing any previous one. Atomicity is per-row: the
// store adds no cross-key locking above SQLite's own.
func (s *Store) Set(ctx context.Context, appID, namespace, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (app_id, namespace, key, value, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(app_id, namespace, key)
		 DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		appID, namespace, key, string(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Delete removes a key. The return value reports whether a row was actually
// deleted.
func (s *Store) Delete(ctx context.Context, appID, namespace, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE app_id = ? AND namespace = ? AND key = ?`,
		appID, namespace, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys lists the keys in one app's namespace, in lexical order.
func (s *Store) Keys(ctx context.Context, appID, namespace string) ([]string, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys,
		`SELECT key FROM kv_entries WHERE app_id = ? AND namespace = ? ORDER BY key`,
		appID, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}
