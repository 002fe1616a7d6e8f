package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter stores keys in a single-file SQLite database.
//
// This substrate trades the filesystem adapter's one-file-per-key layout for
// a single durable file with WAL journaling, which suits deployments where
// the data directory is synced or mounted as one object.
type SQLiteAdapter struct {
	db *sql.DB
}

// NewSQLiteAdapter opens or creates the database at the given path.
func NewSQLiteAdapter(dbPath string) (*SQLiteAdapter, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: database path required", ErrUnavailable)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating db dir: %v", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening db: %v", ErrUnavailable, err)
	}

	a := &SQLiteAdapter{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrating: %v", ErrUnavailable, err)
	}
	return a, nil
}

func (a *SQLiteAdapter) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Read returns the value stored under key, or ErrNotFound.
func (a *SQLiteAdapter) Read(key string) ([]byte, error) {
	var value []byte
	err := a.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrUnavailable, key, err)
	}
	return value, nil
}

// Write stores value under key, overwriting any previous value.
func (a *SQLiteAdapter) Write(key string, value []byte) error {
	_, err := a.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: writing %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// List returns all keys with the given prefix.
func (a *SQLiteAdapter) List(prefix string) ([]string, error) {
	rows, err := a.db.Query(`SELECT key FROM kv WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %q: %v", ErrUnavailable, prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%w: scanning key: %v", ErrUnavailable, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing %q: %v", ErrUnavailable, prefix, err)
	}
	return keys, nil
}

// Delete removes key. Missing keys are a no-op.
func (a *SQLiteAdapter) Delete(key string) error {
	if _, err := a.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: deleting %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Close closes the underlying database.
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}
