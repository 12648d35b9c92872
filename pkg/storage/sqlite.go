// The SQLite store keeps cache entries on local disk so they survive restarts. All entries live in a single
// `entries` table keyed by the cache key.

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver (pure Go).
	_ "github.com/ncruces/go-sqlite3/embed"  // Embeds the SQLite WASM binary.
)

const createEntriesTable = `CREATE TABLE IF NOT EXISTS entries (
	key   TEXT PRIMARY KEY,
	value BLOB
) WITHOUT ROWID`

// SQLiteStore is a durable on-disk Store.
type SQLiteStore struct { // Implements Store.
	// mux keeps RemoveAll from interleaving with other operations while the filter is reset.
	mux    sync.RWMutex
	db     *sql.DB
	path   string
	filter *keyFilter // Keys that may exist in the table.
}

var _ Store[[]byte] = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at `path` and loads the existing keys into the lookup filter.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("expected a non-empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// SQLite serializes writers anyway; a single connection avoids SQLITE_BUSY between our own connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	store := &SQLiteStore{db: db, path: path, filter: newKeyFilter()}
	if err := store.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// init applies pragmas, creates the schema and seeds the lookup filter.
func (s *SQLiteStore) init(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, createEntriesTable); err != nil {
		return fmt.Errorf("failed to create entries table: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT key FROM entries")
	if err != nil {
		return fmt.Errorf("failed to list stored keys: %w", err)
	}
	defer func() { _ = rows.Close() }()
	loaded := 0
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("failed to scan stored key: %w", err)
		}
		s.filter.add(key)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate stored keys: %w", err)
	}
	slog.Info("Opened sqlite store.", "path", s.path, "keys", loaded)
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if !s.filter.mayContain(key) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM entries WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if value == nil {
		value = []byte{}
	}
	// The filter is updated first so a concurrent Get never misses a committed key.
	s.filter.add(key)
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO entries (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if !s.filter.mayContain(key) {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveAll(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return fmt.Errorf("failed to remove all keys: %w", err)
	}
	s.filter.reset()
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	slog.Info("Closing sqlite store.", "path", s.path)
	return s.db.Close()
}
