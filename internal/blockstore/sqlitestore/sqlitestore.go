// Package sqlitestore implements blockstore.Store over a SQLite database,
// using a pure-Go driver (no CGO) and a cross-process file lock held from
// Open until Close, the same pairing the teacher project used for its SQLite
// index and its model-download lock.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/edgevec/edgevec/internal/everr"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Store persists named blobs in a single-table SQLite database. An
// on-disk store is opened in WAL mode and holds an exclusive file lock
// until Close, so a second Open of the same path blocks until then.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open opens (creating if necessary) a block store at path. An empty
// path opens an in-memory store, useful for tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	var lk *flock.Flock

	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, everr.Wrap(everr.CodePersistenceError, fmt.Errorf("create block store directory: %w", err))
		}
		lk = flock.New(path + ".lock")
		if err := lk.Lock(); err != nil {
			return nil, everr.Wrap(everr.CodePersistenceError, fmt.Errorf("acquire block store lock: %w", err))
		}
		dsn = path + "?_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if lk != nil {
			_ = lk.Unlock()
		}
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS blocks (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at_unix INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		if lk != nil {
			_ = lk.Unlock()
		}
		return nil, everr.Wrap(everr.CodePersistenceError, fmt.Errorf("create blocks table: %w", err))
	}

	slog.Debug("blockstore_opened", slog.String("path", path))
	return &Store{db: db, path: path, lock: lk}, nil
}

// Read returns the bytes stored under name, or a PersistenceError
// wrapping sql.ErrNoRows if name was never written.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blocks WHERE name = ?`, name).Scan(&data)
	if err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, fmt.Errorf("read block %q: %w", name, err))
	}
	return data, nil
}

// Write stores data under name, overwriting any prior value.
func (s *Store) Write(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const upsert = `INSERT INTO blocks (name, data, updated_at_unix) VALUES (?, ?, unixepoch())
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at_unix = excluded.updated_at_unix`
	if _, err := s.db.ExecContext(ctx, upsert, name, data); err != nil {
		return everr.Wrap(everr.CodePersistenceError, fmt.Errorf("write block %q: %w", name, err))
	}
	return nil
}

// Close releases the database handle and any held file lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}
