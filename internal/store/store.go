// Package store provides the local durable store backing offline job
// tracking: the sync queue, cached job/client/checklist snapshots, and
// a small metadata bag, persisted in a versioned SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrStoreUnavailable is returned when the durable store could not be
// opened. Callers use it to degrade to network-only operation instead
// of treating the failure as an empty store.
var ErrStoreUnavailable = errors.New("offline store unavailable")

// ErrNotFound is returned when a cached snapshot or queued operation
// does not exist.
var ErrNotFound = errors.New("not found")

// Store is the shared local persistence layer. One instance is
// constructed at startup and handed to every consumer; the underlying
// SQLite handle serializes access.
type Store struct {
	dataDir string
	log     *logrus.Logger

	openOnce sync.Once
	db       *sql.DB
	openErr  error
}

// New creates a Store rooted at dataDir. The database is not opened
// until Open is called. A nil logger falls back to the logrus standard
// logger.
func New(dataDir string, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{dataDir: dataDir, log: log}
}

// Open opens the store, creating the database and all collections on
// first run and applying any pending additive schema migrations.
// Open is idempotent and safe to call concurrently: every call after
// the first awaits the same initialization and returns its outcome.
func (s *Store) Open() error {
	s.openOnce.Do(func() {
		s.db, s.openErr = s.open()
		if s.openErr != nil {
			s.log.WithError(s.openErr).Error("failed to open offline store")
		}
	})
	if s.openErr != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, s.openErr)
	}
	return nil
}

func (s *Store) open() (*sql.DB, error) {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(s.dataDir, "fieldsync.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	migrator := NewMigrator(db, Migrations)
	if err := migrator.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := migrator.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return db, nil
}

// handle returns the open database handle or ErrStoreUnavailable when
// the store was never opened or failed to open.
func (s *Store) handle() (*sql.DB, error) {
	if s.db == nil || s.openErr != nil {
		return nil, ErrStoreUnavailable
	}
	return s.db, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ClearAll empties every collection. Used on logout or account switch
// so one tenant's cached data never leaks into another tenant's view.
func (s *Store) ClearAll() error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"sync_queue", "cached_jobs", "cached_clients", "cached_checklists", "offline_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}

	s.log.Info("offline store cleared")
	return nil
}
