package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetMeta stores a small scalar setting under key.
func (s *Store) SetMeta(key, value string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	query := `
	INSERT INTO offline_meta (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to set metadata %q: %w", key, err)
	}
	return nil
}

// GetMeta returns the value stored under key. The second return value
// is false when the key is absent.
func (s *Store) GetMeta(key string) (string, bool, error) {
	db, err := s.handle()
	if err != nil {
		return "", false, err
	}

	var value string
	err = db.QueryRow("SELECT value FROM offline_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read metadata %q: %w", key, err)
	}
	return value, true, nil
}

// Stats summarizes the store contents for display. One read-only pass;
// nothing is mutated.
type Stats struct {
	CachedJobs        int   `json:"cached_jobs"`
	CachedClients     int   `json:"cached_clients"`
	PendingOperations int   `json:"pending_operations"`
	LastCacheAt       int64 `json:"last_cache_at"` // unix seconds, 0 when never cached
}

// GetStats returns counts of cached jobs, cached clients, and pending
// queue items, plus the last recorded cache time.
func (s *Store) GetStats() (*Stats, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	if err := db.QueryRow("SELECT COUNT(*) FROM cached_jobs").Scan(&stats.CachedJobs); err != nil {
		return nil, fmt.Errorf("failed to count cached jobs: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM cached_clients").Scan(&stats.CachedClients); err != nil {
		return nil, fmt.Errorf("failed to count cached clients: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM sync_queue").Scan(&stats.PendingOperations); err != nil {
		return nil, fmt.Errorf("failed to count pending operations: %w", err)
	}

	var lastCache string
	err = db.QueryRow("SELECT value FROM offline_meta WHERE key = ?", "last_cache_time").Scan(&lastCache)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read last cache time: %w", err)
	}
	if lastCache != "" {
		fmt.Sscanf(lastCache, "%d", &stats.LastCacheAt)
	}

	return stats, nil
}
