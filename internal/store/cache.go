package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kpereira/fieldsync/internal/models"
)

// snapshot tables share the (id, data, cached_at) layout; checklists
// use job_id as their key column.

func (s *Store) putSnapshot(table, keyCol, id string, data any) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("cannot cache %s record without id", table)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (%s, %s, cached_at) VALUES (?, ?, ?)
	ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s, cached_at = excluded.cached_at
	`, table, keyCol, snapshotDataCol(table), keyCol, snapshotDataCol(table), snapshotDataCol(table))

	if _, err := db.Exec(query, id, string(raw), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to cache %s record: %w", table, err)
	}
	return nil
}

func snapshotDataCol(table string) string {
	if table == "cached_checklists" {
		return "items"
	}
	return "data"
}

func (s *Store) getSnapshot(table, keyCol, id string) (string, int64, error) {
	db, err := s.handle()
	if err != nil {
		return "", 0, err
	}

	query := fmt.Sprintf("SELECT %s, cached_at FROM %s WHERE %s = ?", snapshotDataCol(table), table, keyCol)
	var raw string
	var cachedAt int64
	err = db.QueryRow(query, id).Scan(&raw, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s record: %w", table, err)
	}
	return raw, cachedAt, nil
}

// PutJob upserts a full job snapshot keyed by the remote job id.
func (s *Store) PutJob(id string, data map[string]any) error {
	return s.putSnapshot("cached_jobs", "id", id, data)
}

// GetJob returns the cached job snapshot or ErrNotFound.
func (s *Store) GetJob(id string) (*models.JobSnapshot, error) {
	raw, cachedAt, err := s.getSnapshot("cached_jobs", "id", id)
	if err != nil {
		return nil, err
	}
	snap := &models.JobSnapshot{ID: id, CachedAt: cachedAt}
	if err := json.Unmarshal([]byte(raw), &snap.Data); err != nil {
		return nil, fmt.Errorf("failed to decode job snapshot: %w", err)
	}
	return snap, nil
}

// AllJobs returns every cached job snapshot. Scope filtering happens in
// memory in the read path; the cache has no scoped queries.
func (s *Store) AllJobs() ([]*models.JobSnapshot, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT id, data, cached_at FROM cached_jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to list cached jobs: %w", err)
	}
	defer rows.Close()

	var snaps []*models.JobSnapshot
	for rows.Next() {
		var snap models.JobSnapshot
		var raw string
		if err := rows.Scan(&snap.ID, &raw, &snap.CachedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &snap.Data); err != nil {
			return nil, fmt.Errorf("failed to decode job snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// PutClient upserts a full client snapshot keyed by the remote id.
func (s *Store) PutClient(id string, data map[string]any) error {
	return s.putSnapshot("cached_clients", "id", id, data)
}

// GetClient returns the cached client snapshot or ErrNotFound.
func (s *Store) GetClient(id string) (*models.ClientSnapshot, error) {
	raw, cachedAt, err := s.getSnapshot("cached_clients", "id", id)
	if err != nil {
		return nil, err
	}
	snap := &models.ClientSnapshot{ID: id, CachedAt: cachedAt}
	if err := json.Unmarshal([]byte(raw), &snap.Data); err != nil {
		return nil, fmt.Errorf("failed to decode client snapshot: %w", err)
	}
	return snap, nil
}

// AllClients returns every cached client snapshot.
func (s *Store) AllClients() ([]*models.ClientSnapshot, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT id, data, cached_at FROM cached_clients")
	if err != nil {
		return nil, fmt.Errorf("failed to list cached clients: %w", err)
	}
	defer rows.Close()

	var snaps []*models.ClientSnapshot
	for rows.Next() {
		var snap models.ClientSnapshot
		var raw string
		if err := rows.Scan(&snap.ID, &raw, &snap.CachedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &snap.Data); err != nil {
			return nil, fmt.Errorf("failed to decode client snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// PutChecklist upserts the checklist snapshot for a job.
func (s *Store) PutChecklist(jobID string, items []map[string]any) error {
	return s.putSnapshot("cached_checklists", "job_id", jobID, items)
}

// GetChecklist returns the cached checklist for a job or ErrNotFound.
// There is no cascade with the job snapshot: a checklist can outlive
// the cached job it belongs to.
func (s *Store) GetChecklist(jobID string) (*models.ChecklistSnapshot, error) {
	raw, cachedAt, err := s.getSnapshot("cached_checklists", "job_id", jobID)
	if err != nil {
		return nil, err
	}
	snap := &models.ChecklistSnapshot{JobID: jobID, CachedAt: cachedAt}
	if err := json.Unmarshal([]byte(raw), &snap.Items); err != nil {
		return nil, fmt.Errorf("failed to decode checklist snapshot: %w", err)
	}
	return snap, nil
}

// CacheJobsWithClients upserts every job snapshot and, for each job
// carrying an embedded client sub-object, that client's snapshot, in
// one transaction. All-or-nothing: a failure partway leaves no partial
// set committed. Also records the cache time in metadata.
func (s *Store) CacheJobsWithClients(jobs []map[string]any) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	jobStmt, err := tx.Prepare(`
	INSERT INTO cached_jobs (id, data, cached_at) VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare job upsert: %w", err)
	}
	defer jobStmt.Close()

	clientStmt, err := tx.Prepare(`
	INSERT INTO cached_clients (id, data, cached_at) VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare client upsert: %w", err)
	}
	defer clientStmt.Close()

	for _, job := range jobs {
		raw, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to encode job record: %w", err)
		}
		if _, err := jobStmt.Exec(models.RecordID(job), string(raw), now); err != nil {
			return fmt.Errorf("failed to cache job record: %w", err)
		}

		client := models.EmbeddedClient(job)
		if client == nil {
			continue
		}
		clientRaw, err := json.Marshal(client)
		if err != nil {
			return fmt.Errorf("failed to encode client record: %w", err)
		}
		if _, err := clientStmt.Exec(models.RecordID(client), string(clientRaw), now); err != nil {
			return fmt.Errorf("failed to cache client record: %w", err)
		}
	}

	metaQuery := `
	INSERT INTO offline_meta (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := tx.Exec(metaQuery, models.MetaLastCacheAt, fmt.Sprintf("%d", now), now); err != nil {
		return fmt.Errorf("failed to record cache time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job cache: %w", err)
	}

	s.log.WithField("jobs", len(jobs)).Debug("job cache refreshed")
	return nil
}

// PruneOlderThan deletes snapshots cached before the cutoff, collection
// by collection, and returns the number of rows removed. The sweep is
// independent per collection; no cascade links jobs to checklists.
func (s *Store) PruneOlderThan(days int) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	var total int64
	for _, table := range []string{"cached_jobs", "cached_clients", "cached_checklists"} {
		res, err := db.Exec(fmt.Sprintf("DELETE FROM %s WHERE cached_at < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if total > 0 {
		s.log.WithField("removed", total).Info("pruned stale cache records")
	}
	return total, nil
}
