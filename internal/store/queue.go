package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kpereira/fieldsync/internal/models"
	"github.com/kpereira/fieldsync/internal/uuid"
)

// EnqueueOperation appends a mutation to the sync queue. The store
// assigns the id, creation time, and a zero retry count; the payload is
// stored opaquely and only decoded by the drain dispatcher.
func (s *Store) EnqueueOperation(opType models.OperationType, payload any) (*models.QueuedOperation, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if !opType.Valid() {
		return nil, fmt.Errorf("unknown operation type %q", opType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	op := &models.QueuedOperation{
		ID:        uuid.New(),
		Type:      opType,
		Payload:   raw,
		CreatedAt: time.Now().UnixNano(),
	}

	query := `
	INSERT INTO sync_queue (id, op_type, payload, retry_count, last_error, created_at)
	VALUES (?, ?, ?, 0, '', ?)
	`
	if _, err := db.Exec(query, op.ID, op.Type, string(op.Payload), op.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to enqueue operation: %w", err)
	}

	s.log.WithFields(map[string]any{"op": string(op.Type), "id": op.ID}).Debug("operation queued")
	return op, nil
}

// ListQueue returns every queued operation ordered by creation time
// ascending, the order the technician performed the actions. Retried
// items keep their original createdAt and therefore their position.
func (s *Store) ListQueue() ([]*models.QueuedOperation, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	query := `
	SELECT id, op_type, payload, retry_count, last_error, created_at
	FROM sync_queue ORDER BY created_at ASC, rowid ASC
	`
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var ops []*models.QueuedOperation
	for rows.Next() {
		var op models.QueuedOperation
		var payload string
		if err := rows.Scan(&op.ID, &op.Type, &payload, &op.RetryCount, &op.LastError, &op.CreatedAt); err != nil {
			return nil, err
		}
		op.Payload = json.RawMessage(payload)
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

// RemoveQueued deletes a queued operation after confirmed remote
// success. Removing an id that is already gone is not an error.
func (s *Store) RemoveQueued(id string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.Exec("DELETE FROM sync_queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove queued operation: %w", err)
	}
	return nil
}

// UpdateRetryCount records a failed drain attempt for an item. It is a
// no-op when the id no longer exists (the item was already removed).
func (s *Store) UpdateRetryCount(id string, count int, lastError string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	query := `UPDATE sync_queue SET retry_count = ?, last_error = ? WHERE id = ?`
	if _, err := db.Exec(query, count, lastError, id); err != nil {
		return fmt.Errorf("failed to update retry count: %w", err)
	}
	return nil
}

// PendingCount returns the number of operations waiting in the queue.
func (s *Store) PendingCount() (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sync_queue").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return count, nil
}

// ClearQueue empties the whole sync queue. Administrative escape hatch;
// queued work is discarded.
func (s *Store) ClearQueue() error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.Exec("DELETE FROM sync_queue"); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	s.log.Warn("sync queue cleared")
	return nil
}
