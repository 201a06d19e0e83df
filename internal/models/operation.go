// Package models provides data model definitions for the fieldsync core.
package models

import (
	"encoding/json"
	"fmt"
)

// OperationType identifies the kind of a queued mutation. The set is
// closed: every type maps to exactly one remote endpoint and payload
// shape, and the drain dispatcher matches exhaustively over it.
type OperationType string

const (
	OpJobStatusUpdate     OperationType = "job_status_update"
	OpChecklistItemUpdate OperationType = "checklist_item_update"
	OpNotesUpdate         OperationType = "notes_update"
)

// Valid reports whether t is one of the known operation types.
func (t OperationType) Valid() bool {
	switch t {
	case OpJobStatusUpdate, OpChecklistItemUpdate, OpNotesUpdate:
		return true
	}
	return false
}

// QueuedOperation represents a pending mutation awaiting transmission
// to the remote system. The payload is opaque to the queue itself; it
// is decoded and validated by the type-specific handler at drain time.
// Only RetryCount and LastError mutate after creation.
type QueuedOperation struct {
	ID         string          `db:"id" json:"id"`
	Type       OperationType   `db:"op_type" json:"op_type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"` // unix nanoseconds, drain order key
}

// TableName returns the table name for QueuedOperation.
func (QueuedOperation) TableName() string {
	return "sync_queue"
}

// JobStatusPayload is the payload for OpJobStatusUpdate.
type JobStatusPayload struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Validate checks the required fields.
func (p JobStatusPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("job status payload: missing job_id")
	}
	if p.Status == "" {
		return fmt.Errorf("job status payload: missing status")
	}
	return nil
}

// ChecklistItemPayload is the payload for OpChecklistItemUpdate.
type ChecklistItemPayload struct {
	JobID     string `json:"job_id"`
	ItemID    string `json:"item_id"`
	Completed bool   `json:"completed"`
}

// Validate checks the required fields.
func (p ChecklistItemPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("checklist item payload: missing job_id")
	}
	if p.ItemID == "" {
		return fmt.Errorf("checklist item payload: missing item_id")
	}
	return nil
}

// NotesPayload is the payload for OpNotesUpdate.
type NotesPayload struct {
	JobID string `json:"job_id"`
	Notes string `json:"notes"`
}

// Validate checks the required fields.
func (p NotesPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("notes payload: missing job_id")
	}
	return nil
}
