// Package remote defines the client contract for the hosted
// field-service backend and its HTTP implementation.
package remote

import "context"

// Scope narrows read calls to one technician within one tenant.
type Scope struct {
	TenantID     string
	TechnicianID string
}

// Client is the remote data system as the offline core sees it: scoped
// reads plus one write call per queued mutation kind. Write calls have
// no partial-success semantics: a call either fully applies or fails.
type Client interface {
	// FetchJobs returns the job records visible in scope. Each record
	// is a flat field mapping and may embed a "client" sub-object.
	FetchJobs(ctx context.Context, scope Scope) ([]map[string]any, error)

	// FetchChecklist returns the checklist items for a job.
	FetchChecklist(ctx context.Context, jobID string) ([]map[string]any, error)

	// UpdateJobStatus applies a job status change.
	UpdateJobStatus(ctx context.Context, jobID, status string) error

	// UpdateChecklistItem toggles completion of a checklist item.
	UpdateChecklistItem(ctx context.Context, jobID, itemID string, completed bool) error

	// UpdateNotes replaces the technician notes on a job.
	UpdateNotes(ctx context.Context, jobID, notes string) error
}
