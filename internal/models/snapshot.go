package models

// JobSnapshot is a point-in-time copy of a remote job record as last
// observed. Data is opaque to the cache beyond the id; a later put with
// the same id fully replaces the earlier snapshot.
type JobSnapshot struct {
	ID       string         `db:"id" json:"id"`
	Data     map[string]any `db:"data" json:"data"`
	CachedAt int64          `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for JobSnapshot.
func (JobSnapshot) TableName() string {
	return "cached_jobs"
}

// ClientSnapshot is a point-in-time copy of a remote client record.
type ClientSnapshot struct {
	ID       string         `db:"id" json:"id"`
	Data     map[string]any `db:"data" json:"data"`
	CachedAt int64          `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for ClientSnapshot.
func (ClientSnapshot) TableName() string {
	return "cached_clients"
}

// ChecklistSnapshot holds the checklist items for one job. It is keyed
// by job id and is not versioned separately from the job snapshot.
type ChecklistSnapshot struct {
	JobID    string           `db:"job_id" json:"job_id"`
	Items    []map[string]any `db:"items" json:"items"`
	CachedAt int64            `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for ChecklistSnapshot.
func (ChecklistSnapshot) TableName() string {
	return "cached_checklists"
}

// Field accessors for the opaque record maps the remote system returns.
// The cache never interprets these; the read path and the bulk cache
// writer do.

// RecordID extracts the remote entity id from a record mapping.
func RecordID(data map[string]any) string {
	id, _ := data["id"].(string)
	return id
}

// EmbeddedClient returns the client sub-object embedded in a job
// record, or nil when the record carries none.
func EmbeddedClient(data map[string]any) map[string]any {
	client, _ := data["client"].(map[string]any)
	return client
}

// AssignedTechnician extracts the technician id a job is assigned to.
func AssignedTechnician(data map[string]any) string {
	id, _ := data["technician_id"].(string)
	return id
}

// TenantID extracts the tenant id from a record mapping.
func TenantID(data map[string]any) string {
	id, _ := data["tenant_id"].(string)
	return id
}
