package models

// MetadataEntry is a small scalar setting stored in the offline store.
// Purely a settings bag, not relational.
type MetadataEntry struct {
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for MetadataEntry.
func (MetadataEntry) TableName() string {
	return "offline_meta"
}

// Well-known metadata keys.
const (
	MetaLastCacheAt = "last_cache_time"
	MetaLastSyncAt  = "last_sync_time"
)
