package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/kpereira/fieldsync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), nil)
	if err := s.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOpen(t *testing.T) {
	t.Run("creates database on first run", func(t *testing.T) {
		dir := t.TempDir()
		s := New(dir, nil)
		if err := s.Open(); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer s.Close()

		if _, err := os.Stat(filepath.Join(dir, "fieldsync.db")); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("concurrent opens share one initialization", func(t *testing.T) {
		s := New(t.TempDir(), nil)
		defer s.Close()

		var wg sync.WaitGroup
		errs := make([]error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.Open()
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Errorf("Open() call %d error = %v", i, err)
			}
		}
		if _, err := s.PendingCount(); err != nil {
			t.Errorf("store unusable after concurrent opens: %v", err)
		}
	})

	t.Run("unopened store returns ErrStoreUnavailable", func(t *testing.T) {
		s := New(t.TempDir(), nil)
		if _, err := s.ListQueue(); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("ListQueue() error = %v, want ErrStoreUnavailable", err)
		}
		if err := s.PutJob("j1", map[string]any{"id": "j1"}); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("PutJob() error = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("open failure surfaces ErrStoreUnavailable", func(t *testing.T) {
		// A regular file where the data directory should be makes
		// MkdirAll fail.
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocked")
		if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		s := New(blocker, nil)
		if err := s.Open(); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("Open() error = %v, want ErrStoreUnavailable", err)
		}
		// Failure is sticky across calls.
		if err := s.Open(); !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("second Open() error = %v, want ErrStoreUnavailable", err)
		}
	})
}

func TestSyncQueue(t *testing.T) {
	t.Run("enqueue assigns id and zero retry count", func(t *testing.T) {
		s := newTestStore(t)

		op, err := s.EnqueueOperation(models.OpJobStatusUpdate, models.JobStatusPayload{JobID: "j1", Status: "en_route"})
		if err != nil {
			t.Fatalf("EnqueueOperation() error = %v", err)
		}
		if op.ID == "" {
			t.Error("expected assigned id")
		}
		if op.RetryCount != 0 {
			t.Errorf("RetryCount = %d, want 0", op.RetryCount)
		}

		var p models.JobStatusPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			t.Fatalf("payload did not round-trip: %v", err)
		}
		if p.JobID != "j1" || p.Status != "en_route" {
			t.Errorf("payload = %+v", p)
		}
	})

	t.Run("rejects unknown operation type", func(t *testing.T) {
		s := newTestStore(t)
		if _, err := s.EnqueueOperation("job_delete", nil); err == nil {
			t.Error("expected error for unknown operation type")
		}
	})

	t.Run("list preserves creation order", func(t *testing.T) {
		s := newTestStore(t)

		first, _ := s.EnqueueOperation(models.OpJobStatusUpdate, models.JobStatusPayload{JobID: "j1", Status: "on_site"})
		second, _ := s.EnqueueOperation(models.OpNotesUpdate, models.NotesPayload{JobID: "j1", Notes: "arrived"})
		third, _ := s.EnqueueOperation(models.OpChecklistItemUpdate, models.ChecklistItemPayload{JobID: "j1", ItemID: "c1", Completed: true})

		ops, err := s.ListQueue()
		if err != nil {
			t.Fatalf("ListQueue() error = %v", err)
		}
		if len(ops) != 3 {
			t.Fatalf("len(ops) = %d, want 3", len(ops))
		}
		for i, want := range []string{first.ID, second.ID, third.ID} {
			if ops[i].ID != want {
				t.Errorf("ops[%d].ID = %s, want %s", i, ops[i].ID, want)
			}
		}
	})

	t.Run("retried item keeps its position", func(t *testing.T) {
		s := newTestStore(t)

		first, _ := s.EnqueueOperation(models.OpJobStatusUpdate, models.JobStatusPayload{JobID: "j1", Status: "on_site"})
		second, _ := s.EnqueueOperation(models.OpJobStatusUpdate, models.JobStatusPayload{JobID: "j2", Status: "completed"})

		if err := s.UpdateRetryCount(first.ID, 3, "remote returned 500"); err != nil {
			t.Fatalf("UpdateRetryCount() error = %v", err)
		}

		ops, err := s.ListQueue()
		if err != nil {
			t.Fatalf("ListQueue() error = %v", err)
		}
		if ops[0].ID != first.ID || ops[1].ID != second.ID {
			t.Errorf("order changed after retry bookkeeping: %s, %s", ops[0].ID, ops[1].ID)
		}
		if ops[0].RetryCount != 3 {
			t.Errorf("RetryCount = %d, want 3", ops[0].RetryCount)
		}
		if ops[0].LastError != "remote returned 500" {
			t.Errorf("LastError = %q", ops[0].LastError)
		}
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		s := newTestStore(t)

		op, _ := s.EnqueueOperation(models.OpNotesUpdate, models.NotesPayload{JobID: "j1", Notes: "done"})
		if err := s.RemoveQueued(op.ID); err != nil {
			t.Fatalf("RemoveQueued() error = %v", err)
		}
		if err := s.RemoveQueued(op.ID); err != nil {
			t.Errorf("second RemoveQueued() error = %v, want nil", err)
		}
		if err := s.RemoveQueued("never-existed"); err != nil {
			t.Errorf("RemoveQueued(missing) error = %v, want nil", err)
		}
	})

	t.Run("retry update after removal is a no-op", func(t *testing.T) {
		s := newTestStore(t)

		op, _ := s.EnqueueOperation(models.OpNotesUpdate, models.NotesPayload{JobID: "j1", Notes: "done"})
		if err := s.RemoveQueued(op.ID); err != nil {
			t.Fatal(err)
		}
		if err := s.UpdateRetryCount(op.ID, 1, "late failure"); err != nil {
			t.Errorf("UpdateRetryCount() after removal error = %v, want nil", err)
		}
		if n, _ := s.PendingCount(); n != 0 {
			t.Errorf("PendingCount = %d, want 0", n)
		}
	})
}

func TestSnapshotCache(t *testing.T) {
	t.Run("put overwrites, never merges", func(t *testing.T) {
		s := newTestStore(t)

		if err := s.PutJob("j1", map[string]any{"id": "j1", "status": "scheduled", "notes": "bring ladder"}); err != nil {
			t.Fatal(err)
		}
		if err := s.PutJob("j1", map[string]any{"id": "j1", "status": "completed"}); err != nil {
			t.Fatal(err)
		}

		snap, err := s.GetJob("j1")
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if snap.Data["status"] != "completed" {
			t.Errorf("status = %v, want completed", snap.Data["status"])
		}
		if _, ok := snap.Data["notes"]; ok {
			t.Error("stale field survived overwrite; snapshots must replace wholesale")
		}
	})

	t.Run("missing snapshot returns ErrNotFound", func(t *testing.T) {
		s := newTestStore(t)
		if _, err := s.GetJob("ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetJob() error = %v, want ErrNotFound", err)
		}
		if _, err := s.GetChecklist("ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetChecklist() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("checklist snapshot round-trips", func(t *testing.T) {
		s := newTestStore(t)

		items := []map[string]any{
			{"id": "c1", "label": "shut off water", "completed": true},
			{"id": "c2", "label": "replace valve", "completed": false},
		}
		if err := s.PutChecklist("j1", items); err != nil {
			t.Fatal(err)
		}

		snap, err := s.GetChecklist("j1")
		if err != nil {
			t.Fatalf("GetChecklist() error = %v", err)
		}
		if len(snap.Items) != 2 {
			t.Fatalf("len(Items) = %d, want 2", len(snap.Items))
		}
		if snap.Items[0]["label"] != "shut off water" {
			t.Errorf("Items[0] = %v", snap.Items[0])
		}
	})

	t.Run("bulk cache extracts embedded clients", func(t *testing.T) {
		s := newTestStore(t)

		jobs := []map[string]any{
			{"id": "j1", "status": "scheduled", "client": map[string]any{"id": "cl1", "name": "Acme HVAC"}},
			{"id": "j2", "status": "en_route"},
		}
		if err := s.CacheJobsWithClients(jobs); err != nil {
			t.Fatalf("CacheJobsWithClients() error = %v", err)
		}

		all, err := s.AllJobs()
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 {
			t.Errorf("cached jobs = %d, want 2", len(all))
		}

		client, err := s.GetClient("cl1")
		if err != nil {
			t.Fatalf("GetClient() error = %v", err)
		}
		if client.Data["name"] != "Acme HVAC" {
			t.Errorf("client name = %v", client.Data["name"])
		}

		if _, ok, _ := s.GetMeta(models.MetaLastCacheAt); !ok {
			t.Error("bulk cache did not record cache time")
		}
	})

	t.Run("bulk cache is all or nothing", func(t *testing.T) {
		s := newTestStore(t)

		if err := s.PutJob("j1", map[string]any{"id": "j1", "status": "scheduled"}); err != nil {
			t.Fatal(err)
		}

		// The second record has no id, which violates the schema and
		// must roll the whole batch back.
		jobs := []map[string]any{
			{"id": "j1", "status": "completed"},
			{"status": "orphaned"},
		}
		if err := s.CacheJobsWithClients(jobs); err == nil {
			t.Fatal("expected error for record without id")
		}

		snap, err := s.GetJob("j1")
		if err != nil {
			t.Fatal(err)
		}
		if snap.Data["status"] != "scheduled" {
			t.Errorf("partial batch leaked: status = %v, want scheduled", snap.Data["status"])
		}
	})

	t.Run("prune removes stale snapshots only", func(t *testing.T) {
		s := newTestStore(t)

		if err := s.PutJob("j1", map[string]any{"id": "j1"}); err != nil {
			t.Fatal(err)
		}
		if err := s.PutChecklist("j1", []map[string]any{{"id": "c1"}}); err != nil {
			t.Fatal(err)
		}

		// Fresh rows survive a normal retention window.
		removed, err := s.PruneOlderThan(30)
		if err != nil {
			t.Fatalf("PruneOlderThan() error = %v", err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, want 0", removed)
		}

		// A cutoff in the future sweeps everything.
		removed, err = s.PruneOlderThan(-1)
		if err != nil {
			t.Fatal(err)
		}
		if removed != 2 {
			t.Errorf("removed = %d, want 2", removed)
		}
		if _, err := s.GetJob("j1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("job survived prune: %v", err)
		}
	})
}

func TestStoreMaintenance(t *testing.T) {
	t.Run("stats reflect contents", func(t *testing.T) {
		s := newTestStore(t)

		s.PutJob("j1", map[string]any{"id": "j1"})
		s.PutClient("cl1", map[string]any{"id": "cl1"})
		s.EnqueueOperation(models.OpNotesUpdate, models.NotesPayload{JobID: "j1", Notes: "x"})

		stats, err := s.GetStats()
		if err != nil {
			t.Fatalf("GetStats() error = %v", err)
		}
		if stats.CachedJobs != 1 || stats.CachedClients != 1 || stats.PendingOperations != 1 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("clear empties every collection", func(t *testing.T) {
		s := newTestStore(t)

		s.PutJob("j1", map[string]any{"id": "j1"})
		s.PutClient("cl1", map[string]any{"id": "cl1"})
		s.PutChecklist("j1", []map[string]any{{"id": "c1"}})
		s.EnqueueOperation(models.OpNotesUpdate, models.NotesPayload{JobID: "j1", Notes: "x"})
		s.SetMeta("last_cache_time", "12345")

		if err := s.ClearAll(); err != nil {
			t.Fatalf("ClearAll() error = %v", err)
		}

		stats, _ := s.GetStats()
		if stats.CachedJobs != 0 || stats.CachedClients != 0 || stats.PendingOperations != 0 {
			t.Errorf("stats after clear = %+v", stats)
		}
		if _, ok, _ := s.GetMeta("last_cache_time"); ok {
			t.Error("metadata survived clear")
		}
	})

	t.Run("metadata get reports absence", func(t *testing.T) {
		s := newTestStore(t)
		if _, ok, err := s.GetMeta("nope"); err != nil || ok {
			t.Errorf("GetMeta(absent) = ok=%v err=%v", ok, err)
		}
		if err := s.SetMeta("k", "v1"); err != nil {
			t.Fatal(err)
		}
		if err := s.SetMeta("k", "v2"); err != nil {
			t.Fatal(err)
		}
		v, ok, err := s.GetMeta("k")
		if err != nil || !ok || v != "v2" {
			t.Errorf("GetMeta(k) = %q ok=%v err=%v", v, ok, err)
		}
	})
}

func TestMigrator(t *testing.T) {
	openRaw := func(t *testing.T) *sql.DB {
		t.Helper()
		db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatal(err)
		}
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { db.Close() })
		return db
	}

	t.Run("applies embedded migrations in order", func(t *testing.T) {
		db := openRaw(t)
		m := NewMigrator(db, Migrations)
		if err := m.Initialize(); err != nil {
			t.Fatal(err)
		}
		if err := m.Up(); err != nil {
			t.Fatalf("Up() error = %v", err)
		}

		version, err := m.CurrentVersion()
		if err != nil {
			t.Fatal(err)
		}
		if version != 2 {
			t.Errorf("CurrentVersion() = %d, want 2", version)
		}

		for _, table := range []string{"sync_queue", "cached_jobs", "cached_clients", "cached_checklists", "offline_meta"} {
			var name string
			err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
			if err != nil {
				t.Errorf("table %s missing: %v", table, err)
			}
		}
	})

	t.Run("upgrade is additive and preserves data", func(t *testing.T) {
		db := openRaw(t)

		v1, err := Migrations.ReadFile("migrations/V1__offline_store.up.sql")
		if err != nil {
			t.Fatal(err)
		}
		onlyV1 := fstest.MapFS{
			"V1__offline_store.up.sql": &fstest.MapFile{Data: v1},
		}

		m := NewMigrator(db, onlyV1)
		if err := m.Initialize(); err != nil {
			t.Fatal(err)
		}
		if err := m.Up(); err != nil {
			t.Fatal(err)
		}

		if _, err := db.Exec(
			"INSERT INTO cached_jobs (id, data, cached_at) VALUES ('j1', '{\"id\":\"j1\"}', 100)"); err != nil {
			t.Fatal(err)
		}

		// Re-run against the full set, as an app upgrade would.
		m2 := NewMigrator(db, Migrations)
		if err := m2.Initialize(); err != nil {
			t.Fatal(err)
		}
		if err := m2.Up(); err != nil {
			t.Fatalf("upgrade Up() error = %v", err)
		}

		version, _ := m2.CurrentVersion()
		if version != 2 {
			t.Errorf("CurrentVersion() = %d, want 2", version)
		}
		var data string
		if err := db.QueryRow("SELECT data FROM cached_jobs WHERE id='j1'").Scan(&data); err != nil {
			t.Errorf("pre-upgrade data lost: %v", err)
		}

		var name string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='cached_checklists'").Scan(&name); err != nil {
			t.Errorf("upgrade did not add cached_checklists: %v", err)
		}
	})

	t.Run("up is idempotent", func(t *testing.T) {
		db := openRaw(t)
		m := NewMigrator(db, Migrations)
		if err := m.Initialize(); err != nil {
			t.Fatal(err)
		}
		if err := m.Up(); err != nil {
			t.Fatal(err)
		}
		if err := m.Up(); err != nil {
			t.Errorf("second Up() error = %v", err)
		}
	})
}
