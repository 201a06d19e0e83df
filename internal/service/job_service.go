// Package service provides the offline-aware read and write paths for
// job tracking. Reads go network-first and fall back to the local
// cache; writes apply optimistically to the cache and queue when the
// remote call cannot be made.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kpereira/fieldsync/internal/connectivity"
	"github.com/kpereira/fieldsync/internal/models"
	"github.com/kpereira/fieldsync/internal/remote"
	"github.com/kpereira/fieldsync/internal/store"
)

// JobsResult is the outcome of a job read. FromCache tells the UI to
// show a "showing cached data" indicator.
type JobsResult struct {
	Jobs      []map[string]any
	FromCache bool
}

// ChecklistResult is the outcome of a checklist read.
type ChecklistResult struct {
	Items     []map[string]any
	FromCache bool
}

// WriteResult is the outcome of a mutation. Queued means the change
// was applied locally and is waiting for the sync queue to deliver it.
type WriteResult struct {
	Queued bool
}

// JobService is the single read/write API the UI consumes. It is
// transparent about data origin via the FromCache tags.
type JobService struct {
	store   *store.Store
	remote  remote.Client
	monitor *connectivity.Monitor
	log     *logrus.Logger
}

// NewJobService creates a JobService. A nil logger falls back to the
// logrus standard logger.
func NewJobService(st *store.Store, rc remote.Client, monitor *connectivity.Monitor, log *logrus.Logger) *JobService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &JobService{store: st, remote: rc, monitor: monitor, log: log}
}

// GetJobs returns the jobs for scope. Online it asks the network first
// and refreshes the cache with the authoritative answer; offline, or
// when the call fails, it serves cached snapshots filtered in memory
// to the requested scope. A store that cannot open yields an empty
// cached result plus the error, never a hang.
func (s *JobService) GetJobs(ctx context.Context, scope remote.Scope) (*JobsResult, error) {
	if s.monitor.Online() {
		jobs, err := s.remote.FetchJobs(ctx, scope)
		if err == nil {
			if cerr := s.store.CacheJobsWithClients(jobs); cerr != nil {
				s.log.WithError(cerr).Warn("failed to refresh job cache")
			}
			return &JobsResult{Jobs: jobs}, nil
		}
		s.log.WithError(err).Info("job fetch failed, falling back to cache")
	}

	snaps, err := s.store.AllJobs()
	if err != nil {
		return &JobsResult{FromCache: true}, fmt.Errorf("offline fallback unavailable: %w", err)
	}

	var jobs []map[string]any
	for _, snap := range snaps {
		if inScope(snap.Data, scope) {
			jobs = append(jobs, snap.Data)
		}
	}
	return &JobsResult{Jobs: jobs, FromCache: true}, nil
}

// inScope applies the technician/tenant filter the cache cannot run
// natively.
func inScope(data map[string]any, scope remote.Scope) bool {
	if scope.TechnicianID != "" && models.AssignedTechnician(data) != scope.TechnicianID {
		return false
	}
	if scope.TenantID != "" && models.TenantID(data) != scope.TenantID {
		return false
	}
	return true
}

// GetChecklist returns the checklist for a job with the same
// network-first, cache-fallback shape as GetJobs.
func (s *JobService) GetChecklist(ctx context.Context, jobID string) (*ChecklistResult, error) {
	if s.monitor.Online() {
		items, err := s.remote.FetchChecklist(ctx, jobID)
		if err == nil {
			if cerr := s.store.PutChecklist(jobID, items); cerr != nil {
				s.log.WithError(cerr).Warn("failed to refresh checklist cache")
			}
			return &ChecklistResult{Items: items}, nil
		}
		s.log.WithError(err).Info("checklist fetch failed, falling back to cache")
	}

	snap, err := s.store.GetChecklist(jobID)
	if errors.Is(err, store.ErrNotFound) {
		return &ChecklistResult{FromCache: true}, nil
	}
	if err != nil {
		return &ChecklistResult{FromCache: true}, fmt.Errorf("offline fallback unavailable: %w", err)
	}
	return &ChecklistResult{Items: snap.Items, FromCache: true}, nil
}

// RefreshJobs forces a network fetch and cache refresh for scope. Used
// when a remote-origin push signals that cached jobs went stale.
func (s *JobService) RefreshJobs(ctx context.Context, scope remote.Scope) error {
	jobs, err := s.remote.FetchJobs(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to refresh jobs: %w", err)
	}
	if err := s.store.CacheJobsWithClients(jobs); err != nil {
		return fmt.Errorf("failed to cache refreshed jobs: %w", err)
	}
	return nil
}

// UpdateJobStatus marks a job's status. Online it applies directly to
// the remote system and mirrors the change into the cache; offline, or
// when the direct call fails, the cached snapshot is patched
// immediately and the mutation is queued for the next drain.
func (s *JobService) UpdateJobStatus(ctx context.Context, jobID, status string) (*WriteResult, error) {
	if s.monitor.Online() {
		if err := s.remote.UpdateJobStatus(ctx, jobID, status); err == nil {
			s.patchJob(jobID, func(data map[string]any) { data["status"] = status })
			return &WriteResult{}, nil
		} else {
			s.log.WithError(err).WithField("job", jobID).Info("status update failed, queueing")
		}
	}

	s.patchJob(jobID, func(data map[string]any) { data["status"] = status })
	_, err := s.store.EnqueueOperation(models.OpJobStatusUpdate, models.JobStatusPayload{
		JobID:  jobID,
		Status: status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue status update: %w", err)
	}
	return &WriteResult{Queued: true}, nil
}

// UpdateChecklistItem toggles a checklist item with the same
// optimistic shape as UpdateJobStatus.
func (s *JobService) UpdateChecklistItem(ctx context.Context, jobID, itemID string, completed bool) (*WriteResult, error) {
	if s.monitor.Online() {
		if err := s.remote.UpdateChecklistItem(ctx, jobID, itemID, completed); err == nil {
			s.patchChecklistItem(jobID, itemID, completed)
			return &WriteResult{}, nil
		} else {
			s.log.WithError(err).WithField("job", jobID).Info("checklist update failed, queueing")
		}
	}

	s.patchChecklistItem(jobID, itemID, completed)
	_, err := s.store.EnqueueOperation(models.OpChecklistItemUpdate, models.ChecklistItemPayload{
		JobID:     jobID,
		ItemID:    itemID,
		Completed: completed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue checklist update: %w", err)
	}
	return &WriteResult{Queued: true}, nil
}

// UpdateNotes replaces the notes on a job with the same optimistic
// shape as UpdateJobStatus.
func (s *JobService) UpdateNotes(ctx context.Context, jobID, notes string) (*WriteResult, error) {
	if s.monitor.Online() {
		if err := s.remote.UpdateNotes(ctx, jobID, notes); err == nil {
			s.patchJob(jobID, func(data map[string]any) { data["notes"] = notes })
			return &WriteResult{}, nil
		} else {
			s.log.WithError(err).WithField("job", jobID).Info("notes update failed, queueing")
		}
	}

	s.patchJob(jobID, func(data map[string]any) { data["notes"] = notes })
	_, err := s.store.EnqueueOperation(models.OpNotesUpdate, models.NotesPayload{
		JobID: jobID,
		Notes: notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue notes update: %w", err)
	}
	return &WriteResult{Queued: true}, nil
}

// patchJob applies mutate to the cached snapshot so the read path
// reflects the change immediately. A missing snapshot is fine: a
// queued operation may precede the cache entry for its job.
func (s *JobService) patchJob(jobID string, mutate func(data map[string]any)) {
	snap, err := s.store.GetJob(jobID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("job", jobID).Warn("failed to read cached job for patch")
		return
	}
	mutate(snap.Data)
	if err := s.store.PutJob(jobID, snap.Data); err != nil {
		s.log.WithError(err).WithField("job", jobID).Warn("failed to patch cached job")
	}
}

func (s *JobService) patchChecklistItem(jobID, itemID string, completed bool) {
	snap, err := s.store.GetChecklist(jobID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("job", jobID).Warn("failed to read cached checklist for patch")
		return
	}
	for _, item := range snap.Items {
		if models.RecordID(item) == itemID {
			item["completed"] = completed
		}
	}
	if err := s.store.PutChecklist(jobID, snap.Items); err != nil {
		s.log.WithError(err).WithField("job", jobID).Warn("failed to patch cached checklist")
	}
}
