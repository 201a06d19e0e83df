package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kpereira/fieldsync/internal/remote"
	"github.com/kpereira/fieldsync/internal/service"
)

// JobsHandler exposes the offline-aware job read and write paths to the
// UI shell.
type JobsHandler struct {
	jobs  *service.JobService
	scope remote.Scope
	log   *logrus.Logger
}

// NewJobsHandler creates a JobsHandler bound to the signed-in
// technician's scope.
func NewJobsHandler(jobs *service.JobService, scope remote.Scope, log *logrus.Logger) *JobsHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &JobsHandler{jobs: jobs, scope: scope, log: log}
}

// Register wires the handler's routes onto mux.
func (h *JobsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /jobs", h.List)
	mux.HandleFunc("GET /jobs/{id}/checklist", h.Checklist)
	mux.HandleFunc("PATCH /jobs/{id}/status", h.UpdateStatus)
	mux.HandleFunc("PATCH /jobs/{id}/checklist/{itemID}", h.UpdateChecklistItem)
	mux.HandleFunc("PATCH /jobs/{id}/notes", h.UpdateNotes)
}

// List handles GET /jobs. from_cache tells the UI to show the stale
// data indicator.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.jobs.GetJobs(r.Context(), h.scope)
	if err != nil {
		h.log.WithError(err).Error("job read failed on both paths")
		http.Error(w, "jobs unavailable", http.StatusServiceUnavailable)
		return
	}

	jobs := result.Jobs
	if jobs == nil {
		jobs = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":       jobs,
		"from_cache": result.FromCache,
	})
}

// Checklist handles GET /jobs/{id}/checklist.
func (h *JobsHandler) Checklist(w http.ResponseWriter, r *http.Request) {
	result, err := h.jobs.GetChecklist(r.Context(), r.PathValue("id"))
	if err != nil {
		h.log.WithError(err).Error("checklist read failed on both paths")
		http.Error(w, "checklist unavailable", http.StatusServiceUnavailable)
		return
	}

	items := result.Items
	if items == nil {
		items = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"from_cache": result.FromCache,
	})
}

// UpdateStatus handles PATCH /jobs/{id}/status.
func (h *JobsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Status == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}

	result, err := h.jobs.UpdateJobStatus(r.Context(), r.PathValue("id"), request.Status)
	if err != nil {
		h.log.WithError(err).Error("status update failed")
		http.Error(w, "failed to record status update", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": result.Queued})
}

// UpdateChecklistItem handles PATCH /jobs/{id}/checklist/{itemID}.
func (h *JobsHandler) UpdateChecklistItem(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Completed *bool `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Completed == nil {
		http.Error(w, "completed is required", http.StatusBadRequest)
		return
	}

	result, err := h.jobs.UpdateChecklistItem(r.Context(), r.PathValue("id"), r.PathValue("itemID"), *request.Completed)
	if err != nil {
		h.log.WithError(err).Error("checklist update failed")
		http.Error(w, "failed to record checklist update", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": result.Queued})
}

// UpdateNotes handles PATCH /jobs/{id}/notes.
func (h *JobsHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Notes *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Notes == nil {
		http.Error(w, "notes is required", http.StatusBadRequest)
		return
	}

	result, err := h.jobs.UpdateNotes(r.Context(), r.PathValue("id"), *request.Notes)
	if err != nil {
		h.log.WithError(err).Error("notes update failed")
		http.Error(w, "failed to record notes update", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": result.Queued})
}
