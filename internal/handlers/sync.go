// Package handlers provides the local REST surface the UI shell talks
// to: sync status and control, offline store stats, connectivity
// signal ingestion.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kpereira/fieldsync/internal/connectivity"
	"github.com/kpereira/fieldsync/internal/engine"
	"github.com/kpereira/fieldsync/internal/store"
)

// SyncHandler exposes the sync queue and offline store over HTTP.
type SyncHandler struct {
	store   *store.Store
	engine  *engine.Engine
	monitor *connectivity.Monitor
	log     *logrus.Logger
}

// NewSyncHandler creates a SyncHandler. A nil logger falls back to the
// logrus standard logger.
func NewSyncHandler(st *store.Store, eng *engine.Engine, monitor *connectivity.Monitor, log *logrus.Logger) *SyncHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SyncHandler{store: st, engine: eng, monitor: monitor, log: log}
}

// Register wires the handler's routes onto mux.
func (h *SyncHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /sync/status", h.Status)
	mux.HandleFunc("POST /sync/now", h.SyncNow)
	mux.HandleFunc("GET /offline/stats", h.Stats)
	mux.HandleFunc("POST /offline/clear", h.Clear)
	mux.HandleFunc("POST /connectivity", h.Connectivity)
}

// Status handles GET /sync/status. The response is the banner state:
// online flag, in-flight flag, pending count, last clean sync, and the
// error strings from the most recent drain pass.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	pending, err := h.engine.Pending()
	if err != nil {
		h.log.WithError(err).Error("failed to count pending operations")
		http.Error(w, "failed to read sync queue", http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"online":  h.monitor.Online(),
		"syncing": h.engine.Syncing(),
		"pending": pending,
		"errors":  h.engine.LastErrors(),
	}
	if last := h.engine.LastSync(); last != nil {
		response["last_sync"] = last.Unix()
	}

	writeJSON(w, http.StatusOK, response)
}

// SyncNow handles POST /sync/now, a manual drain trigger. An in-flight
// drain returns 409; offline returns 503.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Drain(r.Context())
	if errors.Is(err, engine.ErrSyncInProgress) {
		http.Error(w, "sync already in progress", http.StatusConflict)
		return
	}
	if errors.Is(err, engine.ErrOffline) {
		http.Error(w, "cannot sync while offline", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("manual sync failed")
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Stats handles GET /offline/stats.
func (h *SyncHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats()
	if err != nil {
		h.log.WithError(err).Error("failed to read store stats")
		http.Error(w, "failed to read offline store", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Clear handles POST /offline/clear. Requires {"confirm": true}; queued
// operations are destroyed along with the cache, so the UI must warn
// before calling this.
func (h *SyncHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !request.Confirm {
		http.Error(w, "confirm is required", http.StatusBadRequest)
		return
	}

	if err := h.store.ClearAll(); err != nil {
		h.log.WithError(err).Error("failed to clear offline store")
		http.Error(w, "failed to clear offline store", http.StatusInternalServerError)
		return
	}
	h.log.Warn("offline store cleared, queued operations discarded")
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

// Connectivity handles POST /connectivity. The platform shell reports
// reachability changes here. A transition to online triggers an
// automatic drain via the engine's subscription.
func (h *SyncHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Online == nil {
		http.Error(w, "online is required", http.StatusBadRequest)
		return
	}

	h.monitor.SetOnline(*request.Online)
	writeJSON(w, http.StatusOK, map[string]any{"online": h.monitor.Online()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
