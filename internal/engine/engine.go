// Package engine reconciles the local sync queue against the remote
// system: single-flight drain, oldest-first ordering, per-item retry
// bookkeeping.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kpereira/fieldsync/internal/connectivity"
	apperrors "github.com/kpereira/fieldsync/internal/errors"
	"github.com/kpereira/fieldsync/internal/models"
	"github.com/kpereira/fieldsync/internal/remote"
	"github.com/kpereira/fieldsync/internal/store"
)

// ErrSyncInProgress is returned when a drain is already in flight.
// Concurrent drain calls collapse into the running one.
var ErrSyncInProgress = apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")

// ErrOffline is returned when a drain is requested while the
// connectivity monitor reports offline.
var ErrOffline = apperrors.New(apperrors.ErrSyncOffline, "cannot sync while offline")

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int           `json:"attempted"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Errors    []string      `json:"errors,omitempty"`
	Remaining int           `json:"remaining"`
	Duration  time.Duration `json:"duration"`
}

// Engine drains the sync queue. One instance per store; the draining
// flag is the only mutual exclusion layered on top of the store.
type Engine struct {
	store   *store.Store
	remote  remote.Client
	monitor *connectivity.Monitor
	log     *logrus.Logger

	mu         sync.Mutex
	draining   bool
	lastSync   *time.Time
	lastErrors []string

	unsubscribe func()
}

// New creates an Engine. A nil logger falls back to the logrus
// standard logger.
func New(st *store.Store, rc remote.Client, monitor *connectivity.Monitor, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		store:   st,
		remote:  rc,
		monitor: monitor,
		log:     log,
	}
}

// Start subscribes the engine to connectivity transitions so the queue
// drains automatically when the device comes back online. Drain is
// event driven only; there is no timer.
func (e *Engine) Start() {
	e.unsubscribe = e.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if _, err := e.Drain(context.Background()); err != nil {
				e.log.WithError(err).Debug("auto drain skipped")
			}
		}()
	})
}

// Stop removes the connectivity subscription.
func (e *Engine) Stop() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// Syncing reports whether a drain pass is in flight.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}

// LastSync returns the completion time of the last clean drain pass,
// nil when none has completed yet.
func (e *Engine) LastSync() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastSync == nil {
		return nil
	}
	t := *e.lastSync
	return &t
}

// LastErrors returns the error strings accumulated by the most recent
// drain pass.
func (e *Engine) LastErrors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.lastErrors...)
}

// Pending returns the number of operations waiting in the queue.
func (e *Engine) Pending() (int, error) {
	return e.store.PendingCount()
}

// Drain sends every queued operation to the remote system in creation
// order. Successes are removed immediately, before the next item is
// attempted, so a crash mid-pass loses no confirmed progress. Failures
// increment the item's retry count, record a display error, and do not
// block the rest of the pass.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	if !e.monitor.Online() {
		return nil, ErrOffline
	}

	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	start := time.Now()

	ops, err := e.store.ListQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to read sync queue: %w", err)
	}

	result := &DrainResult{Attempted: len(ops)}

	for _, op := range ops {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := e.dispatch(ctx, op); err != nil {
			msg := fmt.Sprintf("%s: %v", op.Type, err)
			result.Failed++
			result.Errors = append(result.Errors, msg)

			// No-op when the item was removed concurrently.
			if uerr := e.store.UpdateRetryCount(op.ID, op.RetryCount+1, msg); uerr != nil {
				e.log.WithError(uerr).WithField("id", op.ID).Warn("failed to record retry")
			}
			e.log.WithFields(map[string]any{"id": op.ID, "op": string(op.Type), "retry": op.RetryCount + 1}).
				WithError(err).Warn("sync operation failed, retained for retry")
			continue
		}

		// Remove before moving on: a confirmed item is never resent.
		if rerr := e.store.RemoveQueued(op.ID); rerr != nil {
			return result, fmt.Errorf("failed to remove confirmed operation %s: %w", op.ID, rerr)
		}
		result.Completed++
	}

	remaining, err := e.store.PendingCount()
	if err != nil {
		return result, err
	}
	result.Remaining = remaining
	result.Duration = time.Since(start)

	e.mu.Lock()
	e.lastErrors = append([]string(nil), result.Errors...)
	if result.Failed == 0 {
		now := time.Now()
		e.lastSync = &now
	}
	e.mu.Unlock()

	if result.Failed == 0 {
		if err := e.store.SetMeta(models.MetaLastSyncAt, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
			e.log.WithError(err).Warn("failed to record last sync time")
		}
	}

	e.log.WithFields(map[string]any{
		"attempted": result.Attempted,
		"completed": result.Completed,
		"failed":    result.Failed,
		"remaining": result.Remaining,
	}).Info("drain pass finished")

	return result, nil
}

// dispatch decodes the payload for one queued operation and sends it to
// the remote endpoint owning that mutation kind. The match over the
// operation type set is exhaustive; an unknown type is a drain-time
// failure, never a silent no-op.
func (e *Engine) dispatch(ctx context.Context, op *models.QueuedOperation) error {
	switch op.Type {
	case models.OpJobStatusUpdate:
		var p models.JobStatusPayload
		if err := decodePayload(op.Payload, &p); err != nil {
			return err
		}
		return e.remote.UpdateJobStatus(ctx, p.JobID, p.Status)

	case models.OpChecklistItemUpdate:
		var p models.ChecklistItemPayload
		if err := decodePayload(op.Payload, &p); err != nil {
			return err
		}
		return e.remote.UpdateChecklistItem(ctx, p.JobID, p.ItemID, p.Completed)

	case models.OpNotesUpdate:
		var p models.NotesPayload
		if err := decodePayload(op.Payload, &p); err != nil {
			return err
		}
		return e.remote.UpdateNotes(ctx, p.JobID, p.Notes)

	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

type validator interface {
	Validate() error
}

func decodePayload(raw json.RawMessage, into validator) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return into.Validate()
}
