// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store"
	syncengine "github.com/meshforge/cadmirror/internal/sync"
)

// RunIDHeader names the response header set when a request created or
// cancelled a run, so the access log can correlate requests with runs.
const RunIDHeader = "X-Sync-Run"

// SyncHandler handles sync trigger and run inspection endpoints.
type SyncHandler struct {
	runner *syncengine.Runner
	store  store.Store
	logger *slog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(runner *syncengine.Runner, st store.Store, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		runner: runner,
		store:  st,
		logger: logger,
	}
}

// TriggerResponse is returned when a run is accepted.
type TriggerResponse struct {
	RunID  string            `json:"run_id"`
	Scope  models.SyncScope  `json:"scope"`
	Status models.SyncStatus `json:"status"`
}

// Trigger handles POST /v1/sync/{resource} - starts a single-resource run.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	scope := models.SyncScope(chi.URLParam(r, "resource"))
	if !scope.Valid() || scope == models.ScopeFull {
		WriteBadRequest(w, "unknown sync resource: "+string(scope))
		return
	}
	h.trigger(w, r, scope)
}

// TriggerFull handles POST /v1/sync/full - starts a full cascading run.
// The force_refresh query parameter rewrites entities whose revision marker
// is unchanged.
func (h *SyncHandler) TriggerFull(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, models.ScopeFull)
}

func (h *SyncHandler) trigger(w http.ResponseWriter, r *http.Request, scope models.SyncScope) {
	opts := syncengine.Options{
		ForceRefresh: parseBool(r.URL.Query().Get("force_refresh")),
	}

	run, err := h.runner.Trigger(r.Context(), scope, opts)
	if err != nil {
		if errors.Is(err, syncengine.ErrTooManyRuns) {
			WriteConflict(w, "maximum concurrent sync runs reached, retry later")
			return
		}
		h.logger.Error("failed to trigger sync run", "scope", scope, "error", err)
		WriteInternalError(w, "Failed to start sync run")
		return
	}

	w.Header().Set(RunIDHeader, run.ID)
	WriteJSON(w, http.StatusAccepted, &TriggerResponse{
		RunID:  run.ID,
		Scope:  run.Scope,
		Status: run.Status,
	})
}

// GetRun handles GET /v1/sync/runs/{runID} - returns one run with counts.
func (h *SyncHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.store.Runs().Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "sync run not found")
			return
		}
		h.logger.Error("failed to load sync run", "run_id", runID, "error", err)
		WriteInternalError(w, "Failed to load sync run")
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /v1/sync/runs - returns runs newest first.
func (h *SyncHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePage(r, 50)

	runs, err := h.store.Runs().List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list sync runs", "error", err)
		WriteInternalError(w, "Failed to list sync runs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// CancelRun handles POST /v1/sync/runs/{runID}/cancel - requests cancellation
// of an in-flight run. The run settles as partially_failed once the current
// page completes.
func (h *SyncHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if !h.runner.Cancel(runID) {
		WriteNotFound(w, "no in-flight run with that ID")
		return
	}

	w.Header().Set(RunIDHeader, runID)
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "cancelling",
	})
}

// parsePage extracts limit and offset query parameters with bounds.
func parsePage(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
