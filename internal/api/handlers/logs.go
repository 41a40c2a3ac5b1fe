package handlers

import (
	"log/slog"
	"net/http"

	"github.com/meshforge/cadmirror/internal/store"
)

// LogsHandler exposes per-entity sync log entries.
type LogsHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(st store.Store, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{
		store:  st,
		logger: logger,
	}
}

// List handles GET /v1/sync/logs - returns log entries newest first,
// optionally filtered to one run via the run_id query parameter.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r, 100)
	runID := r.URL.Query().Get("run_id")

	entries, err := h.store.Logs().List(r.Context(), runID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list sync log entries", "run_id", runID, "error", err)
		WriteInternalError(w, "Failed to list sync log entries")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
