package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store"
)

// StatsHandler handles mirror statistics endpoints.
type StatsHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(st store.Store, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		store:  st,
		logger: logger,
	}
}

// MirrorStats summarizes what the mirror holds and what sync runs did to it.
type MirrorStats struct {
	Entities map[models.ResourceType]int `json:"entities"`
	Runs     *models.SyncTotals          `json:"runs"`
}

// Get handles GET /v1/stats - returns entity counts per type and aggregate
// run totals.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.collect(r.Context())
	if err != nil {
		h.logger.Error("failed to collect mirror stats", "error", err)
		WriteInternalError(w, "Failed to collect mirror statistics")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

func (h *StatsHandler) collect(ctx context.Context) (*MirrorStats, error) {
	counts, err := h.store.Mirror().CountByType(ctx)
	if err != nil {
		return nil, err
	}

	totals, err := h.store.Runs().Totals(ctx)
	if err != nil {
		return nil, err
	}

	return &MirrorStats{
		Entities: counts,
		Runs:     totals,
	}, nil
}
