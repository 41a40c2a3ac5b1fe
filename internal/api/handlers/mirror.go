package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store"
)

// MirrorHandler exposes read access to the mirrored entity tables.
type MirrorHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewMirrorHandler creates a new mirror browse handler.
func NewMirrorHandler(st store.Store, logger *slog.Logger) *MirrorHandler {
	return &MirrorHandler{
		store:  st,
		logger: logger,
	}
}

// List handles GET /v1/mirror/{resource} - returns mirrored records of one
// type in insertion order. The resource names match the sync trigger routes
// (documents, workspaces, elements, parts, features). Child types accept a
// parent filter: document_id for workspaces, workspace_id for elements,
// element_id for parts and features.
func (h *MirrorHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := models.SyncScope(chi.URLParam(r, "resource"))
	resource, ok := scope.Resource()
	if !ok {
		WriteBadRequest(w, "unknown resource type: "+string(scope))
		return
	}
	limit, offset := parsePage(r, 50)
	parent := parentFilter(resource, r)

	records, err := h.store.Mirror().List(r.Context(), resource, parent, limit, offset)
	if err != nil {
		h.logger.Error("failed to list mirrored records", "resource", resource, "error", err)
		WriteInternalError(w, "Failed to list mirrored records")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"items": records,
		"count": len(records),
	})
}

// parentFilter builds the parent key a listing is scoped to, nil when the
// request carries no filter parameters.
func parentFilter(resource models.ResourceType, r *http.Request) *models.EntityKey {
	q := r.URL.Query()

	switch resource {
	case models.ResourceWorkspace:
		if docID := q.Get("document_id"); docID != "" {
			return &models.EntityKey{Type: models.ResourceDocument, DocumentID: docID}
		}
	case models.ResourceElement:
		if wsID := q.Get("workspace_id"); wsID != "" {
			return &models.EntityKey{
				Type:        models.ResourceWorkspace,
				DocumentID:  q.Get("document_id"),
				WorkspaceID: wsID,
			}
		}
	case models.ResourcePart, models.ResourceFeature:
		if elemID := q.Get("element_id"); elemID != "" {
			return &models.EntityKey{
				Type:        models.ResourceElement,
				DocumentID:  q.Get("document_id"),
				WorkspaceID: q.Get("workspace_id"),
				ElementID:   elemID,
			}
		}
	}
	return nil
}
