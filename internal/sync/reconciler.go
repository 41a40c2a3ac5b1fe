package sync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store"
)

// Reconciler diffs walked remote entities against local state and applies
// idempotent single-row upserts.
type Reconciler struct {
	mirror store.MirrorStore
	logger *slog.Logger
}

// NewReconciler creates a Reconciler writing through mirror.
func NewReconciler(mirror store.MirrorStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		mirror: mirror,
		logger: logger,
	}
}

// Reconcile upserts one remote entity and reports the outcome. The natural
// key is the uniqueness constraint, so reconciling the same unchanged entity
// twice never writes a second time. A child whose parent is not committed is
// rejected, never partially written; only a parent-level resync can fix it.
// With force set, equal revision markers still produce an update.
func (r *Reconciler) Reconcile(ctx context.Context, entity models.RemoteEntity, force bool) *models.SyncLogEntry {
	entry := &models.SyncLogEntry{
		EntityType: entity.Key.Type,
		EntityKey:  entity.Key.String(),
	}

	if err := entity.Key.Validate(); err != nil {
		entry.Action = models.ActionError
		entry.Detail = err.Error()
		return entry
	}

	if parent, ok := entity.Key.Parent(); ok {
		exists, err := r.mirror.Exists(ctx, parent)
		if err != nil {
			entry.Action = models.ActionError
			entry.Detail = "checking parent: " + err.Error()
			return entry
		}
		if !exists {
			entry.Action = models.ActionError
			entry.Detail = detailOrphanedParent
			return entry
		}
	}

	existing, err := r.mirror.Get(ctx, entity.Key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec := recordFromEntity(entity)
		if insertErr := r.mirror.Insert(ctx, rec); insertErr != nil {
			if errors.Is(insertErr, store.ErrMissingParent) {
				entry.Action = models.ActionError
				entry.Detail = detailOrphanedParent
				return entry
			}
			entry.Action = models.ActionError
			entry.Detail = "inserting record: " + insertErr.Error()
			return entry
		}
		entry.Action = models.ActionCreated

	case err != nil:
		entry.Action = models.ActionError
		entry.Detail = "looking up record: " + err.Error()

	case existing.Revision == entity.Revision && !force:
		entry.Action = models.ActionUnchanged

	default:
		rec := recordFromEntity(entity)
		rec.CreatedAt = existing.CreatedAt
		if updateErr := r.mirror.Update(ctx, rec); updateErr != nil {
			entry.Action = models.ActionError
			entry.Detail = "updating record: " + updateErr.Error()
			return entry
		}
		entry.Action = models.ActionUpdated
	}

	return entry
}

func recordFromEntity(entity models.RemoteEntity) *models.LocalRecord {
	return &models.LocalRecord{
		Key:      entity.Key,
		Name:     entity.Name,
		Revision: entity.Revision,
		Kind:     entity.Kind,
		Payload:  entity.Payload,
	}
}
