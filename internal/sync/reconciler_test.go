package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store/memory"
)

func docEntity(id, revision string) models.RemoteEntity {
	return models.RemoteEntity{
		Key:      models.EntityKey{Type: models.ResourceDocument, DocumentID: id},
		Name:     "doc " + id,
		Revision: revision,
		Payload:  []byte(`{"id":"` + id + `"}`),
	}
}

func workspaceEntity(docID, id string) models.RemoteEntity {
	return models.RemoteEntity{
		Key: models.EntityKey{
			Type:        models.ResourceWorkspace,
			DocumentID:  docID,
			WorkspaceID: id,
		},
		Name:     "ws " + id,
		Revision: "mv-1",
		Payload:  []byte(`{"id":"` + id + `"}`),
	}
}

func TestReconcileCreates(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st.Mirror(), nil)
	ctx := context.Background()

	entry := r.Reconcile(ctx, docEntity("d1", "mv-1"), false)
	assert.Equal(t, models.ActionCreated, entry.Action)
	assert.Equal(t, models.ResourceDocument, entry.EntityType)

	rec, err := st.Mirror().Get(ctx, models.EntityKey{Type: models.ResourceDocument, DocumentID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, "mv-1", rec.Revision)
	assert.Equal(t, "doc d1", rec.Name)
}

func TestReconcileUnchanged(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st.Mirror(), nil)
	ctx := context.Background()

	require.Equal(t, models.ActionCreated, r.Reconcile(ctx, docEntity("d1", "mv-1"), false).Action)

	entry := r.Reconcile(ctx, docEntity("d1", "mv-1"), false)
	assert.Equal(t, models.ActionUnchanged, entry.Action, "matching revision markers must not rewrite the row")
}

func TestReconcileUpdates(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st.Mirror(), nil)
	ctx := context.Background()

	require.Equal(t, models.ActionCreated, r.Reconcile(ctx, docEntity("d1", "mv-1"), false).Action)

	entry := r.Reconcile(ctx, docEntity("d1", "mv-2"), false)
	assert.Equal(t, models.ActionUpdated, entry.Action)

	rec, err := st.Mirror().Get(ctx, models.EntityKey{Type: models.ResourceDocument, DocumentID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, "mv-2", rec.Revision)
}

func TestReconcileForceRefresh(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st.Mirror(), nil)
	ctx := context.Background()

	require.Equal(t, models.ActionCreated, r.Reconcile(ctx, docEntity("d1", "mv-1"), false).Action)

	entry := r.Reconcile(ctx, docEntity("d1", "mv-1"), true)
	assert.Equal(t, models.ActionUpdated, entry.Action, "force refresh rewrites even unchanged entities")
}

func TestReconcileOrphanedChild(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st.Mirror(), nil)
	ctx := context.Background()

	entry := r.Reconcile(ctx, workspaceEntity("missing-doc", "w1"), false)
	assert.Equal(t, models.ActionError, entry.Action)
	assert.Equal(t, "orphaned parent", entry.Detail)

	exists, err := st.Mirror().Exists(ctx, workspaceEntity("missing-doc", "w1").Key)
	require.NoError(t, err)
	assert.False(t, exists, "an orphaned child must never be partially written")
}

func TestReconcileChildAfterParent(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st.Mirror(), nil)
	ctx := context.Background()

	require.Equal(t, models.ActionCreated, r.Reconcile(ctx, docEntity("d1", "mv-1"), false).Action)

	entry := r.Reconcile(ctx, workspaceEntity("d1", "w1"), false)
	assert.Equal(t, models.ActionCreated, entry.Action)
}

func TestReconcileInvalidKey(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st.Mirror(), nil)

	entry := r.Reconcile(context.Background(), models.RemoteEntity{
		Key: models.EntityKey{Type: models.ResourceWorkspace, WorkspaceID: "w1"},
	}, false)
	assert.Equal(t, models.ActionError, entry.Action)
	assert.NotEmpty(t, entry.Detail)
}
