package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store"
)

func docRecord(id string) *models.LocalRecord {
	return &models.LocalRecord{
		Key:      models.EntityKey{Type: models.ResourceDocument, DocumentID: id},
		Name:     "doc " + id,
		Revision: "mv-1",
		Payload:  []byte(`{}`),
	}
}

func workspaceRecord(docID, id string) *models.LocalRecord {
	return &models.LocalRecord{
		Key: models.EntityKey{
			Type:        models.ResourceWorkspace,
			DocumentID:  docID,
			WorkspaceID: id,
		},
		Name:     "ws " + id,
		Revision: "mv-1",
		Payload:  []byte(`{}`),
	}
}

func TestMirrorInsertAndGet(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	rec := docRecord("d1")
	require.NoError(t, st.Mirror().Insert(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero(), "insert stamps timestamps")

	got, err := st.Mirror().Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, "doc d1", got.Name)

	_, err = st.Mirror().Get(ctx, models.EntityKey{Type: models.ResourceDocument, DocumentID: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMirrorInsertDuplicate(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	require.NoError(t, st.Mirror().Insert(ctx, docRecord("d1")))
	err := st.Mirror().Insert(ctx, docRecord("d1"))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestMirrorInsertMissingParent(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	err := st.Mirror().Insert(ctx, workspaceRecord("d1", "w1"))
	assert.ErrorIs(t, err, store.ErrMissingParent)

	require.NoError(t, st.Mirror().Insert(ctx, docRecord("d1")))
	assert.NoError(t, st.Mirror().Insert(ctx, workspaceRecord("d1", "w1")))
}

func TestMirrorUpdatePreservesCreatedAt(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	rec := docRecord("d1")
	require.NoError(t, st.Mirror().Insert(ctx, rec))
	created := rec.CreatedAt

	time.Sleep(time.Millisecond)
	updated := docRecord("d1")
	updated.Revision = "mv-2"
	require.NoError(t, st.Mirror().Update(ctx, updated))

	got, err := st.Mirror().Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, "mv-2", got.Revision)
	assert.Equal(t, created, got.CreatedAt)
	assert.True(t, got.UpdatedAt.After(created))
}

func TestMirrorUpdateNotFound(t *testing.T) {
	st := NewStore()
	err := st.Mirror().Update(context.Background(), docRecord("d1"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMirrorListKeysByParent(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	require.NoError(t, st.Mirror().Insert(ctx, docRecord("d1")))
	require.NoError(t, st.Mirror().Insert(ctx, docRecord("d2")))
	require.NoError(t, st.Mirror().Insert(ctx, workspaceRecord("d1", "w1")))
	require.NoError(t, st.Mirror().Insert(ctx, workspaceRecord("d1", "w2")))
	require.NoError(t, st.Mirror().Insert(ctx, workspaceRecord("d2", "w3")))

	all, err := st.Mirror().ListKeys(ctx, models.ResourceWorkspace, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	parent := models.EntityKey{Type: models.ResourceDocument, DocumentID: "d1"}
	under, err := st.Mirror().ListKeys(ctx, models.ResourceWorkspace, &parent)
	require.NoError(t, err)
	require.Len(t, under, 2)
	assert.Equal(t, "w1", under[0].WorkspaceID, "listing follows insertion order")
	assert.Equal(t, "w2", under[1].WorkspaceID)
}

func TestMirrorListRecords(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	require.NoError(t, st.Mirror().Insert(ctx, docRecord("d1")))
	require.NoError(t, st.Mirror().Insert(ctx, docRecord("d2")))
	require.NoError(t, st.Mirror().Insert(ctx, docRecord("d3")))
	require.NoError(t, st.Mirror().Insert(ctx, workspaceRecord("d1", "w1")))
	require.NoError(t, st.Mirror().Insert(ctx, workspaceRecord("d2", "w2")))

	docs, err := st.Mirror().List(ctx, models.ResourceDocument, nil, 50, 0)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "doc d1", docs[0].Name, "listing follows insertion order")
	assert.False(t, docs[0].SyncedAt.IsZero())

	// Pagination.
	page, err := st.Mirror().List(ctx, models.ResourceDocument, nil, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d2", page[0].Key.DocumentID)

	past, err := st.Mirror().List(ctx, models.ResourceDocument, nil, 50, 10)
	require.NoError(t, err)
	assert.Empty(t, past)

	// A parent filter scopes the listing to one subtree.
	parent := models.EntityKey{Type: models.ResourceDocument, DocumentID: "d2"}
	under, err := st.Mirror().List(ctx, models.ResourceWorkspace, &parent, 50, 0)
	require.NoError(t, err)
	require.Len(t, under, 1)
	assert.Equal(t, "w2", under[0].Key.WorkspaceID)
}

func TestMirrorListKeysPartialParentFilter(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	require.NoError(t, st.Mirror().Insert(ctx, docRecord("d1")))
	require.NoError(t, st.Mirror().Insert(ctx, workspaceRecord("d1", "w1")))
	require.NoError(t, st.Mirror().Insert(ctx, &models.LocalRecord{
		Key: models.EntityKey{
			Type:        models.ResourceElement,
			DocumentID:  "d1",
			WorkspaceID: "w1",
			ElementID:   "e1",
		},
		Name:     "elem e1",
		Revision: "mv-1",
		Payload:  []byte(`{}`),
	}))

	// A filter key carrying only the workspace ID matches, like the SQL
	// store's WHERE workspace_id clause.
	parent := models.EntityKey{Type: models.ResourceWorkspace, WorkspaceID: "w1"}
	keys, err := st.Mirror().ListKeys(ctx, models.ResourceElement, &parent)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "e1", keys[0].ElementID)
}

func TestMirrorPartStudioKeys(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	require.NoError(t, st.Mirror().Insert(ctx, docRecord("d1")))
	require.NoError(t, st.Mirror().Insert(ctx, workspaceRecord("d1", "w1")))

	studio := &models.LocalRecord{
		Key: models.EntityKey{
			Type:        models.ResourceElement,
			DocumentID:  "d1",
			WorkspaceID: "w1",
			ElementID:   "e1",
		},
		Kind:    "PARTSTUDIO",
		Payload: []byte(`{}`),
	}
	drawing := &models.LocalRecord{
		Key: models.EntityKey{
			Type:        models.ResourceElement,
			DocumentID:  "d1",
			WorkspaceID: "w1",
			ElementID:   "e2",
		},
		Kind:    "DRAWING",
		Payload: []byte(`{}`),
	}
	require.NoError(t, st.Mirror().Insert(ctx, studio))
	require.NoError(t, st.Mirror().Insert(ctx, drawing))

	keys, err := st.Mirror().PartStudioKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "e1", keys[0].ElementID)
}

func TestRunUpdateRejectsTerminalRuns(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	run := &models.SyncRun{
		Scope:     models.ScopeFull,
		Status:    models.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, st.Runs().Create(ctx, run))

	run.Status = models.SyncStatusSucceeded
	require.NoError(t, st.Runs().Update(ctx, run))

	// The run is terminal now; no further status change may land.
	run.Status = models.SyncStatusFailed
	err := st.Runs().Update(ctx, run)
	assert.ErrorIs(t, err, store.ErrRunFinalized)

	got, err := st.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSucceeded, got.Status)
}

func TestRunListNewestFirst(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	for _, scope := range []models.SyncScope{models.ScopeDocuments, models.ScopeWorkspaces, models.ScopeFull} {
		require.NoError(t, st.Runs().Create(ctx, &models.SyncRun{
			Scope:     scope,
			Status:    models.SyncStatusPending,
			StartedAt: time.Now().UTC(),
		}))
	}

	runs, err := st.Runs().List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, models.ScopeFull, runs[0].Scope)
	assert.Equal(t, models.ScopeWorkspaces, runs[1].Scope)
}

func TestLogListFiltersAndPaginates(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.Logs().Append(ctx, &models.SyncLogEntry{
			RunID:      "run-a",
			EntityType: models.ResourceDocument,
			EntityKey:  "d/a",
			Action:     models.ActionCreated,
		}))
	}
	require.NoError(t, st.Logs().Append(ctx, &models.SyncLogEntry{
		RunID:      "run-b",
		EntityType: models.ResourceDocument,
		EntityKey:  "d/b",
		Action:     models.ActionUpdated,
	}))

	all, err := st.Logs().List(ctx, "", 100, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "run-b", all[0].RunID, "listing is newest first")

	onlyA, err := st.Logs().List(ctx, "run-a", 100, 0)
	require.NoError(t, err)
	assert.Len(t, onlyA, 3)

	page, err := st.Logs().List(ctx, "run-a", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}
