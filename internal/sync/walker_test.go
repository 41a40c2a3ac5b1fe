package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/onshape"
)

// fakeRequester routes Send calls to a function so tests can script vendor
// responses page by page.
type fakeRequester struct {
	send func(path string, query url.Values) (*onshape.Response, error)
	gets []string
}

func (f *fakeRequester) Send(ctx context.Context, method, path string, query url.Values) (*onshape.Response, error) {
	f.gets = append(f.gets, path+"?"+query.Encode())
	return f.send(path, query)
}

func newTestWalker(client Requester, pageSize int) *Walker {
	return NewWalker(client, testGovernor(3), pageSize, nil)
}

func documentsPage(ids ...string) []byte {
	page := `{"items":[`
	for i, id := range ids {
		if i > 0 {
			page += ","
		}
		page += fmt.Sprintf(`{"id":%q,"name":"doc %s","microversion":"mv-%s"}`, id, id, id)
	}
	return []byte(page + `]}`)
}

func TestWalkDocumentsPaginates(t *testing.T) {
	pages := map[string][]byte{
		"0": documentsPage("d1", "d2"),
		"2": documentsPage("d3", "d4"),
		"4": documentsPage("d5"),
	}
	client := &fakeRequester{send: func(path string, query url.Values) (*onshape.Response, error) {
		page, ok := pages[query.Get("offset")]
		if !ok {
			return nil, fmt.Errorf("unexpected offset %s", query.Get("offset"))
		}
		return &onshape.Response{StatusCode: http.StatusOK, Body: page}, nil
	}}

	w := newTestWalker(client, 2)

	var got []string
	cursor, err := w.Walk(context.Background(), models.ResourceDocument, models.EntityKey{}, Cursor{}, func(e models.RemoteEntity) error {
		got = append(got, e.Key.DocumentID)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3", "d4", "d5"}, got, "entities must arrive in server order")
	assert.Equal(t, 5, cursor.Offset)
	assert.Len(t, client.gets, 3, "a short page ends the walk")
}

func TestWalkChildCollectionSinglePage(t *testing.T) {
	client := &fakeRequester{send: func(path string, query url.Values) (*onshape.Response, error) {
		assert.Equal(t, "/documents/d/d1/workspaces", path)
		assert.Empty(t, query, "child collections are fetched whole")
		return &onshape.Response{
			StatusCode: http.StatusOK,
			Body:       []byte(`[{"id":"w1","name":"Main","modifiedAt":"2026-01-01T00:00:00Z"},{"id":"w2","name":"Branch"}]`),
		}, nil
	}}

	w := newTestWalker(client, 20)
	parent := models.EntityKey{Type: models.ResourceDocument, DocumentID: "d1"}

	var got []models.RemoteEntity
	_, err := w.Walk(context.Background(), models.ResourceWorkspace, parent, Cursor{}, func(e models.RemoteEntity) error {
		got = append(got, e)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "w1", got[0].Key.WorkspaceID)
	assert.Equal(t, "d1", got[0].Key.DocumentID)
	assert.Equal(t, "2026-01-01T00:00:00Z", got[0].Revision, "modifiedAt stands in when microversion is absent")
	assert.NotEmpty(t, got[1].Revision, "items without markers fall back to a payload digest")
	assert.Len(t, client.gets, 1)
}

func TestWalkPartsFetchesMassProperties(t *testing.T) {
	client := &fakeRequester{send: func(path string, query url.Values) (*onshape.Response, error) {
		switch path {
		case "/partstudios/d/d1/w/w1/e/e1/parts":
			return &onshape.Response{
				StatusCode: http.StatusOK,
				Body:       []byte(`[{"partId":"p1","name":"Plate","state":"IN_PROGRESS"},{"partId":"p2","name":"Rod"}]`),
			}, nil
		case "/partstudios/d/d1/w/w1/e/e1/massproperties":
			if query.Get("partId") == "p1" {
				return &onshape.Response{
					StatusCode: http.StatusOK,
					Body:       []byte(`{"bodies":{"p1":{"mass":[0.5]}}}`),
				}, nil
			}
			// p2 has no computable mass properties.
			return nil, &onshape.APIError{StatusCode: http.StatusNotFound}
		}
		return nil, fmt.Errorf("unexpected path %s", path)
	}}

	w := newTestWalker(client, 20)
	parent := models.EntityKey{
		Type:        models.ResourceElement,
		DocumentID:  "d1",
		WorkspaceID: "w1",
		ElementID:   "e1",
	}

	var got []models.RemoteEntity
	_, err := w.Walk(context.Background(), models.ResourcePart, parent, Cursor{}, func(e models.RemoteEntity) error {
		got = append(got, e)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, string(got[0].Payload), `"massProperties"`)
	assert.Contains(t, string(got[0].Payload), `"mass":[0.5]`)
	assert.Contains(t, string(got[0].Payload), `"state":"IN_PROGRESS"`, "listing fields survive the merge")
	assert.NotContains(t, string(got[1].Payload), "massProperties",
		"a part without mass properties is still mirrored")
	assert.Len(t, client.gets, 3, "one listing fetch plus one mass properties fetch per part")
}

func TestWalkFeatureEnvelope(t *testing.T) {
	client := &fakeRequester{send: func(path string, query url.Values) (*onshape.Response, error) {
		return &onshape.Response{
			StatusCode: http.StatusOK,
			Body:       []byte(`{"features":[{"featureId":"f1","name":"Extrude 1"},{"featureId":"f2","name":"Fillet 1"}]}`),
		}, nil
	}}

	w := newTestWalker(client, 20)
	parent := models.EntityKey{
		Type:        models.ResourceElement,
		DocumentID:  "d1",
		WorkspaceID: "w1",
		ElementID:   "e1",
	}

	var ids []string
	_, err := w.Walk(context.Background(), models.ResourceFeature, parent, Cursor{}, func(e models.RemoteEntity) error {
		ids = append(ids, e.Key.FeatureID)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, ids)
}

func TestWalkSkipsItemsWithoutID(t *testing.T) {
	client := &fakeRequester{send: func(path string, query url.Values) (*onshape.Response, error) {
		return &onshape.Response{
			StatusCode: http.StatusOK,
			Body:       []byte(`[{"id":"e1","name":"Part Studio 1","elementType":"PARTSTUDIO"},{"name":"nameless"}]`),
		}, nil
	}}

	w := newTestWalker(client, 20)
	parent := models.EntityKey{Type: models.ResourceWorkspace, DocumentID: "d1", WorkspaceID: "w1"}

	var got []models.RemoteEntity
	_, err := w.Walk(context.Background(), models.ResourceElement, parent, Cursor{}, func(e models.RemoteEntity) error {
		got = append(got, e)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PARTSTUDIO", got[0].Kind)
}

func TestWalkMalformedResponseExhaustsRetries(t *testing.T) {
	calls := 0
	client := &fakeRequester{send: func(path string, query url.Values) (*onshape.Response, error) {
		calls++
		return &onshape.Response{StatusCode: http.StatusOK, Body: []byte(`{"unexpected":true}`)}, nil
	}}

	w := newTestWalker(client, 2)

	cursor, err := w.Walk(context.Background(), models.ResourceDocument, models.EntityKey{}, Cursor{}, func(e models.RemoteEntity) error {
		t.Fatal("no entities should be yielded")
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, 3, calls, "malformed payloads retry up to the attempt budget")
	assert.Equal(t, 0, cursor.Offset, "a failed first page leaves the cursor at the start")
}

func TestWalkResumesFromCursor(t *testing.T) {
	broken := true
	client := &fakeRequester{send: func(path string, query url.Values) (*onshape.Response, error) {
		switch query.Get("offset") {
		case "0":
			return &onshape.Response{StatusCode: http.StatusOK, Body: documentsPage("d1", "d2")}, nil
		case "2":
			if broken {
				return nil, &onshape.APIError{StatusCode: http.StatusBadGateway}
			}
			return &onshape.Response{StatusCode: http.StatusOK, Body: documentsPage("d3")}, nil
		}
		return nil, fmt.Errorf("unexpected offset %s", query.Get("offset"))
	}}

	w := newTestWalker(client, 2)

	var got []string
	yield := func(e models.RemoteEntity) error {
		got = append(got, e.Key.DocumentID)
		return nil
	}

	cursor, err := w.Walk(context.Background(), models.ResourceDocument, models.EntityKey{}, Cursor{}, yield)
	require.Error(t, err)
	assert.Equal(t, []string{"d1", "d2"}, got, "entities before the failed page stay processed")
	assert.Equal(t, 2, cursor.Offset, "the cursor marks the last fully-processed position")

	// The vendor recovers; resuming picks up where the failed walk stopped.
	broken = false
	cursor, err = w.Walk(context.Background(), models.ResourceDocument, models.EntityKey{}, cursor, yield)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3"}, got)
	assert.Equal(t, 3, cursor.Offset)
}

func TestWalkStopsBetweenPagesOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	client := &fakeRequester{send: func(path string, query url.Values) (*onshape.Response, error) {
		// Cancel while the first page is in flight; it still completes.
		cancel()
		return &onshape.Response{StatusCode: http.StatusOK, Body: documentsPage("d1", "d2")}, nil
	}}

	w := newTestWalker(client, 2)

	var got []string
	cursor, err := w.Walk(ctx, models.ResourceDocument, models.EntityKey{}, Cursor{}, func(e models.RemoteEntity) error {
		got = append(got, e.Key.DocumentID)
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"d1", "d2"}, got, "the in-flight page is processed before stopping")
	assert.Equal(t, 2, cursor.Offset)
	assert.Len(t, client.gets, 1)
}

func TestCollectionPathValidation(t *testing.T) {
	_, err := collectionPath(models.ResourceWorkspace, models.EntityKey{})
	assert.Error(t, err)

	_, err = collectionPath(models.ResourcePart, models.EntityKey{DocumentID: "d1", WorkspaceID: "w1"})
	assert.Error(t, err)

	path, err := collectionPath(models.ResourcePart, models.EntityKey{DocumentID: "d1", WorkspaceID: "w1", ElementID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, "/partstudios/d/d1/w/w1/e/e1/parts", path)
}
