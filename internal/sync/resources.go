package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/meshforge/cadmirror/internal/models"
)

// Cursor marks a position within a paginated walk. The zero value is the
// start of the collection.
type Cursor struct {
	Offset int `json:"offset"`
}

// Paginator abstracts the vendor's pagination contract so the walker does not
// hard-code one scheme per collection.
type Paginator interface {
	// Query returns the pagination parameters for the page at c.
	Query(pageSize int, c Cursor) url.Values
	// Next reports the cursor after a page of pageLen entities and whether
	// another page may exist.
	Next(c Cursor, pageLen, pageSize int) (Cursor, bool)
}

// offsetPaginator pages with offset/limit; a short page means the collection
// is exhausted.
type offsetPaginator struct{}

func (offsetPaginator) Query(pageSize int, c Cursor) url.Values {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(c.Offset))
	q.Set("limit", strconv.Itoa(pageSize))
	return q
}

func (offsetPaginator) Next(c Cursor, pageLen, pageSize int) (Cursor, bool) {
	next := Cursor{Offset: c.Offset + pageLen}
	return next, pageLen == pageSize && pageLen > 0
}

// singlePagePaginator covers child collections the vendor returns whole.
type singlePagePaginator struct{}

func (singlePagePaginator) Query(pageSize int, c Cursor) url.Values { return nil }

func (singlePagePaginator) Next(c Cursor, pageLen, pageSize int) (Cursor, bool) {
	return Cursor{Offset: c.Offset + pageLen}, false
}

// paginatorFor picks the pagination strategy for a resource type. Only the
// top-level documents collection pages; child collections come back whole.
func paginatorFor(res models.ResourceType) Paginator {
	if res == models.ResourceDocument {
		return offsetPaginator{}
	}
	return singlePagePaginator{}
}

// collectionPath builds the vendor path enumerating res under parent.
func collectionPath(res models.ResourceType, parent models.EntityKey) (string, error) {
	switch res {
	case models.ResourceDocument:
		return "/documents", nil
	case models.ResourceWorkspace:
		if parent.DocumentID == "" {
			return "", fmt.Errorf("workspace walk requires a document parent")
		}
		return fmt.Sprintf("/documents/d/%s/workspaces", parent.DocumentID), nil
	case models.ResourceElement:
		if parent.DocumentID == "" || parent.WorkspaceID == "" {
			return "", fmt.Errorf("element walk requires a workspace parent")
		}
		return fmt.Sprintf("/documents/d/%s/w/%s/elements", parent.DocumentID, parent.WorkspaceID), nil
	case models.ResourcePart:
		if parent.DocumentID == "" || parent.WorkspaceID == "" || parent.ElementID == "" {
			return "", fmt.Errorf("part walk requires an element parent")
		}
		return fmt.Sprintf("/partstudios/d/%s/w/%s/e/%s/parts",
			parent.DocumentID, parent.WorkspaceID, parent.ElementID), nil
	case models.ResourceFeature:
		if parent.DocumentID == "" || parent.WorkspaceID == "" || parent.ElementID == "" {
			return "", fmt.Errorf("feature walk requires an element parent")
		}
		return fmt.Sprintf("/partstudios/d/%s/w/%s/e/%s/features",
			parent.DocumentID, parent.WorkspaceID, parent.ElementID), nil
	}
	return "", fmt.Errorf("unknown resource type %q", res)
}

// itemProbe pulls the fields common across vendor collection items.
type itemProbe struct {
	ID           string `json:"id"`
	PartID       string `json:"partId"`
	FeatureID    string `json:"featureId"`
	Name         string `json:"name"`
	ElementType  string `json:"elementType"`
	ModifiedAt   string `json:"modifiedAt"`
	Microversion string `json:"microversion"`
}

// decodeEntities parses one page of a vendor collection response into
// RemoteEntity values, in server order. The schema is an external contract
// parsed defensively: a payload of the wrong shape yields
// ErrMalformedResponse rather than a panic or silent garbage.
func decodeEntities(res models.ResourceType, parent models.EntityKey, body []byte) ([]models.RemoteEntity, error) {
	items, err := collectionItems(res, body)
	if err != nil {
		return nil, err
	}

	entities := make([]models.RemoteEntity, 0, len(items))
	for _, item := range items {
		var probe itemProbe
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, fmt.Errorf("%w: decoding %s item: %v", ErrMalformedResponse, res, err)
		}

		key, ok := entityKey(res, parent, probe)
		if !ok {
			// The vendor occasionally returns placeholder rows without an
			// ID; they cannot be keyed, so skip them.
			continue
		}

		entities = append(entities, models.RemoteEntity{
			Key:      key,
			Name:     probe.Name,
			Revision: revisionMarker(probe, item),
			Kind:     probe.ElementType,
			Payload:  item,
		})
	}
	return entities, nil
}

// collectionItems unwraps the vendor's per-collection envelope: documents
// arrive as {"items": [...]}, features as {"features": [...]}, the rest as a
// bare array.
func collectionItems(res models.ResourceType, body []byte) ([]json.RawMessage, error) {
	switch res {
	case models.ResourceDocument:
		var envelope struct {
			Items *[]json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Items == nil {
			return nil, fmt.Errorf("%w: documents response missing items", ErrMalformedResponse)
		}
		return *envelope.Items, nil
	case models.ResourceFeature:
		var envelope struct {
			Features *[]json.RawMessage `json:"features"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Features == nil {
			return nil, fmt.Errorf("%w: features response missing features", ErrMalformedResponse)
		}
		return *envelope.Features, nil
	default:
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: expected %s array: %v", ErrMalformedResponse, res, err)
		}
		return items, nil
	}
}

// entityKey builds the composite natural key for one item. ok is false when
// the item lacks its identifying field.
func entityKey(res models.ResourceType, parent models.EntityKey, probe itemProbe) (models.EntityKey, bool) {
	switch res {
	case models.ResourceDocument:
		if probe.ID == "" {
			return models.EntityKey{}, false
		}
		return models.EntityKey{Type: models.ResourceDocument, DocumentID: probe.ID}, true
	case models.ResourceWorkspace:
		if probe.ID == "" {
			return models.EntityKey{}, false
		}
		return models.EntityKey{
			Type:        models.ResourceWorkspace,
			DocumentID:  parent.DocumentID,
			WorkspaceID: probe.ID,
		}, true
	case models.ResourceElement:
		if probe.ID == "" {
			return models.EntityKey{}, false
		}
		return models.EntityKey{
			Type:        models.ResourceElement,
			DocumentID:  parent.DocumentID,
			WorkspaceID: parent.WorkspaceID,
			ElementID:   probe.ID,
		}, true
	case models.ResourcePart:
		if probe.PartID == "" {
			return models.EntityKey{}, false
		}
		return models.EntityKey{
			Type:        models.ResourcePart,
			DocumentID:  parent.DocumentID,
			WorkspaceID: parent.WorkspaceID,
			ElementID:   parent.ElementID,
			PartID:      probe.PartID,
		}, true
	case models.ResourceFeature:
		if probe.FeatureID == "" {
			return models.EntityKey{}, false
		}
		return models.EntityKey{
			Type:        models.ResourceFeature,
			DocumentID:  parent.DocumentID,
			WorkspaceID: parent.WorkspaceID,
			ElementID:   parent.ElementID,
			FeatureID:   probe.FeatureID,
		}, true
	}
	return models.EntityKey{}, false
}

// revisionMarker prefers the vendor's own modification marker; when the
// collection omits one, a digest of the item stands in so unchanged entities
// still reconcile as unchanged.
func revisionMarker(probe itemProbe, item json.RawMessage) string {
	if probe.Microversion != "" {
		return probe.Microversion
	}
	if probe.ModifiedAt != "" {
		return probe.ModifiedAt
	}
	sum := sha256.Sum256(item)
	return hex.EncodeToString(sum[:])
}
