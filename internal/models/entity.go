// Package models defines the domain types shared across the mirror service.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResourceType identifies a level of the vendor hierarchy.
type ResourceType string

const (
	ResourceDocument  ResourceType = "document"
	ResourceWorkspace ResourceType = "workspace"
	ResourceElement   ResourceType = "element"
	ResourcePart      ResourceType = "part"
	ResourceFeature   ResourceType = "feature"
)

// ResourceTypes lists all hierarchy levels, parent-first.
var ResourceTypes = []ResourceType{
	ResourceDocument,
	ResourceWorkspace,
	ResourceElement,
	ResourcePart,
	ResourceFeature,
}

// Valid reports whether t names a known resource type.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceDocument, ResourceWorkspace, ResourceElement, ResourcePart, ResourceFeature:
		return true
	}
	return false
}

// EntityKey is the composite natural key of a vendor entity. The populated
// fields depend on Type: a workspace key carries DocumentID and WorkspaceID,
// a part key carries the full document/workspace/element chain plus PartID.
type EntityKey struct {
	Type        ResourceType `json:"type"`
	DocumentID  string       `json:"document_id,omitempty"`
	WorkspaceID string       `json:"workspace_id,omitempty"`
	ElementID   string       `json:"element_id,omitempty"`
	PartID      string       `json:"part_id,omitempty"`
	FeatureID   string       `json:"feature_id,omitempty"`
}

// Parent returns the key of the entity's parent in the hierarchy.
// Documents have no parent; ok is false for them.
func (k EntityKey) Parent() (EntityKey, bool) {
	switch k.Type {
	case ResourceWorkspace:
		return EntityKey{Type: ResourceDocument, DocumentID: k.DocumentID}, true
	case ResourceElement:
		return EntityKey{Type: ResourceWorkspace, DocumentID: k.DocumentID, WorkspaceID: k.WorkspaceID}, true
	case ResourcePart, ResourceFeature:
		return EntityKey{
			Type:        ResourceElement,
			DocumentID:  k.DocumentID,
			WorkspaceID: k.WorkspaceID,
			ElementID:   k.ElementID,
		}, true
	}
	return EntityKey{}, false
}

// String renders the key in the vendor's path notation, e.g.
// "d/abc/w/def/e/ghi/p/jkl". Used for logging and sync log entries.
func (k EntityKey) String() string {
	s := "d/" + k.DocumentID
	if k.WorkspaceID != "" {
		s += "/w/" + k.WorkspaceID
	}
	if k.ElementID != "" {
		s += "/e/" + k.ElementID
	}
	if k.PartID != "" {
		s += "/p/" + k.PartID
	}
	if k.FeatureID != "" {
		s += "/f/" + k.FeatureID
	}
	return s
}

// Validate checks that the key carries the ID chain its type requires.
func (k EntityKey) Validate() error {
	if !k.Type.Valid() {
		return fmt.Errorf("unknown resource type %q", k.Type)
	}
	if k.DocumentID == "" {
		return fmt.Errorf("%s key missing document ID", k.Type)
	}
	switch k.Type {
	case ResourceElement:
		if k.WorkspaceID == "" {
			return fmt.Errorf("element key missing workspace ID")
		}
		if k.ElementID == "" {
			return fmt.Errorf("element key missing element ID")
		}
	case ResourcePart:
		if k.WorkspaceID == "" || k.ElementID == "" {
			return fmt.Errorf("part key missing parent chain")
		}
		if k.PartID == "" {
			return fmt.Errorf("part key missing part ID")
		}
	case ResourceFeature:
		if k.WorkspaceID == "" || k.ElementID == "" {
			return fmt.Errorf("feature key missing parent chain")
		}
		if k.FeatureID == "" {
			return fmt.Errorf("feature key missing feature ID")
		}
	case ResourceWorkspace:
		if k.WorkspaceID == "" {
			return fmt.Errorf("workspace key missing workspace ID")
		}
	}
	return nil
}

// RemoteEntity is a vendor object as returned by the hierarchy walker.
// Transient: it is reconciled into a LocalRecord and never persisted as-is.
type RemoteEntity struct {
	Key      EntityKey       `json:"key"`
	Name     string          `json:"name"`
	Revision string          `json:"revision"`
	// Kind carries the vendor's element type (PARTSTUDIO, ASSEMBLY, ...) for
	// elements; empty for other resource types.
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// LocalRecord is the persisted mirror of a RemoteEntity.
type LocalRecord struct {
	Key      EntityKey       `json:"key"`
	Name     string          `json:"name"`
	Revision string          `json:"revision"`
	Kind     string          `json:"kind,omitempty"`
	Payload  json.RawMessage `json:"payload"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	SyncedAt  time.Time `json:"synced_at"`
}
