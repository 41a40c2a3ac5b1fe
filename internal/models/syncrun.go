package models

import "time"

// SyncScope identifies what a sync run covers.
type SyncScope string

const (
	ScopeDocuments  SyncScope = "documents"
	ScopeWorkspaces SyncScope = "workspaces"
	ScopeElements   SyncScope = "elements"
	ScopeParts      SyncScope = "parts"
	ScopeFeatures   SyncScope = "features"
	ScopeFull       SyncScope = "full"
)

// Valid reports whether s names a known sync scope.
func (s SyncScope) Valid() bool {
	switch s {
	case ScopeDocuments, ScopeWorkspaces, ScopeElements, ScopeParts, ScopeFeatures, ScopeFull:
		return true
	}
	return false
}

// Resource returns the resource type a single-level scope walks.
// ok is false for the full cascade scope.
func (s SyncScope) Resource() (ResourceType, bool) {
	switch s {
	case ScopeDocuments:
		return ResourceDocument, true
	case ScopeWorkspaces:
		return ResourceWorkspace, true
	case ScopeElements:
		return ResourceElement, true
	case ScopeParts:
		return ResourcePart, true
	case ScopeFeatures:
		return ResourceFeature, true
	}
	return "", false
}

// SyncStatus represents the state of a sync run.
type SyncStatus string

const (
	SyncStatusPending         SyncStatus = "pending"
	SyncStatusRunning         SyncStatus = "running"
	SyncStatusSucceeded       SyncStatus = "succeeded"
	SyncStatusPartiallyFailed SyncStatus = "partially_failed"
	SyncStatusFailed          SyncStatus = "failed"
)

// Terminal reports whether the status is final.
func (s SyncStatus) Terminal() bool {
	switch s {
	case SyncStatusSucceeded, SyncStatusPartiallyFailed, SyncStatusFailed:
		return true
	}
	return false
}

// SyncCounts aggregates per-entity outcomes within a run.
type SyncCounts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Total returns the number of entities processed.
func (c SyncCounts) Total() int {
	return c.Created + c.Updated + c.Unchanged + c.Failed
}

// Add merges other into c.
func (c *SyncCounts) Add(other SyncCounts) {
	c.Created += other.Created
	c.Updated += other.Updated
	c.Unchanged += other.Unchanged
	c.Failed += other.Failed
}

// SyncRun represents one invocation of the sync orchestrator.
// Once Status is terminal the record is immutable.
type SyncRun struct {
	ID          string     `json:"id"`
	Scope       SyncScope  `json:"scope"`
	Status      SyncStatus `json:"status"`
	Counts      SyncCounts `json:"counts"`
	Message     string     `json:"message,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SyncAction is the outcome recorded for one processed entity.
type SyncAction string

const (
	ActionCreated   SyncAction = "created"
	ActionUpdated   SyncAction = "updated"
	ActionUnchanged SyncAction = "unchanged"
	ActionError     SyncAction = "error"
)

// Committed reports whether the action left a usable LocalRecord behind.
func (a SyncAction) Committed() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionUnchanged:
		return true
	}
	return false
}

// SyncLogEntry records the outcome for one entity within a run. Append-only.
type SyncLogEntry struct {
	ID         string       `json:"id"`
	RunID      string       `json:"run_id"`
	EntityType ResourceType `json:"entity_type"`
	EntityKey  string       `json:"entity_key"`
	Action     SyncAction   `json:"action"`
	Detail     string       `json:"detail,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// SyncTotals aggregates counts across all sync runs.
type SyncTotals struct {
	Runs      int `json:"runs"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}
