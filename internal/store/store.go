// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/meshforge/cadmirror/internal/models"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when inserting a record whose natural key
	// already exists.
	ErrDuplicateKey = errors.New("duplicate natural key")

	// ErrMissingParent is returned when a record references a parent that has
	// not been committed yet.
	ErrMissingParent = errors.New("parent record does not exist")

	// ErrRunFinalized is returned when mutating a sync run that already
	// reached a terminal status.
	ErrRunFinalized = errors.New("sync run is finalized")
)

// MirrorStore defines operations on the mirrored entity tables.
// All writes are single-row; the natural key is the uniqueness constraint.
type MirrorStore interface {
	// Get retrieves a record by natural key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key models.EntityKey) (*models.LocalRecord, error)
	// Insert creates a new record. Returns ErrDuplicateKey if the key exists
	// and ErrMissingParent if the parent chain is not committed.
	Insert(ctx context.Context, rec *models.LocalRecord) error
	// Update replaces a record's mirrored fields in place.
	Update(ctx context.Context, rec *models.LocalRecord) error
	// Exists reports whether a record with the given key is committed.
	Exists(ctx context.Context, key models.EntityKey) (bool, error)
	// ListKeys retrieves the natural keys of all records of one type,
	// optionally filtered to children of parent.
	ListKeys(ctx context.Context, t models.ResourceType, parent *models.EntityKey) ([]models.EntityKey, error)
	// List retrieves full records of one type, optionally filtered to
	// children of parent, paginated in insertion order.
	List(ctx context.Context, t models.ResourceType, parent *models.EntityKey, limit, offset int) ([]*models.LocalRecord, error)
	// PartStudioKeys retrieves keys of elements that contain parts/features.
	PartStudioKeys(ctx context.Context) ([]models.EntityKey, error)
	// CountByType returns the number of mirrored records per resource type.
	CountByType(ctx context.Context) (map[models.ResourceType]int, error)
}

// SyncRunStore defines operations for sync run records.
type SyncRunStore interface {
	// Create persists a new sync run.
	Create(ctx context.Context, run *models.SyncRun) error
	// Get retrieves a sync run by ID.
	Get(ctx context.Context, id string) (*models.SyncRun, error)
	// Update persists run status and counts. Returns ErrRunFinalized if the
	// stored run already reached a terminal status.
	Update(ctx context.Context, run *models.SyncRun) error
	// List retrieves the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]*models.SyncRun, error)
	// Totals aggregates counts across all runs.
	Totals(ctx context.Context) (*models.SyncTotals, error)
}

// SyncLogStore defines operations for per-entity sync log entries.
type SyncLogStore interface {
	// Append persists a log entry. Entries are never mutated after write.
	Append(ctx context.Context, entry *models.SyncLogEntry) error
	// List retrieves entries, newest first, optionally filtered by run ID.
	List(ctx context.Context, runID string, limit, offset int) ([]*models.SyncLogEntry, error)
}

// Store is the main interface for database operations.
type Store interface {
	// Mirror returns the MirrorStore for entity operations.
	Mirror() MirrorStore
	// Runs returns the SyncRunStore for run operations.
	Runs() SyncRunStore
	// Logs returns the SyncLogStore for log operations.
	Logs() SyncLogStore

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
	// Close closes the store.
	Close() error
}
