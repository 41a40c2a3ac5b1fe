package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store"
)

// SyncRunStore implements store.SyncRunStore using PostgreSQL.
type SyncRunStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Create persists a new sync run.
func (s *SyncRunStore) Create(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, scope, status, created, updated, unchanged, failed, message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Scope,
		run.Status,
		run.Counts.Created,
		run.Counts.Updated,
		run.Counts.Unchanged,
		run.Counts.Failed,
		run.Message,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("inserting sync run: %w", err)
	}

	return nil
}

// Get retrieves a sync run by ID.
func (s *SyncRunStore) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	query := `
		SELECT id, scope, status, created, updated, unchanged, failed, message, started_at, completed_at
		FROM sync_runs WHERE id = $1`

	run := &models.SyncRun{}
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Scope,
		&run.Status,
		&run.Counts.Created,
		&run.Counts.Updated,
		&run.Counts.Unchanged,
		&run.Counts.Failed,
		&run.Message,
		&run.StartedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying sync run: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

// Update persists run status and counts. A run that already reached a
// terminal status is never overwritten.
func (s *SyncRunStore) Update(ctx context.Context, run *models.SyncRun) error {
	query := `
		UPDATE sync_runs
		SET status = $2, created = $3, updated = $4, unchanged = $5, failed = $6,
		    message = $7, completed_at = $8
		WHERE id = $1 AND status NOT IN ('succeeded', 'partially_failed', 'failed')`

	res, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.Counts.Created,
		run.Counts.Updated,
		run.Counts.Unchanged,
		run.Counts.Failed,
		run.Message,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("updating sync run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		// Either the run does not exist or it is already finalized.
		if _, getErr := s.Get(ctx, run.ID); getErr != nil {
			return getErr
		}
		return store.ErrRunFinalized
	}

	return nil
}

// List retrieves the most recent runs, newest first.
func (s *SyncRunStore) List(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, scope, status, created, updated, unchanged, failed, message, started_at, completed_at
		FROM sync_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run := &models.SyncRun{}
		var completedAt sql.NullTime
		if err := rows.Scan(
			&run.ID,
			&run.Scope,
			&run.Status,
			&run.Counts.Created,
			&run.Counts.Updated,
			&run.Counts.Unchanged,
			&run.Counts.Failed,
			&run.Message,
			&run.StartedAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Totals aggregates counts across all runs.
func (s *SyncRunStore) Totals(ctx context.Context) (*models.SyncTotals, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(created), 0), COALESCE(SUM(updated), 0),
		       COALESCE(SUM(unchanged), 0), COALESCE(SUM(failed), 0)
		FROM sync_runs`

	totals := &models.SyncTotals{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&totals.Runs,
		&totals.Created,
		&totals.Updated,
		&totals.Unchanged,
		&totals.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating sync runs: %w", err)
	}
	return totals, nil
}
