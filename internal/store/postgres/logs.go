package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meshforge/cadmirror/internal/models"
)

// SyncLogStore implements store.SyncLogStore using PostgreSQL.
type SyncLogStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Append persists a log entry. Entries are append-only.
func (s *SyncLogStore) Append(ctx context.Context, entry *models.SyncLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sync_log_entries (id, run_id, entity_type, entity_key, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.RunID,
		entry.EntityType,
		entry.EntityKey,
		entry.Action,
		entry.Detail,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting sync log entry: %w", err)
	}

	return nil
}

// List retrieves entries, newest first, optionally filtered by run ID.
func (s *SyncLogStore) List(ctx context.Context, runID string, limit, offset int) ([]*models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, run_id, entity_type, entity_key, action, detail, created_at
		FROM sync_log_entries
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	args := []any{limit, offset}

	if runID != "" {
		query = `
			SELECT id, run_id, entity_type, entity_key, action, detail, created_at
			FROM sync_log_entries
			WHERE run_id = $3
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, runID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sync log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		entry := &models.SyncLogEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.EntityType,
			&entry.EntityKey,
			&entry.Action,
			&entry.Detail,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning sync log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
