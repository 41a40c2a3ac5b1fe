package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store"
)

// MirrorStore implements store.MirrorStore using PostgreSQL.
// Entity kinds live in separate typed tables; the natural key decides which
// table a call dispatches to.
type MirrorStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Vendor payload fields lifted into typed columns per table.
type documentAttrs struct {
	Description string `json:"description"`
	Public      bool   `json:"public"`
	Owner       struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"owner"`
}

type workspaceAttrs struct {
	Description string `json:"description"`
	IsMain      bool   `json:"isMain"`
}

type elementAttrs struct {
	ElementType string `json:"elementType"`
	DataType    string `json:"dataType"`
	ThumbnailID string `json:"thumbnailId"`
}

type partAttrs struct {
	State              string          `json:"state"`
	BodyType           string          `json:"bodyType"`
	MaterialProperties json.RawMessage `json:"materialProperties"`
	MassProperties     json.RawMessage `json:"massProperties"`
	Appearance         json.RawMessage `json:"appearance"`
}

type featureAttrs struct {
	FeatureType string          `json:"featureType"`
	Suppressed  bool            `json:"suppressed"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Get retrieves a record by natural key.
func (s *MirrorStore) Get(ctx context.Context, key models.EntityKey) (*models.LocalRecord, error) {
	var (
		query string
		args  []any
	)

	switch key.Type {
	case models.ResourceDocument:
		query = `SELECT name, '', revision, payload, created_at, updated_at, synced_at
			FROM documents WHERE document_id = $1`
		args = []any{key.DocumentID}
	case models.ResourceWorkspace:
		query = `SELECT name, '', revision, payload, created_at, updated_at, synced_at
			FROM workspaces WHERE workspace_id = $1`
		args = []any{key.WorkspaceID}
	case models.ResourceElement:
		query = `SELECT name, element_type, revision, payload, created_at, updated_at, synced_at
			FROM elements WHERE element_id = $1`
		args = []any{key.ElementID}
	case models.ResourcePart:
		query = `SELECT name, '', revision, payload, created_at, updated_at, synced_at
			FROM parts WHERE element_id = $1 AND part_id = $2`
		args = []any{key.ElementID, key.PartID}
	case models.ResourceFeature:
		query = `SELECT name, '', revision, payload, created_at, updated_at, synced_at
			FROM features WHERE element_id = $1 AND feature_id = $2`
		args = []any{key.ElementID, key.FeatureID}
	default:
		return nil, fmt.Errorf("unknown resource type %q", key.Type)
	}

	rec := &models.LocalRecord{Key: key}
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.Name,
		&rec.Kind,
		&rec.Revision,
		&payload,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.SyncedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying %s: %w", key.Type, err)
	}
	rec.Payload = payload

	return rec, nil
}

// Insert creates a new record in the table matching the key's type.
func (s *MirrorStore) Insert(ctx context.Context, rec *models.LocalRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.SyncedAt = now

	var (
		query string
		args  []any
		err   error
	)

	switch rec.Key.Type {
	case models.ResourceDocument:
		var attrs documentAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `INSERT INTO documents
			(document_id, name, description, owner_id, owner_name, public, revision, payload, created_at, updated_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		args = []any{rec.Key.DocumentID, rec.Name, attrs.Description, attrs.Owner.ID, attrs.Owner.Name,
			attrs.Public, rec.Revision, payloadOrEmpty(rec.Payload), rec.CreatedAt, rec.UpdatedAt, rec.SyncedAt}
	case models.ResourceWorkspace:
		var attrs workspaceAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `INSERT INTO workspaces
			(workspace_id, document_id, name, description, is_main, revision, payload, created_at, updated_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		args = []any{rec.Key.WorkspaceID, rec.Key.DocumentID, rec.Name, attrs.Description, attrs.IsMain,
			rec.Revision, payloadOrEmpty(rec.Payload), rec.CreatedAt, rec.UpdatedAt, rec.SyncedAt}
	case models.ResourceElement:
		var attrs elementAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `INSERT INTO elements
			(element_id, workspace_id, document_id, name, element_type, data_type, thumbnail_id, revision, payload, created_at, updated_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		args = []any{rec.Key.ElementID, rec.Key.WorkspaceID, rec.Key.DocumentID, rec.Name, attrs.ElementType,
			attrs.DataType, attrs.ThumbnailID, rec.Revision, payloadOrEmpty(rec.Payload), rec.CreatedAt, rec.UpdatedAt, rec.SyncedAt}
	case models.ResourcePart:
		var attrs partAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `INSERT INTO parts
			(part_id, element_id, name, state, body_type, material_properties, mass_properties, appearance, revision, payload, created_at, updated_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
		args = []any{rec.Key.PartID, rec.Key.ElementID, rec.Name, attrs.State, attrs.BodyType,
			nullableJSON(attrs.MaterialProperties), nullableJSON(attrs.MassProperties), nullableJSON(attrs.Appearance),
			rec.Revision, payloadOrEmpty(rec.Payload), rec.CreatedAt, rec.UpdatedAt, rec.SyncedAt}
	case models.ResourceFeature:
		var attrs featureAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `INSERT INTO features
			(feature_id, element_id, name, feature_type, suppressed, parameters, revision, payload, created_at, updated_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		args = []any{rec.Key.FeatureID, rec.Key.ElementID, rec.Name, attrs.FeatureType, attrs.Suppressed,
			nullableJSON(attrs.Parameters), rec.Revision, payloadOrEmpty(rec.Payload), rec.CreatedAt, rec.UpdatedAt, rec.SyncedAt}
	default:
		return fmt.Errorf("unknown resource type %q", rec.Key.Type)
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		if isForeignKeyViolation(err) {
			return store.ErrMissingParent
		}
		return fmt.Errorf("inserting %s: %w", rec.Key.Type, err)
	}

	return nil
}

// Update replaces a record's mirrored fields in place.
func (s *MirrorStore) Update(ctx context.Context, rec *models.LocalRecord) error {
	now := time.Now().UTC()
	rec.UpdatedAt = now
	rec.SyncedAt = now

	var (
		query string
		args  []any
	)

	switch rec.Key.Type {
	case models.ResourceDocument:
		var attrs documentAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `UPDATE documents
			SET name = $2, description = $3, owner_id = $4, owner_name = $5, public = $6,
			    revision = $7, payload = $8, updated_at = $9, synced_at = $10
			WHERE document_id = $1`
		args = []any{rec.Key.DocumentID, rec.Name, attrs.Description, attrs.Owner.ID, attrs.Owner.Name,
			attrs.Public, rec.Revision, payloadOrEmpty(rec.Payload), rec.UpdatedAt, rec.SyncedAt}
	case models.ResourceWorkspace:
		var attrs workspaceAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `UPDATE workspaces
			SET name = $2, description = $3, is_main = $4, revision = $5, payload = $6,
			    updated_at = $7, synced_at = $8
			WHERE workspace_id = $1`
		args = []any{rec.Key.WorkspaceID, rec.Name, attrs.Description, attrs.IsMain,
			rec.Revision, payloadOrEmpty(rec.Payload), rec.UpdatedAt, rec.SyncedAt}
	case models.ResourceElement:
		var attrs elementAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `UPDATE elements
			SET name = $2, element_type = $3, data_type = $4, thumbnail_id = $5, revision = $6,
			    payload = $7, updated_at = $8, synced_at = $9
			WHERE element_id = $1`
		args = []any{rec.Key.ElementID, rec.Name, attrs.ElementType, attrs.DataType, attrs.ThumbnailID,
			rec.Revision, payloadOrEmpty(rec.Payload), rec.UpdatedAt, rec.SyncedAt}
	case models.ResourcePart:
		var attrs partAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `UPDATE parts
			SET name = $3, state = $4, body_type = $5, material_properties = $6, mass_properties = $7,
			    appearance = $8, revision = $9, payload = $10, updated_at = $11, synced_at = $12
			WHERE element_id = $1 AND part_id = $2`
		args = []any{rec.Key.ElementID, rec.Key.PartID, rec.Name, attrs.State, attrs.BodyType,
			nullableJSON(attrs.MaterialProperties), nullableJSON(attrs.MassProperties), nullableJSON(attrs.Appearance),
			rec.Revision, payloadOrEmpty(rec.Payload), rec.UpdatedAt, rec.SyncedAt}
	case models.ResourceFeature:
		var attrs featureAttrs
		decodeAttrs(rec.Payload, &attrs)
		query = `UPDATE features
			SET name = $3, feature_type = $4, suppressed = $5, parameters = $6, revision = $7,
			    payload = $8, updated_at = $9, synced_at = $10
			WHERE element_id = $1 AND feature_id = $2`
		args = []any{rec.Key.ElementID, rec.Key.FeatureID, rec.Name, attrs.FeatureType, attrs.Suppressed,
			nullableJSON(attrs.Parameters), rec.Revision, payloadOrEmpty(rec.Payload), rec.UpdatedAt, rec.SyncedAt}
	default:
		return fmt.Errorf("unknown resource type %q", rec.Key.Type)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", rec.Key.Type, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}

	return nil
}

// Exists reports whether a record with the given key is committed.
func (s *MirrorStore) Exists(ctx context.Context, key models.EntityKey) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListKeys retrieves the natural keys of all records of one type, optionally
// filtered to children of parent. Keys come back in insertion order so that
// cascading walks process parents in a stable sequence.
func (s *MirrorStore) ListKeys(ctx context.Context, t models.ResourceType, parent *models.EntityKey) ([]models.EntityKey, error) {
	var (
		query string
		args  []any
	)

	switch t {
	case models.ResourceDocument:
		query = `SELECT document_id, '', '' FROM documents ORDER BY created_at`
	case models.ResourceWorkspace:
		query = `SELECT document_id, workspace_id, '' FROM workspaces ORDER BY created_at`
		if parent != nil {
			query = `SELECT document_id, workspace_id, '' FROM workspaces WHERE document_id = $1 ORDER BY created_at`
			args = []any{parent.DocumentID}
		}
	case models.ResourceElement:
		query = `SELECT document_id, workspace_id, element_id FROM elements ORDER BY created_at`
		if parent != nil {
			query = `SELECT document_id, workspace_id, element_id FROM elements WHERE workspace_id = $1 ORDER BY created_at`
			args = []any{parent.WorkspaceID}
		}
	default:
		return nil, fmt.Errorf("ListKeys does not support resource type %q", t)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s keys: %w", t, err)
	}
	defer rows.Close()

	var keys []models.EntityKey
	for rows.Next() {
		var docID, wsID, elemID string
		if err := rows.Scan(&docID, &wsID, &elemID); err != nil {
			return nil, fmt.Errorf("scanning %s key: %w", t, err)
		}
		keys = append(keys, models.EntityKey{
			Type:        t,
			DocumentID:  docID,
			WorkspaceID: wsID,
			ElementID:   elemID,
		})
	}
	return keys, rows.Err()
}

// List retrieves full records of one type, optionally filtered to children of
// parent, paginated in insertion order. Parts and features join through their
// element to recover the full key chain.
func (s *MirrorStore) List(ctx context.Context, t models.ResourceType, parent *models.EntityKey, limit, offset int) ([]*models.LocalRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var (
		query string
		args  []any
	)

	switch t {
	case models.ResourceDocument:
		query = `SELECT document_id, '', '', '', '', name, '', revision, payload, created_at, updated_at, synced_at
			FROM documents ORDER BY created_at`
	case models.ResourceWorkspace:
		query = `SELECT document_id, workspace_id, '', '', '', name, '', revision, payload, created_at, updated_at, synced_at
			FROM workspaces`
		if parent != nil {
			query += ` WHERE document_id = $1`
			args = []any{parent.DocumentID}
		}
		query += ` ORDER BY created_at`
	case models.ResourceElement:
		query = `SELECT document_id, workspace_id, element_id, '', '', name, element_type, revision, payload, created_at, updated_at, synced_at
			FROM elements`
		if parent != nil {
			query += ` WHERE workspace_id = $1`
			args = []any{parent.WorkspaceID}
		}
		query += ` ORDER BY created_at`
	case models.ResourcePart:
		query = `SELECT e.document_id, e.workspace_id, p.element_id, p.part_id, '', p.name, '', p.revision, p.payload, p.created_at, p.updated_at, p.synced_at
			FROM parts p JOIN elements e ON e.element_id = p.element_id`
		if parent != nil {
			query += ` WHERE p.element_id = $1`
			args = []any{parent.ElementID}
		}
		query += ` ORDER BY p.created_at`
	case models.ResourceFeature:
		query = `SELECT e.document_id, e.workspace_id, f.element_id, '', f.feature_id, f.name, '', f.revision, f.payload, f.created_at, f.updated_at, f.synced_at
			FROM features f JOIN elements e ON e.element_id = f.element_id`
		if parent != nil {
			query += ` WHERE f.element_id = $1`
			args = []any{parent.ElementID}
		}
		query += ` ORDER BY f.created_at`
	default:
		return nil, fmt.Errorf("unknown resource type %q", t)
	}

	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s records: %w", t, err)
	}
	defer rows.Close()

	var out []*models.LocalRecord
	for rows.Next() {
		rec := &models.LocalRecord{Key: models.EntityKey{Type: t}}
		var payload []byte
		if err := rows.Scan(
			&rec.Key.DocumentID,
			&rec.Key.WorkspaceID,
			&rec.Key.ElementID,
			&rec.Key.PartID,
			&rec.Key.FeatureID,
			&rec.Name,
			&rec.Kind,
			&rec.Revision,
			&payload,
			&rec.CreatedAt,
			&rec.UpdatedAt,
			&rec.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning %s record: %w", t, err)
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PartStudioKeys retrieves keys of elements whose type is PARTSTUDIO.
func (s *MirrorStore) PartStudioKeys(ctx context.Context) ([]models.EntityKey, error) {
	query := `SELECT document_id, workspace_id, element_id FROM elements
		WHERE element_type = 'PARTSTUDIO' ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing part studio keys: %w", err)
	}
	defer rows.Close()

	var keys []models.EntityKey
	for rows.Next() {
		var key models.EntityKey
		key.Type = models.ResourceElement
		if err := rows.Scan(&key.DocumentID, &key.WorkspaceID, &key.ElementID); err != nil {
			return nil, fmt.Errorf("scanning part studio key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// CountByType returns the number of mirrored records per resource type.
func (s *MirrorStore) CountByType(ctx context.Context) (map[models.ResourceType]int, error) {
	query := `SELECT 'document', COUNT(*) FROM documents
		UNION ALL SELECT 'workspace', COUNT(*) FROM workspaces
		UNION ALL SELECT 'element', COUNT(*) FROM elements
		UNION ALL SELECT 'part', COUNT(*) FROM parts
		UNION ALL SELECT 'feature', COUNT(*) FROM features`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("counting mirrored records: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ResourceType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[models.ResourceType(t)] = n
	}
	return counts, rows.Err()
}

// decodeAttrs extracts typed columns from the vendor payload. Missing or
// malformed payloads leave the attrs zero-valued; the raw payload column is
// the source of truth either way.
func decodeAttrs(payload json.RawMessage, dst any) {
	if len(payload) == 0 {
		return
	}
	_ = json.Unmarshal(payload, dst)
}

func payloadOrEmpty(payload json.RawMessage) []byte {
	if len(payload) == 0 {
		return []byte("{}")
	}
	return payload
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return []byte(raw)
}
