// Package memory provides an in-memory store implementation.
// It enforces the same natural-key and parent-chain invariants as the
// PostgreSQL store and is used by tests and local development.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store"
)

// Store implements store.Store with in-process maps.
type Store struct {
	mirror *mirrorStore
	runs   *runStore
	logs   *logStore
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		mirror: &mirrorStore{records: make(map[string]*models.LocalRecord)},
		runs:   &runStore{runs: make(map[string]*models.SyncRun)},
		logs:   &logStore{},
	}
}

// Mirror returns the MirrorStore.
func (s *Store) Mirror() store.MirrorStore { return s.mirror }

// Runs returns the SyncRunStore.
func (s *Store) Runs() store.SyncRunStore { return s.runs }

// Logs returns the SyncLogStore.
func (s *Store) Logs() store.SyncLogStore { return s.logs }

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

type mirrorStore struct {
	mu      sync.RWMutex
	seq     int
	records map[string]*models.LocalRecord
	order   map[string]int // insertion order per key, for stable listings
}

func mapKey(key models.EntityKey) string {
	return string(key.Type) + ":" + key.String()
}

func (m *mirrorStore) Get(ctx context.Context, key models.EntityKey) (*models.LocalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[mapKey(key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mirrorStore) Insert(ctx context.Context, rec *models.LocalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := mapKey(rec.Key)
	if _, ok := m.records[k]; ok {
		return store.ErrDuplicateKey
	}
	if parent, ok := rec.Key.Parent(); ok {
		if _, exists := m.records[mapKey(parent)]; !exists {
			return store.ErrMissingParent
		}
	}

	now := time.Now().UTC()
	cp := *rec
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.SyncedAt = now

	if m.order == nil {
		m.order = make(map[string]int)
	}
	m.seq++
	m.order[k] = m.seq
	m.records[k] = &cp

	rec.CreatedAt = cp.CreatedAt
	rec.UpdatedAt = cp.UpdatedAt
	rec.SyncedAt = cp.SyncedAt
	return nil
}

func (m *mirrorStore) Update(ctx context.Context, rec *models.LocalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := mapKey(rec.Key)
	existing, ok := m.records[k]
	if !ok {
		return store.ErrNotFound
	}

	now := time.Now().UTC()
	cp := *rec
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = now
	cp.SyncedAt = now
	m.records[k] = &cp

	rec.UpdatedAt = cp.UpdatedAt
	rec.SyncedAt = cp.SyncedAt
	return nil
}

func (m *mirrorStore) Exists(ctx context.Context, key models.EntityKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.records[mapKey(key)]
	return ok, nil
}

func (m *mirrorStore) ListKeys(ctx context.Context, t models.ResourceType, parent *models.EntityKey) ([]models.EntityKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listKeysLocked(t, parent)
}

// listKeysLocked filters and orders keys. Callers hold at least a read lock.
func (m *mirrorStore) listKeysLocked(t models.ResourceType, parent *models.EntityKey) ([]models.EntityKey, error) {
	var keys []models.EntityKey
	for _, rec := range m.records {
		if rec.Key.Type != t {
			continue
		}
		if parent != nil {
			pk, ok := rec.Key.Parent()
			if !ok || !parentMatches(pk, *parent) {
				continue
			}
		}
		keys = append(keys, rec.Key)
	}
	m.sortByInsertion(keys)
	return keys, nil
}

func (m *mirrorStore) List(ctx context.Context, t models.ResourceType, parent *models.EntityKey, limit, offset int) ([]*models.LocalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	keys, _ := m.listKeysLocked(t, parent)
	if offset >= len(keys) {
		return nil, nil
	}
	keys = keys[offset:]
	if len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]*models.LocalRecord, len(keys))
	for i, k := range keys {
		cp := *m.records[mapKey(k)]
		out[i] = &cp
	}
	return out, nil
}

func (m *mirrorStore) PartStudioKeys(ctx context.Context) ([]models.EntityKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []models.EntityKey
	for _, rec := range m.records {
		if rec.Key.Type != models.ResourceElement {
			continue
		}
		if elementKind(rec) == "PARTSTUDIO" {
			keys = append(keys, rec.Key)
		}
	}
	m.sortByInsertion(keys)
	return keys, nil
}

func (m *mirrorStore) CountByType(ctx context.Context) (map[models.ResourceType]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[models.ResourceType]int)
	for _, t := range models.ResourceTypes {
		counts[t] = 0
	}
	for _, rec := range m.records {
		counts[rec.Key.Type]++
	}
	return counts, nil
}

// parentMatches reports whether a record's parent key matches a filter.
// Empty filter fields match anything, mirroring the partial WHERE clauses the
// SQL store builds.
func parentMatches(pk, filter models.EntityKey) bool {
	if filter.DocumentID != "" && pk.DocumentID != filter.DocumentID {
		return false
	}
	if filter.WorkspaceID != "" && pk.WorkspaceID != filter.WorkspaceID {
		return false
	}
	if filter.ElementID != "" && pk.ElementID != filter.ElementID {
		return false
	}
	return true
}

// sortByInsertion orders keys by the sequence they were first committed.
// Callers hold at least a read lock.
func (m *mirrorStore) sortByInsertion(keys []models.EntityKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		return m.order[mapKey(keys[i])] < m.order[mapKey(keys[j])]
	})
}

func elementKind(rec *models.LocalRecord) string {
	if rec.Kind != "" {
		return rec.Kind
	}
	var attrs struct {
		ElementType string `json:"elementType"`
	}
	if len(rec.Payload) > 0 {
		_ = json.Unmarshal(rec.Payload, &attrs)
	}
	return attrs.ElementType
}

type runStore struct {
	mu   sync.RWMutex
	runs map[string]*models.SyncRun
	seq  []string
}

func (r *runStore) Create(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, ok := r.runs[run.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *run
	r.runs[run.ID] = &cp
	r.seq = append(r.seq, run.ID)
	return nil
}

func (r *runStore) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *runStore) Update(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.runs[run.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Status.Terminal() {
		return store.ErrRunFinalized
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *runStore) List(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var runs []*models.SyncRun
	for i := len(r.seq) - 1; i >= 0 && len(runs) < limit; i-- {
		cp := *r.runs[r.seq[i]]
		runs = append(runs, &cp)
	}
	return runs, nil
}

func (r *runStore) Totals(ctx context.Context) (*models.SyncTotals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := &models.SyncTotals{}
	for _, run := range r.runs {
		totals.Runs++
		totals.Created += run.Counts.Created
		totals.Updated += run.Counts.Updated
		totals.Unchanged += run.Counts.Unchanged
		totals.Failed += run.Counts.Failed
	}
	return totals, nil
}

type logStore struct {
	mu      sync.RWMutex
	entries []*models.SyncLogEntry
}

func (l *logStore) Append(ctx context.Context, entry *models.SyncLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	l.entries = append(l.entries, &cp)
	return nil
}

func (l *logStore) List(ctx context.Context, runID string, limit, offset int) ([]*models.SyncLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var matched []*models.SyncLogEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if runID != "" && l.entries[i].RunID != runID {
			continue
		}
		matched = append(matched, l.entries[i])
	}

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*models.SyncLogEntry, len(matched))
	for i, e := range matched {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}
