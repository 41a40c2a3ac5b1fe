package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store"
)

// Options adjust how a sync run reconciles entities.
type Options struct {
	// ForceRefresh treats every revision marker as differing, forcing an
	// update on entities whose remote state matches the mirror.
	ForceRefresh bool
}

// task is one unit of the orchestrator's worklist: enumerate one resource
// type under one parent.
type task struct {
	resource models.ResourceType
	parent   models.EntityKey
	cursor   Cursor
}

type taskResult struct {
	task      task
	committed []models.RemoteEntity
	err       error
}

// Orchestrator sequences sync runs. The hierarchy walk is an explicit
// worklist processed level by level: a level's parents are reconciled to
// completion before any of their children's walks are scheduled, which is
// what upholds the parent-must-exist invariant. Within a level, parents
// proceed independently on a bounded worker pool, so one parent's failure
// never blocks its siblings.
type Orchestrator struct {
	store      store.Store
	walker     *Walker
	reconciler *Reconciler
	workers    int
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator with per-level parallelism workers.
func NewOrchestrator(st store.Store, walker *Walker, reconciler *Reconciler, workers int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		store:      st,
		walker:     walker,
		reconciler: reconciler,
		workers:    workers,
		logger:     logger,
	}
}

// Prepare creates the pending run record. Split from Execute so callers can
// hand the run ID back before the work starts.
func (o *Orchestrator) Prepare(ctx context.Context, scope models.SyncScope) (*models.SyncRun, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("unknown sync scope %q", scope)
	}
	run := &models.SyncRun{
		ID:        uuid.NewString(),
		Scope:     scope,
		Status:    models.SyncStatusPending,
		StartedAt: time.Now().UTC(),
	}
	if err := o.store.Runs().Create(ctx, run); err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	return run, nil
}

// Execute drives a prepared run to a terminal status. Entity and page
// failures are isolated and recorded; only a walk that fails before any
// entity landed fails the whole run. No error escapes except store failures
// around the run record itself.
func (o *Orchestrator) Execute(ctx context.Context, run *models.SyncRun, opts Options) (*models.SyncRun, error) {
	logger := o.logger.With("run_id", run.ID, "scope", run.Scope)

	run.Status = models.SyncStatusRunning
	if err := o.store.Runs().Update(ctx, run); err != nil {
		return run, fmt.Errorf("marking run running: %w", err)
	}
	logger.Info("sync run started", "force_refresh", opts.ForceRefresh)

	state := &runState{}

	tasks, err := o.initialTasks(ctx, run.Scope)
	if err != nil {
		return o.finalize(ctx, run, state, fmt.Errorf("resolving sync roots: %w", err))
	}

	cascade := run.Scope == models.ScopeFull
	for level := 0; len(tasks) > 0; level++ {
		logger.Debug("processing sync level", "level", level, "tasks", len(tasks))
		results := o.runLevel(ctx, run, tasks, state, opts)

		if fatal := state.fatalErr(); fatal != nil {
			return o.finalize(ctx, run, state, fatal)
		}
		if ctx.Err() != nil {
			return o.finalize(ctx, run, state, nil)
		}

		// Persist interim progress so pollers see counts advance.
		run.Counts = state.snapshot()
		if err := o.store.Runs().Update(ctx, run); err != nil {
			logger.Error("persisting run progress", "error", err)
		}

		if !cascade {
			break
		}
		tasks = childTasks(results)
	}

	return o.finalize(ctx, run, state, nil)
}

// RunSync prepares and executes a run in one call.
func (o *Orchestrator) RunSync(ctx context.Context, scope models.SyncScope, opts Options) (*models.SyncRun, error) {
	run, err := o.Prepare(ctx, scope)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, run, opts)
}

// initialTasks resolves the enumeration roots for a scope. Single-resource
// scopes walk one level using already-stored parents as roots.
func (o *Orchestrator) initialTasks(ctx context.Context, scope models.SyncScope) ([]task, error) {
	switch scope {
	case models.ScopeFull, models.ScopeDocuments:
		return []task{{resource: models.ResourceDocument}}, nil

	case models.ScopeWorkspaces:
		parents, err := o.store.Mirror().ListKeys(ctx, models.ResourceDocument, nil)
		if err != nil {
			return nil, err
		}
		tasks := make([]task, 0, len(parents))
		for _, p := range parents {
			tasks = append(tasks, task{resource: models.ResourceWorkspace, parent: p})
		}
		return tasks, nil

	case models.ScopeElements:
		parents, err := o.store.Mirror().ListKeys(ctx, models.ResourceWorkspace, nil)
		if err != nil {
			return nil, err
		}
		tasks := make([]task, 0, len(parents))
		for _, p := range parents {
			tasks = append(tasks, task{resource: models.ResourceElement, parent: p})
		}
		return tasks, nil

	case models.ScopeParts, models.ScopeFeatures:
		resource := models.ResourcePart
		if scope == models.ScopeFeatures {
			resource = models.ResourceFeature
		}
		parents, err := o.store.Mirror().PartStudioKeys(ctx)
		if err != nil {
			return nil, err
		}
		tasks := make([]task, 0, len(parents))
		for _, p := range parents {
			tasks = append(tasks, task{resource: resource, parent: p})
		}
		return tasks, nil
	}
	return nil, fmt.Errorf("unknown sync scope %q", scope)
}

// runLevel processes one level's tasks on a bounded worker pool.
func (o *Orchestrator) runLevel(ctx context.Context, run *models.SyncRun, tasks []task, state *runState, opts Options) []taskResult {
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	results := make([]taskResult, len(tasks))
	for i, t := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t task) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.runTask(ctx, run, t, state, opts)
		}(i, t)
	}
	wg.Wait()

	return results
}

// runTask walks one parent's collection and reconciles each entity as it
// arrives, in server order.
func (o *Orchestrator) runTask(ctx context.Context, run *models.SyncRun, t task, state *runState, opts Options) taskResult {
	result := taskResult{task: t}

	yield := func(entity models.RemoteEntity) error {
		entry := o.reconciler.Reconcile(ctx, entity, opts.ForceRefresh)
		entry.RunID = run.ID
		if err := o.store.Logs().Append(ctx, entry); err != nil {
			o.logger.Error("appending sync log entry", "run_id", run.ID, "error", err)
		}
		state.record(entry.Action)
		state.markProgress()
		if entry.Action.Committed() {
			result.committed = append(result.committed, entity)
		}
		return nil
	}

	cursor, err := o.walker.Walk(ctx, t.resource, t.parent, t.cursor, yield)
	if err == nil {
		state.markProgress()
		return result
	}
	result.err = err

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return result
	}

	// A failure before anything at all landed means the walk never
	// started; failures after progress degrade to page errors.
	if !state.progressed() {
		state.setFatal(err)
		return result
	}

	state.recordPageFailure()
	entry := &models.SyncLogEntry{
		RunID:      run.ID,
		EntityType: t.resource,
		EntityKey:  parentLabel(t.parent),
		Action:     models.ActionError,
		Detail:     err.Error(),
	}
	if appendErr := o.store.Logs().Append(ctx, entry); appendErr != nil {
		o.logger.Error("appending sync log entry", "run_id", run.ID, "error", appendErr)
	}
	o.logger.Warn("walk stopped for parent",
		"run_id", run.ID,
		"resource", t.resource,
		"parent", parentLabel(t.parent),
		"resume_offset", cursor.Offset,
		"error", err,
	)
	return result
}

// childTasks derives the next level's worklist from committed parents.
// Parts and features are walked only for part studio elements; other element
// kinds have no children to enumerate.
func childTasks(results []taskResult) []task {
	var next []task
	for _, r := range results {
		for _, e := range r.committed {
			switch e.Key.Type {
			case models.ResourceDocument:
				next = append(next, task{resource: models.ResourceWorkspace, parent: e.Key})
			case models.ResourceWorkspace:
				next = append(next, task{resource: models.ResourceElement, parent: e.Key})
			case models.ResourceElement:
				if e.Kind == "PARTSTUDIO" {
					next = append(next,
						task{resource: models.ResourcePart, parent: e.Key},
						task{resource: models.ResourceFeature, parent: e.Key},
					)
				}
			}
		}
	}
	return next
}

// finalize sets the run's terminal status and persists it. The terminal
// record is immutable afterwards; the store refuses further updates.
func (o *Orchestrator) finalize(ctx context.Context, run *models.SyncRun, state *runState, fatal error) (*models.SyncRun, error) {
	run.Counts = state.snapshot()
	now := time.Now().UTC()
	run.CompletedAt = &now

	switch {
	case fatal != nil:
		run.Status = models.SyncStatusFailed
		run.Message = fatal.Error()
	case ctx.Err() != nil:
		run.Status = models.SyncStatusPartiallyFailed
		run.Message = "run cancelled before completion"
	case run.Counts.Failed > 0:
		run.Status = models.SyncStatusPartiallyFailed
	default:
		run.Status = models.SyncStatusSucceeded
	}

	// The terminal update must land even when the run context is cancelled.
	updateCtx := ctx
	if ctx.Err() != nil {
		updateCtx = context.WithoutCancel(ctx)
	}
	if err := o.store.Runs().Update(updateCtx, run); err != nil {
		return run, fmt.Errorf("finalizing sync run: %w", err)
	}

	o.logger.Info("sync run finished",
		"run_id", run.ID,
		"scope", run.Scope,
		"status", run.Status,
		"created", run.Counts.Created,
		"updated", run.Counts.Updated,
		"unchanged", run.Counts.Unchanged,
		"failed", run.Counts.Failed,
	)
	return run, nil
}

// parentLabel renders a task's parent for log entries; the top-level
// documents walk has no parent.
func parentLabel(parent models.EntityKey) string {
	if parent.DocumentID == "" {
		return "(root)"
	}
	return parent.String()
}

// runState accumulates per-entity outcomes across a run's goroutines.
type runState struct {
	mu       sync.Mutex
	counts   models.SyncCounts
	progress bool
	fatal    error
}

func (s *runState) record(action models.SyncAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch action {
	case models.ActionCreated:
		s.counts.Created++
	case models.ActionUpdated:
		s.counts.Updated++
	case models.ActionUnchanged:
		s.counts.Unchanged++
	case models.ActionError:
		s.counts.Failed++
	}
}

func (s *runState) recordPageFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Failed++
}

func (s *runState) markProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = true
}

func (s *runState) progressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *runState) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

func (s *runState) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *runState) snapshot() models.SyncCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}
