package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/pkg/logger"
)

// Runner launches sync runs in the background and bounds how many execute at
// once. Triggering returns as soon as the run record exists; the walk itself
// proceeds on a detached context so it outlives the triggering request.
type Runner struct {
	orch     *Orchestrator
	slots    chan struct{}
	logger   *slog.Logger
	wg       sync.WaitGroup
	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	stopping bool
}

// NewRunner creates a Runner allowing up to maxConcurrent simultaneous runs.
func NewRunner(orch *Orchestrator, maxConcurrent int, log *slog.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		orch:    orch,
		slots:   make(chan struct{}, maxConcurrent),
		logger:  log,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Trigger creates a run and starts executing it in the background. It fails
// fast when all run slots are busy rather than queueing, so callers get an
// immediate signal to retry later.
func (r *Runner) Trigger(ctx context.Context, scope models.SyncScope, opts Options) (*models.SyncRun, error) {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return nil, fmt.Errorf("runner is shutting down")
	}
	r.mu.Unlock()

	select {
	case r.slots <- struct{}{}:
	default:
		return nil, ErrTooManyRuns
	}

	run, err := r.orch.Prepare(ctx, scope)
	if err != nil {
		<-r.slots
		return nil, err
	}

	runCtx, cancel := context.WithCancel(logger.ContextWithRunID(context.Background(), run.ID))
	r.mu.Lock()
	r.cancels[run.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.cancels, run.ID)
			r.mu.Unlock()
			<-r.slots
		}()

		if _, err := r.orch.Execute(runCtx, run, opts); err != nil {
			r.logger.Error("sync run execution failed", "run_id", run.ID, "error", err)
		}
	}()

	return run, nil
}

// Cancel requests cancellation of an in-flight run. It reports whether the
// run was active; the run still settles its terminal status asynchronously.
func (r *Runner) Cancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active returns the number of runs currently executing.
func (r *Runner) Active() int {
	return len(r.slots)
}

// Stop cancels all in-flight runs and waits for them to settle their
// terminal status.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopping = true
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("sync runner stopped")
}
