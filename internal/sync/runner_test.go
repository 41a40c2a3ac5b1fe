package sync

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/onshape"
	"github.com/meshforge/cadmirror/internal/store"
	"github.com/meshforge/cadmirror/internal/store/memory"
)

func waitForTerminalRun(t *testing.T, st store.Store, runID string) *models.SyncRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := st.Runs().Get(context.Background(), runID)
		require.NoError(t, err)
		if run.Status.Terminal() {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached a terminal status", runID)
	return nil
}

func TestRunnerExecutesInBackground(t *testing.T) {
	st := memory.NewStore()
	runner := NewRunner(newTestOrchestrator(testHierarchy(), st), 2, nil)
	defer runner.Stop()

	run, err := runner.Trigger(context.Background(), models.ScopeFull, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, run.Status, "trigger returns before execution")

	done := waitForTerminalRun(t, st, run.ID)
	assert.Equal(t, models.SyncStatusSucceeded, done.Status)
	assert.Equal(t, 9, done.Counts.Created)
}

func TestRunnerCapsConcurrentRuns(t *testing.T) {
	st := memory.NewStore()

	release := make(chan struct{})
	vendor := &gateVendor{release: release}
	walker := NewWalker(vendor, testGovernor(1), 20, nil)
	orch := NewOrchestrator(st, walker, NewReconciler(st.Mirror(), nil), 1, nil)
	runner := NewRunner(orch, 1, nil)

	first, err := runner.Trigger(context.Background(), models.ScopeDocuments, Options{})
	require.NoError(t, err)

	_, err = runner.Trigger(context.Background(), models.ScopeDocuments, Options{})
	assert.ErrorIs(t, err, ErrTooManyRuns)

	close(release)
	waitForTerminalRun(t, st, first.ID)
	runner.Stop()

	assert.Equal(t, 0, runner.Active())
}

func TestRunnerCancel(t *testing.T) {
	st := memory.NewStore()

	release := make(chan struct{})
	defer close(release)
	vendor := &gateVendor{release: release}
	walker := NewWalker(vendor, testGovernor(1), 20, nil)
	orch := NewOrchestrator(st, walker, NewReconciler(st.Mirror(), nil), 1, nil)
	runner := NewRunner(orch, 1, nil)
	defer runner.Stop()

	run, err := runner.Trigger(context.Background(), models.ScopeDocuments, Options{})
	require.NoError(t, err)

	assert.True(t, runner.Cancel(run.ID))
	assert.False(t, runner.Cancel("no-such-run"))

	done := waitForTerminalRun(t, st, run.ID)
	assert.Equal(t, models.SyncStatusPartiallyFailed, done.Status)
}

func TestRunnerRejectsAfterStop(t *testing.T) {
	st := memory.NewStore()
	runner := NewRunner(newTestOrchestrator(testHierarchy(), st), 1, nil)
	runner.Stop()

	_, err := runner.Trigger(context.Background(), models.ScopeDocuments, Options{})
	assert.Error(t, err)
}

// gateVendor blocks requests until release is closed, then serves an empty
// documents page.
type gateVendor struct {
	release chan struct{}
}

func (v *gateVendor) Send(ctx context.Context, method, path string, query url.Values) (*onshape.Response, error) {
	select {
	case <-v.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &onshape.Response{StatusCode: http.StatusOK, Body: []byte(`{"items":[]}`)}, nil
}
