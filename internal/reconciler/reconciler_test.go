package reconciler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wallet-txengine-go/internal/database"
	"wallet-txengine-go/internal/models"
	"wallet-txengine-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	mu        sync.Mutex
	engines   map[string]bool
	status    string
	reference string
	err       error
	calls     []string
}

func (f *fakeChecker) Handles(engine string) bool { return f.engines[engine] }

func (f *fakeChecker) ExecutionStatus(_ context.Context, exec models.Execution) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, exec.AttemptId)
	return f.status, f.reference, f.err
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newJournal(t *testing.T) *database.Service {
	t.Helper()
	svc, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "journal.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func ambiguous(t *testing.T, j store.Journal, attemptId, engine string) {
	t.Helper()
	ctx := context.Background()
	_, err := j.Begin(ctx, store.BeginParams{
		AttemptId:     attemptId,
		Engine:        engine,
		SourceAccount: "wlt_001",
		Asset:         "ETH",
		Amount:        "0.5",
	})
	require.NoError(t, err)
	require.NoError(t, j.MarkAmbiguous(ctx, attemptId, "", "timeout"))
}

func TestReconcileOnceResolvesKnownOutcomes(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	ambiguous(t, j, "attempt-done", "trading_send")
	ambiguous(t, j, "attempt-unknown", "interest_transfer(ledger)")
	ambiguous(t, j, "attempt-orphan", "on_chain_send")

	prime := &fakeChecker{engines: map[string]bool{"trading_send": true}, status: models.ExecutionCompleted, reference: "tx-1"}
	ledger := &fakeChecker{engines: map[string]bool{"interest_transfer(ledger)": true}}

	r := New(Config{Journal: j, Checkers: []StatusChecker{prime, ledger}})
	resolved, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	done, err := j.Get(ctx, "attempt-done")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, done.Status)
	assert.Equal(t, "tx-1", done.Reference)

	for _, id := range []string{"attempt-unknown", "attempt-orphan"} {
		exec, err := j.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionAmbiguous, exec.Status, id)
	}
	assert.Equal(t, 1, ledger.callCount())
}

func TestReconcileOnceMarksFailures(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	ambiguous(t, j, "attempt-1", "trading_send")

	checker := &fakeChecker{engines: map[string]bool{"trading_send": true}, status: models.ExecutionFailed}
	r := New(Config{Journal: j, Checkers: []StatusChecker{checker}})

	resolved, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	exec, err := j.Get(ctx, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, exec.Status)

	// A second pass finds nothing left to do.
	resolved, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, 1, checker.callCount())
}

type fakeCompensator struct {
	mu          sync.Mutex
	err         error
	compensated []string
}

func (f *fakeCompensator) CompensateFailure(_ context.Context, exec models.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.compensated = append(f.compensated, exec.AttemptId)
	return nil
}

func TestReconcileOnceCompensatesOnlyFailures(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	ambiguous(t, j, "attempt-failed", "trading_send")
	ambiguous(t, j, "attempt-done", "interest_withdraw(ledger)")

	prime := &fakeChecker{engines: map[string]bool{"trading_send": true}, status: models.ExecutionFailed}
	ledger := &fakeChecker{engines: map[string]bool{"interest_withdraw(ledger)": true}, status: models.ExecutionCompleted, reference: "7"}
	holds := &fakeCompensator{}

	r := New(Config{Journal: j, Checkers: []StatusChecker{prime, ledger}, Compensators: []Compensator{holds}})
	resolved, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)
	assert.Equal(t, []string{"attempt-failed"}, holds.compensated)
}

func TestReconcileOnceRetriesFailedCompensation(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	ambiguous(t, j, "attempt-1", "trading_send")

	checker := &fakeChecker{engines: map[string]bool{"trading_send": true}, status: models.ExecutionFailed}
	holds := &fakeCompensator{err: errors.New("ledger unavailable")}
	r := New(Config{Journal: j, Checkers: []StatusChecker{checker}, Compensators: []Compensator{holds}})

	resolved, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	exec, err := j.Get(ctx, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionAmbiguous, exec.Status)

	holds.mu.Lock()
	holds.err = nil
	holds.mu.Unlock()

	resolved, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	exec, err = j.Get(ctx, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, exec.Status)
	assert.Equal(t, []string{"attempt-1"}, holds.compensated)
}

func TestReconcileOnceContinuesPastCheckerErrors(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	ambiguous(t, j, "attempt-1", "trading_send")
	ambiguous(t, j, "attempt-2", "interest_withdraw(ledger)")

	broken := &fakeChecker{engines: map[string]bool{"trading_send": true}, err: errors.New("prime unavailable")}
	ledger := &fakeChecker{engines: map[string]bool{"interest_withdraw(ledger)": true}, status: models.ExecutionCompleted, reference: "42"}

	r := New(Config{Journal: j, Checkers: []StatusChecker{broken, ledger}})
	resolved, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	first, err := j.Get(ctx, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionAmbiguous, first.Status)
}

func TestReconcileOnceHonoursLookback(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	ambiguous(t, j, "attempt-1", "trading_send")

	checker := &fakeChecker{engines: map[string]bool{"trading_send": true}, status: models.ExecutionCompleted}
	r := New(Config{
		Journal:        j,
		Checkers:       []StatusChecker{checker},
		LookbackWindow: time.Hour,
		Now:            func() time.Time { return time.Now().Add(2 * time.Hour) },
	})

	resolved, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Zero(t, checker.callCount())
}

func TestStartRequiresCollaborators(t *testing.T) {
	assert.Error(t, New(Config{}).Start(context.Background()))
	assert.Error(t, New(Config{Journal: newJournal(t)}).Start(context.Background()))
}

func TestLoopResolvesUntilStopped(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	ambiguous(t, j, "attempt-1", "trading_send")

	checker := &fakeChecker{engines: map[string]bool{"trading_send": true}, status: models.ExecutionCompleted, reference: "tx-9"}
	r := New(Config{Journal: j, Checkers: []StatusChecker{checker}, PollingInterval: 10 * time.Millisecond})
	require.NoError(t, r.Start(ctx))

	require.Eventually(t, func() bool {
		exec, err := j.Get(ctx, "attempt-1")
		return err == nil && exec.Status == models.ExecutionCompleted
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
}
