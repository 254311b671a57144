package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// countingExecutor records executed hosts and returns one successful task
// result per target.
type countingExecutor struct {
	mu       sync.Mutex
	executed []string

	// onCall, when set, runs before each execution with the 1-based
	// call number.
	onCall func(n int)
	calls  atomic.Int32
}

func (e *countingExecutor) ExecuteTarget(_ context.Context, target types.Target) *types.TargetResult {
	n := int(e.calls.Add(1))
	if e.onCall != nil {
		e.onCall(n)
	}
	e.mu.Lock()
	e.executed = append(e.executed, target.Host)
	e.mu.Unlock()

	return &types.TargetResult{
		Host: target.Host,
		Results: []types.JobResult{
			{Task: "inventory", Host: target.Host, Status: types.StatusSuccess, Elapsed: time.Millisecond},
		},
	}
}

func makeTargets(n int) []types.Target {
	targets := make([]types.Target, n)
	for i := range targets {
		targets[i] = types.Target{Host: fmt.Sprintf("host-%02d", i)}
	}
	return targets
}

func defaultOpts(cpPath string) Options {
	return Options{
		BatchSize:          10,
		PipelineDepth:      1,
		CheckpointInterval: 1,
		CheckpointPath:     cpPath,
		RunID:              "test-run",
	}
}

func TestSplit(t *testing.T) {
	exec := &countingExecutor{}
	r, err := NewRunner(exec, defaultOpts(""))
	require.NoError(t, err)

	batches := r.Split(makeTargets(25))
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Targets, 10)
	assert.Len(t, batches[1].Targets, 10)
	assert.Len(t, batches[2].Targets, 5)
	assert.Equal(t, 2, batches[2].Index)
	assert.Equal(t, BatchPending, batches[0].Status)
}

func TestRunAggregatesAllTargets(t *testing.T) {
	exec := &countingExecutor{}
	r, err := NewRunner(exec, defaultOpts(""))
	require.NoError(t, err)

	result, err := r.Run(context.Background(), makeTargets(25))
	require.NoError(t, err)

	assert.Equal(t, int64(25), result.Summary.Targets)
	assert.Equal(t, int64(25), result.Summary.TargetsOK)
	assert.Equal(t, int64(25), result.Summary.Tasks)
	assert.Len(t, result.Targets, 25)
	assert.False(t, result.Resumed)
}

func TestCountersIndependentOfBatchingChoices(t *testing.T) {
	want := func() types.Summary {
		exec := &countingExecutor{}
		opts := defaultOpts("")
		opts.BatchSize = 25
		r, err := NewRunner(exec, opts)
		require.NoError(t, err)
		res, err := r.Run(context.Background(), makeTargets(25))
		require.NoError(t, err)
		return res.Summary
	}()

	for _, tc := range []struct{ size, depth int }{
		{1, 1}, {3, 2}, {7, 5}, {10, 3}, {25, 1},
	} {
		exec := &countingExecutor{}
		opts := defaultOpts("")
		opts.BatchSize = tc.size
		opts.PipelineDepth = tc.depth
		r, err := NewRunner(exec, opts)
		require.NoError(t, err)

		res, err := r.Run(context.Background(), makeTargets(25))
		require.NoError(t, err)
		assert.Equal(t, want, res.Summary, "size=%d depth=%d", tc.size, tc.depth)
	}
}

func TestPipelineDepthBoundsInFlightBatches(t *testing.T) {
	var running, peak atomic.Int32
	exec := &countingExecutor{}
	exec.onCall = func(int) {
		cur := running.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
	}

	opts := defaultOpts("")
	opts.BatchSize = 1 // one target per batch makes batch concurrency visible
	opts.PipelineDepth = 2
	r, err := NewRunner(exec, opts)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), makeTargets(12))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2), "more batches in flight than pipeline depth")
}

func TestCheckpointWrittenAtInterval(t *testing.T) {
	cpPath := filepath.Join(t.TempDir(), "checkpoint.json")
	exec := &countingExecutor{}
	r, err := NewRunner(exec, defaultOpts(cpPath))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), makeTargets(25))
	require.NoError(t, err)

	cp, err := LoadCheckpoint(cpPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cp.LastCompletedBatch)
	assert.Len(t, cp.Batches, 3)
	assert.Equal(t, "test-run", cp.RunID)
	assert.False(t, cp.WrittenAt.IsZero())
}

func TestInterruptAndResume(t *testing.T) {
	// 25 targets, batches of 10, checkpoint every batch. Interrupt
	// during batch 2 (third batch), then resume: 25 targets total, no
	// duplicates.
	cpPath := filepath.Join(t.TempDir(), "checkpoint.json")

	ctx, cancel := context.WithCancel(context.Background())
	exec := &countingExecutor{}
	exec.onCall = func(n int) {
		if n == 21 { // first target of batch 2
			cancel()
		}
	}

	r, err := NewRunner(exec, defaultOpts(cpPath))
	require.NoError(t, err)
	_, err = r.Run(ctx, makeTargets(25))
	require.Error(t, err, "interrupted run must surface the abort")

	cp, err := LoadCheckpoint(cpPath)
	require.NoError(t, err)
	assert.Equal(t, 1, cp.LastCompletedBatch, "two full batches were checkpointed")

	// Resume with a fresh runner over the same target list.
	exec2 := &countingExecutor{}
	r2, err := NewRunner(exec2, defaultOpts(cpPath))
	require.NoError(t, err)

	result, err := r2.Run(context.Background(), makeTargets(25))
	require.NoError(t, err)

	assert.True(t, result.Resumed)
	assert.Equal(t, int64(25), result.Summary.Targets, "resume must not double-count")
	assert.Equal(t, int64(25), result.Summary.TasksOK)
	assert.Len(t, exec2.executed, 5, "only the unfinished batch re-executes")
}

func TestResumeOfFinishedRunIsImmediate(t *testing.T) {
	cpPath := filepath.Join(t.TempDir(), "checkpoint.json")

	exec := &countingExecutor{}
	r, err := NewRunner(exec, defaultOpts(cpPath))
	require.NoError(t, err)
	first, err := r.Run(context.Background(), makeTargets(25))
	require.NoError(t, err)

	exec2 := &countingExecutor{}
	r2, err := NewRunner(exec2, defaultOpts(cpPath))
	require.NoError(t, err)
	second, err := r2.Run(context.Background(), makeTargets(25))
	require.NoError(t, err)

	assert.Empty(t, exec2.executed, "finished run must not re-execute anything")
	assert.Equal(t, first.Summary, second.Summary)
}

func TestCheckpointWriteFailureIsNonFatal(t *testing.T) {
	// A checkpoint path under a regular file cannot be created; the run
	// must still complete.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	exec := &countingExecutor{}
	r, err := NewRunner(exec, defaultOpts(filepath.Join(blocker, "checkpoint.json")))
	require.NoError(t, err)

	result, err := r.Run(context.Background(), makeTargets(25))
	require.NoError(t, err)
	assert.Equal(t, int64(25), result.Summary.Targets)
}

func TestEmptyTargetListIsFatal(t *testing.T) {
	exec := &countingExecutor{}
	r, err := NewRunner(exec, defaultOpts(""))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestOptionValidation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Options)
	}{
		{"batch size too small", func(o *Options) { o.BatchSize = 0 }},
		{"batch size too large", func(o *Options) { o.BatchSize = 101 }},
		{"pipeline depth too small", func(o *Options) { o.PipelineDepth = 0 }},
		{"pipeline depth too large", func(o *Options) { o.PipelineDepth = 6 }},
		{"checkpoint interval too small", func(o *Options) { o.CheckpointInterval = 0 }},
		{"checkpoint interval too large", func(o *Options) { o.CheckpointInterval = 51 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOpts("")
			tt.mod(&opts)
			_, err := NewRunner(&countingExecutor{}, opts)
			assert.Error(t, err)
		})
	}
}

func TestLoadCheckpointMissing(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	cp := &Checkpoint{
		RunID:              "run-1",
		LastCompletedBatch: 4,
		Batches: []BatchSummary{
			{Index: 0, Hosts: 10, Summary: types.Summary{Targets: 10, TargetsOK: 10}},
		},
		WrittenAt: time.Now().UTC(),
	}
	require.NoError(t, cp.write(path))

	got, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, cp.RunID, got.RunID)
	assert.Equal(t, cp.LastCompletedBatch, got.LastCompletedBatch)
	assert.Equal(t, cp.Batches, got.Batches)
}
