package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

func result(task, host string) *types.JobResult {
	return &types.JobResult{
		Task:    task,
		Host:    host,
		Status:  types.StatusSuccess,
		Elapsed: 100 * time.Millisecond,
	}
}

func countRecords(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r types.JobResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), "record %d not valid JSON", n)
		n++
	}
	require.NoError(t, sc.Err())
	return n
}

func TestAddThenFinalizeWritesAllRecords(t *testing.T) {
	// Record count must be exact regardless of threshold choices.
	for _, bufSize := range []int{1, 3, 100} {
		path := filepath.Join(t.TempDir(), "results.jsonl")
		w, err := NewWriter(path, Options{BufferSize: bufSize, FlushInterval: time.Hour})
		require.NoError(t, err)

		const n = 17
		for i := 0; i < n; i++ {
			require.NoError(t, w.AddResult(result(fmt.Sprintf("task-%d", i), "host")))
		}

		got, err := w.Finalize()
		require.NoError(t, err)
		assert.Equal(t, path, got)
		assert.Equal(t, n, countRecords(t, path), "bufSize=%d", bufSize)

		stats := w.Stats()
		assert.Equal(t, int64(n), stats.Records)
		assert.Greater(t, stats.Bytes, int64(0))
	}
}

func TestCountThresholdFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := NewWriter(path, Options{BufferSize: 2, FlushInterval: time.Hour})
	require.NoError(t, err)
	defer func() { _, _ = w.Finalize() }()

	require.NoError(t, w.AddResult(result("a", "h")))
	assert.Equal(t, 0, countRecords(t, path), "one buffered record must not flush")

	require.NoError(t, w.AddResult(result("b", "h")))
	assert.Equal(t, 2, countRecords(t, path), "second record crosses the count threshold")
}

func TestMemoryThresholdFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := NewWriter(path, Options{BufferSize: 1000, FlushInterval: time.Hour, MemoryThreshold: 64})
	require.NoError(t, err)
	defer func() { _, _ = w.Finalize() }()

	require.NoError(t, w.AddResult(result("a", "h")))
	assert.Equal(t, 1, countRecords(t, path), "tiny memory threshold forces immediate flush")
}

func TestElapsedThresholdFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := NewWriter(path, Options{BufferSize: 1000, FlushInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _, _ = w.Finalize() }()

	require.NoError(t, w.AddResult(result("a", "h")))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if countRecords(t, path) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("periodic flush never happened")
}

func TestAddAfterFinalizeFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := NewWriter(path, Options{})
	require.NoError(t, err)

	_, err = w.Finalize()
	require.NoError(t, err)

	err = w.AddResult(result("late", "h"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFinalizeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := NewWriter(path, Options{})
	require.NoError(t, err)

	require.NoError(t, w.AddResult(result("a", "h")))

	p1, err := w.Finalize()
	require.NoError(t, err)
	p2, err := w.Finalize()
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, countRecords(t, path))
}

func TestConcurrentAdds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := NewWriter(path, Options{BufferSize: 7, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				require.NoError(t, w.AddResult(result(fmt.Sprintf("t-%d-%d", id, j), "h")))
			}
		}(i)
	}
	wg.Wait()

	_, err = w.Finalize()
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, countRecords(t, path))

	stats := w.Stats()
	assert.Equal(t, int64(workers*perWorker), stats.Records)
	assert.GreaterOrEqual(t, stats.Flushes, int64(1))
}
