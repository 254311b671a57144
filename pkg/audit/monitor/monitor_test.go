package monitor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestThrottleAndRecover(t *testing.T) {
	var pressure atomic.Bool
	var throttles, recovers atomic.Int32

	m := New(Options{
		Interval: 5 * time.Millisecond,
		Sample: func() (Sample, error) {
			if pressure.Load() {
				return Sample{CPUPercent: 99}, nil
			}
			return Sample{CPUPercent: 10, MemPercent: 20}, nil
		},
		OnThrottle: func(Sample) { throttles.Add(1) },
		OnRecover:  func(Sample) { recovers.Add(1) },
	})
	m.Start()
	defer m.Stop()

	assert.False(t, m.Throttled())

	pressure.Store(true)
	waitFor(t, m.Throttled, "monitor never throttled under pressure")
	assert.Equal(t, int32(1), throttles.Load())

	pressure.Store(false)
	waitFor(t, func() bool { return !m.Throttled() }, "monitor never recovered")
	assert.Equal(t, int32(1), recovers.Load())
}

func TestEffectiveLimitBounds(t *testing.T) {
	m := New(Options{Sample: func() (Sample, error) { return Sample{}, nil }})

	// Unthrottled: configured passes through, floor at 1.
	assert.Equal(t, 8, m.EffectiveLimit(8))
	assert.Equal(t, 1, m.EffectiveLimit(0))
	assert.Equal(t, 1, m.EffectiveLimit(-3))

	// Throttled: halved, never below 1, never above configured.
	m.throttled.Store(true)
	assert.Equal(t, 4, m.EffectiveLimit(8))
	assert.Equal(t, 1, m.EffectiveLimit(2))
	assert.Equal(t, 1, m.EffectiveLimit(1))
}

func TestMemoryThreshold(t *testing.T) {
	m := New(Options{
		Interval: 5 * time.Millisecond,
		Sample: func() (Sample, error) {
			return Sample{CPUPercent: 10, MemPercent: 95}, nil
		},
	})
	m.Start()
	defer m.Stop()

	waitFor(t, m.Throttled, "memory pressure never throttled")
}

func TestSampleErrorKeepsState(t *testing.T) {
	calls := atomic.Int32{}
	m := New(Options{
		Interval: 5 * time.Millisecond,
		Sample: func() (Sample, error) {
			calls.Add(1)
			return Sample{}, assert.AnError
		},
	})
	m.Start()
	defer m.Stop()

	waitFor(t, func() bool { return calls.Load() >= 3 }, "sampler stopped running")
	assert.False(t, m.Throttled())
}

func TestStopIdempotent(t *testing.T) {
	m := New(Options{Sample: func() (Sample, error) { return Sample{}, nil }})
	m.Start()

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked")
	}
}

func TestStopWithoutStart(t *testing.T) {
	m := New(Options{})
	m.Stop() // must not panic or block
}

func TestSampleLocal(t *testing.T) {
	s, err := sampleLocal()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.CPUPercent, 0.0)
	assert.GreaterOrEqual(t, s.MemPercent, 0.0)
	assert.LessOrEqual(t, s.MemPercent, 100.0)
}
