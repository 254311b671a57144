// Package monitor samples local resource pressure while audits run. When
// CPU load or memory usage crosses its threshold the monitor throttles the
// effective task concurrency; when pressure recedes it restores it. The
// monitor only ever reduces concurrency below the configured budget, never
// raises it above.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/logging"
)

// Defaults for the sampler.
const (
	DefaultInterval     = 2 * time.Second
	DefaultCPUThreshold = 85.0
	DefaultMemThreshold = 90.0
)

// Sample is one observation of local resource pressure, in percent.
type Sample struct {
	CPUPercent float64
	MemPercent float64
}

// SampleFunc produces a Sample. The default reads local load and memory;
// tests inject their own.
type SampleFunc func() (Sample, error)

// Options configures a Monitor.
type Options struct {
	// Interval between samples. Zero uses DefaultInterval.
	Interval time.Duration

	// CPUThreshold and MemThreshold are the usage percentages above
	// which the monitor throttles. Zero uses the defaults.
	CPUThreshold float64
	MemThreshold float64

	// Sample overrides the sampling function.
	Sample SampleFunc

	// OnThrottle and OnRecover are invoked on state transitions.
	OnThrottle func(s Sample)
	OnRecover  func(s Sample)
}

// Monitor is the background resource sampler.
type Monitor struct {
	opts      Options
	log       *logging.Logger
	throttled atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

// New creates a Monitor with defaults applied.
func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.CPUThreshold <= 0 {
		opts.CPUThreshold = DefaultCPUThreshold
	}
	if opts.MemThreshold <= 0 {
		opts.MemThreshold = DefaultMemThreshold
	}
	if opts.Sample == nil {
		opts.Sample = sampleLocal
	}
	return &Monitor{
		opts: opts,
		log:  logging.Get("monitor"),
		stop: make(chan struct{}),
	}
}

// Start launches the background sampler. Calling Start more than once is a
// no-op.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		go m.run()
	})
}

// Stop halts sampling. It is idempotent and returns without waiting for an
// in-flight sample to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

// Throttled reports whether the monitor currently throttles concurrency.
func (m *Monitor) Throttled() bool {
	return m.throttled.Load()
}

// EffectiveLimit maps a configured concurrency ceiling to the effective one
// under current pressure. The result never exceeds configured and never
// goes below 1.
func (m *Monitor) EffectiveLimit(configured int) int {
	if configured < 1 {
		return 1
	}
	if !m.throttled.Load() {
		return configured
	}
	limit := configured / 2
	if limit < 1 {
		limit = 1
	}
	return limit
}

// run is the sampling loop.
func (m *Monitor) run() {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.observe()
		}
	}
}

// observe takes one sample and updates the throttle state.
func (m *Monitor) observe() {
	s, err := m.opts.Sample()
	if err != nil {
		// A failed sample keeps the previous state; pressure signals
		// are advisory.
		m.log.Debug("resource sample failed", "error", err)
		return
	}

	over := s.CPUPercent > m.opts.CPUThreshold || s.MemPercent > m.opts.MemThreshold
	was := m.throttled.Swap(over)

	switch {
	case over && !was:
		m.log.Warn("resource pressure high, throttling",
			"cpu", s.CPUPercent, "mem", s.MemPercent)
		if m.opts.OnThrottle != nil {
			m.opts.OnThrottle(s)
		}
	case !over && was:
		m.log.Info("resource pressure recovered",
			"cpu", s.CPUPercent, "mem", s.MemPercent)
		if m.opts.OnRecover != nil {
			m.opts.OnRecover(s)
		}
	}
}
