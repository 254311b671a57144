// Package profiler measures a target's capability profile: CPU, memory,
// disk, and network headroom. Sub-measurements are independent and tolerant
// of partial failure; a profile with failed measurements carries warnings
// and zero values rather than being withheld. Successful profiles are
// written to the injected TTL cache.
package profiler

import (
	"context"
	"errors"
	"time"
)

// ErrUnreachable indicates the target did not answer the network probe.
// Callers fall back to a conservative execution budget instead of aborting.
var ErrUnreachable = errors.New("target unreachable")

// CPUInfo holds CPU measurements.
type CPUInfo struct {
	Logical  int
	Physical int
	SpeedMHz int
}

// MemoryInfo holds RAM measurements in bytes.
type MemoryInfo struct {
	Total     int64
	Available int64
}

// DiskInfo holds disk measurements.
type DiskInfo struct {
	ReadLatency  time.Duration
	WriteLatency time.Duration
	FreePercent  float64
}

// NetworkInfo holds reachability measurements.
type NetworkInfo struct {
	Reachable bool
	Latency   time.Duration
}

// Prober performs the individual capability measurements against a host.
// The orchestrator ships a local prober; remote probing over a management
// protocol is a collaborator implementation of this interface.
//
// credRef is the opaque credential reference from the target list. Probers
// must never log it.
type Prober interface {
	CPU(ctx context.Context, host, credRef string) (CPUInfo, error)
	Memory(ctx context.Context, host, credRef string) (MemoryInfo, error)
	Disk(ctx context.Context, host, credRef string) (DiskInfo, error)
	Load(ctx context.Context, host, credRef string) (float64, error)
	Network(ctx context.Context, host, credRef string) (NetworkInfo, error)
}
