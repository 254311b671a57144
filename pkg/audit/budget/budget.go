// Package budget derives execution budgets from capability profiles.
// The calculation is a pure function: the same profile and limits always
// produce the same budget. Budgets are heuristic safety rails against
// overloading slow or constrained hosts, not throughput targets.
package budget

import (
	"fmt"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// Resource thresholds that trigger budget reductions.
const (
	lowRAMBytes        = 2 * types.GiB
	highRAMUsagePct    = 80.0
	lowDiskFreePct     = 10.0
	slowDiskRead       = 50 * time.Millisecond
	highSystemLoadPct  = 60.0
	highNetworkLatency = 100 * time.Millisecond
)

// DefaultCeiling is the hard upper bound on parallel jobs per target when no
// override is configured.
const DefaultCeiling = 8

// Limits carries the externally configured bounds applied on top of the
// profile-derived calculation.
type Limits struct {
	// Ceiling is the hard maximum for SafeParallelJobs. Values below 1
	// fall back to DefaultCeiling.
	Ceiling int
}

// ceiling returns the effective hard cap.
func (l Limits) ceiling() int {
	if l.Ceiling < 1 {
		return DefaultCeiling
	}
	return l.Ceiling
}

// tierTimeouts is the fixed per-tier timeout table. Higher tiers get
// tighter timeouts because collection is expected to complete faster there.
var tierTimeouts = map[types.PerformanceTier]struct {
	job     time.Duration
	overall time.Duration
}{
	types.TierLow:      {5 * time.Minute, 60 * time.Minute},
	types.TierMedium:   {3 * time.Minute, 40 * time.Minute},
	types.TierHigh:     {2 * time.Minute, 30 * time.Minute},
	types.TierVeryHigh: {1 * time.Minute, 20 * time.Minute},
}

// Compute maps a capability profile to an execution budget. Adjustments are
// strictly downward from the CPU-derived base; the result is always between
// 1 and the configured ceiling.
func Compute(profile *types.CapabilityProfile, limits Limits, remote bool) types.ExecutionBudget {
	jobs := baseJobs(profile.LogicalCores)

	var constraints []string
	if profile.LogicalCores <= 2 {
		constraints = append(constraints, fmt.Sprintf("Low CPU cores (%d)", profile.LogicalCores))
	}

	if profile.TotalRAM > 0 && profile.TotalRAM < lowRAMBytes {
		jobs--
		constraints = append(constraints, "Low RAM")
	} else if ramUsage := ramUsagePercent(profile); ramUsage > highRAMUsagePct {
		jobs--
		constraints = append(constraints, fmt.Sprintf("High RAM usage (%.0f%%)", ramUsage))
	}

	if profile.DiskFreePercent > 0 && profile.DiskFreePercent < lowDiskFreePct {
		jobs--
		constraints = append(constraints, fmt.Sprintf("Low disk space (%.0f%% free)", profile.DiskFreePercent))
	}

	if profile.DiskReadLatency > slowDiskRead {
		jobs--
		constraints = append(constraints, fmt.Sprintf("Slow disk (read latency %s)", profile.DiskReadLatency.Round(time.Millisecond)))
	}

	if profile.SystemLoadPercent > highSystemLoadPct {
		jobs--
		constraints = append(constraints, fmt.Sprintf("High system load (%.0f%%)", profile.SystemLoadPercent))
	}

	// High network latency on a remote target overrides everything:
	// exactly one job, regardless of the arithmetic above.
	if remote && profile.NetworkLatency > highNetworkLatency {
		jobs = 1
		constraints = append(constraints, fmt.Sprintf("High network latency (%s)", profile.NetworkLatency.Round(time.Millisecond)))
	}

	if jobs < 1 {
		jobs = 1
	}
	if ceil := limits.ceiling(); jobs > ceil {
		jobs = ceil
	}

	tier := tierFor(jobs)
	timeouts := tierTimeouts[tier]

	return types.ExecutionBudget{
		SafeParallelJobs: jobs,
		JobTimeout:       timeouts.job,
		OverallTimeout:   timeouts.overall,
		Tier:             tier,
		Constraints:      constraints,
	}
}

// Conservative returns the fixed fallback budget used when profiling fails:
// one job at a time with the Low-tier timeouts.
func Conservative(reason string) types.ExecutionBudget {
	timeouts := tierTimeouts[types.TierLow]
	return types.ExecutionBudget{
		SafeParallelJobs: 1,
		JobTimeout:       timeouts.job,
		OverallTimeout:   timeouts.overall,
		Tier:             types.TierLow,
		Constraints:      []string{reason},
	}
}

// baseJobs maps logical core count to the starting job count.
func baseJobs(cores int) int {
	switch {
	case cores <= 2:
		return 1
	case cores <= 4:
		return 2
	case cores <= 8:
		return 4
	default:
		return min(cores/2, DefaultCeiling)
	}
}

// tierFor maps a final job count to its performance tier.
func tierFor(jobs int) types.PerformanceTier {
	switch {
	case jobs <= 1:
		return types.TierLow
	case jobs == 2:
		return types.TierMedium
	case jobs <= 4:
		return types.TierHigh
	default:
		return types.TierVeryHigh
	}
}

// ramUsagePercent returns the profile's RAM usage percentage, or 0 when the
// profile lacks memory measurements.
func ramUsagePercent(p *types.CapabilityProfile) float64 {
	if p.TotalRAM <= 0 || p.AvailableRAM < 0 {
		return 0
	}
	used := p.TotalRAM - p.AvailableRAM
	return float64(used) / float64(p.TotalRAM) * 100
}
