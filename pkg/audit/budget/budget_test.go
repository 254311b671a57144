package budget

import (
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

func TestComputeConstrainedHost(t *testing.T) {
	// 2 cores, 1GB RAM, 5% disk free: everything pushes down, floor holds.
	profile := &types.CapabilityProfile{
		LogicalCores:    2,
		TotalRAM:        1 * types.GiB,
		AvailableRAM:    512 * types.MiB,
		DiskFreePercent: 5,
	}

	b := Compute(profile, Limits{}, false)

	if b.SafeParallelJobs != 1 {
		t.Errorf("SafeParallelJobs = %d, want 1", b.SafeParallelJobs)
	}
	if b.Tier != types.TierLow {
		t.Errorf("Tier = %s, want %s", b.Tier, types.TierLow)
	}
	for _, want := range []string{"Low CPU cores (2)", "Low RAM", "Low disk space (5% free)"} {
		if !containsConstraint(b.Constraints, want) {
			t.Errorf("Constraints = %v, missing %q", b.Constraints, want)
		}
	}
}

func TestComputeFastLocalHost(t *testing.T) {
	// 16 cores, 32GB RAM, 60% disk free, local: capped at 8, VeryHigh.
	profile := &types.CapabilityProfile{
		LogicalCores:    16,
		TotalRAM:        32 * types.GiB,
		AvailableRAM:    24 * types.GiB,
		DiskFreePercent: 60,
	}

	b := Compute(profile, Limits{}, false)

	if b.SafeParallelJobs != 8 {
		t.Errorf("SafeParallelJobs = %d, want 8", b.SafeParallelJobs)
	}
	if b.Tier != types.TierVeryHigh {
		t.Errorf("Tier = %s, want %s", b.Tier, types.TierVeryHigh)
	}
	if len(b.Constraints) != 0 {
		t.Errorf("Constraints = %v, want none", b.Constraints)
	}
}

func TestComputeBaseJobs(t *testing.T) {
	tests := []struct {
		cores int
		want  int
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{6, 4},
		{8, 4},
		{12, 6},
		{16, 8},
		{64, 8},
	}

	for _, tt := range tests {
		profile := &types.CapabilityProfile{
			LogicalCores:    tt.cores,
			TotalRAM:        16 * types.GiB,
			AvailableRAM:    12 * types.GiB,
			DiskFreePercent: 50,
		}
		b := Compute(profile, Limits{}, false)
		if b.SafeParallelJobs != tt.want {
			t.Errorf("cores=%d: SafeParallelJobs = %d, want %d", tt.cores, b.SafeParallelJobs, tt.want)
		}
	}
}

func TestComputeAdjustmentsNeverUpward(t *testing.T) {
	healthy := &types.CapabilityProfile{
		LogicalCores:    8,
		TotalRAM:        16 * types.GiB,
		AvailableRAM:    12 * types.GiB,
		DiskFreePercent: 50,
	}
	loaded := *healthy
	loaded.SystemLoadPercent = 90
	loaded.DiskReadLatency = 80 * time.Millisecond

	base := Compute(healthy, Limits{}, false)
	reduced := Compute(&loaded, Limits{}, false)

	if reduced.SafeParallelJobs >= base.SafeParallelJobs {
		t.Errorf("loaded host jobs = %d, want < %d", reduced.SafeParallelJobs, base.SafeParallelJobs)
	}
	if reduced.SafeParallelJobs != base.SafeParallelJobs-2 {
		t.Errorf("jobs = %d, want %d (two single-step reductions)", reduced.SafeParallelJobs, base.SafeParallelJobs-2)
	}
}

func TestComputeHighRAMUsage(t *testing.T) {
	profile := &types.CapabilityProfile{
		LogicalCores:    8,
		TotalRAM:        16 * types.GiB,
		AvailableRAM:    1 * types.GiB, // ~94% used
		DiskFreePercent: 50,
	}

	b := Compute(profile, Limits{}, false)
	if b.SafeParallelJobs != 3 {
		t.Errorf("SafeParallelJobs = %d, want 3", b.SafeParallelJobs)
	}
	found := false
	for _, c := range b.Constraints {
		if strings.HasPrefix(c, "High RAM usage") {
			found = true
		}
	}
	if !found {
		t.Errorf("Constraints = %v, missing RAM usage constraint", b.Constraints)
	}
}

func TestComputeRemoteLatencyOverride(t *testing.T) {
	profile := &types.CapabilityProfile{
		LogicalCores:    16,
		TotalRAM:        32 * types.GiB,
		AvailableRAM:    24 * types.GiB,
		DiskFreePercent: 60,
		NetworkLatency:  250 * time.Millisecond,
	}

	remote := Compute(profile, Limits{}, true)
	if remote.SafeParallelJobs != 1 {
		t.Errorf("remote SafeParallelJobs = %d, want 1 (latency override)", remote.SafeParallelJobs)
	}

	// The same profile locally keeps the full budget: the penalty only
	// applies to remote targets.
	local := Compute(profile, Limits{}, false)
	if local.SafeParallelJobs != 8 {
		t.Errorf("local SafeParallelJobs = %d, want 8", local.SafeParallelJobs)
	}
}

func TestComputeRespectsCeiling(t *testing.T) {
	profile := &types.CapabilityProfile{
		LogicalCores:    16,
		TotalRAM:        32 * types.GiB,
		AvailableRAM:    24 * types.GiB,
		DiskFreePercent: 60,
	}

	b := Compute(profile, Limits{Ceiling: 4}, false)
	if b.SafeParallelJobs != 4 {
		t.Errorf("SafeParallelJobs = %d, want 4 (ceiling)", b.SafeParallelJobs)
	}
}

func TestComputeBoundsHoldForArbitraryProfiles(t *testing.T) {
	// Degenerate profiles (all zero, absurd values) still land in bounds.
	profiles := []*types.CapabilityProfile{
		{},
		{LogicalCores: -1},
		{LogicalCores: 1024, TotalRAM: 1, AvailableRAM: 0, DiskFreePercent: 0.1,
			DiskReadLatency: time.Second, SystemLoadPercent: 100},
	}

	for i, p := range profiles {
		for _, remote := range []bool{false, true} {
			b := Compute(p, Limits{}, remote)
			if b.SafeParallelJobs < 1 || b.SafeParallelJobs > DefaultCeiling {
				t.Errorf("profile %d remote=%v: jobs = %d, want in [1,%d]",
					i, remote, b.SafeParallelJobs, DefaultCeiling)
			}
			if b.JobTimeout <= 0 || b.OverallTimeout <= 0 {
				t.Errorf("profile %d: zero timeout in budget %+v", i, b)
			}
		}
	}
}

func TestConservative(t *testing.T) {
	b := Conservative("profiling failed: unreachable")

	if b.SafeParallelJobs != 1 {
		t.Errorf("SafeParallelJobs = %d, want 1", b.SafeParallelJobs)
	}
	if b.Tier != types.TierLow {
		t.Errorf("Tier = %s, want %s", b.Tier, types.TierLow)
	}
	if b.JobTimeout != 5*time.Minute {
		t.Errorf("JobTimeout = %s, want 5m", b.JobTimeout)
	}
	if !containsConstraint(b.Constraints, "profiling failed: unreachable") {
		t.Errorf("Constraints = %v, missing reason", b.Constraints)
	}
}

func TestTimeoutsTightenWithTier(t *testing.T) {
	prev := time.Duration(0)
	for _, tier := range []types.PerformanceTier{types.TierVeryHigh, types.TierHigh, types.TierMedium, types.TierLow} {
		tt := tierTimeouts[tier]
		if tt.job <= prev {
			t.Errorf("tier %s job timeout %s not looser than faster tier (%s)", tier, tt.job, prev)
		}
		prev = tt.job
	}
}

func containsConstraint(constraints []string, want string) bool {
	for _, c := range constraints {
		if c == want {
			return true
		}
	}
	return false
}
