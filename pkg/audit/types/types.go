// Package types provides core data types for the fleetaudit orchestrator.
// It includes the target, capability-profile, budget, and result structures
// shared by the profiler, scheduler, batch runner, and result sink, along
// with helpers for formatting sizes and durations in reports.
package types

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
)

// Target identifies a single host being audited.
type Target struct {
	// Host is the host identifier (name or address) as given in the
	// target list.
	Host string `json:"host"`

	// CredentialRef is an opaque reference to credentials owned by the
	// caller. It is never inspected and never logged in cleartext.
	CredentialRef string `json:"-"`

	// Remote indicates the target is reached over the network rather
	// than being the local host. Remote targets are subject to the
	// network-latency budget penalty.
	Remote bool `json:"remote"`

	// Profile is the cached or freshly measured capability profile.
	// Nil until profiling has run for this audit.
	Profile *CapabilityProfile `json:"profile,omitempty"`

	// Budget is the execution budget resolved from the profile.
	Budget *ExecutionBudget `json:"budget,omitempty"`
}

// PerformanceTier classifies a target's expected collection throughput.
type PerformanceTier string

// Performance tiers from slowest to fastest.
const (
	TierLow      PerformanceTier = "Low"
	TierMedium   PerformanceTier = "Medium"
	TierHigh     PerformanceTier = "High"
	TierVeryHigh PerformanceTier = "VeryHigh"
)

// CapabilityProfile contains measured resource characteristics of a target.
// A profile is immutable once computed; it is persisted to the TTL cache
// keyed by target host and invalidated by age or explicit refresh.
type CapabilityProfile struct {
	// Host is the target this profile was measured on.
	Host string `json:"host"`

	// LogicalCores is the number of logical CPU cores.
	LogicalCores int `json:"logical_cores"`

	// PhysicalCores is the number of physical CPU cores (0 if unknown).
	PhysicalCores int `json:"physical_cores"`

	// CPUSpeedMHz is the nominal CPU speed in MHz (0 if unknown).
	CPUSpeedMHz int `json:"cpu_speed_mhz"`

	// TotalRAM is total physical RAM in bytes.
	TotalRAM int64 `json:"total_ram"`

	// AvailableRAM is available RAM in bytes.
	AvailableRAM int64 `json:"available_ram"`

	// DiskReadLatency is the measured disk read latency.
	DiskReadLatency time.Duration `json:"disk_read_latency"`

	// DiskWriteLatency is the measured disk write latency.
	DiskWriteLatency time.Duration `json:"disk_write_latency"`

	// DiskFreePercent is the free-space percentage on the probed volume.
	DiskFreePercent float64 `json:"disk_free_percent"`

	// SystemLoadPercent is the system load at profiling time, as a
	// percentage of available cores (0 if unknown).
	SystemLoadPercent float64 `json:"system_load_percent"`

	// Reachable reports whether the target answered the network probe.
	// Always true for local targets.
	Reachable bool `json:"reachable"`

	// NetworkLatency is the measured round-trip latency for remote
	// targets (0 for local targets).
	NetworkLatency time.Duration `json:"network_latency"`

	// Warnings lists sub-measurements that failed. A profile with
	// warnings is still usable; failed fields hold zero values.
	Warnings []string `json:"warnings,omitempty"`

	// ProfiledAt is when this profile was measured.
	ProfiledAt time.Time `json:"profiled_at"`
}

// ExecutionBudget holds the concurrency and timeout parameters derived from
// a capability profile. Budgets are heuristic: they exist to avoid
// overloading slow or constrained hosts, not to maximize throughput.
type ExecutionBudget struct {
	// SafeParallelJobs is the number of collection tasks that may run
	// concurrently against the target. Always >= 1.
	SafeParallelJobs int `json:"safe_parallel_jobs"`

	// JobTimeout bounds a single task execution.
	JobTimeout time.Duration `json:"job_timeout"`

	// OverallTimeout bounds the whole task list for one target.
	OverallTimeout time.Duration `json:"overall_timeout"`

	// Tier is the performance tier the job count maps to.
	Tier PerformanceTier `json:"tier"`

	// Constraints lists human-readable reasons the budget was reduced.
	Constraints []string `json:"constraints,omitempty"`
}

// JobStatus is the terminal status of one accepted task execution.
type JobStatus string

// Job statuses.
const (
	StatusSuccess JobStatus = "Success"
	StatusFailed  JobStatus = "Failed"
	StatusSkipped JobStatus = "Skipped"
	StatusTimeout JobStatus = "Timeout"
	StatusDryRun  JobStatus = "DryRun"
)

// JobResult records the outcome of one (target, task) execution. Exactly
// one JobResult is externalized per accepted execution; retry attempts are
// folded into it, never reported individually.
type JobResult struct {
	// Task is the collector task name.
	Task string `json:"task"`

	// Host is the target the task ran against.
	Host string `json:"host"`

	// Status is the terminal status of the execution.
	Status JobStatus `json:"status"`

	// Data is the opaque payload returned by the collector. The
	// orchestrator never inspects collected content.
	Data any `json:"data,omitempty"`

	// Errors holds error messages for failed executions.
	Errors []string `json:"errors,omitempty"`

	// Warnings holds non-fatal messages from the collector.
	Warnings []string `json:"warnings,omitempty"`

	// Elapsed is the execution wall time.
	Elapsed time.Duration `json:"elapsed"`

	// StartedAt and EndedAt bound the execution.
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Succeeded reports whether the result counts as a success. DryRun results
// count as successes for aggregation purposes.
func (r *JobResult) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusDryRun
}

// TargetResult groups the results of all tasks run against one target.
type TargetResult struct {
	Host    string      `json:"host"`
	Results []JobResult `json:"results"`

	// Budget is the budget the target ran under, kept for reporting.
	Budget *ExecutionBudget `json:"budget,omitempty"`

	// ProfileWarnings carries profiling warnings into the report.
	ProfileWarnings []string `json:"profile_warnings,omitempty"`

	// Elapsed is the wall time for the whole target.
	Elapsed time.Duration `json:"elapsed"`
}

// Failed reports whether any task on the target failed or timed out.
func (tr *TargetResult) Failed() bool {
	for i := range tr.Results {
		s := tr.Results[i].Status
		if s == StatusFailed || s == StatusTimeout {
			return true
		}
	}
	return false
}

// Summary holds commutative counters for a set of target results. Counters
// are sums, so merging summaries in any order produces the same totals.
type Summary struct {
	Targets       int64 `json:"targets"`
	TargetsOK     int64 `json:"targets_ok"`
	TargetsFailed int64 `json:"targets_failed"`

	Tasks       int64 `json:"tasks"`
	TasksOK     int64 `json:"tasks_ok"`
	TasksFailed int64 `json:"tasks_failed"`
	TasksSkip   int64 `json:"tasks_skipped"`

	// TasksTimeout counts deadline-expired tasks.
	TasksTimeout int64 `json:"tasks_timeout"`

	// TotalTaskTime is the summed task wall time, for averaging.
	TotalTaskTime time.Duration `json:"total_task_time"`
}

// Add merges one target result into the summary.
func (s *Summary) Add(tr *TargetResult) {
	s.Targets++
	if tr.Failed() {
		s.TargetsFailed++
	} else {
		s.TargetsOK++
	}
	for i := range tr.Results {
		r := &tr.Results[i]
		s.Tasks++
		s.TotalTaskTime += r.Elapsed
		switch r.Status {
		case StatusSuccess, StatusDryRun:
			s.TasksOK++
		case StatusFailed:
			s.TasksFailed++
		case StatusSkipped:
			s.TasksSkip++
		case StatusTimeout:
			s.TasksTimeout++
		}
	}
}

// Merge folds another summary into this one.
func (s *Summary) Merge(o Summary) {
	s.Targets += o.Targets
	s.TargetsOK += o.TargetsOK
	s.TargetsFailed += o.TargetsFailed
	s.Tasks += o.Tasks
	s.TasksOK += o.TasksOK
	s.TasksFailed += o.TasksFailed
	s.TasksSkip += o.TasksSkip
	s.TasksTimeout += o.TasksTimeout
	s.TotalTaskTime += o.TotalTaskTime
}

// AverageTaskTime returns the mean task wall time, or zero when no tasks ran.
func (s *Summary) AverageTaskTime() time.Duration {
	if s.Tasks == 0 {
		return 0
	}
	return s.TotalTaskTime / time.Duration(s.Tasks)
}

// AggregatedResult is the final output of a batched fleet run.
type AggregatedResult struct {
	// RunID identifies the audit run.
	RunID string `json:"run_id"`

	// Targets holds per-target result collections, keyed by host.
	Targets map[string]*TargetResult `json:"targets"`

	// Summary holds the fleet-wide counters.
	Summary Summary `json:"summary"`

	// Resumed reports whether checkpointed batches were skipped.
	Resumed bool `json:"resumed"`

	// Duration is the total run wall time.
	Duration time.Duration `json:"duration"`
}

// FormatSize formats a byte count as a human-readable IEC string.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}
