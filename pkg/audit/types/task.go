package types

import (
	"context"
	"time"
)

// CapabilityHint is the subset of a profile passed to collectors so they can
// size their own work. Collectors must treat it as advisory.
type CapabilityHint struct {
	Tier         PerformanceTier `json:"tier"`
	LogicalCores int             `json:"logical_cores"`
	Remote       bool            `json:"remote"`
}

// TaskOutput is what a collector returns. Data is opaque to the
// orchestrator; it flows through to the result sink unmodified.
type TaskOutput struct {
	Data     any
	Warnings []string
}

// CollectorFunc is the execution contract for a collection task: a
// synchronous, potentially blocking call that queries the target and returns
// a result record. Implementations must honor ctx cancellation.
type CollectorFunc func(ctx context.Context, target Target, hint CapabilityHint) (*TaskOutput, error)

// CollectorTask describes one configured collection task. Tasks are defined
// by configuration and read-only during a run.
type CollectorTask struct {
	// Name identifies the task in results and logs.
	Name string

	// Run is the default collector implementation.
	Run CollectorFunc

	// Variants maps a performance tier to a tier-specific collector.
	// When the target's tier has no entry, Fallback order is consulted,
	// then Run. See scheduler.Registry.
	Variants map[PerformanceTier]CollectorFunc

	// Fallback is the declared tier fallback order for variant lookup.
	Fallback []PerformanceTier

	// Timeout overrides the budget's per-job timeout when positive.
	Timeout time.Duration

	// DependsOn lists task names that must succeed before this task
	// runs. An unmet dependency records the task as Skipped.
	DependsOn []string
}
