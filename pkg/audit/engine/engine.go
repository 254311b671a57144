// Package engine runs the full collection pipeline for one target: profile
// the host, derive an execution budget, schedule the collector tasks under
// that budget, and stream each result to the configured sink. The engine is
// the Executor the batch runner drives across the fleet.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/budget"
	"github.com/jamesainslie/fleetaudit/pkg/audit/logging"
	"github.com/jamesainslie/fleetaudit/pkg/audit/profiler"
	"github.com/jamesainslie/fleetaudit/pkg/audit/scheduler"
	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// Profiler measures a target's capabilities. *profiler.Profiler satisfies
// this; tests substitute fakes.
type Profiler interface {
	Profile(ctx context.Context, target types.Target) (*types.CapabilityProfile, error)
}

// ResultSink receives each job result as it completes. *stream.Writer
// satisfies this.
type ResultSink interface {
	AddResult(result *types.JobResult) error
}

// Options configures an Engine.
type Options struct {
	// Profiler measures target capabilities before scheduling.
	Profiler Profiler

	// Tasks is the collector task list run against every target.
	Tasks []types.CollectorTask

	// Limits bounds the computed budgets.
	Limits budget.Limits

	// Scheduler configures task execution (limiter, retry policy,
	// sequential and dry-run modes).
	Scheduler scheduler.Options

	// Sink receives results as they complete. Nil disables streaming.
	Sink ResultSink

	// Clock is replaceable for tests. Nil uses time.Now.
	Clock func() time.Time
}

// Validate checks that the options can drive a run.
func (o *Options) Validate() error {
	if o.Profiler == nil {
		return errors.New("engine: nil profiler")
	}
	if len(o.Tasks) == 0 {
		return errors.New("engine: no collector tasks")
	}
	return nil
}

// Engine executes the profile-budget-schedule pipeline for single targets.
type Engine struct {
	opts  Options
	sched *scheduler.Scheduler
	log   *logging.Logger
}

// New creates an Engine. Invalid options are a configuration error.
func New(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		opts:  opts,
		sched: scheduler.New(opts.Scheduler),
		log:   logging.Get("engine"),
	}, nil
}

// ExecuteTarget runs every configured task against one target. Profiling
// failures degrade to the conservative one-job budget rather than skipping
// the target; per-task failures are captured in the results and never
// escape.
func (e *Engine) ExecuteTarget(ctx context.Context, target types.Target) *types.TargetResult {
	start := e.opts.Clock()

	b, profileWarnings := e.resolveBudget(ctx, &target)
	target.Budget = &b

	e.log.Info("target scheduled",
		"host", target.Host,
		"tier", b.Tier,
		"parallel_jobs", b.SafeParallelJobs,
		"constraints", len(b.Constraints))

	results := e.sched.Run(ctx, target, b, e.opts.Tasks)

	if e.opts.Sink != nil {
		for i := range results {
			if err := e.opts.Sink.AddResult(&results[i]); err != nil {
				e.log.Warn("result not streamed",
					"host", target.Host,
					"task", results[i].Task,
					"error", err)
			}
		}
	}

	return &types.TargetResult{
		Host:            target.Host,
		Results:         results,
		Budget:          &b,
		ProfileWarnings: profileWarnings,
		Elapsed:         e.opts.Clock().Sub(start),
	}
}

// resolveBudget profiles the target and computes its budget, degrading to
// the conservative fallback when profiling fails entirely.
func (e *Engine) resolveBudget(ctx context.Context, target *types.Target) (types.ExecutionBudget, []string) {
	profile, err := e.opts.Profiler.Profile(ctx, *target)
	if err != nil {
		reason := fmt.Sprintf("profiling failed: %v", err)
		if errors.Is(err, profiler.ErrUnreachable) {
			reason = "target unreachable"
		}
		e.log.Warn("using conservative budget", "host", target.Host, "reason", reason)
		return budget.Conservative(reason), nil
	}

	target.Profile = profile
	return budget.Compute(profile, e.opts.Limits, target.Remote), profile.Warnings
}
