// Package scheduler executes a target's collection tasks under its
// execution budget. It supports sequential mode (one task at a time in list
// order) and bounded-parallel mode (a semaphore-bounded worker pool), with
// dependency gating, per-task deadlines, and retry of transient failures.
// One target's failures never affect another target's execution.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/logging"
	"github.com/jamesainslie/fleetaudit/pkg/audit/retry"
	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// DefaultJobTimeout bounds a task when neither the task nor the budget
// specifies one.
const DefaultJobTimeout = 2 * time.Minute

// ConcurrencyLimiter adjusts the effective worker count under resource
// pressure. monitor.Monitor implements it.
type ConcurrencyLimiter interface {
	EffectiveLimit(configured int) int
}

// Options configures a Scheduler.
type Options struct {
	// Limiter caps effective concurrency below the budget under local
	// resource pressure. Nil means the budget is used as-is.
	Limiter ConcurrencyLimiter

	// Retry is applied around every task invocation.
	Retry retry.Policy

	// ForceSequential runs tasks one at a time regardless of budget.
	ForceSequential bool

	// DryRun records every runnable task as DryRun without invoking
	// its collector.
	DryRun bool

	// Clock is replaceable for tests. Nil uses time.Now.
	Clock func() time.Time
}

// Scheduler runs task lists against targets.
type Scheduler struct {
	opts Options
	log  *logging.Logger
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Scheduler{
		opts: opts,
		log:  logging.Get("scheduler"),
	}
}

// Run executes tasks against the target under the given budget and returns
// one JobResult per task. In sequential mode results follow list order; in
// parallel mode they follow completion order, and callers must rely only on
// counts, never on position.
func (s *Scheduler) Run(ctx context.Context, target types.Target, budget types.ExecutionBudget, tasks []types.CollectorTask) []types.JobResult {
	if len(tasks) == 0 {
		return nil
	}

	if budget.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget.OverallTimeout)
		defer cancel()
	}

	workers := budget.SafeParallelJobs
	if workers < 1 {
		workers = 1
	}
	if s.opts.Limiter != nil {
		workers = s.opts.Limiter.EffectiveLimit(workers)
	}

	run := &targetRun{
		scheduler: s,
		target:    target,
		budget:    budget,
		tasks:     tasks,
		status:    make(map[string]types.JobStatus, len(tasks)),
	}

	if workers <= 1 || s.opts.ForceSequential {
		run.sequential(ctx)
	} else {
		run.parallel(ctx, workers)
	}
	return run.results
}

// targetRun holds the mutable state for one target's execution.
type targetRun struct {
	scheduler *Scheduler
	target    types.Target
	budget    types.ExecutionBudget
	tasks     []types.CollectorTask

	mu      sync.Mutex
	status  map[string]types.JobStatus
	results []types.JobResult
}

// sequential runs tasks one at a time in list order.
func (r *targetRun) sequential(ctx context.Context) {
	for i := range r.tasks {
		task := &r.tasks[i]
		if ctx.Err() != nil {
			r.record(r.skipResult(task, "overall timeout exceeded"))
			continue
		}
		if unmet, reason := r.unmetDependency(task); unmet {
			if reason == "" {
				// In list-order execution a pending dependency
				// means it was declared after this task.
				reason = "dependency is declared later in the task list"
			}
			r.record(r.skipResult(task, reason))
			continue
		}
		r.record(r.scheduler.runTask(ctx, r.target, r.budget, *task))
	}
}

// parallel runs tasks in dependency-ready waves, each wave bounded by the
// worker semaphore. A wave's completion is joined before the next wave is
// evaluated, so dependency decisions always see terminal statuses.
func (r *targetRun) parallel(ctx context.Context, workers int) {
	pending := make(map[string]*types.CollectorTask, len(r.tasks))
	order := make([]string, 0, len(r.tasks))
	for i := range r.tasks {
		pending[r.tasks[i].Name] = &r.tasks[i]
		order = append(order, r.tasks[i].Name)
	}

	sem := make(chan struct{}, workers)

	for len(pending) > 0 {
		if ctx.Err() != nil {
			for _, name := range order {
				if task, ok := pending[name]; ok {
					r.record(r.skipResult(task, "overall timeout exceeded"))
					delete(pending, name)
				}
			}
			return
		}

		// Collect the wave of tasks whose dependencies are settled.
		var ready []*types.CollectorTask
		for _, name := range order {
			task, ok := pending[name]
			if !ok {
				continue
			}
			if unmet, reason := r.unmetDependency(task); unmet {
				if reason != "" {
					r.record(r.skipResult(task, reason))
					delete(pending, name)
				}
				// reason == "": dependency still pending, try
				// again next wave.
				continue
			}
			ready = append(ready, task)
			delete(pending, name)
		}

		if len(ready) == 0 {
			// Remaining tasks wait on each other: a dependency
			// cycle or a dependency that was never defined.
			for _, name := range order {
				if task, ok := pending[name]; ok {
					r.record(r.skipResult(task, "dependency never became runnable"))
					delete(pending, name)
				}
			}
			return
		}

		var wg sync.WaitGroup
		for _, task := range ready {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				r.record(r.skipResult(task, "overall timeout exceeded"))
				continue
			}

			wg.Add(1)
			go func(task types.CollectorTask) {
				defer wg.Done()
				defer func() { <-sem }()
				r.record(r.scheduler.runTask(ctx, r.target, r.budget, task))
			}(*task)
		}
		wg.Wait()
	}
}

// unmetDependency reports whether the task cannot run because of its
// dependencies. A non-empty reason means the dependency terminally failed;
// an empty reason with unmet=true means it is still pending (parallel mode
// retries it next wave).
func (r *targetRun) unmetDependency(task *types.CollectorTask) (unmet bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dep := range task.DependsOn {
		known := false
		for i := range r.tasks {
			if r.tasks[i].Name == dep {
				known = true
				break
			}
		}
		if !known {
			return true, fmt.Sprintf("dependency %q is not in the task list", dep)
		}

		status, done := r.status[dep]
		if !done {
			return true, "" // still pending
		}
		if status != types.StatusSuccess && status != types.StatusDryRun {
			return true, fmt.Sprintf("dependency %q ended as %s", dep, status)
		}
	}
	return false, ""
}

// record appends a result and publishes its status for dependency checks.
func (r *targetRun) record(result types.JobResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[result.Task] = result.Status
	r.results = append(r.results, result)
}

// skipResult builds a Skipped result for a task that never ran.
func (r *targetRun) skipResult(task *types.CollectorTask, reason string) types.JobResult {
	now := r.scheduler.opts.Clock()
	return types.JobResult{
		Task:      task.Name,
		Host:      r.target.Host,
		Status:    types.StatusSkipped,
		Warnings:  []string{reason},
		StartedAt: now,
		EndedAt:   now,
	}
}

// runTask executes one task with variant resolution, deadline, and retry.
func (s *Scheduler) runTask(ctx context.Context, target types.Target, budget types.ExecutionBudget, task types.CollectorTask) types.JobResult {
	start := s.opts.Clock()
	result := types.JobResult{
		Task:      task.Name,
		Host:      target.Host,
		StartedAt: start,
	}

	finish := func() types.JobResult {
		result.EndedAt = s.opts.Clock()
		result.Elapsed = result.EndedAt.Sub(result.StartedAt)
		return result
	}

	if s.opts.DryRun {
		result.Status = types.StatusDryRun
		return finish()
	}

	fn, err := resolveCollector(task, budget.Tier)
	if err != nil {
		result.Status = types.StatusFailed
		result.Errors = append(result.Errors, err.Error())
		return finish()
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = budget.JobTimeout
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hint := types.CapabilityHint{
		Tier:   budget.Tier,
		Remote: target.Remote,
	}
	if target.Profile != nil {
		hint.LogicalCores = target.Profile.LogicalCores
	}

	var output *types.TaskOutput
	err = s.opts.Retry.Execute(taskCtx, func() error {
		out, runErr := invoke(taskCtx, fn, target, hint)
		if runErr != nil {
			return runErr
		}
		output = out
		return nil
	})

	switch {
	case err == nil:
		result.Status = types.StatusSuccess
		if output != nil {
			result.Data = output.Data
			result.Warnings = append(result.Warnings, output.Warnings...)
		}
	case isDeadline(err, taskCtx):
		// The deadline cancels only this task; siblings keep running.
		result.Status = types.StatusTimeout
		result.Errors = append(result.Errors,
			fmt.Sprintf("task exceeded its %s deadline", timeout))
		s.log.Warn("task timed out", "host", target.Host, "task", task.Name, "timeout", timeout)
	default:
		class := retry.Classify(err)
		result.Status = types.StatusFailed
		result.Errors = append(result.Errors, err.Error(),
			fmt.Sprintf("category: %s; remediation: %s", class, class.Remediation()))
		s.log.Warn("task failed", "host", target.Host, "task", task.Name,
			"category", class.String(), "error", err)
	}

	return finish()
}

// invoke calls the collector in its own goroutine so a collector that
// ignores ctx cannot hold the worker past its deadline.
func invoke(ctx context.Context, fn types.CollectorFunc, target types.Target, hint types.CapabilityHint) (*types.TaskOutput, error) {
	type outcome struct {
		out *types.TaskOutput
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		out, err := fn(ctx, target, hint)
		ch <- outcome{out, err}
	}()

	select {
	case o := <-ch:
		return o.out, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// isDeadline reports whether err is the task deadline expiring.
func isDeadline(err error, ctx context.Context) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
}
