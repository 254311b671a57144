// Package batch splits a fleet's target list into ordered batches, executes
// them with a bounded pipeline of overlapping batches, and persists
// resumable checkpoints. Aggregation is commutative: the final counters are
// identical for any batch size or pipeline depth.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/logging"
	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// Option bounds from the external configuration contract.
const (
	MinBatchSize = 1
	MaxBatchSize = 100

	MinPipelineDepth = 1
	MaxPipelineDepth = 5

	MinCheckpointInterval = 1
	MaxCheckpointInterval = 50
)

// BatchStatus is the lifecycle state of one batch.
type BatchStatus string

// Batch lifecycle states.
const (
	BatchPending   BatchStatus = "Pending"
	BatchRunning   BatchStatus = "Running"
	BatchCompleted BatchStatus = "Completed"
	BatchFailed    BatchStatus = "Failed"
)

// Batch is an ordered subset of targets processed and checkpointed
// together.
type Batch struct {
	Index   int
	Targets []types.Target
	Status  BatchStatus
}

// Executor runs the full collection pipeline for one target. Per-task
// failures are captured inside the TargetResult; Execute itself never
// fails.
type Executor interface {
	ExecuteTarget(ctx context.Context, target types.Target) *types.TargetResult
}

// Options configures a Runner.
type Options struct {
	// BatchSize is the number of targets per batch (1-100).
	BatchSize int

	// PipelineDepth is the number of batches allowed in flight at once
	// (1-5).
	PipelineDepth int

	// CheckpointInterval is how many completed batches between
	// checkpoint writes (1-50).
	CheckpointInterval int

	// CheckpointPath is where progress is persisted. Empty disables
	// checkpointing (and resume).
	CheckpointPath string

	// RunID identifies the run in checkpoints and logs.
	RunID string

	// Clock is replaceable for tests. Nil uses time.Now.
	Clock func() time.Time
}

// Validate checks the options against the configuration contract.
// Violations are fatal: a run never starts with an invalid configuration.
func (o *Options) Validate() error {
	if o.BatchSize < MinBatchSize || o.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch size %d out of range [%d,%d]", o.BatchSize, MinBatchSize, MaxBatchSize)
	}
	if o.PipelineDepth < MinPipelineDepth || o.PipelineDepth > MaxPipelineDepth {
		return fmt.Errorf("pipeline depth %d out of range [%d,%d]", o.PipelineDepth, MinPipelineDepth, MaxPipelineDepth)
	}
	if o.CheckpointInterval < MinCheckpointInterval || o.CheckpointInterval > MaxCheckpointInterval {
		return fmt.Errorf("checkpoint interval %d out of range [%d,%d]", o.CheckpointInterval, MinCheckpointInterval, MaxCheckpointInterval)
	}
	return nil
}

// Runner executes batches of targets through an Executor.
type Runner struct {
	opts     Options
	executor Executor
	log      *logging.Logger

	mu         sync.Mutex
	aggregate  *types.AggregatedResult
	summaries  map[int]BatchSummary
	done       map[int]bool
	frontier   int // highest index with all batches <= it completed
	checkpoint int // highest frontier already persisted
}

// NewRunner creates a Runner. Invalid options are a fatal configuration
// error.
func NewRunner(executor Executor, opts Options) (*Runner, error) {
	if executor == nil {
		return nil, errors.New("batch: nil executor")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("batch configuration: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Runner{
		opts:     opts,
		executor: executor,
		log:      logging.Get("batch"),
	}, nil
}

// Split divides targets into ordered batches of the configured size.
func (r *Runner) Split(targets []types.Target) []*Batch {
	var batches []*Batch
	for start := 0; start < len(targets); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(targets))
		batches = append(batches, &Batch{
			Index:   len(batches),
			Targets: targets[start:end],
			Status:  BatchPending,
		})
	}
	return batches
}

// Run executes all batches and returns the aggregated result. An empty or
// nil target list is a fatal error. When a checkpoint exists for this
// configuration, batches at or before the checkpointed index are skipped
// and their counters seeded from the stored summaries, so resumed runs
// produce the same totals as uninterrupted ones.
func (r *Runner) Run(ctx context.Context, targets []types.Target) (*types.AggregatedResult, error) {
	if len(targets) == 0 {
		return nil, errors.New("batch: target list is empty")
	}

	start := r.opts.Clock()
	r.mu.Lock()
	r.aggregate = &types.AggregatedResult{
		RunID:   r.opts.RunID,
		Targets: make(map[string]*types.TargetResult),
	}
	r.summaries = make(map[int]BatchSummary)
	r.done = make(map[int]bool)
	r.frontier = -1
	r.checkpoint = -1
	r.mu.Unlock()

	skipTo := r.loadResumePoint()
	batches := r.Split(targets)

	r.log.Info("starting batched run",
		"run_id", r.opts.RunID,
		"targets", len(targets),
		"batches", len(batches),
		"batch_size", r.opts.BatchSize,
		"pipeline_depth", r.opts.PipelineDepth,
		"resume_after", skipTo)

	sem := make(chan struct{}, r.opts.PipelineDepth)
	var wg sync.WaitGroup

	for _, b := range batches {
		if b.Index <= skipTo {
			// Already accounted for by the checkpoint.
			b.Status = BatchCompleted
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, fmt.Errorf("batch run aborted: %w", ctx.Err())
		}

		wg.Add(1)
		go func(b *Batch) {
			defer wg.Done()
			defer func() { <-sem }()
			r.runBatch(ctx, b)
		}(b)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch run aborted: %w", err)
	}

	// Final checkpoint so a re-run of a finished fleet resumes to
	// completion immediately.
	r.mu.Lock()
	r.persistCheckpointLocked(true)
	result := r.aggregate
	result.Resumed = skipTo >= 0
	result.Duration = r.opts.Clock().Sub(start)
	r.mu.Unlock()

	r.log.Info("batched run complete",
		"run_id", r.opts.RunID,
		"targets", result.Summary.Targets,
		"failed_targets", result.Summary.TargetsFailed,
		"duration", result.Duration)

	return result, nil
}

// loadResumePoint reads the checkpoint, seeds the aggregate from its
// per-batch summaries, and returns the last completed batch index (-1 when
// starting fresh).
func (r *Runner) loadResumePoint() int {
	if r.opts.CheckpointPath == "" {
		return -1
	}

	cp, err := LoadCheckpoint(r.opts.CheckpointPath)
	if errors.Is(err, ErrNoCheckpoint) {
		return -1
	}
	if err != nil {
		r.log.Warn("checkpoint unreadable, starting fresh", "error", err)
		return -1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bs := range cp.Batches {
		if bs.Index <= cp.LastCompletedBatch {
			r.summaries[bs.Index] = bs
			r.done[bs.Index] = true
			r.aggregate.Summary.Merge(bs.Summary)
		}
	}
	r.frontier = cp.LastCompletedBatch
	r.checkpoint = cp.LastCompletedBatch

	r.log.Info("resuming from checkpoint",
		"last_completed_batch", cp.LastCompletedBatch,
		"written_at", cp.WrittenAt)
	return cp.LastCompletedBatch
}

// runBatch executes one batch's targets and records its completion.
func (r *Runner) runBatch(ctx context.Context, b *Batch) {
	b.Status = BatchRunning
	r.log.Debug("batch started", "batch", b.Index, "targets", len(b.Targets))

	var batchSummary types.Summary
	for i := range b.Targets {
		if ctx.Err() != nil {
			b.Status = BatchFailed
			return
		}

		tr := r.executor.ExecuteTarget(ctx, b.Targets[i])
		batchSummary.Add(tr)

		r.mu.Lock()
		r.aggregate.Targets[tr.Host] = tr
		r.aggregate.Summary.Add(tr)
		r.mu.Unlock()
	}
	b.Status = BatchCompleted

	r.mu.Lock()
	defer r.mu.Unlock()

	r.summaries[b.Index] = BatchSummary{
		Index:   b.Index,
		Hosts:   len(b.Targets),
		Summary: batchSummary,
	}
	r.done[b.Index] = true

	// Advance the contiguous-completion frontier; checkpoints only ever
	// cover a prefix of the batch sequence.
	advanced := 0
	for r.done[r.frontier+1] {
		r.frontier++
		advanced++
	}
	if advanced > 0 && r.frontier-r.checkpoint >= r.opts.CheckpointInterval {
		r.persistCheckpointLocked(false)
	}

	r.log.Debug("batch completed", "batch", b.Index, "frontier", r.frontier)
}

// persistCheckpointLocked writes a checkpoint for the current frontier.
// Caller holds r.mu, which keeps checkpoint writes strictly sequential.
// A write failure degrades resumability but never fails the run.
func (r *Runner) persistCheckpointLocked(force bool) {
	if r.opts.CheckpointPath == "" {
		return
	}
	if !force && r.frontier <= r.checkpoint {
		return
	}

	cp := Checkpoint{
		RunID:              r.opts.RunID,
		LastCompletedBatch: r.frontier,
		WrittenAt:          r.opts.Clock(),
	}
	for i := 0; i <= r.frontier; i++ {
		if bs, ok := r.summaries[i]; ok {
			cp.Batches = append(cp.Batches, bs)
		}
	}

	if err := cp.write(r.opts.CheckpointPath); err != nil {
		r.log.Warn("checkpoint write failed, resumability degraded", "error", err)
		return
	}
	r.checkpoint = r.frontier
	r.log.Debug("checkpoint written", "last_completed_batch", r.frontier)
}
