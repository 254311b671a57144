package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// ErrNoCheckpoint is returned by LoadCheckpoint when no checkpoint file
// exists at the given path.
var ErrNoCheckpoint = errors.New("no checkpoint file")

// BatchSummary records the counters of one completed batch for resume.
type BatchSummary struct {
	Index   int           `json:"index"`
	Hosts   int           `json:"hosts"`
	Summary types.Summary `json:"summary"`
}

// Checkpoint is the persisted progress marker of a batched run. It is only
// ever used for resume, never for replay or undo.
type Checkpoint struct {
	RunID string `json:"run_id"`

	// LastCompletedBatch is the highest batch index such that every
	// batch at or below it has completed. -1 means none.
	LastCompletedBatch int `json:"last_completed_batch_index"`

	// Batches holds per-batch summaries up to LastCompletedBatch.
	Batches []BatchSummary `json:"per_batch_summaries"`

	WrittenAt time.Time `json:"written_at"`
}

// LoadCheckpoint reads a checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return &cp, nil
}

// write persists the checkpoint atomically using a temp file and rename, so
// an interrupted write never leaves a truncated checkpoint behind.
func (c *Checkpoint) write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming checkpoint: %w", err)
	}
	return nil
}
