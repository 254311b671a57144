package scheduler

import (
	"errors"
	"fmt"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// ErrNoVariant is returned when a task declares variants but none matches
// the target's tier, no fallback matches, and no default collector exists.
var ErrNoVariant = errors.New("no collector variant for tier")

// resolveCollector picks the collector implementation for a task given the
// target's performance tier. Resolution order is fixed: the exact tier
// entry, then the task's declared fallback tiers in order, then the default
// implementation. A task with no match is an explicit error, not a
// warn-and-continue.
func resolveCollector(task types.CollectorTask, tier types.PerformanceTier) (types.CollectorFunc, error) {
	if fn, ok := task.Variants[tier]; ok && fn != nil {
		return fn, nil
	}
	for _, fb := range task.Fallback {
		if fn, ok := task.Variants[fb]; ok && fn != nil {
			return fn, nil
		}
	}
	if task.Run != nil {
		return task.Run, nil
	}
	return nil, fmt.Errorf("%w: task %s, tier %s", ErrNoVariant, task.Name, tier)
}
