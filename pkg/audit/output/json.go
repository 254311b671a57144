package output

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// jsonOutput represents the full JSON output structure.
type jsonOutput struct {
	Targets []jsonTarget `json:"targets"`
	Summary jsonSummary  `json:"summary"`
	Meta    jsonMeta     `json:"meta"`
}

// jsonTarget represents one target in JSON output.
type jsonTarget struct {
	Host            string            `json:"host"`
	Tier            string            `json:"tier,omitempty"`
	ParallelJobs    int               `json:"parallel_jobs,omitempty"`
	Constraints     []string          `json:"constraints,omitempty"`
	ProfileWarnings []string          `json:"profile_warnings,omitempty"`
	Results         []types.JobResult `json:"results"`
	Elapsed         string            `json:"elapsed"`
	Failed          bool              `json:"failed"`
}

// jsonSummary represents the fleet-wide counters in JSON output.
type jsonSummary struct {
	Targets       int64  `json:"targets"`
	TargetsOK     int64  `json:"targets_ok"`
	TargetsFailed int64  `json:"targets_failed"`
	Tasks         int64  `json:"tasks"`
	TasksOK       int64  `json:"tasks_ok"`
	TasksFailed   int64  `json:"tasks_failed"`
	TasksSkipped  int64  `json:"tasks_skipped"`
	TasksTimeout  int64  `json:"tasks_timeout"`
	AvgTaskTime   string `json:"avg_task_time,omitempty"`
}

// jsonMeta represents run metadata in JSON output.
type jsonMeta struct {
	RunID    string `json:"run_id"`
	Resumed  bool   `json:"resumed"`
	Duration string `json:"duration"`
}

// JSONFormatter formats output as a single indented JSON object.
// It produces a complete JSON document with targets, summary, and meta
// sections.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *types.AggregatedResult) error {
	output := f.buildOutput(r)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// buildOutput converts AggregatedResult to the JSON output structure.
func (f *JSONFormatter) buildOutput(r *types.AggregatedResult) jsonOutput {
	targets := make([]jsonTarget, 0, len(r.Targets))
	for _, host := range sortedHosts(r) {
		tr := r.Targets[host]
		jt := jsonTarget{
			Host:            host,
			ProfileWarnings: tr.ProfileWarnings,
			Results:         tr.Results,
			Elapsed:         formatDurationString(tr.Elapsed),
			Failed:          tr.Failed(),
		}
		if tr.Budget != nil {
			jt.Tier = string(tr.Budget.Tier)
			jt.ParallelJobs = tr.Budget.SafeParallelJobs
			jt.Constraints = tr.Budget.Constraints
		}
		targets = append(targets, jt)
	}

	summary := jsonSummary{
		Targets:       r.Summary.Targets,
		TargetsOK:     r.Summary.TargetsOK,
		TargetsFailed: r.Summary.TargetsFailed,
		Tasks:         r.Summary.Tasks,
		TasksOK:       r.Summary.TasksOK,
		TasksFailed:   r.Summary.TasksFailed,
		TasksSkipped:  r.Summary.TasksSkip,
		TasksTimeout:  r.Summary.TasksTimeout,
		AvgTaskTime:   formatDurationString(r.Summary.AverageTaskTime()),
	}

	meta := jsonMeta{
		RunID:    r.RunID,
		Resumed:  r.Resumed,
		Duration: formatDurationString(r.Duration),
	}

	return jsonOutput{
		Targets: targets,
		Summary: summary,
		Meta:    meta,
	}
}

// formatDurationString formats a duration as a string for JSON output.
func formatDurationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
