package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// PlainFormatter formats output as a simple tab-separated table.
// It produces plain text output suitable for scripting and piping.
// No colors or styling are applied.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *types.AggregatedResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := tw.Write([]byte("HOST\tTIER\tJOBS\tOK\tFAILED\tTIMEOUT\tSKIPPED\tELAPSED\n")); err != nil {
		return err
	}

	for _, host := range sortedHosts(r) {
		tr := r.Targets[host]
		var s types.Summary
		s.Add(tr)

		tier := types.PerformanceTier("-")
		jobs := 0
		if tr.Budget != nil {
			tier = tr.Budget.Tier
			jobs = tr.Budget.SafeParallelJobs
		}

		line := fmt.Sprintf("%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			host, tier, jobs,
			s.TasksOK, s.TasksFailed, s.TasksTimeout, s.TasksSkip,
			tr.Elapsed.Round(timeRounding))
		if _, err := tw.Write([]byte(line)); err != nil {
			return err
		}
	}

	summary := fmt.Sprintf("\ntargets: %d (%d ok, %d failed)  tasks: %d (%d ok, %d failed, %d timeout, %d skipped)  duration: %s\n",
		r.Summary.Targets, r.Summary.TargetsOK, r.Summary.TargetsFailed,
		r.Summary.Tasks, r.Summary.TasksOK, r.Summary.TasksFailed,
		r.Summary.TasksTimeout, r.Summary.TasksSkip,
		r.Duration.Round(timeRounding))
	if _, err := tw.Write([]byte(summary)); err != nil {
		return err
	}

	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
