package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
// It produces a visually appealing output suitable for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *types.AggregatedResult) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))

	warnings := collectWarnings(r)
	if len(warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(warnings))
	}
	return nil
}

// formatHeader builds the header box with run metadata.
func (f *PrettyFormatter) formatHeader(r *types.AggregatedResult) string {
	var lines []string

	runLabel := LabelStyle.Render("Run:")
	runValue := ValueStyle.Render(r.RunID)
	lines = append(lines, fmt.Sprintf("%s %s", runLabel, runValue))

	infoParts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Targets:"),
			ValueStyle.Render(fmt.Sprintf("%d in %s", r.Summary.Targets, r.Duration.Round(timeRounding)))),
	}
	if r.Resumed {
		infoParts = append(infoParts, WarningStyle.Render("resumed from checkpoint"))
	}
	lines = append(lines, strings.Join(infoParts, "  "))

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// formatTable builds the per-target table.
func (f *PrettyFormatter) formatTable(r *types.AggregatedResult) string {
	if len(r.Targets) == 0 {
		return MutedStyle.Render("  No targets audited\n")
	}

	var sb strings.Builder

	hostHeader := TableHeaderStyle.Render("HOST")
	tierHeader := TableHeaderStyle.Render("TIER")
	tasksHeader := TableHeaderStyle.Render("TASKS")
	statusHeader := TableHeaderStyle.Render("STATUS")
	sb.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n", hostHeader, tierHeader, tasksHeader, statusHeader))

	hostWidth := 4
	for host := range r.Targets {
		if len(host) > hostWidth {
			hostWidth = len(host)
		}
	}

	for _, host := range sortedHosts(r) {
		tr := r.Targets[host]
		var s types.Summary
		s.Add(tr)

		tier := "-"
		if tr.Budget != nil {
			tier = string(tr.Budget.Tier)
		}

		tasks := fmt.Sprintf("%d ok", s.TasksOK)
		if s.TasksFailed+s.TasksTimeout+s.TasksSkip > 0 {
			tasks = fmt.Sprintf("%d ok / %d failed / %d timeout / %d skipped",
				s.TasksOK, s.TasksFailed, s.TasksTimeout, s.TasksSkip)
		}

		status := SuccessStyle.Render("ok")
		if tr.Failed() {
			status = ErrorStyle.Render("failed")
		}

		sb.WriteString(fmt.Sprintf("  %-*s  %-8s  %s  %s\n",
			hostWidth, host, tier, tasks, status))
	}

	return sb.String()
}

// formatFooter builds the footer box with fleet-wide counters.
func (f *PrettyFormatter) formatFooter(r *types.AggregatedResult) string {
	s := r.Summary

	targetPart := fmt.Sprintf("%s %s",
		LabelStyle.Render("Targets:"),
		ValueStyle.Render(fmt.Sprintf("%d", s.Targets)))
	okPart := SuccessStyle.Render(fmt.Sprintf("%d ok", s.TargetsOK))
	failPart := MutedStyle.Render(fmt.Sprintf("%d failed", s.TargetsFailed))
	if s.TargetsFailed > 0 {
		failPart = ErrorStyle.Render(fmt.Sprintf("%d failed", s.TargetsFailed))
	}

	taskPart := fmt.Sprintf("%s %s",
		LabelStyle.Render("Tasks:"),
		ValueStyle.Render(fmt.Sprintf("%d (avg %s)", s.Tasks, s.AverageTaskTime().Round(timeRounding))))

	content := strings.Join([]string{targetPart, okPart, failPart, taskPart}, "  ")
	return FooterBox.Render(content)
}

// formatWarnings renders profile warnings grouped under a title.
func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  • " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

// collectWarnings gathers profile warnings across targets, prefixed by host.
func collectWarnings(r *types.AggregatedResult) []string {
	var warnings []string
	for _, host := range sortedHosts(r) {
		for _, warning := range r.Targets[host].ProfileWarnings {
			warnings = append(warnings, host+": "+warning)
		}
	}
	return warnings
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
