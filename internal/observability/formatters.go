// Package observability provides formatted run output for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintRun outputs a summary of a run: status, progress, score and timing.
func (p *Printer) PrintRun(run *types.Run) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Project:  %s\n", run.ProjectID))
	sb.WriteString(fmt.Sprintf("Pipeline: %s\n", run.Pipeline))
	sb.WriteString(fmt.Sprintf("Status:   %s %s\n", statusIcon(run.Status), run.Status))

	done := min(run.CurrentStep, len(run.Steps))
	sb.WriteString(fmt.Sprintf("Progress: %d/%d steps", done, len(run.Steps)))
	if step := run.CurrentStepName(); step != "" && !run.Status.IsTerminal() {
		sb.WriteString(fmt.Sprintf(" (at %s)", step))
	}
	sb.WriteString("\n")

	if run.Metrics.ValidationScore != nil {
		sb.WriteString(fmt.Sprintf("Score:    %.2f\n", *run.Metrics.ValidationScore))
	}
	if run.Metrics.TotalDurationMs > 0 {
		d := time.Duration(run.Metrics.TotalDurationMs) * time.Millisecond
		sb.WriteString(fmt.Sprintf("Duration: %s\n", d.Round(time.Millisecond)))
	}
	if run.CancelRequested && !run.Status.IsTerminal() {
		sb.WriteString("Cancellation requested\n")
	}

	p.printBox("RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSteps outputs per-step attempts and durations in pipeline order.
func (p *Printer) PrintSteps(run *types.Run) {
	if run == nil || len(run.Metrics.Steps) == 0 {
		return
	}

	var sb strings.Builder
	for _, name := range run.Steps {
		m, ok := run.Metrics.Steps[name]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("%-20s %d attempt(s)  %6dms\n", name, m.Attempts, m.DurationMs))
	}

	p.printBox("STEPS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintArtifacts lists the artifacts a run produced.
func (p *Printer) PrintArtifacts(run *types.Run) {
	if run == nil || len(run.Artifacts) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Produced %d artifacts:\n\n", len(run.Artifacts)))

	sorted := append([]types.Artifact(nil), run.Artifacts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })
	for i, a := range sorted {
		sb.WriteString(fmt.Sprintf("• %-12s %8d bytes\n", a.Kind, a.Size))
		sb.WriteString(fmt.Sprintf("  %s\n", a.Locator))
		if i < len(sorted)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("ARTIFACTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintProblems outputs a run's errors and warnings.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProblems(run *types.Run) {
	if run == nil {
		return
	}
	if len(run.Errors) == 0 && len(run.Warnings) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO ERRORS OR WARNINGS")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	for i, e := range run.Errors {
		sb.WriteString(fmt.Sprintf("✗ %s (%s)\n", e.Step, e.Kind))
		sb.WriteString(fmt.Sprintf("  %s\n", e.Message))
		if i < len(run.Errors)-1 {
			sb.WriteString("\n")
		}
	}

	if len(run.Warnings) > 0 {
		if len(run.Errors) > 0 {
			sb.WriteString("\n")
		}
		count := min(len(run.Warnings), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("⚠ %s\n", run.Warnings[i]))
		}
		if len(run.Warnings) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more warnings\n", len(run.Warnings)-maxItemsToShow))
		}
	}

	p.printBox("ERRORS AND WARNINGS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintEvent writes a single progress line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintEvent(e pipeline.ProgressEvent) {
	line := fmt.Sprintf("%s  %-15s", e.At.Local().Format(time.TimeOnly), e.Kind)
	if e.Step != "" {
		line += " " + e.Step
	}
	if e.Message != "" {
		line += ": " + e.Message
	}
	fmt.Fprintln(p.out, line)
}

func statusIcon(s types.RunStatus) string {
	switch s {
	case types.RunStatusCompleted:
		return "✅"
	case types.RunStatusFailed:
		return "❌"
	case types.RunStatusCancelled:
		return "⛔"
	case types.RunStatusPaused:
		return "⏸"
	}
	return "⏳"
}
