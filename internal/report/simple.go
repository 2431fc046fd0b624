package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/apivet/apivet/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showPassing controls whether passing endpoints are listed
	// individually rather than only counted.
	showPassing bool

	// verbose enables additional detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowPassing configures the writer to list passing endpoints too.
func WithShowPassing(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showPassing = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter:  newBaseWriter(output),
		showPassing: false,
		verbose:     false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the probe report in human-readable format.
func (w *SimpleWriter) Write(report *model.ProbeReport) (int, error) {
	summary := report.Summary
	if summary == nil {
		summary = model.NewSummary(report)
	}

	var sb strings.Builder

	w.writeHeader(&sb, report, summary)
	w.writeSummary(&sb, summary)
	w.writeGroups(&sb, summary)
	w.writeFailures(&sb, summary)
	w.writeRaceChecks(&sb, report)
	if w.showPassing {
		w.writePassing(&sb, report)
	}

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ProbeReport, summary *model.Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          APIVET PROBE REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Suite:     %s\n", report.Suite))
	sb.WriteString(fmt.Sprintf("Base URL:  %s\n", report.BaseURL))
	sb.WriteString(fmt.Sprintf("Run ID:    %s\n", report.RunID))
	sb.WriteString(fmt.Sprintf("Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", report.Duration.Round(1000000)))

	if report.Auth != nil {
		if report.Auth.TokenAcquired {
			sb.WriteString("Auth:      admin token acquired\n")
		} else {
			sb.WriteString(fmt.Sprintf("Auth:      LOGIN FAILED (status %d)\n", report.Auth.LoginStatus))
		}
	}

	switch {
	case report.TimedOut:
		sb.WriteString("Status:    TIMED OUT (partial results)\n")
	case summary.Error != "":
		sb.WriteString(fmt.Sprintf("Status:    ERROR - %s\n", summary.Error))
	default:
		sb.WriteString("Status:    Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the outcome summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("OUTCOME SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  ACCESSIBLE:  %d\n", summary.AccessibleCount))
	sb.WriteString(fmt.Sprintf("  MISSING:     %d\n", summary.MissingCount))
	sb.WriteString(fmt.Sprintf("  UNEXPECTED:  %d\n", summary.UnexpectedCount))
	sb.WriteString(fmt.Sprintf("  UNREACHABLE: %d\n", summary.UnreachableCount))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  TOTAL:       %d endpoints, %.1f%% accessible\n",
		summary.Total(), summary.AccessiblePercent))
	sb.WriteString("\n")
}

// writeGroups writes the per-group breakdown section.
func (w *SimpleWriter) writeGroups(sb *strings.Builder, summary *model.Summary) {
	names := summary.GroupNames()
	if len(names) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("GROUPS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, name := range names {
		g := summary.Groups[name]
		marker := "+"
		if g.Accessible < g.Total {
			marker = "!"
		}
		sb.WriteString(fmt.Sprintf("  [%s] %-30s %d/%d accessible\n",
			marker, name, g.Accessible, g.Total))
	}
	sb.WriteString("\n")
}

// writeFailures lists every endpoint that did not classify as accessible.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, summary *model.Summary) {
	if len(summary.FailingEndpoints) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILING ENDPOINTS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, r := range summary.FailingEndpoints {
		sb.WriteString(fmt.Sprintf("  * %s %s\n", r.Method, r.Path))
		sb.WriteString(fmt.Sprintf("    Outcome: %s", r.Outcome.String()))
		if r.StatusCode != 0 {
			sb.WriteString(fmt.Sprintf(" (status %d)", r.StatusCode))
		}
		sb.WriteString("\n")
		if r.Error != "" {
			sb.WriteString(fmt.Sprintf("    Error: %s\n", r.Error))
		}
		if w.verbose && r.BodySnippet != "" {
			sb.WriteString(fmt.Sprintf("    Body: %s\n", r.BodySnippet))
		}
	}
	sb.WriteString("\n")
}

// writeRaceChecks writes the concurrency check section.
func (w *SimpleWriter) writeRaceChecks(sb *strings.Builder, report *model.ProbeReport) {
	if len(report.RaceResults) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("CONCURRENCY CHECKS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, r := range report.RaceResults {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s\n", status, r.Name))
		sb.WriteString(fmt.Sprintf("        %s %s: %d requests, %d succeeded, %d rejected\n",
			r.Method, r.Path, r.Requests, r.Successes, r.Rejected))
		if r.Error != "" {
			sb.WriteString(fmt.Sprintf("        Error: %s\n", r.Error))
		}
	}
	sb.WriteString("\n")
}

// writePassing lists accessible endpoints individually.
func (w *SimpleWriter) writePassing(sb *strings.Builder, report *model.ProbeReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("ACCESSIBLE ENDPOINTS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, r := range report.Results {
		if r.Outcome != model.OutcomeAccessible {
			continue
		}
		sb.WriteString(fmt.Sprintf("  [+] %s %s (status %d, %s)\n",
			r.Method, r.Path, r.StatusCode, r.Latency.Round(1000000)))
	}
	sb.WriteString("\n")
}

// WriteDBCheck outputs the database check report in human-readable format.
func (w *SimpleWriter) WriteDBCheck(report *model.DBCheckReport) (int, error) {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        APIVET DATABASE CHECKS\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Suite:     %s\n", report.Suite))
	sb.WriteString(fmt.Sprintf("Checked:   %s\n", report.CheckedAt.Format("2006-01-02 15:04:05 MST")))
	if report.Error != "" {
		sb.WriteString(fmt.Sprintf("Status:    ERROR - %s\n", report.Error))
	}
	sb.WriteString("\n")

	for _, r := range report.Results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s (%s on %s)\n", status, r.Name, r.Kind, r.Table))
		if r.Detail != "" {
			sb.WriteString(fmt.Sprintf("        %s\n", r.Detail))
		}
		if r.Error != "" {
			sb.WriteString(fmt.Sprintf("        Error: %s\n", r.Error))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  TOTAL: %d/%d checks passed\n",
		report.PassedCount(), len(report.Results)))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}
