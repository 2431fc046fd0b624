package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/apivet/apivet/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the probe report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ProbeReport) (int, error) {
	summary := report.Summary
	if summary == nil {
		summary = model.NewSummary(report)
	}

	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report, summary)
	w.writeSummary(md, summary)
	w.writeGroups(md, summary)
	w.writeFailures(md, summary)
	w.writeRaceChecks(md, report)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ProbeReport, summary *model.Summary) {
	md.H1("apivet Probe Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Suite", "`" + report.Suite + "`"},
			{"Base URL", "`" + report.BaseURL + "`"},
			{"Run ID", "`" + report.RunID + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Status", w.getStatusText(report, summary)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.ProbeReport, summary *model.Summary) string {
	if report.TimedOut {
		return "⚠️ Timed Out (partial results)"
	}
	if summary.Error != "" {
		return "❌ Error - " + summary.Error
	}
	return "✅ Complete"
}

// writeSummary writes the outcome summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Outcome Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"🟢 Accessible", strconv.Itoa(summary.AccessibleCount)},
			{"🔴 Missing", strconv.Itoa(summary.MissingCount)},
			{"🟠 Unexpected", strconv.Itoa(summary.UnexpectedCount)},
			{"⚫ Unreachable", strconv.Itoa(summary.UnreachableCount)},
			{"**Total**", fmt.Sprintf("**%d (%.1f%% accessible)**", summary.Total(), summary.AccessiblePercent)},
		},
	})
	md.PlainText("")

	if summary.Total() > 0 {
		w.writePieChart(md, summary)
	}

	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart for outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Endpoint Outcome Distribution"),
		piechart.WithShowData(true),
	)

	if summary.AccessibleCount > 0 {
		chart.LabelAndIntValue("Accessible", uint64(summary.AccessibleCount))
	}
	if summary.MissingCount > 0 {
		chart.LabelAndIntValue("Missing", uint64(summary.MissingCount))
	}
	if summary.UnexpectedCount > 0 {
		chart.LabelAndIntValue("Unexpected", uint64(summary.UnexpectedCount))
	}
	if summary.UnreachableCount > 0 {
		chart.LabelAndIntValue("Unreachable", uint64(summary.UnreachableCount))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on outcome counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.Summary) {
	switch {
	case summary.UnreachableCount > 0:
		md.Cautionf(
			"%d endpoint(s) were unreachable. The backend may be down or the base URL wrong.",
			summary.UnreachableCount,
		)
	case summary.MissingCount > 0:
		md.Warningf(
			"%d endpoint(s) returned 404. Routes may have been removed or renamed.",
			summary.MissingCount,
		)
	case summary.UnexpectedCount > 0:
		md.Importantf(
			"%d endpoint(s) answered outside their expected status set.",
			summary.UnexpectedCount,
		)
	case summary.RaceFailed > 0:
		md.Warningf(
			"%d concurrency check(s) failed. Concurrent requests are not serialized.",
			summary.RaceFailed,
		)
	default:
		md.Tip("Every probed endpoint is accessible.")
	}
	md.PlainText("")
}

// writeGroups writes the per-group breakdown section.
func (w *MarkdownWriter) writeGroups(md *markdown.Markdown, summary *model.Summary) {
	names := summary.GroupNames()
	if len(names) == 0 {
		return
	}

	md.H2("Groups")
	md.PlainText("")

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		g := summary.Groups[name]
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%d/%d", g.Accessible, g.Total),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Group", "Accessible"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFailures writes a table of failing endpoints.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Failing Endpoints")
	md.PlainText("")

	if len(summary.FailingEndpoints) == 0 {
		md.PlainText("No failing endpoints.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.FailingEndpoints))
	for i, r := range summary.FailingEndpoints {
		status := "-"
		if r.StatusCode != 0 {
			status = strconv.Itoa(r.StatusCode)
		}
		detail := r.Error
		if detail == "" {
			detail = r.BodySnippet
		}
		rows[i] = []string{
			"`" + r.Method + " " + r.Path + "`",
			r.Outcome.String(),
			status,
			truncateString(detail, 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Endpoint", "Outcome", "Status", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeRaceChecks writes the concurrency check section.
func (w *MarkdownWriter) writeRaceChecks(md *markdown.Markdown, report *model.ProbeReport) {
	if len(report.RaceResults) == 0 {
		return
	}

	md.H2("Concurrency Checks")
	md.PlainText("")

	rows := make([][]string, len(report.RaceResults))
	for i, r := range report.RaceResults {
		status := "✅ pass"
		if !r.Passed {
			status = "❌ fail"
		}
		rows[i] = []string{
			r.Name,
			"`" + r.Method + " " + r.Path + "`",
			strconv.Itoa(r.Requests),
			strconv.Itoa(r.Successes),
			strconv.Itoa(r.Rejected),
			status,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Check", "Endpoint", "Requests", "Succeeded", "Rejected", "Result"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WriteDBCheck outputs the database check report in Markdown format.
func (w *MarkdownWriter) WriteDBCheck(report *model.DBCheckReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("apivet Database Checks")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Suite", "`" + report.Suite + "`"},
			{"Checked", report.CheckedAt.Format("2006-01-02 15:04:05 MST")},
			{"Passed", fmt.Sprintf("%d/%d", report.PassedCount(), len(report.Results))},
		},
	})
	md.PlainText("")

	if len(report.Results) > 0 {
		rows := make([][]string, len(report.Results))
		for i, r := range report.Results {
			status := "✅ pass"
			if !r.Passed {
				status = "❌ fail"
			}
			detail := r.Detail
			if r.Error != "" {
				detail = r.Error
			}
			rows[i] = []string{
				r.Name,
				r.Kind,
				"`" + r.Table + "`",
				truncateString(detail, 60),
				status,
			}
		}

		md.Table(markdown.TableSet{
			Header: []string{"Check", "Kind", "Table", "Detail", "Result"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if report.Failed() {
		md.Warning("One or more database checks failed.")
	} else {
		md.Tip("Every database check passed.")
	}
	md.PlainText("")

	return len(md.String()), md.Build()
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
