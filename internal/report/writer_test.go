package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/apivet/apivet/internal/model"
)

// createTestReport creates a probe report with sample data for testing.
func createTestReport() *model.ProbeReport {
	report := model.NewProbeReport("prod", "http://localhost:8080")
	report.Auth = &model.AuthInfo{TokenAcquired: true, LoginStatus: http.StatusOK}
	report.AddResult(model.EndpointResult{
		Name:       "achievements list",
		Group:      "achievements",
		Method:     http.MethodGet,
		Path:       "/api/v1/admin/achievements",
		StatusCode: http.StatusOK,
		Outcome:    model.OutcomeAccessible,
		Latency:    12 * time.Millisecond,
	})
	report.AddResult(model.EndpointResult{
		Name:       "removed route",
		Group:      "legacy",
		Method:     http.MethodGet,
		Path:       "/api/v1/admin/gone",
		StatusCode: http.StatusNotFound,
		Outcome:    model.OutcomeMissing,
	})
	report.AddResult(model.EndpointResult{
		Name:        "broken route",
		Group:       "matches",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/broken",
		StatusCode:  http.StatusInternalServerError,
		Outcome:     model.OutcomeUnexpected,
		BodySnippet: `{"error":"column does not exist"}`,
	})
	report.RaceResults = append(report.RaceResults, model.RaceResult{
		Name:        "kyc double processing",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/kyc/1/process",
		Requests:    2,
		Successes:   1,
		Rejected:    1,
		StatusCodes: []int{200, 409},
		Passed:      true,
	})
	report.Duration = 2 * time.Second
	report.Summary = model.NewSummary(report)
	return report
}

// createTestDBCheckReport creates a database check report for testing.
func createTestDBCheckReport() *model.DBCheckReport {
	return &model.DBCheckReport{
		Suite:     "prod",
		CheckedAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		Results: []model.DBCheckResult{
			{Name: "contests exist", Kind: "count", Table: "contests", Rows: 12, Passed: true, Detail: "12 rows"},
			{Name: "participants reference contests", Kind: "orphan", Table: "contest_participants",
				Rows: 3, Passed: false, Detail: "3 rows in contest_participants.contest_id reference missing contests.id"},
		},
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes report header", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)
		report := createTestReport()

		if _, err := w.Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "APIVET PROBE REPORT") {
			t.Error("expected output to contain header")
		}
		if !strings.Contains(output, "prod") {
			t.Error("expected output to contain suite name")
		}
		if !strings.Contains(output, report.RunID) {
			t.Error("expected output to contain run ID")
		}
	})

	t.Run("writes outcome summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "OUTCOME SUMMARY") {
			t.Error("expected output to contain outcome summary")
		}
		if !strings.Contains(output, "ACCESSIBLE:  1") {
			t.Error("expected output to contain accessible count")
		}
		if !strings.Contains(output, "33.3% accessible") {
			t.Errorf("expected output to contain accessibility percentage, got:\n%s", output)
		}
	})

	t.Run("lists failing endpoints", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "FAILING ENDPOINTS") {
			t.Error("expected output to contain failing endpoints section")
		}
		if !strings.Contains(output, "/api/v1/admin/gone") {
			t.Error("expected output to list the missing route")
		}
		if strings.Contains(output, "/api/v1/admin/achievements (status 200") {
			t.Error("accessible endpoints should not be listed by default")
		}
	})

	t.Run("verbose includes body snippets", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithVerbose(true))

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "column does not exist") {
			t.Error("expected verbose output to contain the body snippet")
		}
	})

	t.Run("show passing lists accessible endpoints", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithShowPassing(true))

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "ACCESSIBLE ENDPOINTS") {
			t.Error("expected output to contain accessible endpoints section")
		}
	})

	t.Run("writes concurrency checks", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "CONCURRENCY CHECKS") {
			t.Error("expected output to contain concurrency checks section")
		}
		if !strings.Contains(output, "[PASS] kyc double processing") {
			t.Error("expected output to contain the passing race check")
		}
	})

	t.Run("writes database check report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.WriteDBCheck(createTestDBCheckReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "APIVET DATABASE CHECKS") {
			t.Error("expected output to contain header")
		}
		if !strings.Contains(output, "[FAIL] participants reference contests") {
			t.Error("expected output to contain the failing check")
		}
		if !strings.Contains(output, "1/2 checks passed") {
			t.Error("expected output to contain the pass count")
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes valid compact JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)
		report := createTestReport()

		if _, err := w.Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded model.ProbeReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded.Suite != "prod" {
			t.Errorf("Suite = %q, want prod", decoded.Suite)
		}
		if len(decoded.Results) != 3 {
			t.Errorf("got %d results, want 3", len(decoded.Results))
		}
		if decoded.Summary == nil {
			t.Error("Summary missing from JSON output")
		}
	})

	t.Run("pretty print indents output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithPrettyPrint())

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "\n  ") {
			t.Error("expected indented output")
		}
	})

	t.Run("generates summary when absent", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Summary = nil

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)
		if _, err := w.Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Summary == nil {
			t.Error("expected the writer to generate the summary")
		}
	})

	t.Run("writes database check report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)

		if _, err := w.WriteDBCheck(createTestDBCheckReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded model.DBCheckReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(decoded.Results) != 2 {
			t.Errorf("got %d results, want 2", len(decoded.Results))
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes probe report sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# apivet Probe Report",
			"## Outcome Summary",
			"## Groups",
			"## Failing Endpoints",
			"## Concurrency Checks",
			"`GET /api/v1/admin/gone`",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("includes mermaid pie chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "```mermaid") {
			t.Error("expected output to contain a mermaid chart")
		}
	})

	t.Run("clean report gets a tip", func(t *testing.T) {
		t.Parallel()

		report := model.NewProbeReport("prod", "http://localhost:8080")
		report.AddResult(model.EndpointResult{
			Method:     http.MethodGet,
			Path:       "/api/v1/health",
			StatusCode: http.StatusOK,
			Outcome:    model.OutcomeAccessible,
		})
		report.Summary = model.NewSummary(report)

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)
		if _, err := w.Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "[!TIP]") {
			t.Error("expected a tip alert for a clean report")
		}
	})

	t.Run("writes database check report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		if _, err := w.WriteDBCheck(createTestDBCheckReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "# apivet Database Checks") {
			t.Error("expected output to contain header")
		}
		if !strings.Contains(output, "[!WARNING]") {
			t.Error("expected a warning alert for a failing report")
		}
	})
}

// TestMultiWriter tests writing to multiple destinations.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, jsonBuf bytes.Buffer
		mw := NewMultiWriter(
			NewSimpleWriter(&text),
			NewJSONWriter(&jsonBuf),
		)

		if _, err := mw.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if text.Len() == 0 {
			t.Error("text writer received no output")
		}
		if jsonBuf.Len() == 0 {
			t.Error("JSON writer received no output")
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		mw := NewMultiWriter(
			NewSimpleWriter(failingWriter{}),
			NewSimpleWriter(&buf),
		)

		if _, err := mw.Write(createTestReport()); err == nil {
			t.Fatal("expected error from failing writer")
		}
		if buf.Len() != 0 {
			t.Error("second writer should not have been reached")
		}
	})
}

// failingWriter always fails, for MultiWriter error propagation tests.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short string unchanged", input: "short", maxLen: 10, want: "short"},
		{name: "long string truncated", input: "a very long string indeed", maxLen: 10, want: "a very ..."},
		{name: "tiny limit", input: "abcdef", maxLen: 2, want: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := truncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
