package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/apivet/apivet/internal/config"
	"github.com/apivet/apivet/internal/history"
	"github.com/apivet/apivet/internal/model"
)

// Constants for accessibility direction and summary messages.
const (
	directionWorsened  = "worsened"
	directionImproved  = "improved"
	directionUnchanged = "unchanged"
)

// NewCompareCmd creates the compare command.
// This command compares probe runs with historical data stored in the database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [suite-name]",
		Short: "Compare probe runs with historical data",
		Long: `Compare displays differences between the latest and an earlier probe run.

This command retrieves historical run data from the database and shows:
- Regressed endpoints that were accessible before but are not anymore
- Recovered endpoints that were failing and are now accessible
- The change in overall accessibility percentage

The comparison requires at least two runs in the database for the specified
suite, or a pinned baseline. Use 'apivet probe' to run suites and save results.

Examples:
  # Compare the latest two runs of a suite
  apivet compare prod

  # List run history for a suite
  apivet compare --list prod

  # Compare the latest run with a specific earlier run
  apivet compare --with-run-id 2f2f... prod

  # Compare with the first run after a date
  apivet compare --since 2026-08-01 prod

  # Pin the latest run as the suite's baseline
  apivet compare --pin prod

  # Compare the latest run against the pinned baseline
  apivet compare --baseline prod

  # List all suites with stored runs
  apivet compare --list-suites`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List run history for the specified suite")
	cmd.Flags().BoolP("list-suites", "L", false,
		"List all suites with stored runs")

	// Comparison target flags
	cmd.Flags().StringP("with-run-id", "i", "",
		"Compare with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first run after this date (format: YYYY-MM-DD)")
	cmd.Flags().Bool("baseline", false,
		"Compare against the suite's pinned baseline")
	cmd.Flags().Bool("pin", false,
		"Pin the latest run (or --with-run-id) as the suite's baseline")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	listSuites, err := cmd.Flags().GetBool("list-suites")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database
	var suiteName string
	if !listSuites {
		if len(args) == 0 {
			return errors.New("suite name is required (use --list-suites to see stored suites)")
		}
		suiteName = args[0]
	}

	// Compare never creates the database; no runs means nothing to compare
	db, err := history.Open(config.XDGDataDir(), history.Options{
		CreateIfNotExists: false,
		EnableWAL:         true,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	if listSuites {
		return listStoredSuites(ctx, db)
	}

	listHistory, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if listHistory {
		return listRunHistory(ctx, db, suiteName)
	}

	withRunID, err := cmd.Flags().GetString("with-run-id")
	if err != nil {
		return err
	}

	pin, err := cmd.Flags().GetBool("pin")
	if err != nil {
		return err
	}
	if pin {
		return pinBaseline(ctx, db, suiteName, withRunID)
	}

	useBaseline, err := cmd.Flags().GetBool("baseline")
	if err != nil {
		return err
	}
	sinceDate, err := cmd.Flags().GetString("since")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	return runComparison(ctx, db, comparisonRequest{
		Suite:       suiteName,
		WithRunID:   withRunID,
		SinceDate:   sinceDate,
		UseBaseline: useBaseline,
		JSON:        jsonOutput,
		Markdown:    markdownOutput,
	})
}

// listStoredSuites lists all suites that have runs in the database.
func listStoredSuites(ctx context.Context, db *history.DB) error {
	suites, err := db.ListSuites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list suites: %w", err)
	}

	if len(suites) == 0 {
		fmt.Println("No stored runs found in the database.")
		fmt.Println("\nUse 'apivet probe' to run a suite.")
		return nil
	}

	fmt.Printf("Stored suites (%d):\n\n", len(suites))
	for _, suite := range suites {
		fmt.Printf("  • %s\n", suite)
	}
	fmt.Println("\nUse 'apivet compare --list <suite>' to see run history for a suite.")

	return nil
}

// listRunHistory lists all stored runs for a suite.
func listRunHistory(ctx context.Context, db *history.DB, suite string) error {
	runs, err := db.GetRunHistory(ctx, suite, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Printf("No run history found for %s\n", suite)
		fmt.Println("\nUse 'apivet probe' to run this suite.")
		return nil
	}

	fmt.Printf("Run history for %s (%d runs):\n\n", suite, len(runs))
	fmt.Printf("  %-36s  %-20s  %-12s  %s\n", "Run ID", "Date", "Accessible", "Failing")
	fmt.Println("  " + strings.Repeat("-", 80))

	for _, meta := range runs {
		fmt.Printf("  %-36s  %-20s  %-12s  %d\n",
			meta.RunID,
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.1f%%", meta.AccessiblePercent),
			meta.FailingEndpoints,
		)
	}

	fmt.Println("\nUse 'apivet compare <suite>' to compare the latest two runs.")
	fmt.Println("Use 'apivet compare --with-run-id <id> <suite>' to compare with a specific run.")

	return nil
}

// pinBaseline pins a run as the suite's comparison baseline.
// With no run ID, the latest run is pinned.
func pinBaseline(ctx context.Context, db *history.DB, suite, runID string) error {
	if runID == "" {
		latest, err := db.GetLatestRun(ctx, suite)
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("no runs found for %s", suite)
		}
		runID = latest.RunID
	}

	if err := db.PinBaseline(ctx, suite, runID); err != nil {
		return err
	}

	fmt.Printf("Pinned run %s as the baseline for %s\n", runID, suite)
	return nil
}

// comparisonRequest carries the resolved compare flags.
type comparisonRequest struct {
	Suite       string
	WithRunID   string
	SinceDate   string
	UseBaseline bool
	JSON        bool
	Markdown    bool
}

// runComparison performs the comparison between two stored runs.
func runComparison(ctx context.Context, db *history.DB, req comparisonRequest) error {
	current, err := db.GetLatestRun(ctx, req.Suite)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("no run history found for %s", req.Suite)
	}

	previous, err := resolveReference(ctx, db, req, current)
	if err != nil {
		return err
	}

	comparison := compareRuns(previous, current)

	if req.JSON {
		if err := outputComparisonJSON(comparison); err != nil {
			return err
		}
	} else if req.Markdown {
		outputComparisonMarkdown(comparison)
	} else {
		outputComparisonText(comparison)
	}

	// A regression is a failure; CI pipelines rely on the exit code
	if len(comparison.Regressed) > 0 {
		return fmt.Errorf("%d endpoint(s) regressed since the reference run", len(comparison.Regressed))
	}

	return nil
}

// resolveReference picks the run the latest run is compared against.
func resolveReference(ctx context.Context, db *history.DB, req comparisonRequest, current *model.ProbeReport) (*model.ProbeReport, error) {
	switch {
	case req.WithRunID != "":
		previous, err := db.GetRunByID(ctx, req.WithRunID)
		if err != nil {
			return nil, err
		}
		if previous == nil {
			return nil, fmt.Errorf("run %s not found", req.WithRunID)
		}
		if previous.Suite != req.Suite {
			return nil, fmt.Errorf("run %s belongs to suite %q, not %q", req.WithRunID, previous.Suite, req.Suite)
		}
		return previous, nil

	case req.UseBaseline:
		previous, err := db.GetBaseline(ctx, req.Suite)
		if err != nil {
			return nil, err
		}
		if previous == nil {
			return nil, fmt.Errorf("no baseline pinned for %s (use 'apivet compare --pin %s')", req.Suite, req.Suite)
		}
		return previous, nil

	case req.SinceDate != "":
		parsed, err := time.Parse("2006-01-02", req.SinceDate)
		if err != nil {
			return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}

		runs, err := db.GetRunHistory(ctx, req.Suite, parsed)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, fmt.Errorf("no runs found since %s", req.SinceDate)
		}

		// Oldest run at or after the date
		oldest := runs[len(runs)-1]
		if oldest.RunID == current.RunID {
			return nil, fmt.Errorf("only one run found since %s; at least 2 runs are required for comparison", req.SinceDate)
		}
		return db.GetRunByID(ctx, oldest.RunID)

	default:
		previous, err := db.GetRunBefore(ctx, req.Suite, current.RunID)
		if err != nil {
			return nil, err
		}
		if previous == nil {
			return nil, fmt.Errorf("at least 2 runs are required for comparison (found 1)")
		}
		return previous, nil
	}
}

// ComparisonResult holds the result of comparing two probe runs.
type ComparisonResult struct {
	// Suite is the compared suite name.
	Suite string `json:"suite"`

	// PreviousRun contains metadata about the reference run.
	PreviousRun RunSummary `json:"previous_run"`

	// CurrentRun contains metadata about the latest run.
	CurrentRun RunSummary `json:"current_run"`

	// Regressed lists endpoints that were accessible in the reference
	// run and are not anymore.
	Regressed []EndpointChange `json:"regressed,omitempty"`

	// Recovered lists endpoints that were failing and are now accessible.
	Recovered []EndpointChange `json:"recovered,omitempty"`

	// StillFailing is the number of endpoints failing in both runs.
	StillFailing int `json:"still_failing"`

	// NewEndpoints lists routes probed now but absent from the reference run.
	NewEndpoints []string `json:"new_endpoints,omitempty"`

	// RemovedEndpoints lists routes in the reference run no longer probed.
	RemovedEndpoints []string `json:"removed_endpoints,omitempty"`

	// AccessibilityChange describes the change in overall accessibility.
	AccessibilityChange AccessibilityChange `json:"accessibility_change"`
}

// RunSummary contains metadata about a run for comparison display.
type RunSummary struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Endpoints is the number of endpoints probed.
	Endpoints int `json:"endpoints"`

	// AccessiblePercent is the run's accessibility percentage.
	AccessiblePercent float64 `json:"accessible_percent"`
}

// EndpointChange describes one endpoint whose outcome changed between runs.
type EndpointChange struct {
	// Endpoint is the "METHOD path" key.
	Endpoint string `json:"endpoint"`

	// From and To are the outcome in the reference and latest run.
	From model.Outcome `json:"from"`
	To   model.Outcome `json:"to"`

	// StatusCode is the status observed in the latest run.
	StatusCode int `json:"status_code"`
}

// AccessibilityChange describes the change in accessibility between runs.
type AccessibilityChange struct {
	// Direction is "improved", "worsened", or "unchanged".
	Direction string `json:"direction"`

	// Delta is the percentage point change in accessibility.
	Delta float64 `json:"delta"`
}

// compareRuns compares two probe runs and generates a comparison result.
// Endpoints are keyed by method and path, so renaming an endpoint in the
// suite file does not register as a change.
func compareRuns(previous, current *model.ProbeReport) *ComparisonResult {
	result := &ComparisonResult{
		Suite:       current.Suite,
		PreviousRun: runSummary(previous),
		CurrentRun:  runSummary(current),
	}

	previousResults := make(map[string]model.EndpointResult)
	for _, r := range previous.Results {
		previousResults[r.Key()] = r
	}
	currentResults := make(map[string]model.EndpointResult)
	for _, r := range current.Results {
		currentResults[r.Key()] = r
	}

	// Walk current results in probe order so output is stable
	for _, cur := range current.Results {
		prev, exists := previousResults[cur.Key()]
		if !exists {
			result.NewEndpoints = append(result.NewEndpoints, cur.Key())
			continue
		}

		switch {
		case !prev.Outcome.Failed() && cur.Outcome.Failed():
			result.Regressed = append(result.Regressed, EndpointChange{
				Endpoint:   cur.Key(),
				From:       prev.Outcome,
				To:         cur.Outcome,
				StatusCode: cur.StatusCode,
			})
		case prev.Outcome.Failed() && !cur.Outcome.Failed():
			result.Recovered = append(result.Recovered, EndpointChange{
				Endpoint:   cur.Key(),
				From:       prev.Outcome,
				To:         cur.Outcome,
				StatusCode: cur.StatusCode,
			})
		case prev.Outcome.Failed() && cur.Outcome.Failed():
			result.StillFailing++
		}
	}

	for _, prev := range previous.Results {
		if _, exists := currentResults[prev.Key()]; !exists {
			result.RemovedEndpoints = append(result.RemovedEndpoints, prev.Key())
		}
	}

	result.AccessibilityChange = calculateAccessibilityChange(result.PreviousRun, result.CurrentRun)

	return result
}

// runSummary extracts comparison metadata from a run.
func runSummary(r *model.ProbeReport) RunSummary {
	s := RunSummary{
		RunID:     r.RunID,
		StartedAt: r.StartedAt,
		Endpoints: len(r.Results),
	}
	if r.Summary != nil {
		s.AccessiblePercent = r.Summary.AccessiblePercent
	}
	return s
}

// calculateAccessibilityChange calculates the accessibility delta.
func calculateAccessibilityChange(previous, current RunSummary) AccessibilityChange {
	change := AccessibilityChange{
		Delta: current.AccessiblePercent - previous.AccessiblePercent,
	}

	switch {
	case change.Delta > 0:
		change.Direction = directionImproved
	case change.Delta < 0:
		change.Direction = directionWorsened
	default:
		change.Direction = directionUnchanged
	}

	return change
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(result *ComparisonResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(result *ComparisonResult) {
	fmt.Printf("# Run Comparison: %s\n\n", result.Suite)

	fmt.Println("## Summary")
	fmt.Printf("\n**Accessibility:** %s\n\n", formatDirection(result.AccessibilityChange.Direction))

	fmt.Println("| Metric | Previous | Current | Change |")
	fmt.Println("|--------|----------|---------|--------|")
	fmt.Printf("| Date | %s | %s | - |\n",
		result.PreviousRun.StartedAt.Format("2006-01-02 15:04"),
		result.CurrentRun.StartedAt.Format("2006-01-02 15:04"))
	fmt.Printf("| Endpoints | %d | %d | %s |\n",
		result.PreviousRun.Endpoints,
		result.CurrentRun.Endpoints,
		formatDelta(result.CurrentRun.Endpoints-result.PreviousRun.Endpoints))
	fmt.Printf("| Accessible | %.1f%% | %.1f%% | %+.1f pp |\n",
		result.PreviousRun.AccessiblePercent,
		result.CurrentRun.AccessiblePercent,
		result.AccessibilityChange.Delta)

	if len(result.Regressed) > 0 {
		fmt.Printf("\n## Regressed Endpoints (%d)\n\n", len(result.Regressed))
		for _, c := range result.Regressed {
			fmt.Printf("- **`%s`**: %s → %s (status %d)\n", c.Endpoint, c.From, c.To, c.StatusCode)
		}
	}

	if len(result.Recovered) > 0 {
		fmt.Printf("\n## Recovered Endpoints (%d)\n\n", len(result.Recovered))
		for _, c := range result.Recovered {
			fmt.Printf("- ~~`%s`~~: %s → %s\n", c.Endpoint, c.From, c.To)
		}
	}

	if len(result.NewEndpoints) > 0 {
		fmt.Printf("\n## New Endpoints (%d)\n\n", len(result.NewEndpoints))
		for _, e := range result.NewEndpoints {
			fmt.Printf("- `%s`\n", e)
		}
	}

	if len(result.RemovedEndpoints) > 0 {
		fmt.Printf("\n## Removed Endpoints (%d)\n\n", len(result.RemovedEndpoints))
		for _, e := range result.RemovedEndpoints {
			fmt.Printf("- `%s`\n", e)
		}
	}

	if result.StillFailing > 0 {
		fmt.Printf("\n---\n\n*%d endpoint(s) still failing in both runs*\n", result.StillFailing)
	}
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(result *ComparisonResult) {
	fmt.Printf("Run Comparison: %s\n", result.Suite)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\nAccessibility: %s\n", formatDirection(result.AccessibilityChange.Direction))

	fmt.Printf("\nPrevious run: %s (%s)\n",
		result.PreviousRun.StartedAt.Format("2006-01-02 15:04:05"), result.PreviousRun.RunID)
	fmt.Printf("Current run:  %s (%s)\n",
		result.CurrentRun.StartedAt.Format("2006-01-02 15:04:05"), result.CurrentRun.RunID)

	fmt.Println("\nSummary:")
	fmt.Printf("  %-12s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Println("  " + strings.Repeat("-", 48))
	fmt.Printf("  %-12s  %-10d  %-10d  %-10s\n", "Endpoints",
		result.PreviousRun.Endpoints, result.CurrentRun.Endpoints,
		formatDelta(result.CurrentRun.Endpoints-result.PreviousRun.Endpoints))
	fmt.Printf("  %-12s  %-10s  %-10s  %+.1f pp\n", "Accessible",
		fmt.Sprintf("%.1f%%", result.PreviousRun.AccessiblePercent),
		fmt.Sprintf("%.1f%%", result.CurrentRun.AccessiblePercent),
		result.AccessibilityChange.Delta)

	if len(result.Regressed) > 0 {
		fmt.Printf("\nRegressed Endpoints (%d):\n", len(result.Regressed))
		for _, c := range result.Regressed {
			fmt.Printf("  [-] %s: %s -> %s (status %d)\n", c.Endpoint, c.From, c.To, c.StatusCode)
		}
	}

	if len(result.Recovered) > 0 {
		fmt.Printf("\nRecovered Endpoints (%d):\n", len(result.Recovered))
		for _, c := range result.Recovered {
			fmt.Printf("  [+] %s: %s -> %s\n", c.Endpoint, c.From, c.To)
		}
	}

	if len(result.NewEndpoints) > 0 {
		fmt.Printf("\nNew Endpoints (%d):\n", len(result.NewEndpoints))
		for _, e := range result.NewEndpoints {
			fmt.Printf("  [*] %s\n", e)
		}
	}

	if len(result.RemovedEndpoints) > 0 {
		fmt.Printf("\nRemoved Endpoints (%d):\n", len(result.RemovedEndpoints))
		for _, e := range result.RemovedEndpoints {
			fmt.Printf("  [x] %s\n", e)
		}
	}

	if result.StillFailing > 0 {
		fmt.Printf("\nStill failing: %d endpoint(s)\n", result.StillFailing)
	}
}

// formatDirection formats the accessibility change direction for display.
func formatDirection(direction string) string {
	switch direction {
	case directionImproved:
		return "IMPROVED (accessibility increased)"
	case directionWorsened:
		return "WORSENED (accessibility decreased)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	} else if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}
