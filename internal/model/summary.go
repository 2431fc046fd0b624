package model

import (
	"sort"
	"time"
)

// Summary is the aggregated, display-oriented view of a probe run.
// It is derived from a ProbeReport and carries the accessibility
// percentage used as the regression baseline between runs.
//
// Design decision: We keep the summary as a separate struct rather than
// computing counts on the fly because the summary is persisted alongside
// the run and must stay comparable even if classification rules evolve.
type Summary struct {
	// Suite is the probed suite name.
	Suite string `json:"suite"`

	// BaseURL is the backend base URL.
	BaseURL string `json:"base_url"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// === Outcome counts ===

	// AccessibleCount is the number of endpoints that are routed.
	AccessibleCount int `json:"accessible_count"`

	// MissingCount is the number of endpoints returning 404.
	MissingCount int `json:"missing_count"`

	// UnexpectedCount is the number of routed endpoints whose status
	// fell outside the declared expected set.
	UnexpectedCount int `json:"unexpected_count"`

	// UnreachableCount is the number of endpoints that never answered.
	UnreachableCount int `json:"unreachable_count"`

	// AccessiblePercent is AccessibleCount over probed endpoints, 0-100.
	AccessiblePercent float64 `json:"accessible_percent"`

	// === Breakdown ===

	// Groups maps endpoint group names to their outcome counts.
	Groups map[string]GroupSummary `json:"groups,omitempty"`

	// FailingEndpoints lists every endpoint that did not classify as
	// accessible, for quick triage.
	FailingEndpoints []EndpointResult `json:"failing_endpoints,omitempty"`

	// === Race checks ===

	// RacePassed and RaceFailed count concurrency check results.
	RacePassed int `json:"race_passed,omitempty"`
	RaceFailed int `json:"race_failed,omitempty"`

	// === Run state ===

	// TimedOut mirrors the report's timed-out flag.
	TimedOut bool `json:"timed_out"`

	// Error mirrors the report's terminal error, if any.
	Error string `json:"error,omitempty"`
}

// GroupSummary holds outcome counts for one endpoint group.
type GroupSummary struct {
	// Total is the number of endpoints in the group.
	Total int `json:"total"`

	// Accessible is how many of them are routed.
	Accessible int `json:"accessible"`
}

// NewSummary derives a Summary from a completed ProbeReport.
func NewSummary(report *ProbeReport) *Summary {
	s := &Summary{
		Suite:     report.Suite,
		BaseURL:   report.BaseURL,
		StartedAt: report.StartedAt,
		TimedOut:  report.TimedOut,
	}
	if report.Error != nil {
		s.Error = report.Error.Error()
	}

	for _, r := range report.Results {
		switch r.Outcome {
		case OutcomeAccessible:
			s.AccessibleCount++
		case OutcomeMissing:
			s.MissingCount++
		case OutcomeUnexpected:
			s.UnexpectedCount++
		case OutcomeUnreachable:
			s.UnreachableCount++
		}

		if r.Outcome.Failed() {
			s.FailingEndpoints = append(s.FailingEndpoints, r)
		}

		if r.Group != "" {
			if s.Groups == nil {
				s.Groups = make(map[string]GroupSummary)
			}
			g := s.Groups[r.Group]
			g.Total++
			if r.Outcome == OutcomeAccessible {
				g.Accessible++
			}
			s.Groups[r.Group] = g
		}
	}

	if total := s.Total(); total > 0 {
		s.AccessiblePercent = float64(s.AccessibleCount) / float64(total) * 100
	}

	for _, rr := range report.RaceResults {
		if rr.Passed {
			s.RacePassed++
		} else {
			s.RaceFailed++
		}
	}

	return s
}

// Total returns the number of probed endpoints.
func (s *Summary) Total() int {
	return s.AccessibleCount + s.MissingCount + s.UnexpectedCount + s.UnreachableCount
}

// HasFailures reports whether any endpoint or race check failed.
func (s *Summary) HasFailures() bool {
	return s.MissingCount > 0 || s.UnexpectedCount > 0 || s.UnreachableCount > 0 || s.RaceFailed > 0
}

// GroupNames returns the group names in sorted order for stable output.
func (s *Summary) GroupNames() []string {
	names := make([]string, 0, len(s.Groups))
	for name := range s.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
