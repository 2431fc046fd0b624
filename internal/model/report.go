package model

import (
	"time"

	"github.com/google/uuid"
)

// ProbeReport is the main result structure for one suite run.
// It contains everything collected while probing a backend deployment.
//
// Design decision: We use a single struct covering auth metadata, endpoint
// results, and race checks rather than separate result documents because
// the report is serialized as one unit for history storage and comparison.
type ProbeReport struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// Suite is the name of the suite that was probed.
	Suite string `json:"suite"`

	// BaseURL is the backend base URL the suite ran against.
	BaseURL string `json:"base_url"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total wall-clock time of the run.
	Duration time.Duration `json:"duration_ns"`

	// Auth holds metadata about the admin login used for the run.
	Auth *AuthInfo `json:"auth,omitempty"`

	// Results holds the per-endpoint probe results in suite order.
	Results []EndpointResult `json:"results"`

	// RaceResults holds the concurrency check results, if any were declared.
	RaceResults []RaceResult `json:"race_results,omitempty"`

	// Summary is the aggregated view used for display and comparison.
	Summary *Summary `json:"summary,omitempty"`

	// PerformedSteps lists the pipeline steps that actually ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// TimedOut is true when the run was cut short by cancellation.
	TimedOut bool `json:"timed_out"`

	// Error contains the terminal error of the run, if any.
	// Only set when the run failed outright (e.g. login rejected).
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error,omitempty"`
}

// AuthInfo describes the admin token obtained for the run.
// The token itself is never stored; only claims useful for diagnosis are.
type AuthInfo struct {
	// TokenAcquired reports whether login succeeded.
	TokenAcquired bool `json:"token_acquired"`

	// Subject is the token subject claim, when the token is a parseable JWT.
	Subject string `json:"subject,omitempty"`

	// ExpiresAt is the token expiry claim, when present.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// LoginStatus is the HTTP status the login endpoint returned.
	LoginStatus int `json:"login_status,omitempty"`
}

// NewProbeReport creates a report for the given suite and base URL.
func NewProbeReport(suite, baseURL string) *ProbeReport {
	return &ProbeReport{
		RunID:     uuid.NewString(),
		Suite:     suite,
		BaseURL:   baseURL,
		StartedAt: time.Now(),
		Results:   make([]EndpointResult, 0),
	}
}

// AddResult appends an endpoint result to the report.
func (r *ProbeReport) AddResult(result EndpointResult) {
	r.Results = append(r.Results, result)
}

// SetError records a terminal error on the report.
func (r *ProbeReport) SetError(err error) {
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// ResultByKey returns the result for the given "METHOD path" key.
// Returns nil when the endpoint was not probed in this run.
func (r *ProbeReport) ResultByKey(key string) *EndpointResult {
	for i := range r.Results {
		if r.Results[i].Key() == key {
			return &r.Results[i]
		}
	}
	return nil
}
