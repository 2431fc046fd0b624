package model

import "time"

// EndpointResult is the outcome of probing a single endpoint.
type EndpointResult struct {
	// Name is the endpoint's name from the suite file.
	Name string `json:"name"`

	// Group is the logical endpoint group (e.g. "achievements", "kyc").
	// Groups drive per-feature accessibility breakdowns in the summary.
	Group string `json:"group,omitempty"`

	// Method is the HTTP method used for the probe.
	Method string `json:"method"`

	// Path is the request path relative to the suite base URL.
	Path string `json:"path"`

	// StatusCode is the HTTP status returned, or zero when the request
	// failed before receiving a response.
	StatusCode int `json:"status_code"`

	// Outcome is the classification of this result.
	Outcome Outcome `json:"outcome"`

	// Latency is how long the request took.
	Latency time.Duration `json:"latency_ns"`

	// BodySnippet holds the leading bytes of the response body.
	// It is bounded at capture time so reports stay small.
	BodySnippet string `json:"body_snippet,omitempty"`

	// Error is the transport error message when Outcome is unreachable.
	Error string `json:"error,omitempty"`

	// CheckedAt is when the probe was issued.
	CheckedAt time.Time `json:"checked_at"`
}

// Key returns the identity of the probed route, used when comparing runs.
// Two results describe the same endpoint when method and path match,
// regardless of how the endpoint is named in the suite file.
func (r EndpointResult) Key() string {
	return r.Method + " " + r.Path
}

// RaceResult is the outcome of a concurrency check: N identical requests
// fired at once, where exactly one is expected to succeed and the rest
// are expected to be rejected by the backend.
type RaceResult struct {
	// Name is the check's name from the suite file.
	Name string `json:"name"`

	// Method and Path identify the probed route.
	Method string `json:"method"`
	Path   string `json:"path"`

	// Requests is the number of concurrent requests fired.
	Requests int `json:"requests"`

	// Successes is how many requests received a success status.
	Successes int `json:"successes"`

	// Rejected is how many requests received the expected rejection status.
	Rejected int `json:"rejected"`

	// StatusCodes lists every status observed, in completion order.
	StatusCodes []int `json:"status_codes"`

	// Passed reports whether exactly one request succeeded.
	Passed bool `json:"passed"`

	// Error is set when the check could not run at all.
	Error string `json:"error,omitempty"`
}

// DBCheckResult is the outcome of a single declarative database check.
type DBCheckResult struct {
	// Name is the check's name from the suite file.
	Name string `json:"name"`

	// Kind is the check type: "count", "orphan", or "insert".
	Kind string `json:"kind"`

	// Table is the primary table inspected.
	Table string `json:"table"`

	// Rows is the row count observed, where applicable.
	Rows int64 `json:"rows"`

	// Passed reports whether the check met its expectation.
	Passed bool `json:"passed"`

	// Detail is a human-readable explanation of the result.
	Detail string `json:"detail,omitempty"`

	// Error is the database error message when the check failed to run.
	Error string `json:"error,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ns"`
}

// DBCheckReport aggregates the results of one dbcheck invocation.
type DBCheckReport struct {
	// Suite is the suite name the checks belong to.
	Suite string `json:"suite"`

	// CheckedAt is when the checks ran.
	CheckedAt time.Time `json:"checked_at"`

	// Results holds every check result in execution order.
	Results []DBCheckResult `json:"results"`

	// Error is set when the database connection itself failed.
	Error string `json:"error,omitempty"`
}

// PassedCount returns the number of checks that passed.
func (d *DBCheckReport) PassedCount() int {
	n := 0
	for _, r := range d.Results {
		if r.Passed {
			n++
		}
	}
	return n
}

// Failed reports whether any check failed or the connection failed.
func (d *DBCheckReport) Failed() bool {
	if d.Error != "" {
		return true
	}
	return d.PassedCount() != len(d.Results)
}
