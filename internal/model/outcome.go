package model

import "net/http"

// Outcome classifies the result of probing a single endpoint.
//
// Design decision: We classify by routing rather than by success because
// the primary question a probe answers is "does this route exist on the
// deployed backend". A 401 or 400 still proves the route is wired; only
// a 404 proves it is not. This matches how deployment verification is
// done in practice: authorization failures are a separate concern.
type Outcome int

const (
	// OutcomeAccessible means the endpoint is routed: the backend returned
	// any HTTP status other than 404. Unauthorized (401) and bad request
	// (400) responses still count as accessible.
	OutcomeAccessible Outcome = iota

	// OutcomeMissing means the backend returned 404: the route is not
	// registered on the deployment under test.
	OutcomeMissing

	// OutcomeUnexpected means the endpoint is routed but the status code
	// is outside the endpoint's declared expected set.
	OutcomeUnexpected

	// OutcomeUnreachable means the request never produced an HTTP status:
	// connection refused, timeout, or another transport-level failure.
	OutcomeUnreachable
)

// String returns the human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccessible:
		return "accessible"
	case OutcomeMissing:
		return "missing"
	case OutcomeUnexpected:
		return "unexpected"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so Outcome serializes
// as its name in JSON and YAML output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Unknown names are mapped to OutcomeUnreachable rather than returning an
// error so that reports written by newer versions remain loadable.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "accessible":
		*o = OutcomeAccessible
	case "missing":
		*o = OutcomeMissing
	case "unexpected":
		*o = OutcomeUnexpected
	default:
		*o = OutcomeUnreachable
	}
	return nil
}

// Failed reports whether the outcome counts against the deployment.
// Accessible endpoints pass; everything else is a defect signal.
func (o Outcome) Failed() bool {
	return o != OutcomeAccessible
}

// Classify determines the outcome for a probe result.
//
// statusCode is zero when the request failed at the transport level.
// expected is the endpoint's declared set of acceptable status codes;
// when empty, any routed status is acceptable.
func Classify(statusCode int, expected []int) Outcome {
	if statusCode == 0 {
		return OutcomeUnreachable
	}
	if statusCode == http.StatusNotFound {
		return OutcomeMissing
	}
	if len(expected) == 0 {
		return OutcomeAccessible
	}
	for _, want := range expected {
		if statusCode == want {
			return OutcomeAccessible
		}
	}
	return OutcomeUnexpected
}
