package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors.
//
// Design decision: We use package-level sentinel errors so callers can
// branch with errors.Is while still getting a human-readable message.
var (
	// ErrNoSuite is returned when no suite file is loaded or the file
	// defines no suites.
	ErrNoSuite = errors.New("no suites defined: run 'apivet init' to create a suite file")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrSuiteFileNotFound is returned when the suite file does not exist.
	ErrSuiteFileNotFound = errors.New("suite file not found")

	// ErrMissingBaseURL is returned when a suite declares no base URL.
	ErrMissingBaseURL = errors.New("suite has no baseURL")

	// ErrNoEndpoints is returned when a suite declares neither endpoints
	// nor race checks nor database checks.
	ErrNoEndpoints = errors.New("suite declares nothing to check")

	// ErrMissingCredentials is returned when the environment variables
	// named by a suite's auth section are unset.
	ErrMissingCredentials = errors.New("admin credentials not found in environment")

	// ErrMissingDSN is returned when a dbcheck run has no DSN available.
	ErrMissingDSN = errors.New("database DSN not found in environment")
)

// UnknownSuiteError is returned when a requested suite name does not
// appear in the suite file.
type UnknownSuiteError struct {
	// Name is the suite name that was requested.
	Name string
}

// Error implements the error interface.
func (e *UnknownSuiteError) Error() string {
	return fmt.Sprintf("unknown suite %q (check the suite file)", e.Name)
}
