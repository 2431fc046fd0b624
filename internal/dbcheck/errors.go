package dbcheck

import "errors"

var (
	// ErrInvalidIdentifier is returned when a table or column name from
	// the suite file is not a plain SQL identifier.
	ErrInvalidIdentifier = errors.New("invalid SQL identifier")

	// ErrColumnValueMismatch is returned when an insert check declares a
	// different number of columns and values.
	ErrColumnValueMismatch = errors.New("insert check columns and values differ in length")

	// ErrNoChecks is returned when the suite's database section declares
	// no checks at all.
	ErrNoChecks = errors.New("no database checks declared")
)
