package client

import "errors"

// Client errors.
var (
	// ErrInvalidProxyAddress is returned when the SOCKS5 proxy address is
	// not in "host:port" format.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: must be host:port")

	// ErrInvalidBaseURL is returned when the base URL cannot be parsed or
	// has no http/https scheme.
	ErrInvalidBaseURL = errors.New("invalid base URL")

	// ErrLoginFailed is returned when the login endpoint rejects the
	// credentials or answers with a non-200 status.
	ErrLoginFailed = errors.New("admin login failed")

	// ErrNoToken is returned when the login response carries no token in
	// the configured field.
	ErrNoToken = errors.New("login response contains no access token")
)
