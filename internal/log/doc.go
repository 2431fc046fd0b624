// Package log provides secure logging with automatic sanitization of
// sensitive values, built on top of the standard slog package.
//
// apivet handles admin credentials and bearer tokens for the backend under
// test. The SecureHandler guarantees those never reach log output, even in
// verbose mode: attribute keys such as "password", "authorization", or
// "token" are masked, and values shaped like JWTs or Bearer headers are
// masked regardless of key name.
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log
