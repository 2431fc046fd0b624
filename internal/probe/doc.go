// Package probe orchestrates a suite run as a pipeline of steps:
// login, endpoint probing, race checks, and summary generation.
// A batch processor runs multiple suites concurrently.
package probe
