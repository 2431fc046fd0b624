// Package model defines the data structures shared across apivet:
// probe outcomes, per-endpoint results, run reports, and summaries.
package model
