// Package history provides SQLite-based storage for probe run reports.
//
// Every probe run can be persisted together with its summary, which is
// what makes 'apivet compare' possible: the latest run is diffed against
// an earlier run or a pinned baseline without re-probing the backend.
//
// The database lives in the XDG data directory by default and is safe to
// delete; it only holds derived data.
package history
