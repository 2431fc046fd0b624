// Package dbcheck runs declarative PostgreSQL state checks against the
// verified backend's database.
//
// Three check kinds are supported: row counts with optional bounds,
// orphan detection via anti-joins, and INSERT probes executed inside a
// transaction that is always rolled back. Together they answer the
// questions a deployment verification asks of the database: do the
// expected tables exist and hold data, is referential integrity intact,
// and do the DB-level constraints accept a well-formed row.
//
// Checks never commit. The insert probe exists to surface constraint and
// schema drift, not to write data.
package dbcheck
