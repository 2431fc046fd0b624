package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/apivet/apivet/internal/model"
)

// DB provides SQLite-based storage for probe runs and pinned baselines.
// It manages connection pooling and provides methods for CRUD operations.
//
// Design decision: We use a single database file covering every suite
// rather than one file per suite. Comparison queries span suites (list
// all suites, latest run per suite) and a single file keeps those cheap.
type DB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures DB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the run history database at the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned; compare refuses to invent history.
func Open(dbDir string, opts Options) (*DB, error) {
	dbPath := filepath.Join(dbDir, "apivet.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("run history not found at %s (run 'apivet probe' first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &DB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (hdb *DB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *DB) createTables() error {
	schema := `
	-- Probe runs store complete run reports as JSON plus queryable columns
	CREATE TABLE IF NOT EXISTS probe_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		suite TEXT NOT NULL,
		base_url TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		accessible_percent REAL,
		failing_endpoints INTEGER,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_suite ON probe_runs(suite);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON probe_runs(timestamp);

	-- Endpoint results flattened out of the report for per-route queries
	CREATE TABLE IF NOT EXISTS endpoint_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		suite TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER,
		outcome TEXT NOT NULL,
		latency_ms INTEGER,
		FOREIGN KEY (run_id) REFERENCES probe_runs(run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON endpoint_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_route ON endpoint_results(suite, method, path);

	-- Baselines pin one run per suite as the comparison reference
	CREATE TABLE IF NOT EXISTS baselines (
		suite TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		pinned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES probe_runs(run_id)
	);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun persists a complete probe report.
// The full report is stored as JSON; summary columns and flattened
// endpoint rows are duplicated out of it for queries.
func (hdb *DB) SaveRun(ctx context.Context, report *model.ProbeReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	var accessiblePercent float64
	var failing int
	if report.Summary != nil {
		accessiblePercent = report.Summary.AccessiblePercent
		failing = len(report.Summary.FailingEndpoints)
	}

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op

	query := `
	INSERT INTO probe_runs (run_id, suite, base_url, accessible_percent, failing_endpoints, report_json)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		report.RunID,
		report.Suite,
		report.BaseURL,
		accessiblePercent,
		failing,
		string(reportJSON),
	); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	resultQuery := `
	INSERT INTO endpoint_results (run_id, suite, method, path, status_code, outcome, latency_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, r := range report.Results {
		if _, err := tx.ExecContext(ctx, resultQuery,
			report.RunID,
			report.Suite,
			r.Method,
			r.Path,
			r.StatusCode,
			r.Outcome.String(),
			r.Latency.Milliseconds(),
		); err != nil {
			return fmt.Errorf("failed to save endpoint result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// GetRunByID retrieves a run by its run ID.
// Returns nil without error when no such run exists.
func (hdb *DB) GetRunByID(ctx context.Context, runID string) (*model.ProbeReport, error) {
	query := `
	SELECT report_json FROM probe_runs
	WHERE run_id = ?
	`

	var reportJSON string
	err := hdb.db.QueryRowContext(ctx, query, runID).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.ProbeReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// GetLatestRun retrieves the most recent run for a suite.
// Returns nil without error when the suite has no runs.
func (hdb *DB) GetLatestRun(ctx context.Context, suite string) (*model.ProbeReport, error) {
	query := `
	SELECT report_json FROM probe_runs
	WHERE suite = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`

	var reportJSON string
	err := hdb.db.QueryRowContext(ctx, query, suite).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	var report model.ProbeReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// GetRunBefore retrieves the most recent run for a suite strictly older
// than the given run. Used as the default comparison reference when no
// baseline is pinned.
func (hdb *DB) GetRunBefore(ctx context.Context, suite, runID string) (*model.ProbeReport, error) {
	query := `
	SELECT report_json FROM probe_runs
	WHERE suite = ?
	  AND id < (SELECT id FROM probe_runs WHERE run_id = ?)
	ORDER BY id DESC
	LIMIT 1
	`

	var reportJSON string
	err := hdb.db.QueryRowContext(ctx, query, suite, runID).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preceding run: %w", err)
	}

	var report model.ProbeReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// RunMetadata contains summary information about a stored run.
// This is used for displaying run history without loading full reports.
type RunMetadata struct {
	// ID is the unique identifier of the run row in the database.
	ID int64

	// RunID is the run's UUID.
	RunID string

	// Suite is the suite the run probed.
	Suite string

	// BaseURL is the backend the run probed.
	BaseURL string

	// Timestamp is when the run was saved.
	Timestamp time.Time

	// AccessiblePercent is the run's accessibility percentage.
	AccessiblePercent float64

	// FailingEndpoints is the number of endpoints that failed.
	FailingEndpoints int
}

// GetRunHistory retrieves run metadata for a suite, newest first.
// since limits results to runs saved after that time; pass the zero
// time for no limit.
func (hdb *DB) GetRunHistory(ctx context.Context, suite string, since time.Time) ([]RunMetadata, error) {
	query := `
	SELECT id, run_id, suite, base_url, timestamp, accessible_percent, failing_endpoints
	FROM probe_runs
	WHERE suite = ?
	`
	args := []any{suite}

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since.UTC().Format("2006-01-02 15:04:05"))
	}

	query += " ORDER BY id DESC"

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var timestamp string

		if err := rows.Scan(
			&meta.ID,
			&meta.RunID,
			&meta.Suite,
			&meta.BaseURL,
			&timestamp,
			&meta.AccessiblePercent,
			&meta.FailingEndpoints,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}

		meta.Timestamp = parseTimestamp(timestamp)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListSuites returns every suite name with stored runs.
func (hdb *DB) ListSuites(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT suite FROM probe_runs
	ORDER BY suite
	`

	rows, err := hdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list suites: %w", err)
	}
	defer rows.Close()

	var suites []string
	for rows.Next() {
		var suite string
		if err := rows.Scan(&suite); err != nil {
			return nil, fmt.Errorf("failed to scan suite: %w", err)
		}
		suites = append(suites, suite)
	}

	return suites, rows.Err()
}

// PinBaseline marks a stored run as the suite's comparison baseline.
// Pinning replaces any earlier baseline for the suite.
func (hdb *DB) PinBaseline(ctx context.Context, suite, runID string) error {
	run, err := hdb.GetRunByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	if run.Suite != suite {
		return fmt.Errorf("run %s belongs to suite %q, not %q", runID, run.Suite, suite)
	}

	query := `
	INSERT INTO baselines (suite, run_id)
	VALUES (?, ?)
	ON CONFLICT(suite) DO UPDATE SET
		run_id = excluded.run_id,
		pinned_at = CURRENT_TIMESTAMP
	`

	if _, err := hdb.db.ExecContext(ctx, query, suite, runID); err != nil {
		return fmt.Errorf("failed to pin baseline: %w", err)
	}

	return nil
}

// GetBaseline retrieves the pinned baseline run for a suite.
// Returns nil without error when the suite has no pinned baseline.
func (hdb *DB) GetBaseline(ctx context.Context, suite string) (*model.ProbeReport, error) {
	query := `
	SELECT run_id FROM baselines
	WHERE suite = ?
	`

	var runID string
	err := hdb.db.QueryRowContext(ctx, query, suite).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	return hdb.GetRunByID(ctx, runID)
}

// RouteHistory returns the recorded outcomes of one route across runs of
// a suite, newest first. Useful when diagnosing a route that flaps.
type RouteHistory struct {
	// RunID is the run the observation belongs to.
	RunID string

	// StatusCode is the status observed.
	StatusCode int

	// Outcome is the classified outcome.
	Outcome string
}

// GetRouteHistory returns the outcome of one route across stored runs.
func (hdb *DB) GetRouteHistory(ctx context.Context, suite, method, path string) ([]RouteHistory, error) {
	query := `
	SELECT run_id, status_code, outcome
	FROM endpoint_results
	WHERE suite = ? AND method = ? AND path = ?
	ORDER BY id DESC
	`

	rows, err := hdb.db.QueryContext(ctx, query, suite, method, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get route history: %w", err)
	}
	defer rows.Close()

	var results []RouteHistory
	for rows.Next() {
		var rh RouteHistory
		if err := rows.Scan(&rh.RunID, &rh.StatusCode, &rh.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan route history: %w", err)
		}
		results = append(results, rh)
	}

	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
