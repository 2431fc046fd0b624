package dbcheck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/apivet/apivet/internal/config"
	"github.com/apivet/apivet/internal/model"
)

// identifierPattern matches plain SQL identifiers. Table and column
// names from the suite file are rejected unless they match, since they
// are interpolated into query text. Row values never are; they go
// through placeholders.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Checker runs declarative checks against a PostgreSQL database.
type Checker struct {
	// db is the underlying SQL database connection pool.
	db *sql.DB

	// logger is used for structured logging during checks.
	logger *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets a custom logger for the checker.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// Open connects to the database identified by dsn and verifies the
// connection with a ping bounded by ctx.
func Open(ctx context.Context, dsn string, opts ...Option) (*Checker, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	c := &Checker{db: db}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c, nil
}

// NewChecker wraps an existing connection pool. Used by tests.
func NewChecker(db *sql.DB, opts ...Option) *Checker {
	c := &Checker{db: db}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Close closes the database connection.
func (c *Checker) Close() error {
	return c.db.Close()
}

// Run executes every declared check and returns the aggregated report.
// Individual check failures are recorded in the report; the error return
// is reserved for an empty check list.
func (c *Checker) Run(ctx context.Context, suite string, cfg *config.DatabaseConfig) (*model.DBCheckReport, error) {
	if cfg == nil || (len(cfg.Counts) == 0 && len(cfg.Orphans) == 0 && len(cfg.Inserts) == 0) {
		return nil, ErrNoChecks
	}

	report := &model.DBCheckReport{
		Suite:     suite,
		CheckedAt: time.Now(),
	}

	for _, check := range cfg.Counts {
		report.Results = append(report.Results, c.runCount(ctx, check))
	}
	for _, check := range cfg.Orphans {
		report.Results = append(report.Results, c.runOrphan(ctx, check))
	}
	for _, check := range cfg.Inserts {
		report.Results = append(report.Results, c.runInsert(ctx, check))
	}

	c.logger.Info("database checks finished",
		"suite", suite,
		"total", len(report.Results),
		"passed", report.PassedCount(),
	)

	return report, nil
}

// runCount executes one row-count check.
func (c *Checker) runCount(ctx context.Context, check config.CountCheck) model.DBCheckResult {
	result := model.DBCheckResult{
		Name:  check.Name,
		Kind:  "count",
		Table: check.Table,
	}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if !identifierPattern.MatchString(check.Table) {
		result.Error = fmt.Sprintf("%v: %q", ErrInvalidIdentifier, check.Table)
		return result
	}

	// The WHERE body comes from the operator's own suite file, the same
	// trust level as the DSN itself.
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", check.Table)
	if check.Where != "" {
		query += " WHERE " + check.Where
	}

	var count int64
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		result.Error = err.Error()
		return result
	}

	result.Rows = count
	result.Passed, result.Detail = evaluateCount(count, check.Min, check.Max)

	c.logger.Debug("count check finished",
		"check", check.Name,
		"table", check.Table,
		"rows", count,
		"passed", result.Passed,
	)

	return result
}

// evaluateCount applies the min/max bounds to an observed count.
// Max zero means unbounded above.
func evaluateCount(count, min, max int64) (bool, string) {
	switch {
	case count < min:
		return false, fmt.Sprintf("%d rows, expected at least %d", count, min)
	case max > 0 && count > max:
		return false, fmt.Sprintf("%d rows, expected at most %d", count, max)
	default:
		return true, fmt.Sprintf("%d rows", count)
	}
}

// runOrphan executes one referential-integrity check. It counts child
// rows whose foreign key matches no parent row. Any orphans fail the
// check: an orphaned contest participant means a contest was deleted
// without cascading.
func (c *Checker) runOrphan(ctx context.Context, check config.OrphanCheck) model.DBCheckResult {
	result := model.DBCheckResult{
		Name:  check.Name,
		Kind:  "orphan",
		Table: check.Table,
	}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for _, ident := range []string{check.Table, check.Column, check.ParentTable, check.ParentColumn} {
		if !identifierPattern.MatchString(ident) {
			result.Error = fmt.Sprintf("%v: %q", ErrInvalidIdentifier, ident)
			return result
		}
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE c.%s IS NOT NULL AND p.%s IS NULL",
		check.Table, check.ParentTable, check.Column, check.ParentColumn, check.Column, check.ParentColumn,
	)

	var orphans int64
	if err := c.db.QueryRowContext(ctx, query).Scan(&orphans); err != nil {
		result.Error = err.Error()
		return result
	}

	result.Rows = orphans
	result.Passed = orphans == 0
	if orphans == 0 {
		result.Detail = "no orphaned rows"
	} else {
		result.Detail = fmt.Sprintf("%d rows in %s.%s reference missing %s.%s",
			orphans, check.Table, check.Column, check.ParentTable, check.ParentColumn)
	}

	c.logger.Debug("orphan check finished",
		"check", check.Name,
		"table", check.Table,
		"orphans", orphans,
		"passed", result.Passed,
	)

	return result
}

// runInsert executes one INSERT probe inside a transaction that is
// always rolled back. A rejected insert surfaces schema drift or a
// constraint the backend's own writes would also hit.
func (c *Checker) runInsert(ctx context.Context, check config.InsertCheck) model.DBCheckResult {
	result := model.DBCheckResult{
		Name:  check.Name,
		Kind:  "insert",
		Table: check.Table,
	}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	query, args, err := buildInsertQuery(check)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	// The probe must never persist anything
	defer tx.Rollback() //nolint:errcheck // Rollback is the point of the probe

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		result.Error = err.Error()
		result.Detail = "insert rejected"
		return result
	}

	affected, err := res.RowsAffected()
	if err == nil {
		result.Rows = affected
	}
	result.Passed = true
	result.Detail = "insert accepted, rolled back"

	c.logger.Debug("insert check finished",
		"check", check.Name,
		"table", check.Table,
		"passed", result.Passed,
	)

	return result
}

// buildInsertQuery builds the parameterized INSERT for an insert check.
// Identifiers are validated; values always go through placeholders.
func buildInsertQuery(check config.InsertCheck) (string, []any, error) {
	if len(check.Columns) != len(check.Values) {
		return "", nil, fmt.Errorf("%w: %d columns, %d values",
			ErrColumnValueMismatch, len(check.Columns), len(check.Values))
	}
	if len(check.Columns) == 0 {
		return "", nil, fmt.Errorf("%w: no columns", ErrColumnValueMismatch)
	}

	if !identifierPattern.MatchString(check.Table) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, check.Table)
	}
	for _, col := range check.Columns {
		if !identifierPattern.MatchString(col) {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, col)
		}
	}

	placeholders := make([]string, len(check.Values))
	args := make([]any, len(check.Values))
	for i, v := range check.Values {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = v
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		check.Table,
		strings.Join(check.Columns, ", "),
		strings.Join(placeholders, ", "),
	)

	return query, args, nil
}
