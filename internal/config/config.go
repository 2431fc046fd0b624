package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. These are chosen to match how backend
// verification runs behave against a locally deployed service.
const (
	// DefaultTimeout is the per-request timeout. Backends under test are
	// usually local or on the same network, so 15 seconds is generous
	// while still failing fast on a wedged deployment.
	DefaultTimeout = 15 * time.Second

	// DefaultBatchSize is the number of suites probed concurrently when
	// several suites are selected. Endpoint probes within a suite stay
	// sequential so results are deterministic and the backend is not
	// hammered by its own verification tool.
	DefaultBatchSize = 4

	// DefaultMaxBodySize limits how much of a response body is read.
	// Probe classification only needs the status code and a snippet of
	// the body for diagnosis; 1MB is far more than any error payload.
	DefaultMaxBodySize = 1 * 1024 * 1024

	// DefaultBodySnippetSize is how many response bytes are kept in the
	// report for diagnosis.
	DefaultBodySnippetSize = 512

	// DefaultRaceRequests is the number of concurrent requests fired by a
	// race check when the suite does not specify one. Two is the minimum
	// that can expose a double-processing bug.
	DefaultRaceRequests = 2

	// AppName is the application name used for XDG directory paths.
	AppName = "apivet"
)

// Config holds all runtime options for apivet.
// It is populated from CLI flags and passed through the application via
// dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// because the number of options is manageable and nesting would add
// complexity without benefit.
type Config struct {
	// SuiteFilePath is the path to the suite file. If empty, the tool
	// searches for .apivet.yaml in the current directory and then in the
	// user's home directory.
	SuiteFilePath string

	// Suites holds the suite definitions loaded from the suite file.
	Suites *File

	// Targets is the list of suite names to run. Empty means every suite
	// defined in the file.
	Targets []string

	// Timeout is the per-request timeout. A suite may override it.
	Timeout time.Duration

	// BatchSize is the number of suites probed concurrently.
	BatchSize int

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format for
	// reaching backends behind a bastion. Empty means direct connection.
	ProxyAddress string

	// Insecure disables TLS certificate verification. Useful against
	// staging deployments with self-signed certificates.
	Insecure bool

	// MaxBodySize is the maximum response body size in bytes to read.
	// Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// Verbose enables debug-level log output.
	Verbose bool

	// JSONReport selects JSON report output.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown report output.
	MarkdownReport bool

	// ReportFile writes the report to this path instead of stdout.
	ReportFile string

	// SaveToDB controls whether runs are persisted to the history
	// database for later comparison.
	SaveToDB bool

	// DBDir is the directory holding the SQLite history database.
	// Defaults to the XDG data directory.
	DBDir string

	// DSNOverride replaces the suite's database DSN for dbcheck runs.
	DSNOverride string
}

// NewConfig creates a Config with default values.
//
// Design decision: We use a constructor instead of relying on zero values
// because most defaults are non-zero, and the constructor documents them.
func NewConfig() *Config {
	return &Config{
		Timeout:     DefaultTimeout,
		BatchSize:   DefaultBatchSize,
		MaxBodySize: DefaultMaxBodySize,
		SaveToDB:    true,
	}
}

// XDGDataDir returns the XDG data directory for apivet.
// On Linux: ~/.local/share/apivet
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for apivet.
// On Linux: ~/.config/apivet
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks that the configuration is usable.
// It returns the first problem found as a package sentinel error, so the
// CLI can fail fast with a clear message before any request is sent.
func (c *Config) Validate() error {
	if c.Suites == nil || len(c.Suites.Suites) == 0 {
		return ErrNoSuite
	}

	for _, name := range c.Targets {
		if _, ok := c.Suites.Suites[name]; !ok {
			return &UnknownSuiteError{Name: name}
		}
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}

// SelectedSuites returns the suites to run, in a stable order.
// When Targets is empty, all suites in the file are returned.
func (c *Config) SelectedSuites() []string {
	if len(c.Targets) > 0 {
		return c.Targets
	}
	return c.Suites.SuiteNames()
}
