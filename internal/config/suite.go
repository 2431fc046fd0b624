package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// File represents the structure of the .apivet.yaml suite file.
type File struct {
	// Suites maps suite names to their definitions. Each suite describes
	// one backend deployment to verify.
	Suites map[string]Suite `yaml:"suites,omitempty"`

	// Defaults contains settings applied to every suite unless the suite
	// overrides them.
	Defaults SuiteDefaults `yaml:"defaults,omitempty"`
}

// SuiteDefaults holds file-wide defaults.
type SuiteDefaults struct {
	// Timeout is the default per-request timeout for all suites.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Headers are HTTP headers sent with every request of every suite.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Suite describes one backend deployment: how to authenticate against it,
// which routes to probe, and which database invariants to check.
type Suite struct {
	// BaseURL is the backend root, e.g. "http://localhost:8080".
	// Endpoint paths are resolved relative to it.
	BaseURL string `yaml:"baseURL"`

	// Auth configures the admin login performed before probing.
	// A nil Auth means the suite probes unauthenticated.
	Auth *AuthConfig `yaml:"auth,omitempty"`

	// Timeout overrides the global per-request timeout for this suite.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Headers are extra HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Endpoints lists the routes to probe, in order.
	Endpoints []EndpointConfig `yaml:"endpoints,omitempty"`

	// Race lists concurrency checks: N identical requests fired at once
	// where exactly one is expected to succeed.
	Race []RaceConfig `yaml:"race,omitempty"`

	// Database configures the declarative PostgreSQL state checks run by
	// 'apivet dbcheck'. Probe runs ignore this section.
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// AuthConfig describes the admin login endpoint and where the credentials
// come from. Credentials live in the environment, never in the file.
type AuthConfig struct {
	// LoginPath is the login route, e.g. "/api/v1/admin/login".
	LoginPath string `yaml:"loginPath"`

	// UsernameEnv and PasswordEnv name the environment variables holding
	// the credentials. Defaults: APIVET_ADMIN_USER, APIVET_ADMIN_PASSWORD.
	UsernameEnv string `yaml:"usernameEnv,omitempty"`
	PasswordEnv string `yaml:"passwordEnv,omitempty"`

	// TokenField is the JSON field of the login response carrying the
	// bearer token. Default: "access_token".
	TokenField string `yaml:"tokenField,omitempty"`
}

// Credentials reads the admin credentials from the environment.
// Returns ErrMissingCredentials when either variable is unset or empty.
func (a *AuthConfig) Credentials() (username, password string, err error) {
	userEnv := a.UsernameEnv
	if userEnv == "" {
		userEnv = "APIVET_ADMIN_USER"
	}
	passEnv := a.PasswordEnv
	if passEnv == "" {
		passEnv = "APIVET_ADMIN_PASSWORD"
	}

	username = os.Getenv(userEnv)
	password = os.Getenv(passEnv)
	if username == "" || password == "" {
		return "", "", fmt.Errorf("%w (set %s and %s)", ErrMissingCredentials, userEnv, passEnv)
	}
	return username, password, nil
}

// TokenFieldName returns the configured token field or its default.
func (a *AuthConfig) TokenFieldName() string {
	if a.TokenField == "" {
		return "access_token"
	}
	return a.TokenField
}

// EndpointConfig describes one route to probe.
type EndpointConfig struct {
	// Name is a human-readable label for reports.
	Name string `yaml:"name"`

	// Group is an optional feature group for summary breakdowns.
	Group string `yaml:"group,omitempty"`

	// Method is the HTTP method. Default: GET.
	Method string `yaml:"method,omitempty"`

	// Path is the route path relative to the suite base URL.
	Path string `yaml:"path"`

	// Body is an optional raw JSON request body.
	Body string `yaml:"body,omitempty"`

	// Headers are extra headers for this endpoint only.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Expect lists acceptable status codes. Empty means any routed
	// status (anything but 404) is acceptable.
	Expect []int `yaml:"expect,omitempty"`

	// SkipAuth probes this endpoint without the bearer token, to verify
	// that protected routes actually reject anonymous requests.
	SkipAuth bool `yaml:"skipAuth,omitempty"`
}

// HTTPMethod returns the configured method or "GET".
func (e *EndpointConfig) HTTPMethod() string {
	if e.Method == "" {
		return "GET"
	}
	return e.Method
}

// RaceConfig describes a concurrency check against one route.
type RaceConfig struct {
	// Name is a human-readable label for reports.
	Name string `yaml:"name"`

	// Method is the HTTP method. Default: POST, since race checks target
	// state-changing routes.
	Method string `yaml:"method,omitempty"`

	// Path is the route path relative to the suite base URL.
	Path string `yaml:"path"`

	// Body is an optional raw JSON request body sent by every request.
	Body string `yaml:"body,omitempty"`

	// Requests is how many identical requests to fire concurrently.
	// Default: DefaultRaceRequests.
	Requests int `yaml:"requests,omitempty"`

	// SuccessStatus is the status that counts as the single allowed
	// success. Default: 200.
	SuccessStatus int `yaml:"successStatus,omitempty"`
}

// HTTPMethod returns the configured method or "POST".
func (r *RaceConfig) HTTPMethod() string {
	if r.Method == "" {
		return "POST"
	}
	return r.Method
}

// RequestCount returns the configured request count or the default.
func (r *RaceConfig) RequestCount() int {
	if r.Requests <= 0 {
		return DefaultRaceRequests
	}
	return r.Requests
}

// SuccessCode returns the configured success status or 200.
func (r *RaceConfig) SuccessCode() int {
	if r.SuccessStatus == 0 {
		return 200
	}
	return r.SuccessStatus
}

// DatabaseConfig describes the PostgreSQL checks for a suite.
type DatabaseConfig struct {
	// DSNEnv names the environment variable holding the connection
	// string. Default: APIVET_DATABASE_URL.
	DSNEnv string `yaml:"dsnEnv,omitempty"`

	// Counts are row-count checks.
	Counts []CountCheck `yaml:"counts,omitempty"`

	// Orphans are referential-integrity checks via anti-joins.
	Orphans []OrphanCheck `yaml:"orphans,omitempty"`

	// Inserts are INSERT probes executed inside BEGIN ... ROLLBACK.
	Inserts []InsertCheck `yaml:"inserts,omitempty"`
}

// DSN reads the connection string from the environment.
// Returns ErrMissingDSN when the variable is unset or empty.
func (d *DatabaseConfig) DSN() (string, error) {
	env := d.DSNEnv
	if env == "" {
		env = "APIVET_DATABASE_URL"
	}
	dsn := os.Getenv(env)
	if dsn == "" {
		return "", fmt.Errorf("%w (set %s)", ErrMissingDSN, env)
	}
	return dsn, nil
}

// CountCheck asserts bounds on a table's row count.
type CountCheck struct {
	// Name is a human-readable label for reports.
	Name string `yaml:"name"`

	// Table is the table to count.
	Table string `yaml:"table"`

	// Where is an optional WHERE clause body (without the keyword).
	Where string `yaml:"where,omitempty"`

	// Min and Max bound the acceptable count. Max zero means unbounded.
	Min int64 `yaml:"min,omitempty"`
	Max int64 `yaml:"max,omitempty"`
}

// OrphanCheck asserts that no child row references a missing parent.
type OrphanCheck struct {
	// Name is a human-readable label for reports.
	Name string `yaml:"name"`

	// Table and Column identify the child foreign key.
	Table  string `yaml:"table"`
	Column string `yaml:"column"`

	// ParentTable and ParentColumn identify the referenced parent key.
	ParentTable  string `yaml:"parentTable"`
	ParentColumn string `yaml:"parentColumn"`
}

// InsertCheck probes that a table accepts an INSERT, without committing.
type InsertCheck struct {
	// Name is a human-readable label for reports.
	Name string `yaml:"name"`

	// Table is the table to insert into.
	Table string `yaml:"table"`

	// Columns and Values describe the row. Values are bound as
	// placeholders, never interpolated.
	Columns []string `yaml:"columns"`
	Values  []string `yaml:"values"`
}

// SuiteNames returns the suite names in sorted order for stable output.
func (f *File) SuiteNames() []string {
	names := make([]string, 0, len(f.Suites))
	for name := range f.Suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSuite returns the named suite with file-wide defaults merged in.
func (f *File) GetSuite(name string) (Suite, bool) {
	suite, ok := f.Suites[name]
	if !ok {
		return Suite{}, false
	}

	if suite.Timeout == 0 {
		suite.Timeout = f.Defaults.Timeout
	}
	if len(f.Defaults.Headers) > 0 {
		merged := make(map[string]string, len(f.Defaults.Headers)+len(suite.Headers))
		for k, v := range f.Defaults.Headers {
			merged[k] = v
		}
		for k, v := range suite.Headers {
			merged[k] = v
		}
		suite.Headers = merged
	}

	return suite, true
}

// Validate checks every suite for structural problems.
func (f *File) Validate() error {
	for name, suite := range f.Suites {
		if suite.BaseURL == "" {
			return fmt.Errorf("suite %q: %w", name, ErrMissingBaseURL)
		}
		if len(suite.Endpoints) == 0 && len(suite.Race) == 0 && suite.Database == nil {
			return fmt.Errorf("suite %q: %w", name, ErrNoEndpoints)
		}
		for i, e := range suite.Endpoints {
			if e.Path == "" {
				return fmt.Errorf("suite %q: endpoint %d has no path", name, i)
			}
		}
		for i, r := range suite.Race {
			if r.Path == "" {
				return fmt.Errorf("suite %q: race check %d has no path", name, i)
			}
		}
	}
	return nil
}

// Duration wraps time.Duration with YAML support for strings like "15s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
// Accepts either a duration string ("30s", "2m") or a bare integer,
// interpreted as seconds to match how the original verification scripts
// expressed timeouts.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
