package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// suiteYAML is a representative suite file covering every section.
const suiteYAML = `
defaults:
  timeout: 10s
  headers:
    X-Probe: apivet
suites:
  fantasy-admin:
    baseURL: http://localhost:8080
    auth:
      loginPath: /api/v1/admin/login
      tokenField: access_token
    headers:
      X-Suite: fantasy
    endpoints:
      - name: list achievements
        group: achievements
        method: GET
        path: /api/v1/achievements
        expect: [200, 401]
      - name: share challenge
        group: social
        method: POST
        path: /api/v1/social/share
        body: '{"platform": "twitter"}'
    race:
      - name: kyc double process
        path: /api/v1/admin/kyc/documents/1/process
        requests: 2
        successStatus: 200
    database:
      dsnEnv: FANTASY_DB_URL
      counts:
        - name: matches exist
          table: matches
          min: 1
      orphans:
        - name: participants without contest
          table: contest_participants
          column: contest_id
          parentTable: contests
          parentColumn: id
      inserts:
        - name: match event insert accepted
          table: match_events
          columns: [match_id, event_type]
          values: ["1", "probe"]
  bare:
    baseURL: http://localhost:9090
    timeout: 30
    endpoints:
      - name: health
        path: /health
`

// writeSuiteFile writes content to a temp file and returns its path.
func writeSuiteFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultSuiteFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoadSuiteFile verifies parsing of a full suite file.
func TestLoadSuiteFile(t *testing.T) {
	t.Parallel()

	f, err := LoadSuiteFile(writeSuiteFile(t, suiteYAML))
	if err != nil {
		t.Fatalf("LoadSuiteFile returned error: %v", err)
	}

	t.Run("suites parsed", func(t *testing.T) {
		t.Parallel()
		if len(f.Suites) != 2 {
			t.Fatalf("parsed %d suites, want 2", len(f.Suites))
		}
	})

	t.Run("endpoint fields", func(t *testing.T) {
		t.Parallel()
		suite := f.Suites["fantasy-admin"]
		if len(suite.Endpoints) != 2 {
			t.Fatalf("parsed %d endpoints, want 2", len(suite.Endpoints))
		}
		e := suite.Endpoints[0]
		if e.Group != "achievements" || e.Path != "/api/v1/achievements" {
			t.Errorf("endpoint = %+v", e)
		}
		if len(e.Expect) != 2 || e.Expect[0] != 200 || e.Expect[1] != 401 {
			t.Errorf("Expect = %v, want [200 401]", e.Expect)
		}
	})

	t.Run("race check fields", func(t *testing.T) {
		t.Parallel()
		suite := f.Suites["fantasy-admin"]
		if len(suite.Race) != 1 {
			t.Fatalf("parsed %d race checks, want 1", len(suite.Race))
		}
		r := suite.Race[0]
		if r.RequestCount() != 2 || r.SuccessCode() != 200 || r.HTTPMethod() != "POST" {
			t.Errorf("race check = %+v", r)
		}
	})

	t.Run("database section", func(t *testing.T) {
		t.Parallel()
		db := f.Suites["fantasy-admin"].Database
		if db == nil {
			t.Fatal("database section missing")
		}
		if len(db.Counts) != 1 || len(db.Orphans) != 1 || len(db.Inserts) != 1 {
			t.Errorf("database checks = %+v", db)
		}
		if db.Orphans[0].ParentTable != "contests" {
			t.Errorf("ParentTable = %q", db.Orphans[0].ParentTable)
		}
	})

	t.Run("duration as string", func(t *testing.T) {
		t.Parallel()
		if f.Defaults.Timeout.Std() != 10*time.Second {
			t.Errorf("defaults timeout = %v, want 10s", f.Defaults.Timeout.Std())
		}
	})

	t.Run("bare integer duration is seconds", func(t *testing.T) {
		t.Parallel()
		if f.Suites["bare"].Timeout.Std() != 30*time.Second {
			t.Errorf("bare timeout = %v, want 30s", f.Suites["bare"].Timeout.Std())
		}
	})
}

// TestFileGetSuite verifies defaults merging.
func TestFileGetSuite(t *testing.T) {
	t.Parallel()

	f, err := LoadSuiteFile(writeSuiteFile(t, suiteYAML))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("suite headers merged over defaults", func(t *testing.T) {
		t.Parallel()
		suite, ok := f.GetSuite("fantasy-admin")
		if !ok {
			t.Fatal("suite not found")
		}
		if suite.Headers["X-Probe"] != "apivet" {
			t.Errorf("default header lost: %v", suite.Headers)
		}
		if suite.Headers["X-Suite"] != "fantasy" {
			t.Errorf("suite header lost: %v", suite.Headers)
		}
	})

	t.Run("default timeout applied when suite has none", func(t *testing.T) {
		t.Parallel()
		suite, _ := f.GetSuite("fantasy-admin")
		if suite.Timeout.Std() != 10*time.Second {
			t.Errorf("timeout = %v, want 10s from defaults", suite.Timeout.Std())
		}
	})

	t.Run("suite timeout wins over default", func(t *testing.T) {
		t.Parallel()
		suite, _ := f.GetSuite("bare")
		if suite.Timeout.Std() != 30*time.Second {
			t.Errorf("timeout = %v, want suite's own 30s", suite.Timeout.Std())
		}
	})

	t.Run("unknown suite", func(t *testing.T) {
		t.Parallel()
		if _, ok := f.GetSuite("nope"); ok {
			t.Error("expected ok=false for unknown suite")
		}
	})
}

// TestFileValidate covers structural suite validation.
func TestFileValidate(t *testing.T) {
	t.Parallel()

	t.Run("missing baseURL", func(t *testing.T) {
		t.Parallel()
		_, err := LoadSuiteFile(writeSuiteFile(t, "suites:\n  broken:\n    endpoints:\n      - path: /x\n"))
		if !errors.Is(err, ErrMissingBaseURL) {
			t.Errorf("expected ErrMissingBaseURL, got %v", err)
		}
	})

	t.Run("nothing to check", func(t *testing.T) {
		t.Parallel()
		_, err := LoadSuiteFile(writeSuiteFile(t, "suites:\n  empty:\n    baseURL: http://localhost\n"))
		if !errors.Is(err, ErrNoEndpoints) {
			t.Errorf("expected ErrNoEndpoints, got %v", err)
		}
	})

	t.Run("endpoint without path", func(t *testing.T) {
		t.Parallel()
		_, err := LoadSuiteFile(writeSuiteFile(t, "suites:\n  broken:\n    baseURL: http://localhost\n    endpoints:\n      - name: no path\n"))
		if err == nil {
			t.Error("expected error for endpoint without path")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		_, err := LoadSuiteFile(writeSuiteFile(t, "suites: ["))
		if err == nil {
			t.Error("expected parse error")
		}
	})
}

// TestAuthConfigCredentials verifies env-based credential resolution.
// Not parallel: manipulates the process environment.
func TestAuthConfigCredentials(t *testing.T) {
	auth := &AuthConfig{LoginPath: "/api/v1/admin/login"}

	t.Run("missing env returns ErrMissingCredentials", func(t *testing.T) {
		t.Setenv("APIVET_ADMIN_USER", "")
		t.Setenv("APIVET_ADMIN_PASSWORD", "")
		_, _, err := auth.Credentials()
		if !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("default env names", func(t *testing.T) {
		t.Setenv("APIVET_ADMIN_USER", "admin")
		t.Setenv("APIVET_ADMIN_PASSWORD", "s3cret")
		user, pass, err := auth.Credentials()
		if err != nil {
			t.Fatalf("Credentials returned error: %v", err)
		}
		if user != "admin" || pass != "s3cret" {
			t.Errorf("credentials = %q/%q", user, pass)
		}
	})

	t.Run("custom env names", func(t *testing.T) {
		custom := &AuthConfig{LoginPath: "/login", UsernameEnv: "MY_USER", PasswordEnv: "MY_PASS"}
		t.Setenv("MY_USER", "ops")
		t.Setenv("MY_PASS", "pw")
		user, pass, err := custom.Credentials()
		if err != nil {
			t.Fatalf("Credentials returned error: %v", err)
		}
		if user != "ops" || pass != "pw" {
			t.Errorf("credentials = %q/%q", user, pass)
		}
	})
}

// TestDatabaseConfigDSN verifies DSN resolution from the environment.
func TestDatabaseConfigDSN(t *testing.T) {
	t.Run("missing env returns ErrMissingDSN", func(t *testing.T) {
		t.Setenv("APIVET_DATABASE_URL", "")
		db := &DatabaseConfig{}
		if _, err := db.DSN(); !errors.Is(err, ErrMissingDSN) {
			t.Errorf("expected ErrMissingDSN, got %v", err)
		}
	})

	t.Run("custom env name", func(t *testing.T) {
		t.Setenv("FANTASY_DB_URL", "postgres://localhost/fantasy")
		db := &DatabaseConfig{DSNEnv: "FANTASY_DB_URL"}
		dsn, err := db.DSN()
		if err != nil {
			t.Fatalf("DSN returned error: %v", err)
		}
		if dsn != "postgres://localhost/fantasy" {
			t.Errorf("DSN = %q", dsn)
		}
	})
}
