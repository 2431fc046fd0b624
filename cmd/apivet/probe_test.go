package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apivet/apivet/internal/config"
	"github.com/apivet/apivet/internal/model"
)

// TestNewProbeCmd tests the probe command creation.
func TestNewProbeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewProbeCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "probe [suite-name...]" {
			t.Errorf("expected use 'probe [suite-name...]', got %q", cmd.Use)
		}
	})

	t.Run("has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
	})

	t.Run("has long description", func(t *testing.T) {
		t.Parallel()
		if cmd.Long == "" {
			t.Error("expected non-empty long description")
		}
	})

	t.Run("has config flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("config")
		if flag == nil {
			t.Fatal("expected config flag")
		}
		if flag.Shorthand != "c" {
			t.Errorf("expected shorthand 'c', got %q", flag.Shorthand)
		}
	})

	t.Run("has timeout flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("timeout")
		if flag == nil {
			t.Fatal("expected timeout flag")
		}
		if flag.Shorthand != "t" {
			t.Errorf("expected shorthand 't', got %q", flag.Shorthand)
		}
	})

	t.Run("has proxy flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("proxy")
		if flag == nil {
			t.Fatal("expected proxy flag")
		}
		if flag.Shorthand != "x" {
			t.Errorf("expected shorthand 'x', got %q", flag.Shorthand)
		}
	})

	t.Run("has batch flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("batch")
		if flag == nil {
			t.Fatal("expected batch flag")
		}
		if flag.Shorthand != "b" {
			t.Errorf("expected shorthand 'b', got %q", flag.Shorthand)
		}
		if flag.DefValue != "4" {
			t.Errorf("expected default '4', got %q", flag.DefValue)
		}
	})

	t.Run("has report format flags", func(t *testing.T) {
		t.Parallel()
		for flag, shorthand := range map[string]string{
			"json":     "j",
			"markdown": "m",
			"output":   "o",
		} {
			f := cmd.Flags().Lookup(flag)
			if f == nil {
				t.Errorf("expected %s flag", flag)
				continue
			}
			if f.Shorthand != shorthand {
				t.Errorf("flag %q: expected shorthand %q, got %q", flag, shorthand, f.Shorthand)
			}
		}
	})

	t.Run("has no-save flag", func(t *testing.T) {
		t.Parallel()
		if cmd.Flags().Lookup("no-save") == nil {
			t.Error("expected no-save flag")
		}
	})
}

// writeSuiteFile writes a minimal suite file and returns its path.
func writeSuiteFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".apivet.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write suite file: %v", err)
	}
	return path
}

const testSuiteYAML = `
suites:
  local:
    baseURL: http://localhost:8080
    endpoints:
      - name: health
        path: /api/v1/health
        skipAuth: true
`

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()

		path := writeSuiteFile(t, testSuiteYAML)

		cmd := NewProbeCmd()
		if err := cmd.ParseFlags([]string{"-c", path}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}

		if cfg.Timeout != config.DefaultTimeout {
			t.Errorf("expected default timeout, got %v", cfg.Timeout)
		}
		if cfg.BatchSize != config.DefaultBatchSize {
			t.Errorf("expected default batch size, got %d", cfg.BatchSize)
		}
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to default to true")
		}
		if cfg.Suites == nil {
			t.Fatal("expected suites to be loaded")
		}
		if _, ok := cfg.Suites.GetSuite("local"); !ok {
			t.Error("expected suite 'local' to be loaded")
		}
	})

	t.Run("parses flags", func(t *testing.T) {
		t.Parallel()

		path := writeSuiteFile(t, testSuiteYAML)

		cmd := NewProbeCmd()
		args := []string{
			"-c", path,
			"-t", "30s",
			"-x", "127.0.0.1:1080",
			"--insecure",
			"-b", "2",
			"-j",
			"-o", "report.json",
			"--no-save",
		}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"local"})
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}

		if cfg.Timeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", cfg.Timeout)
		}
		if cfg.ProxyAddress != "127.0.0.1:1080" {
			t.Errorf("unexpected proxy address: %q", cfg.ProxyAddress)
		}
		if !cfg.Insecure {
			t.Error("expected Insecure to be true")
		}
		if cfg.BatchSize != 2 {
			t.Errorf("expected batch size 2, got %d", cfg.BatchSize)
		}
		if !cfg.JSONReport {
			t.Error("expected JSONReport to be true")
		}
		if cfg.ReportFile != "report.json" {
			t.Errorf("unexpected report file: %q", cfg.ReportFile)
		}
		if cfg.SaveToDB {
			t.Error("expected SaveToDB to be false with --no-save")
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "local" {
			t.Errorf("unexpected targets: %v", cfg.Targets)
		}
	})

	t.Run("explicit missing suite file is an error", func(t *testing.T) {
		t.Parallel()

		cmd := NewProbeCmd()
		if err := cmd.ParseFlags([]string{"-c", "/no/such/file.yaml"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		_, err := buildConfig(cmd, nil)
		if err == nil {
			t.Fatal("expected error for missing suite file")
		}
		if !strings.Contains(err.Error(), "suite file not found") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("conflicting report formats fail validation", func(t *testing.T) {
		t.Parallel()

		path := writeSuiteFile(t, testSuiteYAML)

		cmd := NewProbeCmd()
		if err := cmd.ParseFlags([]string{"-c", path, "-j", "-m"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}

		if err := cfg.Validate(); err == nil {
			t.Error("expected validation error for conflicting formats")
		}
	})
}

func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	t.Run("defaults to false", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		if got := getVerboseFlag(root); got {
			t.Error("expected verbose to default to false")
		}
	})

	t.Run("reads persistent flag", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		if err := root.PersistentFlags().Set("verbose", "true"); err != nil {
			t.Fatalf("failed to set flag: %v", err)
		}
		if got := getVerboseFlag(root); !got {
			t.Error("expected verbose to be true")
		}
	})
}

func TestNewSuiteClient(t *testing.T) {
	t.Parallel()

	t.Run("uses global timeout by default", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		suite := config.Suite{BaseURL: "http://localhost:8080"}

		c, err := newSuiteClient(cfg, suite)
		if err != nil {
			t.Fatalf("newSuiteClient() error = %v", err)
		}
		if c == nil {
			t.Fatal("expected client")
		}
	})

	t.Run("rejects invalid proxy address", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ProxyAddress = "not a proxy"
		suite := config.Suite{BaseURL: "http://localhost:8080"}

		if _, err := newSuiteClient(cfg, suite); err == nil {
			t.Error("expected error for invalid proxy address")
		}
	})
}

func TestOutputReport(t *testing.T) {
	t.Parallel()

	newReport := func() *model.ProbeReport {
		r := model.NewProbeReport("prod", "http://localhost:8080")
		r.AddResult(model.EndpointResult{
			Name:       "health",
			Method:     http.MethodGet,
			Path:       "/api/v1/health",
			StatusCode: http.StatusOK,
			Outcome:    model.OutcomeAccessible,
		})
		r.Summary = model.NewSummary(r)
		return r
	}

	t.Run("writes JSON report to file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.JSONReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "report.json")

		if err := outputReport(cfg, newReport()); err != nil {
			t.Fatalf("outputReport() error = %v", err)
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(content, &decoded); err != nil {
			t.Fatalf("report is not valid JSON: %v", err)
		}
		if decoded["suite"] != "prod" {
			t.Errorf("unexpected suite in report: %v", decoded["suite"])
		}
	})

	t.Run("writes Markdown report to file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.MarkdownReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "report.md")

		if err := outputReport(cfg, newReport()); err != nil {
			t.Fatalf("outputReport() error = %v", err)
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(content), "# apivet Probe Report") {
			t.Error("expected Markdown heading in report")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.JSONReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "nested", "dir", "report.json")

		if err := outputReport(cfg, newReport()); err != nil {
			t.Fatalf("outputReport() error = %v", err)
		}

		if _, err := os.Stat(cfg.ReportFile); err != nil {
			t.Errorf("expected report file to exist: %v", err)
		}
	})

	t.Run("report file has restricted permissions", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.JSONReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "report.json")

		if err := outputReport(cfg, newReport()); err != nil {
			t.Fatalf("outputReport() error = %v", err)
		}

		info, err := os.Stat(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to stat report: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("expected permissions 0600, got %o", perm)
		}
	})
}

func TestRunProbeCmdNoSuiteFile(t *testing.T) {
	t.Parallel()

	cmd := NewProbeCmd()
	cmd.SetArgs([]string{"-c", "/no/such/file.yaml"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil {
		t.Error("expected error for missing suite file")
	}
}
