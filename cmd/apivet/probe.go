package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/apivet/apivet/internal/client"
	"github.com/apivet/apivet/internal/config"
	"github.com/apivet/apivet/internal/history"
	"github.com/apivet/apivet/internal/log"
	"github.com/apivet/apivet/internal/model"
	"github.com/apivet/apivet/internal/probe"
	"github.com/apivet/apivet/internal/report"
)

// NewProbeCmd creates the probe command.
func NewProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe [suite-name...]",
		Short: "Probe a backend deployment against its declared endpoint suite",
		Long: `Probe logs in as an admin, requests every declared endpoint, and
classifies each one:

  accessible   the route is wired (any declared/expected status)
  missing      the route returned 404
  unexpected   the route answered outside its expected status set
  unreachable  the request never received a response

Concurrency checks fire N identical requests at race-sensitive routes and
require that exactly one succeeds.

Runs are saved to a local history database so 'apivet compare' can detect
regressions between deployments.

Examples:
  # Probe every suite in .apivet.yaml
  apivet probe

  # Probe specific suites
  apivet probe prod staging

  # Use a custom suite file
  apivet probe -c mysuite.yaml prod

  # Reach a backend behind a bastion via SOCKS5
  apivet probe --proxy 127.0.0.1:1080 prod

  # Output JSON report to a file
  apivet probe --json -o report.json prod`,
		Args: cobra.ArbitraryArgs,
		RunE: runProbeCmd,
	}

	// Suite selection flags
	cmd.Flags().StringP("config", "c", "",
		"Suite file path (default: .apivet.yaml in current or home directory)")

	// Request behavior flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Per-request timeout (suites may override)")
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy address for reaching the backend (e.g., 127.0.0.1:1080)")
	cmd.Flags().Bool("insecure", false,
		"Skip TLS certificate verification")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of suites probed concurrently")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// History flags
	cmd.Flags().Bool("no-save", false,
		"Do not save the run to the history database")

	return cmd
}

// runProbeCmd executes the probe command.
func runProbeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Structured logging with credential redaction
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runProbe(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.SuiteFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.ProxyAddress, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.Insecure, err = cmd.Flags().GetBool("insecure")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	noSave, err := cmd.Flags().GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	cfg.DBDir = config.XDGDataDir()

	cfg.Verbose = getVerboseFlag(cmd)

	// Load the suite file. An explicitly given path must exist; the
	// default search may come up empty, which Validate reports.
	explicitPath := cfg.SuiteFilePath != ""
	suitePath := config.FindSuiteFile(cfg.SuiteFilePath)

	if suitePath != "" {
		cfg.Suites, err = config.LoadSuiteFile(suitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load suite file %s: %w", suitePath, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("%w: %s", config.ErrSuiteFileNotFound, cfg.SuiteFilePath)
	}

	// Credentials may live in a .env next to the suite file
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	// Positional arguments select suites
	cfg.Targets = args

	return cfg, nil
}

// runProbe executes the probe runs.
func runProbe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	suites := cfg.SelectedSuites()

	logger.Info("starting probe",
		"suites", suites,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	// Open the history database if saving is enabled
	var db *history.DB
	if cfg.SaveToDB {
		var err error
		db, err = history.Open(cfg.DBDir, history.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
		logger.Info("history database opened", "dir", cfg.DBDir)
	}

	jobs := make([]probe.SuiteJob, 0, len(suites))
	for _, name := range suites {
		suite, ok := cfg.Suites.GetSuite(name)
		if !ok {
			return &config.UnknownSuiteError{Name: name}
		}

		c, err := newSuiteClient(cfg, suite)
		if err != nil {
			return fmt.Errorf("suite %s: %w", name, err)
		}

		jobs = append(jobs, probe.SuiteJob{
			Suite: name,
			NewReport: func() *model.ProbeReport {
				return model.NewProbeReport(name, suite.BaseURL)
			},
			NewRunner: func() *probe.Runner {
				return probe.DefaultRunner(c, suite, probe.WithRunnerLogger(logger))
			},
		})
	}

	bp := probe.NewBatchProcessor(
		probe.WithConcurrency(cfg.BatchSize),
		probe.WithBatchLogger(logger),
	)

	var mu sync.Mutex
	var failed []string

	err := bp.ProcessWithCallback(ctx, jobs, func(r *model.ProbeReport, index int) {
		mu.Lock()
		defer mu.Unlock()

		fmt.Printf("[%d/%d] Probe completed: %s (%s)\n",
			index+1, len(jobs), r.Suite, r.Duration.Round(time.Millisecond))

		if err := outputReport(cfg, r); err != nil {
			logger.Error("report failed", "suite", r.Suite, "error", err)
		}

		if err := saveRun(ctx, db, r, logger); err != nil {
			logger.Error("failed to save run", "suite", r.Suite, "error", err)
		}

		if r.Summary != nil && r.Summary.HasFailures() || r.Error != nil {
			failed = append(failed, r.Suite)
		}
	})
	if err != nil {
		return err
	}

	if len(failed) > 0 {
		return fmt.Errorf("verification failed for: %s", strings.Join(failed, ", "))
	}

	return nil
}

// newSuiteClient builds the HTTP client for one suite, applying the
// suite's timeout and header overrides on top of the global flags.
func newSuiteClient(cfg *config.Config, suite config.Suite) (*client.Client, error) {
	timeout := cfg.Timeout
	if suite.Timeout.Std() > 0 {
		timeout = suite.Timeout.Std()
	}

	opts := []client.Option{
		client.WithTimeout(timeout),
		client.WithMaxBodySize(cfg.MaxBodySize),
		client.WithSnippetSize(config.DefaultBodySnippetSize),
	}
	if len(suite.Headers) > 0 {
		opts = append(opts, client.WithHeaders(suite.Headers))
	}
	if cfg.ProxyAddress != "" {
		opts = append(opts, client.WithProxy(cfg.ProxyAddress))
	}
	if cfg.Insecure {
		opts = append(opts, client.WithInsecure(true))
	}

	return client.New(suite.BaseURL, opts...)
}

// outputReport outputs the probe report in the requested format.
func outputReport(cfg *config.Config, r *model.ProbeReport) error {
	output, closeFn, err := openReportOutput(cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeFn()

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err = w.Write(r)
	return err
}

// openReportOutput returns the report destination. Reports may contain
// response fragments from an internal backend, so files are 0600.
func openReportOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// saveRun saves the probe report to the history database if enabled.
// If db is nil, this function is a no-op.
func saveRun(ctx context.Context, db *history.DB, r *model.ProbeReport, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	if r.Summary == nil {
		r.Summary = model.NewSummary(r)
	}

	if err := db.SaveRun(ctx, r); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	logger.Info("run saved to history", "suite", r.Suite, "runID", r.RunID)
	return nil
}
