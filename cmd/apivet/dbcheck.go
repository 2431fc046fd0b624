package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apivet/apivet/internal/config"
	"github.com/apivet/apivet/internal/dbcheck"
	"github.com/apivet/apivet/internal/log"
	"github.com/apivet/apivet/internal/model"
	"github.com/apivet/apivet/internal/report"
)

// NewDBCheckCmd creates the dbcheck command.
// This command verifies database-level invariants declared in the suite file.
func NewDBCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dbcheck [suite-name...]",
		Short: "Verify database-level invariants for one or more suites",
		Long: `Dbcheck runs the database checks declared in the suite file.

Three kinds of checks are supported:
- counts:  assert row count bounds on a table, with an optional WHERE filter
- orphans: detect child rows whose parent row is missing
- inserts: probe INSERT statements inside a transaction that is always
           rolled back, so the database is never modified

The connection string is read from the environment variable named by the
suite's dsn_env field (default: APIVET_DATABASE_URL). It is never printed.

With no arguments, every suite that declares a database section is checked.

Examples:
  # Run database checks for all suites that declare them
  apivet dbcheck

  # Run database checks for one suite
  apivet dbcheck prod

  # Output the check report as JSON
  apivet dbcheck --json prod

  # Override the connection string source
  APIVET_DATABASE_URL=postgres://... apivet dbcheck prod`,
		RunE: runDBCheckCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Path to the suite file (default: search for .apivet.yaml)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for the whole check run per suite")
	cmd.Flags().String("dsn-env", "",
		"Environment variable holding the connection string (overrides the suite file)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output check report in JSON format (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output check report in Markdown format (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to a file instead of stdout")

	return cmd
}

// runDBCheckCmd executes the dbcheck command.
func runDBCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildDBCheckConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("received signal, canceling checks", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return runDBChecks(ctx, cfg, logger)
}

// buildDBCheckConfig creates a Config from the dbcheck command flags.
func buildDBCheckConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
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

	cfg.DSNOverride, err = cmd.Flags().GetString("dsn-env")
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

	cfg.Verbose = getVerboseFlag(cmd)

	explicitPath := cfg.SuiteFilePath != ""
	suitePath := config.FindSuiteFile(cfg.SuiteFilePath)
	if suitePath != "" {
		cfg.Suites, err = config.LoadSuiteFile(suitePath)
		if err != nil {
			return nil, err
		}
	} else if explicitPath {
		return nil, fmt.Errorf("%w: %s", config.ErrSuiteFileNotFound, cfg.SuiteFilePath)
	}

	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	cfg.Targets = args

	return cfg, nil
}

// runDBChecks runs the database checks for every selected suite that
// declares them, reusing one connection per distinct DSN variable.
func runDBChecks(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	suites := cfg.SelectedSuites()

	var checked int
	var failed []string

	for _, name := range suites {
		suite, ok := cfg.Suites.GetSuite(name)
		if !ok {
			return &config.UnknownSuiteError{Name: name}
		}
		if suite.Database == nil {
			// Explicitly requested suites without checks are an error;
			// the default all-suites sweep just skips them.
			if len(cfg.Targets) > 0 {
				return fmt.Errorf("suite %s: %w", name, dbcheck.ErrNoChecks)
			}
			logger.Debug("suite has no database section, skipping", "suite", name)
			continue
		}

		dbCfg := suite.Database
		if cfg.DSNOverride != "" {
			override := *dbCfg
			override.DSNEnv = cfg.DSNOverride
			dbCfg = &override
		}

		dsn, err := dbCfg.DSN()
		if err != nil {
			return fmt.Errorf("suite %s: %w", name, err)
		}

		checker, err := dbcheck.Open(ctx, dsn, dbcheck.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("suite %s: %w", name, err)
		}

		checkReport, err := checker.Run(ctx, name, dbCfg)
		closeErr := checker.Close()
		if err != nil {
			return fmt.Errorf("suite %s: %w", name, err)
		}
		if closeErr != nil {
			logger.Warn("failed to close database connection", "suite", name, "error", closeErr)
		}

		if err := outputDBCheckReport(cfg, checkReport); err != nil {
			return err
		}

		checked++
		if checkReport.Failed() {
			failed = append(failed, name)
		}
	}

	if checked == 0 {
		return errors.New("no suite declares a database section")
	}

	if len(failed) > 0 {
		return fmt.Errorf("database checks failed for: %s", strings.Join(failed, ", "))
	}

	return nil
}

// outputDBCheckReport writes the check report in the configured format.
func outputDBCheckReport(cfg *config.Config, r *model.DBCheckReport) error {
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

	_, err = w.WriteDBCheck(r)
	return err
}
