package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/apivet/apivet/internal/client"
	"github.com/apivet/apivet/internal/config"
	"github.com/apivet/apivet/internal/model"
)

// errLoginTerminal marks errors that must stop the run even when the
// runner is configured to continue on error.
var errLoginTerminal = errors.New("terminal step failure")

// isTerminal reports whether the error must abort the run.
func isTerminal(err error) bool {
	return errors.Is(err, errLoginTerminal)
}

// LoginStep authenticates against the suite's admin login endpoint.
//
// The original verification flow treats a failed login as fatal: every
// protected route would answer 401, which would report the deployment as
// fully accessible while proving nothing. LoginStep therefore returns a
// terminal error on failure.
type LoginStep struct {
	// client issues the login request and stores the token.
	client *client.Client

	// auth is the suite's auth section.
	auth *config.AuthConfig

	// logger for structured logging.
	logger *slog.Logger
}

// NewLoginStep creates a login step. auth may be nil, in which case the
// step is a no-op and the suite probes unauthenticated.
func NewLoginStep(c *client.Client, auth *config.AuthConfig, logger *slog.Logger) *LoginStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginStep{client: c, auth: auth, logger: logger}
}

// Name returns the step name.
func (s *LoginStep) Name() string {
	return "login"
}

// Do executes the login step.
func (s *LoginStep) Do(ctx context.Context, report *model.ProbeReport) error {
	if s.auth == nil {
		s.logger.Debug("suite has no auth section, probing unauthenticated", "suite", report.Suite)
		return nil
	}

	username, password, err := s.auth.Credentials()
	if err != nil {
		return fmt.Errorf("%w: %w", errLoginTerminal, err)
	}

	info, err := s.client.Login(ctx, s.auth.LoginPath, username, password, s.auth.TokenFieldName())
	report.Auth = info
	if err != nil {
		return fmt.Errorf("%w: %w", errLoginTerminal, err)
	}

	if client.TokenExpiresWithin(info, 5*time.Minute) {
		s.logger.Warn("admin token expires soon",
			"suite", report.Suite,
			"expiresAt", info.ExpiresAt,
		)
	}

	s.logger.Debug("admin login succeeded", "suite", report.Suite, "subject", info.Subject)
	return nil
}

// EndpointStep probes every declared endpoint sequentially and records
// a classified result for each.
//
// Design decision: Probes within a suite are sequential, not concurrent.
// The tool verifies a deployment; result ordering should match the suite
// file and the backend should not be load-tested by its own checker.
type EndpointStep struct {
	// client issues the probe requests.
	client *client.Client

	// endpoints are the routes to probe, in order.
	endpoints []config.EndpointConfig

	// logger for structured logging.
	logger *slog.Logger
}

// NewEndpointStep creates an endpoint probing step.
func NewEndpointStep(c *client.Client, endpoints []config.EndpointConfig, logger *slog.Logger) *EndpointStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &EndpointStep{client: c, endpoints: endpoints, logger: logger}
}

// Name returns the step name.
func (s *EndpointStep) Name() string {
	return "endpoints"
}

// Do executes the endpoint probes.
// Transport failures are recorded as unreachable results, never returned
// as errors: a down endpoint is a finding, not a tool failure.
func (s *EndpointStep) Do(ctx context.Context, report *model.ProbeReport) error {
	for _, e := range s.endpoints {
		select {
		case <-ctx.Done():
			report.TimedOut = true
			return ctx.Err()
		default:
		}

		result := model.EndpointResult{
			Name:      e.Name,
			Group:     e.Group,
			Method:    e.HTTPMethod(),
			Path:      e.Path,
			CheckedAt: time.Now(),
		}

		resp, err := s.client.DoWithHeaders(ctx, e.HTTPMethod(), e.Path, e.Body, e.Headers, e.SkipAuth)
		if err != nil {
			result.Outcome = model.OutcomeUnreachable
			result.Error = err.Error()
			s.logger.Debug("endpoint unreachable",
				"suite", report.Suite,
				"endpoint", e.Path,
				"error", err,
			)
		} else {
			result.StatusCode = resp.StatusCode
			result.Latency = resp.Latency
			result.Outcome = model.Classify(resp.StatusCode, e.Expect)
			if result.Outcome.Failed() {
				result.BodySnippet = resp.Snippet(s.client.SnippetSize())
			}
			s.logger.Debug("endpoint probed",
				"suite", report.Suite,
				"endpoint", e.Path,
				"status", resp.StatusCode,
				"outcome", result.Outcome.String(),
			)
		}

		report.AddResult(result)
	}

	return nil
}

// RaceStep fires N identical requests at a route concurrently and checks
// that exactly one succeeds. This generalizes the manual two-thread
// double-processing probe: a backend that lets two concurrent requests
// both process the same KYC document has a transaction bug.
type RaceStep struct {
	// client issues the requests.
	client *client.Client

	// checks are the declared race checks.
	checks []config.RaceConfig

	// logger for structured logging.
	logger *slog.Logger
}

// NewRaceStep creates a race checking step.
func NewRaceStep(c *client.Client, checks []config.RaceConfig, logger *slog.Logger) *RaceStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &RaceStep{client: c, checks: checks, logger: logger}
}

// Name returns the step name.
func (s *RaceStep) Name() string {
	return "race"
}

// Do executes all race checks.
func (s *RaceStep) Do(ctx context.Context, report *model.ProbeReport) error {
	for _, check := range s.checks {
		select {
		case <-ctx.Done():
			report.TimedOut = true
			return ctx.Err()
		default:
		}

		report.RaceResults = append(report.RaceResults, s.runCheck(ctx, check))
	}
	return nil
}

// runCheck fires the concurrent requests for one check.
func (s *RaceStep) runCheck(ctx context.Context, check config.RaceConfig) model.RaceResult {
	n := check.RequestCount()
	result := model.RaceResult{
		Name:     check.Name,
		Method:   check.HTTPMethod(),
		Path:     check.Path,
		Requests: n,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			resp, err := s.client.Do(gctx, check.HTTPMethod(), check.Path, check.Body, false)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.StatusCodes = append(result.StatusCodes, 0)
				return nil
			}
			result.StatusCodes = append(result.StatusCodes, resp.StatusCode)
			if resp.StatusCode == check.SuccessCode() {
				result.Successes++
			} else {
				result.Rejected++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		result.Error = err.Error()
		return result
	}

	result.Passed = result.Successes == 1
	s.logger.Debug("race check finished",
		"check", check.Name,
		"successes", result.Successes,
		"rejected", result.Rejected,
		"passed", result.Passed,
	)

	return result
}

// SummaryStep derives the aggregate summary from the accumulated results.
// It runs last so the summary reflects every earlier step.
type SummaryStep struct{}

// NewSummaryStep creates a summary step.
func NewSummaryStep() *SummaryStep {
	return &SummaryStep{}
}

// Name returns the step name.
func (s *SummaryStep) Name() string {
	return "summary"
}

// Do builds the summary and finalizes the run duration.
func (s *SummaryStep) Do(_ context.Context, report *model.ProbeReport) error {
	report.Duration = time.Since(report.StartedAt)
	report.Summary = model.NewSummary(report)
	return nil
}

// DefaultRunnerOption configures DefaultRunner.
type DefaultRunnerOption func(*defaultRunnerConfig)

type defaultRunnerConfig struct {
	logger *slog.Logger
}

// WithRunnerLogger sets the logger used by all default steps.
func WithRunnerLogger(logger *slog.Logger) DefaultRunnerOption {
	return func(c *defaultRunnerConfig) {
		c.logger = logger
	}
}

// DefaultRunner builds the standard pipeline for a suite:
// login, endpoint probes, race checks, summary.
// Steps with nothing to do are still added; they no-op cheaply and keep
// PerformedSteps uniform across runs, which comparison relies on.
func DefaultRunner(c *client.Client, suite config.Suite, opts ...DefaultRunnerOption) *Runner {
	cfg := &defaultRunnerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	r := NewRunner(
		WithLogger(cfg.logger),
		WithContinueOnError(true),
	)
	r.AddSteps(
		NewLoginStep(c, suite.Auth, cfg.logger),
		NewEndpointStep(c, suite.Endpoints, cfg.logger),
		NewRaceStep(c, suite.Race, cfg.logger),
		NewSummaryStep(),
	)
	return r
}
