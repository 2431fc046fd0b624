package probe

import (
	"context"
	"log/slog"

	"github.com/apivet/apivet/internal/model"
)

// Step defines the interface all pipeline steps implement.
// Steps run in sequence, each receiving the accumulated report.
//
// Design decision: We use an interface rather than function types because
// steps carry configuration state and a Name() for logging, and the
// runner can treat all steps uniformly.
type Step interface {
	// Do executes the step. Errors returned here are terminal for the
	// run; recoverable problems (an endpoint timing out) belong in the
	// report, not in the error return.
	Do(ctx context.Context, report *model.ProbeReport) error

	// Name returns the step's name for logging.
	Name() string
}

// Runner executes a sequence of steps against one suite.
type Runner struct {
	// steps contains the ordered steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError keeps executing steps after one fails.
	// Login failure always stops the run regardless of this setting,
	// since nothing meaningful can be probed without a token.
	continueOnError bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithContinueOnError keeps the run going when a step fails.
// Failed steps are logged and recorded in the report.
func WithContinueOnError(continueOnError bool) Option {
	return func(r *Runner) {
		r.continueOnError = continueOnError
	}
}

// NewRunner creates a Runner with the given options.
// Steps are added with AddSteps after creation.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}

	return r
}

// AddSteps appends steps to the runner in execution order.
func (r *Runner) AddSteps(steps ...Step) {
	r.steps = append(r.steps, steps...)
}

// StepNames returns the names of all steps in execution order.
func (r *Runner) StepNames() []string {
	names := make([]string, len(r.steps))
	for i, step := range r.steps {
		names[i] = step.Name()
	}
	return names
}

// Execute runs all steps in sequence.
// Cancellation is checked before each step; steps handle their own
// request timeouts internally.
func (r *Runner) Execute(ctx context.Context, report *model.ProbeReport) error {
	for _, step := range r.steps {
		select {
		case <-ctx.Done():
			r.logger.Warn("run cancelled",
				"step", step.Name(),
				"suite", report.Suite,
				"reason", ctx.Err(),
			)
			report.TimedOut = true
			return ctx.Err()
		default:
		}

		r.logger.Info("executing step",
			"step", step.Name(),
			"suite", report.Suite,
		)

		if err := step.Do(ctx, report); err != nil {
			r.logger.Error("step failed",
				"step", step.Name(),
				"suite", report.Suite,
				"error", err,
			)

			report.SetError(err)

			// A failed login leaves every subsequent probe meaningless
			if !r.continueOnError || isTerminal(err) {
				report.PerformedSteps = append(report.PerformedSteps, step.Name())
				return err
			}
		} else {
			r.logger.Debug("step completed",
				"step", step.Name(),
				"suite", report.Suite,
			)
		}

		report.PerformedSteps = append(report.PerformedSteps, step.Name())
	}

	return nil
}
