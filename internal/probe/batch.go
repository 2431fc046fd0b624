package probe

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/apivet/apivet/internal/model"
)

// SuiteJob pairs a suite name with the runner and report factory for it.
// The batch processor needs a fresh report per run and a runner bound to
// the suite's own client.
type SuiteJob struct {
	// Suite is the suite name, for logging and reports.
	Suite string

	// NewReport creates the report the run fills in.
	NewReport func() *model.ProbeReport

	// NewRunner creates the runner executing the run.
	NewRunner func() *Runner
}

// BatchProcessor runs multiple suites concurrently.
// It uses errgroup to bound concurrency.
//
// Design decision: Batch processing lives outside Runner so the runner
// stays focused on a single suite, and different batch strategies remain
// possible without touching run semantics.
type BatchProcessor struct {
	// concurrency is the maximum number of concurrent suite runs.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent suite runs.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor.
func NewBatchProcessor(opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		concurrency: 4,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// Process runs all jobs and returns their reports in job order.
// Failed runs still produce a report; the failure is recorded inside it.
// The error return indicates cancellation, not individual run failures.
func (bp *BatchProcessor) Process(ctx context.Context, jobs []SuiteJob) ([]*model.ProbeReport, error) {
	reports := make([]*model.ProbeReport, len(jobs))
	err := bp.ProcessWithCallback(ctx, jobs, func(report *model.ProbeReport, index int) {
		reports[index] = report
	})
	return reports, err
}

// ProcessWithCallback runs all jobs and invokes callback as each run
// completes. The callback runs on the goroutine that finished the run
// and must be safe for concurrent use when it touches shared state.
func (bp *BatchProcessor) ProcessWithCallback(
	ctx context.Context,
	jobs []SuiteJob,
	callback func(report *model.ProbeReport, index int),
) error {
	bp.logger.Info("starting batch run",
		"suites", len(jobs),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("running suite",
				"suite", job.Suite,
				"index", i+1,
				"total", len(jobs),
			)

			report := job.NewReport()
			runner := job.NewRunner()

			// The run's error is recorded in the report; other suites
			// in the batch must still run.
			_ = runner.Execute(ctx, report) //nolint:errcheck // Error is stored in report

			callback(report, i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch run complete",
		"suites", len(jobs),
		"elapsed", time.Since(startTime),
	)

	return err
}
