package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Runner executes scenarios in up to config.Parallel concurrent chunks. Every
// scenario gets a fresh browser from the factory and nothing is retried.
type Runner struct {
	config  *Config
	factory DriverFactory
	orders  *OrderLog
	mailbox Mailbox
	logger  *zap.Logger

	// launches spaces out browser starts across chunks.
	launches *rate.Limiter

	outMu sync.Mutex
	out   io.Writer

	// seed fixes generated test data when non-zero.
	seed uint64
	now  func() time.Time
}

func NewRunner(config *Config, factory DriverFactory, orders *OrderLog, mailbox Mailbox, logger *zap.Logger) *Runner {
	limit := rate.Inf
	if config.Timeouts.Launch > 0 {
		limit = rate.Every(config.Timeouts.Launch)
	}
	return &Runner{
		config:   config,
		factory:  factory,
		orders:   orders,
		mailbox:  mailbox,
		logger:   logger.Named("runner"),
		launches: rate.NewLimiter(limit, 1),
		out:      os.Stdout,
		now:      time.Now,
	}
}

// SetOutput redirects the console progress lines.
func (r *Runner) SetOutput(w io.Writer) { r.out = w }

// SetSeed makes generated addresses and users reproducible.
func (r *Runner) SetSeed(seed uint64) { r.seed = seed }

// Run executes scenarios and returns the report. The error is non-nil only
// when the suite could not run at all; failed scenarios are in the report.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*RunReport, error) {
	runID := uuid.New().String()
	logger := r.logger.With(zap.String("run_id", runID))
	report := newRunReport(runID, r.config, r.now())

	if err := r.orders.Reset(); err != nil {
		return nil, err
	}

	limit := r.config.Parallel
	if limit < 1 {
		limit = 1
	}
	fmt.Fprintf(r.out, T("run_starting")+"\n", len(scenarios), limit, report.BaseURL)
	logger.Info("run starting", zap.Int("scenarios", len(scenarios)), zap.Int("parallel", limit))

	results := make([]ScenarioResult, len(scenarios))
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, sc := range scenarios {
		g.Go(func() error {
			results[i] = r.runOne(ctx, i, sc, runID, logger)
			r.printResult(results[i])
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	report.FinishedAt = r.now()
	logger.Info("run finished",
		zap.Int("passed", report.Passed()),
		zap.Int("failed", report.Failed()),
		zap.Int("skipped", report.Skipped()))
	fmt.Fprintf(r.out, T("run_summary")+"\n", report.Passed(), report.Failed(), report.Skipped())
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, index int, sc Scenario, runID string, logger *zap.Logger) ScenarioResult {
	result := ScenarioResult{Name: sc.Name, StartedAt: r.now()}
	logger = logger.With(zap.String("scenario", sc.Name))

	if reason := sc.skipReason(r.config); reason != "" {
		logger.Info("scenario skipped", zap.String("reason", reason))
		result.Status = StatusSkipped
		result.SkipReason = reason
		return result
	}
	if err := ctx.Err(); err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}

	if err := r.launches.Wait(ctx); err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}

	driver, err := r.factory(ctx)
	if err != nil {
		logger.Error("failed to open browser", zap.Error(err))
		result.Status = StatusFailed
		result.Error = err.Error()
		result.Duration = time.Since(result.StartedAt)
		return result
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("failed to close browser", zap.Error(err))
		}
	}()

	var seed uint64
	if r.seed != 0 {
		seed = r.seed + uint64(index)
	}
	session := NewSession(sc.Name, driver, r.config, r.orders, r.mailbox, NewDataGenerator(seed), logger)

	logger.Info("scenario starting")
	err = sc.Run(ctx, session)
	result.Duration = time.Since(result.StartedAt)
	result.OrderNumber = session.OrderNumber

	if err == nil {
		logger.Info("scenario passed", zap.Duration("duration", result.Duration))
		result.Status = StatusPassed
		return result
	}

	logger.Error("scenario failed",
		zap.Error(err),
		zap.Bool("timeout", isTimeoutError(err)),
		zap.Bool("provider", isProviderFailure(err)),
		zap.Duration("duration", result.Duration))
	result.Status = StatusFailed
	result.Error = err.Error()
	result.Screenshot = r.captureFailure(driver, sc.Name, runID, logger)
	return result
}

// captureFailure saves a full page screenshot of the failed scenario. The
// scenario context may already be cancelled, so a fresh one is used.
func (r *Runner) captureFailure(driver Driver, name, runID string, logger *zap.Logger) string {
	dir := filepath.Join(r.config.OutputDir, "screenshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("failed to create screenshot directory", zap.Error(err))
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.png", name, runID[:8]))

	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeouts.Wait)
	defer cancel()
	if err := driver.Screenshot(ctx, path); err != nil {
		logger.Warn("failed to capture screenshot", zap.Error(err))
		return ""
	}
	return path
}

func (r *Runner) printResult(res ScenarioResult) {
	r.outMu.Lock()
	defer r.outMu.Unlock()

	switch res.Status {
	case StatusPassed:
		fmt.Fprintf(r.out, T("scenario_passed")+"\n", res.Name, res.Duration.Round(time.Millisecond))
	case StatusSkipped:
		fmt.Fprintf(r.out, T("scenario_skipped")+"\n", res.Name, res.SkipReason)
	default:
		fmt.Fprintf(r.out, T("scenario_failed")+"\n", res.Name, res.Error)
	}
}
