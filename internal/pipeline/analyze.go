package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/metrics"
	"github.com/ppiankov/painpoint/internal/model"
)

// AnalyzeReport summarizes an analysis run.
type AnalyzeReport struct {
	RunID       string
	Analyzed    int // companies marked analyzed
	Profiled    int // companies the provider knew
	Failed      int
	Signals     int // analysis signals derived
	Duplicates  int
	Delivered   int
	Interrupted bool
	Errors      []error
}

// Analyze profiles every company not yet analyzed, or analyzed longer ago
// than the refresh window, and delivers the derived signals like collected
// evidence.
func (p *Pipeline) Analyze(ctx context.Context) *AnalyzeReport {
	runID := p.c.NewID()
	return p.analyze(ctx, runID, p.logger.With(logging.RunID(runID)))
}

func (p *Pipeline) analyze(ctx context.Context, runID string, logger *slog.Logger) *AnalyzeReport {
	report := &AnalyzeReport{RunID: runID}
	if p.c.Analyzer == nil {
		return report
	}

	start := time.Now()
	defer func() { metrics.RunDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds()) }()

	logger = logger.With(logging.Stage("analyze"))
	if ctx.Err() != nil {
		report.Interrupted = true
		return report
	}

	now := p.c.Now().UTC()
	var staleBefore time.Time
	if p.c.AnalysisRefresh > 0 {
		staleBefore = now.Add(-p.c.AnalysisRefresh)
	}

	companies, err := p.companies.Unanalyzed(ctx, staleBefore)
	if err != nil {
		report.Errors = append(report.Errors, err)
		logger.Error("load unanalyzed companies failed", logging.Error(err))
		return report
	}
	logger.Info("analyzing companies",
		logging.Count(len(companies)),
		slog.String("provider", p.c.Analyzer.Provider().Name()))

	var (
		analyzed []model.Company
		signals  []model.Signal
	)
	for _, co := range companies {
		if ctx.Err() != nil {
			report.Interrupted = true
			logger.Warn("shutdown requested, stopping analysis")
			break
		}

		evidence, err := p.c.Aggregator.SignalsFor(ctx, co.Domain)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, err)
			metrics.AnalysisErrors.Inc()
			logger.Warn("load signals failed", logging.Domain(co.Domain), logging.Error(err))
			continue
		}

		res, err := p.c.Analyzer.Analyze(ctx, co, evidence, now)
		if err != nil {
			// Left unanalyzed; the next run retries.
			report.Failed++
			report.Errors = append(report.Errors, err)
			metrics.AnalysisErrors.Inc()
			logger.Warn("profile lookup failed", logging.Domain(co.Domain), logging.Error(err))
			continue
		}
		if res.Profiled {
			report.Profiled++
		}
		analyzed = append(analyzed, res.Company)
		signals = append(signals, res.Signals...)

		logger.Debug("company analyzed",
			logging.Domain(co.Domain),
			slog.Bool("profiled", res.Profiled),
			slog.Int("signals", len(res.Signals)))
	}
	report.Signals = len(signals)

	fresh, dups := p.c.Dedup.Filter(ctx, signals)
	report.Duplicates = dups

	d := p.deliver(ctx, fresh, runID, logger)
	report.Delivered = d.delivered
	report.Errors = append(report.Errors, d.errs...)

	// A company whose signals did not go out stays unanalyzed so they are
	// derived and sent again.
	marked := make([]model.Company, 0, len(analyzed))
	for _, co := range analyzed {
		if !d.undelivered[co.Domain] {
			marked = append(marked, co)
		}
	}
	if err := p.companies.MarkAnalyzed(context.WithoutCancel(ctx), marked); err != nil {
		report.Errors = append(report.Errors, err)
		metrics.AnalysisErrors.Add(float64(len(marked)))
		logger.Error("write analysis failed", logging.Count(len(marked)), logging.Error(err))
	} else {
		report.Analyzed = len(marked)
		metrics.CompaniesAnalyzed.Add(float64(len(marked)))
	}

	logger.Info("analysis finished",
		slog.Int("analyzed", report.Analyzed),
		slog.Int("profiled", report.Profiled),
		slog.Int("signals", report.Signals),
		slog.Int("delivered", report.Delivered),
		slog.Int("failed", report.Failed))
	return report
}
