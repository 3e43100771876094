package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ppiankov/painpoint/internal/aggregate"
	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/metrics"
	"github.com/ppiankov/painpoint/internal/model"
	"github.com/ppiankov/painpoint/internal/sink"
	"github.com/ppiankov/painpoint/internal/sources"
	"github.com/ppiankov/painpoint/internal/worker"
)

// SourceReport is the outcome of one provider.
type SourceReport struct {
	Source    string
	Collected int
	Dropped   int
	Duration  time.Duration
	Err       error
}

// CollectReport summarizes a collection run.
type CollectReport struct {
	RunID      string
	Sources    []SourceReport
	Collected  int // valid signals after normalization
	Dropped    int
	Duplicates int
	Delivered  int
	Failed     int // new signals whose batch was rejected
	LedgerSize int // committed hashes after the run
	Errors     []error
}

// Collect runs every source, keeps new evidence and delivers it in batches.
// Only delivered batches are committed to the dedup ledger.
func (p *Pipeline) Collect(ctx context.Context) *CollectReport {
	runID := p.c.NewID()
	return p.collect(ctx, runID, p.logger.With(logging.RunID(runID)))
}

func (p *Pipeline) collect(ctx context.Context, runID string, logger *slog.Logger) *CollectReport {
	start := time.Now()
	defer func() { metrics.RunDuration.WithLabelValues("collect").Observe(time.Since(start).Seconds()) }()

	logger = logger.With(logging.Stage("collect"))
	report := &CollectReport{RunID: runID}

	byName := make(map[string]sources.Source, len(p.c.Sources))
	collectors := make([]worker.Collector, 0, len(p.c.Sources))
	for _, src := range p.c.Sources {
		byName[src.Name()] = src
		collectors = append(collectors, src)
	}

	var signals []model.Signal
	for _, res := range worker.NewCollectProcessor(p.c.Workers).Run(ctx, collectors) {
		sr := SourceReport{Source: res.Source, Duration: res.Duration, Err: res.Err}
		metrics.SourceDuration.WithLabelValues(res.Source).Observe(res.Duration.Seconds())

		if res.Err != nil {
			// A failed source contributes nothing this run.
			kind := string(sources.KindOf(res.Err))
			if kind == "" {
				kind = "unknown"
			}
			metrics.SourceErrors.WithLabelValues(res.Source, kind).Inc()
			logger.Warn("source failed", logging.Source(res.Source), slog.String("kind", kind), logging.Error(res.Err))
			report.Errors = append(report.Errors, res.Err)
			report.Sources = append(report.Sources, sr)
			continue
		}

		metrics.SignalsCollected.WithLabelValues(res.Source).Add(float64(len(res.Signals)))

		normalized, dropped := sources.Normalize(res.Signals, byName[res.Source].DateField(), logger)
		if dropped > 0 {
			metrics.SignalsDropped.WithLabelValues(res.Source, "invalid").Add(float64(dropped))
		}
		sr.Collected = len(normalized)
		sr.Dropped = dropped
		report.Sources = append(report.Sources, sr)
		report.Collected += len(normalized)
		report.Dropped += dropped

		logger.Info("source collected",
			logging.Source(res.Source),
			logging.Count(len(normalized)),
			slog.Int("dropped", dropped),
			slog.Duration("duration", res.Duration))

		signals = append(signals, normalized...)
	}

	fresh, dups := p.c.Dedup.Filter(ctx, signals)
	report.Duplicates = dups
	if dups > 0 {
		metrics.SignalsDropped.WithLabelValues("", "duplicate").Add(float64(dups))
	}

	d := p.deliver(ctx, fresh, runID, logger)
	report.Delivered = d.delivered
	report.Failed = d.failed
	report.Errors = append(report.Errors, d.errs...)
	report.LedgerSize = p.c.Dedup.Size()

	logger.Info("collection finished",
		slog.Int("collected", report.Collected),
		slog.Int("duplicates", report.Duplicates),
		slog.Int("delivered", report.Delivered),
		slog.Int("failed", report.Failed),
		slog.Int("source_errors", len(report.Errors)))
	return report
}

// delivery is the outcome of sending one stage's new signals.
type delivery struct {
	delivered   int
	failed      int
	errs        []error
	undelivered map[string]bool // domains with a signal that did not go out
}

// deliver sends batches in order. A batch is committed to the ledger only
// after the sink accepted it; a rejected batch is released so the next run
// sends it again.
func (p *Pipeline) deliver(ctx context.Context, fresh []model.Signal, runID string, logger *slog.Logger) delivery {
	d := delivery{undelivered: make(map[string]bool)}
	batches := sink.Split(fresh, p.c.SinkBatchSize, runID)

	reject := func(batch sink.Batch) {
		p.c.Dedup.Release(batch.Signals)
		d.failed += len(batch.Signals)
		for domain := range aggregate.Group(batch.Signals) {
			d.undelivered[domain] = true
		}
	}

	for i, batch := range batches {
		if ctx.Err() != nil {
			for _, rest := range batches[i:] {
				reject(rest)
			}
			d.errs = append(d.errs, ctx.Err())
			logger.Warn("shutdown requested, remaining batches not delivered", slog.Int("batches", len(batches)-i))
			break
		}

		if err := p.c.Sink.Deliver(ctx, batch); err != nil {
			reject(batch)
			d.errs = append(d.errs, err)
			metrics.DeliveryBatches.WithLabelValues("failed").Inc()

			var de *sink.DeliveryError
			if errors.As(err, &de) {
				logger.Warn("batch rejected", slog.Int("batch", batch.Number), slog.Int("status", de.StatusCode))
			} else {
				logger.Warn("batch delivery failed", slog.Int("batch", batch.Number), logging.Error(err))
			}
			continue
		}
		metrics.DeliveryBatches.WithLabelValues("delivered").Inc()

		// The batch is out; record it even if shutdown arrives now.
		if err := p.c.Dedup.MarkSent(context.WithoutCancel(ctx), batch.Signals); err != nil {
			d.errs = append(d.errs, err)
			logger.Error("dedup commit failed, batch may be resent next run",
				slog.Int("batch", batch.Number), logging.Error(err))
		} else {
			metrics.SignalsDelivered.Add(float64(len(batch.Signals)))
		}
		d.delivered += len(batch.Signals)

		if p.c.Aggregator != nil {
			for domain := range aggregate.Group(batch.Signals) {
				p.c.Aggregator.Invalidate(domain)
			}
		}
	}

	metrics.LedgerSize.Set(float64(p.c.Dedup.Size()))
	return d
}
