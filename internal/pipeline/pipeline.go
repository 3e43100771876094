// Package pipeline runs one collection, analysis and scoring cycle: sources
// feed the deduplicator and sink, companies are profiled, stored evidence is
// aggregated and scored per company, and qualified companies pass the
// outreach gate.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/painpoint/internal/aggregate"
	"github.com/ppiankov/painpoint/internal/analyze"
	"github.com/ppiankov/painpoint/internal/dedup"
	"github.com/ppiankov/painpoint/internal/gate"
	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/score"
	"github.com/ppiankov/painpoint/internal/segment"
	"github.com/ppiankov/painpoint/internal/sink"
	"github.com/ppiankov/painpoint/internal/sources"
	"github.com/ppiankov/painpoint/internal/store"
)

// Components are the collaborators one pipeline runs over.
type Components struct {
	Sources    []sources.Source
	Dedup      *dedup.Deduplicator
	Sink       sink.Sink
	Store      store.Store
	Aggregator *aggregate.Aggregator
	Analyzer   *analyze.Analyzer // nil skips the analysis stage
	Scorer     *score.Scorer
	Resolver   *segment.Resolver
	Gate       *gate.Gate
	Publishers []Publisher

	Workers         int // concurrent sources
	SinkBatchSize   int
	ScoreBatchSize  int           // buffered company writes per flush
	AnalysisRefresh time.Duration // re-analyze companies older than this; 0 never

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Pipeline orchestrates collection and scoring
type Pipeline struct {
	c         Components
	companies *store.Companies
	prospects *store.Prospects
	logger    *slog.Logger
}

// New creates a pipeline. Sink defaults to discarding and the clock to
// time.Now.
func New(c Components) *Pipeline {
	if c.Sink == nil {
		c.Sink = sink.Discard{}
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.SinkBatchSize <= 0 {
		c.SinkBatchSize = 100
	}
	if c.ScoreBatchSize <= 0 {
		c.ScoreBatchSize = 50
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}

	return &Pipeline{
		c:         c,
		companies: store.NewCompanies(c.Store),
		prospects: store.NewProspects(c.Store),
		logger:    logging.OrDefault(c.Logger),
	}
}

// CycleReport is the outcome of RunCycle.
type CycleReport struct {
	RunID   string
	Collect *CollectReport
	Analyze *AnalyzeReport
	Score   *ScoreReport
}

// RunCycle resets the gate budget, collects new evidence, analyzes new
// companies and scores every company waiting for a pass. Shutdown between
// stages skips the rest.
func (p *Pipeline) RunCycle(ctx context.Context) (*CycleReport, error) {
	runID := p.c.NewID()
	logger := p.logger.With(logging.RunID(runID))

	if err := p.c.Gate.Reset(ctx); err != nil {
		return nil, err
	}

	report := &CycleReport{RunID: runID}
	report.Collect = p.collect(ctx, runID, logger)

	if ctx.Err() != nil {
		logger.Warn("shutdown requested, skipping analysis and scoring")
		return report, nil
	}

	report.Analyze = p.analyze(ctx, runID, logger)

	if ctx.Err() != nil {
		logger.Warn("shutdown requested, skipping scoring")
		return report, nil
	}

	report.Score = p.score(ctx, runID, logger)
	return report, nil
}
