package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/painpoint/internal/gate"
	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/metrics"
	"github.com/ppiankov/painpoint/internal/model"
)

// ScoreReport summarizes a scoring run.
type ScoreReport struct {
	RunID       string
	Scored      int
	Qualified   int
	Admitted    int
	Deferred    int
	Failed      int
	Interrupted bool // shutdown stopped the pass before every company was scored
	Remaining   int  // admissions left in today's budget, -1 when unknown
	Prospects   []model.Prospect
	Errors      []error
}

// Score runs one scoring pass over every unscored company, then admits
// qualified prospects through the gate.
func (p *Pipeline) Score(ctx context.Context) *ScoreReport {
	runID := p.c.NewID()
	return p.score(ctx, runID, p.logger.With(logging.RunID(runID)))
}

func (p *Pipeline) score(ctx context.Context, runID string, logger *slog.Logger) *ScoreReport {
	start := time.Now()
	defer func() { metrics.RunDuration.WithLabelValues("score").Observe(time.Since(start).Seconds()) }()

	logger = logger.With(logging.Stage("score"))
	report := &ScoreReport{RunID: runID, Remaining: -1}
	if ctx.Err() != nil {
		report.Interrupted = true
		return report
	}

	companies, err := p.companies.Unscored(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err)
		logger.Error("load unscored companies failed", logging.Error(err))
		return report
	}
	logger.Info("scoring companies", logging.Count(len(companies)))

	var (
		scoredCos []model.Company
		prospects []model.Prospect
		scored    = make(map[string]bool, len(companies))
	)

	// Writes already started finish even when shutdown arrives mid-flush.
	flush := func() {
		if len(scoredCos) == 0 {
			return
		}
		wctx := context.WithoutCancel(ctx)
		if err := p.companies.MarkScored(wctx, scoredCos); err != nil {
			report.Errors = append(report.Errors, err)
			metrics.ScoreErrors.Add(float64(len(scoredCos)))
			logger.Error("write scores failed", logging.Count(len(scoredCos)), logging.Error(err))
		}
		if err := p.prospects.Save(wctx, prospects[len(prospects)-len(scoredCos):]); err != nil {
			report.Errors = append(report.Errors, err)
			logger.Error("save prospects failed", logging.Error(err))
		}
		scoredCos = scoredCos[:0]
	}

	now := p.c.Now().UTC()
	for _, co := range companies {
		if ctx.Err() != nil {
			report.Interrupted = true
			logger.Warn("shutdown requested, stopping scoring", slog.Int("remaining", len(companies)-report.Scored-report.Failed))
			break
		}

		signals, err := p.c.Aggregator.SignalsFor(ctx, co.Domain)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, err)
			metrics.ScoreErrors.Inc()
			logger.Warn("load signals failed", logging.Domain(co.Domain), logging.Error(err))
			continue
		}

		res := p.c.Scorer.Score(co, signals, now)
		seg := p.c.Resolver.Resolve(signals, res.SubScores, co.EmployeeCount, now)

		pr := model.Prospect{
			ScoreResult:    res,
			CompanyName:    co.CompanyName,
			Segment:        seg,
			Recommendation: res.Recommendation(),
			Qualified:      p.c.Gate.Qualifies(res),
			RunID:          runID,
		}
		prospects = append(prospects, pr)
		scored[co.Domain] = true

		co.PainScore = res.PainScore
		co.PrimaryEDP = res.PrimaryEDP
		co.Segment = seg
		co.ScoredAt = now
		scoredCos = append(scoredCos, co)

		report.Scored++
		if pr.Qualified {
			report.Qualified++
		}
		metrics.CompaniesScored.Inc()
		metrics.PainScore.Observe(res.PainScore)

		logger.Debug("company scored",
			logging.Domain(co.Domain),
			slog.Float64("pain_score", res.PainScore),
			slog.String("segment", string(seg)),
			slog.Int("signals", len(signals)))

		if len(scoredCos) >= p.c.ScoreBatchSize {
			flush()
		}
	}
	flush()

	if report.Interrupted {
		report.Prospects = prospects
		return report
	}

	report.Prospects = p.admit(ctx, prospects, scored, report, logger)

	if remaining, err := p.c.Gate.Remaining(ctx); err != nil {
		logger.Warn("read outreach budget failed", logging.Error(err))
	} else {
		report.Remaining = remaining
		metrics.BudgetRemaining.Set(float64(remaining))
	}

	logger.Info("scoring finished",
		slog.Int("scored", report.Scored),
		slog.Int("qualified", report.Qualified),
		slog.Int("admitted", report.Admitted),
		slog.Int("deferred", report.Deferred),
		slog.Int("budget_remaining", report.Remaining),
		slog.Int("failed", report.Failed))
	return report
}

// admit offers this run's qualified prospects together with earlier deferred
// ones to the gate, highest pain first. Admitted prospects are published; a
// prospect whose publish fails stays deferred for the next run.
func (p *Pipeline) admit(ctx context.Context, prospects []model.Prospect, scored map[string]bool, report *ScoreReport, logger *slog.Logger) []model.Prospect {
	var candidates []model.Prospect
	for _, pr := range prospects {
		if pr.Qualified {
			candidates = append(candidates, pr)
		}
	}

	deferred, err := p.prospects.Deferred(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err)
		logger.Warn("load deferred prospects failed", logging.Error(err))
	}
	for _, pr := range deferred {
		if !scored[pr.Domain] {
			candidates = append(candidates, pr)
		}
	}

	gate.Rank(candidates)

	updated := make(map[string]model.Prospect, len(candidates))
	for _, pr := range candidates {
		decision, err := p.c.Gate.Admit(ctx, pr.ScoreResult)
		if err != nil {
			report.Errors = append(report.Errors, err)
			logger.Warn("gate budget unavailable", logging.Domain(pr.Domain), logging.Error(err))
		}
		metrics.GateDecisions.WithLabelValues(string(decision)).Inc()

		switch decision {
		case gate.Admitted:
			pr.Admitted = true
			if err := p.publish(ctx, pr); err != nil {
				pr.Admitted = false
				report.Deferred++
				report.Errors = append(report.Errors, err)
				metrics.PublishErrors.Inc()
				logger.Warn("publish failed, prospect deferred", logging.Domain(pr.Domain), logging.Error(err))
			} else {
				report.Admitted++
			}
		case gate.BelowThreshold:
			// Threshold raised since the prospect was deferred.
			pr.Qualified = false
		case gate.Deferred:
			report.Deferred++
		}
		updated[pr.Domain] = pr
	}

	changed := make([]model.Prospect, 0, len(updated))
	for _, pr := range candidates {
		if u, ok := updated[pr.Domain]; ok && (u.Admitted || !u.Qualified) {
			changed = append(changed, u)
		}
	}
	if err := p.prospects.Save(context.WithoutCancel(ctx), changed); err != nil {
		report.Errors = append(report.Errors, err)
		logger.Error("save admissions failed", logging.Error(err))
	}

	for i, pr := range prospects {
		if u, ok := updated[pr.Domain]; ok {
			prospects[i] = u
		}
	}
	return prospects
}

func (p *Pipeline) publish(ctx context.Context, pr model.Prospect) error {
	for _, pub := range p.c.Publishers {
		if err := pub.Publish(ctx, pr); err != nil {
			return err
		}
	}
	return nil
}
