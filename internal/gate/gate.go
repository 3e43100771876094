// Package gate decides which scored companies proceed to campaign
// generation.
package gate

import (
	"context"
	"fmt"
	"sort"

	"github.com/ppiankov/painpoint/internal/model"
)

// Decision is the outcome of offering a result to the gate.
type Decision string

const (
	Admitted       Decision = "admitted"
	BelowThreshold Decision = "below_threshold"
	Deferred       Decision = "deferred"
)

// Budget is a counter of remaining admissions.
type Budget interface {
	// Take atomically consumes one admission. It reports false once the
	// budget is exhausted.
	Take(ctx context.Context) (bool, error)
	Remaining(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// Gate admits results at or above a pain threshold while budget lasts.
type Gate struct {
	minPainScore float64
	budget       Budget
}

// New creates a gate.
func New(minPainScore float64, budget Budget) *Gate {
	return &Gate{minPainScore: minPainScore, budget: budget}
}

// Qualifies reports whether a result meets the pain threshold.
func (g *Gate) Qualifies(r model.ScoreResult) bool {
	return r.PainScore >= g.minPainScore
}

// Admit offers one result. A qualified result that finds the budget
// exhausted is deferred, not dropped. A budget error also defers.
func (g *Gate) Admit(ctx context.Context, r model.ScoreResult) (Decision, error) {
	if !g.Qualifies(r) {
		return BelowThreshold, nil
	}
	ok, err := g.budget.Take(ctx)
	if err != nil {
		return Deferred, fmt.Errorf("take budget for %s: %w", r.Domain, err)
	}
	if !ok {
		return Deferred, nil
	}
	return Admitted, nil
}

// Reset restores the budget at the start of a run.
func (g *Gate) Reset(ctx context.Context) error {
	return g.budget.Reset(ctx)
}

// Remaining reports the admissions left.
func (g *Gate) Remaining(ctx context.Context) (int, error) {
	return g.budget.Remaining(ctx)
}

// Rank orders candidates for admission: highest pain first, ties by domain.
func Rank(prospects []model.Prospect) {
	sort.SliceStable(prospects, func(i, j int) bool {
		if prospects[i].PainScore != prospects[j].PainScore {
			return prospects[i].PainScore > prospects[j].PainScore
		}
		return prospects[i].Domain < prospects[j].Domain
	})
}
