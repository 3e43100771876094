package score

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ppiankov/painpoint/internal/model"
)

// Scorer converts a company's signal set into EDP sub-scores, a weighted
// pain score and a primary driver. It holds no mutable state and is safe
// for concurrent use.
type Scorer struct {
	weights          model.Weights
	defaultEmployees int
}

// NewScorer creates a new scorer
func NewScorer(cfg model.ScoringConfig) *Scorer {
	employees := cfg.DefaultEmployeeCount
	if employees <= 0 {
		employees = 100
	}
	return &Scorer{
		weights:          cfg.Weights,
		defaultEmployees: employees,
	}
}

// profile is the company metadata the sub-scores read, with defaults
// already applied.
type profile struct {
	industry   Industry
	employees  int
	tooling    Tooling
	stackKnown bool
}

func (s *Scorer) profileOf(co model.Company) profile {
	employees := co.EmployeeCount
	if employees <= 0 {
		employees = s.defaultEmployees
	}
	return profile{
		industry:   ClassifyIndustry(co.Industry, co.CompanyName),
		employees:  employees,
		tooling:    DetectTooling(co.Technologies),
		stackKnown: co.TechStackAnalyzed,
	}
}

// Score computes the result for one company. It never fails: missing
// metadata falls back to defaults and an empty signal set is simply
// low-pain.
func (s *Scorer) Score(co model.Company, signals []model.Signal, now time.Time) model.ScoreResult {
	p := s.profileOf(co)

	var breakdown []model.Explanation

	// 1. Dwell time (breach recency, tooling gaps, staffing)
	dwell, dwellExp := s.dwellTime(signals, p, now)
	breakdown = append(breakdown, dwellExp)

	// 2. Skills gap (vacancy tenure)
	skills, skillsExp := s.skillsGap(signals, now)
	breakdown = append(breakdown, skillsExp)

	// 3. After hours coverage
	after, afterExp := s.afterHours(p)
	breakdown = append(breakdown, afterExp)

	// 4. Insurance pressure
	insurance, insuranceExp := s.insurance(signals, p)
	breakdown = append(breakdown, insuranceExp)

	// 5. Breach cost
	cost, costExp := s.breachCost(p)
	breakdown = append(breakdown, costExp)

	sub := model.SubScores{
		DwellTime:  dwell,
		SkillsGap:  skills,
		AfterHours: after,
		Insurance:  insurance,
		BreachCost: cost,
	}

	result := model.ScoreResult{
		Domain:     co.Domain,
		PainScore:  clamp(100*s.weights.Apply(sub), 0, 100),
		SubScores:  sub,
		PrimaryEDP: PrimaryEDP(sub),
		Timestamp:  now,
		Breakdown:  breakdown,
	}

	if hasType(signals, model.SignalActiveRansomware) {
		result.PainScore = 100
		result.PrimaryEDP = model.PrimaryActiveRansomware
		result.Override = true
		result.Breakdown = append(result.Breakdown, model.Explanation{
			Dimension:   model.PrimaryActiveRansomware,
			Value:       100,
			Description: "Active ransomware victim: pain score forced to 100",
			Data:        map[string]any{"rule": "override"},
		})
	}

	return result
}

// PrimaryEDP returns the dimension with the highest sub-score. Ties go to
// the earlier dimension in declared order.
func PrimaryEDP(sub model.SubScores) string {
	best := model.EDPOrder[0]
	for _, name := range model.EDPOrder[1:] {
		if sub.Get(name) > sub.Get(best) {
			best = name
		}
	}
	return best
}

// dwellTime scores undetected-intrusion risk (0-1).
func (s *Scorer) dwellTime(signals []model.Signal, p profile, now time.Time) (float64, model.Explanation) {
	score := 0.0
	data := map[string]any{}

	breaches := filter(signals, func(sig model.Signal) bool { return sig.SignalType.IsBreach() })
	data["breach_signals"] = len(breaches)
	if len(breaches) > 0 {
		band := 0.3
		if age, ok := newestAge(breaches, now); ok {
			data["days_since_breach"] = age
			band = recencyBand(age)
		}
		data["recency_band"] = band
		score += band
	}

	if p.stackKnown {
		penalty := 0.0
		if !p.tooling.MDR {
			penalty += 0.3
		}
		if !p.tooling.SIEM {
			penalty += 0.2
		}
		if !p.tooling.EDR {
			penalty += 0.2
		}
		data["tooling_penalty"] = penalty
		score += penalty
	}
	data["tech_stack_known"] = p.stackKnown

	if anyOf(signals, func(sig model.Signal) bool { return sig.SignalType.IsVacancy() }) {
		data["vacancy_bonus"] = 0.2
		score += 0.2
	}

	score = clamp(score, 0, 1)
	data["formula"] = "min(recency_band + tooling_penalty + vacancy_bonus, 1)"
	return score, model.Explanation{
		Dimension:   model.EDPDwellTime,
		Value:       score,
		Description: fmt.Sprintf("%d breach signal(s), dwell risk %.2f", len(breaches), score),
		Data:        data,
	}
}

// recencyBand maps days since the newest breach to a decay band.
func recencyBand(days int) float64 {
	switch {
	case days < 30:
		return 0.9
	case days < 90:
		return 0.7
	case days < 180:
		return 0.5
	default:
		return 0.3
	}
}

// skillsGap scores the cost of open security roles (0-1).
func (s *Scorer) skillsGap(signals []model.Signal, now time.Time) (float64, model.Explanation) {
	score := 0.0
	vacancies := filter(signals, func(sig model.Signal) bool { return sig.SignalType.IsVacancy() })

	executives := 0
	for _, v := range vacancies {
		switch days := daysOpen(v, now); {
		case days > 90:
			score += 0.4
		case days > 60:
			score += 0.3
		case days > 30:
			score += 0.2
		}
		if v.IsExecutive() {
			executives++
			score += 0.2
		}
	}

	score = clamp(score, 0, 1)
	return score, model.Explanation{
		Dimension:   model.EDPSkillsGap,
		Value:       score,
		Description: fmt.Sprintf("%d open security role(s), %d executive", len(vacancies), executives),
		Data: map[string]any{
			"vacancies":  len(vacancies),
			"executives": executives,
			"formula":    "min(sum(days_open tier: >90d 0.4, >60d 0.3, >30d 0.2) + 0.2 per executive role, 1)",
		},
	}
}

// daysOpen reads raw_data.days_open, falling back to the signal's age.
func daysOpen(sig model.Signal, now time.Time) int {
	if v, ok := numeric(sig.RawData["days_open"]); ok {
		return int(v)
	}
	if age, ok := sig.AgeDays(now); ok {
		return age
	}
	return 0
}

// afterHours scores exposure outside business hours (0-1).
func (s *Scorer) afterHours(p profile) (float64, model.Explanation) {
	score := 0.5
	if p.tooling.MDR {
		score -= 0.4
	}
	if p.tooling.MSSP {
		score -= 0.3
	}
	if p.industry.HighRisk() {
		score += 0.2
	}

	score = clamp(score, 0, 1)
	return score, model.Explanation{
		Dimension:   model.EDPAfterHours,
		Value:       score,
		Description: fmt.Sprintf("After-hours exposure %.2f (%s)", score, p.industry),
		Data: map[string]any{
			"has_mdr":   p.tooling.MDR,
			"has_mssp":  p.tooling.MSSP,
			"industry":  string(p.industry),
			"high_risk": p.industry.HighRisk(),
			"formula":   "clamp(0.5 - 0.4*mdr - 0.3*mssp + 0.2*high_risk_industry, 0, 1)",
		},
	}
}

// insurance scores cyber-insurance pressure (0-1).
func (s *Scorer) insurance(signals []model.Signal, p profile) (float64, model.Explanation) {
	score := 0.0

	breach := anyOf(signals, func(sig model.Signal) bool { return sig.SignalType.IsBreach() })
	if breach {
		score += 0.4
	}
	if p.industry.Regulated() {
		score += 0.3
	}
	compliance := anyOf(signals, func(sig model.Signal) bool { return sig.SignalType.IsCompliance() })
	if compliance {
		score += 0.3
	}

	score = clamp(score, 0, 1)
	return score, model.Explanation{
		Dimension:   model.EDPInsurance,
		Value:       score,
		Description: fmt.Sprintf("Insurance pressure %.2f", score),
		Data: map[string]any{
			"breach_history":       breach,
			"regulated_industry":   p.industry.Regulated(),
			"compliance_violation": compliance,
			"formula":              "min(0.4*breach + 0.3*regulated + 0.3*compliance, 1)",
		},
	}
}

// breachCost scores the expected cost of a breach (0-1).
func (s *Scorer) breachCost(p profile) (float64, model.Explanation) {
	var base float64
	switch {
	case p.employees > 5000:
		base = 0.8
	case p.employees > 1000:
		base = 0.6
	case p.employees > 500:
		base = 0.4
	default:
		base = 0.3
	}

	multiplier := p.industry.Multiplier()
	score := clamp(base*multiplier, 0, 1)
	return score, model.Explanation{
		Dimension:   model.EDPBreachCost,
		Value:       score,
		Description: fmt.Sprintf("%d employees, %s multiplier %.1f", p.employees, p.industry, multiplier),
		Data: map[string]any{
			"employees":  p.employees,
			"base_tier":  base,
			"multiplier": multiplier,
			"formula":    "min(size_tier * industry_multiplier, 1)",
		},
	}
}

// newestAge returns the age in days of the most recent dated signal.
func newestAge(signals []model.Signal, now time.Time) (int, bool) {
	var newest time.Time
	for _, sig := range signals {
		if sig.Dated() && sig.SignalDate.After(newest) {
			newest = sig.SignalDate
		}
	}
	if newest.IsZero() {
		return 0, false
	}
	return int(now.Sub(newest).Hours() / 24), true
}

func filter(signals []model.Signal, keep func(model.Signal) bool) []model.Signal {
	var out []model.Signal
	for _, sig := range signals {
		if keep(sig) {
			out = append(out, sig)
		}
	}
	return out
}

func anyOf(signals []model.Signal, pred func(model.Signal) bool) bool {
	for _, sig := range signals {
		if pred(sig) {
			return true
		}
	}
	return false
}

func hasType(signals []model.Signal, t model.SignalType) bool {
	return anyOf(signals, func(sig model.Signal) bool { return sig.SignalType == t })
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
