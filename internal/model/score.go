package model

import "time"

// EDP dimension names in declared order. The order is the tie-break for the
// primary driver.
const (
	EDPDwellTime  = "dwell_time"
	EDPSkillsGap  = "skills_gap"
	EDPAfterHours = "after_hours"
	EDPInsurance  = "insurance"
	EDPBreachCost = "breach_cost"

	// PrimaryActiveRansomware replaces the primary driver under the
	// ransomware override.
	PrimaryActiveRansomware = "active_ransomware"
)

// EDPOrder lists the dimensions in declared order.
var EDPOrder = []string{EDPDwellTime, EDPSkillsGap, EDPAfterHours, EDPInsurance, EDPBreachCost}

// SubScores holds the five independent dimensions, each in [0,1].
type SubScores struct {
	DwellTime  float64 `json:"dwell_time"`
	SkillsGap  float64 `json:"skills_gap"`
	AfterHours float64 `json:"after_hours"`
	Insurance  float64 `json:"insurance"`
	BreachCost float64 `json:"breach_cost"`
}

// Get returns a sub-score by dimension name.
func (s SubScores) Get(name string) float64 {
	switch name {
	case EDPDwellTime:
		return s.DwellTime
	case EDPSkillsGap:
		return s.SkillsGap
	case EDPAfterHours:
		return s.AfterHours
	case EDPInsurance:
		return s.Insurance
	case EDPBreachCost:
		return s.BreachCost
	}
	return 0
}

// ScoreResult is the scorer output for one domain.
type ScoreResult struct {
	Domain     string    `json:"domain"`
	PainScore  float64   `json:"pain_score"` // 0-100
	SubScores  SubScores `json:"sub_scores"`
	PrimaryEDP string    `json:"primary_edp"`
	Override   bool      `json:"override,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	// Breakdown carries the inputs and formula behind each sub-score.
	Breakdown []Explanation `json:"breakdown,omitempty"`
}

// Explanation is a transparent record of how one sub-score was computed.
type Explanation struct {
	Dimension   string         `json:"dimension"`
	Value       float64        `json:"value"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// Recommendation tiers by pain score.
const (
	RecommendImmediateCritical = "immediate_outreach_critical"
	RecommendImmediate         = "immediate_outreach_priority"
	RecommendHigh              = "high_priority_outreach"
	RecommendMedium            = "medium_priority_nurture"
	RecommendLow               = "low_priority_monitor"
	RecommendNotQualified      = "not_qualified"
)

// Recommendation maps a result to an outreach tier.
func (r ScoreResult) Recommendation() string {
	if r.Override {
		return RecommendImmediateCritical
	}
	switch {
	case r.PainScore >= 90:
		return RecommendImmediate
	case r.PainScore >= 75:
		return RecommendHigh
	case r.PainScore >= 60:
		return RecommendMedium
	case r.PainScore >= 45:
		return RecommendLow
	default:
		return RecommendNotQualified
	}
}
