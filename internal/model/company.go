package model

import "time"

// Company is one prospect entity, keyed by canonical domain.
type Company struct {
	Domain        string   `json:"domain"`
	CompanyName   string   `json:"company_name"`
	Industry      string   `json:"industry,omitempty"`
	EmployeeCount int      `json:"employee_count,omitempty"` // 0 = unknown
	Technologies  []string `json:"technologies,omitempty"`

	// Idempotency markers set by individual stages.
	Analyzed          bool `json:"analyzed"`
	Scored            bool `json:"scored"`
	TechStackAnalyzed bool `json:"tech_stack_analyzed"`

	AnalyzedAt time.Time `json:"analyzed_at,omitempty"`

	// Written back on every scoring pass.
	PainScore  float64   `json:"pain_score,omitempty"`
	PrimaryEDP string    `json:"primary_edp,omitempty"`
	Segment    Segment   `json:"segment,omitempty"`
	ScoredAt   time.Time `json:"scored_at,omitempty"`
}

// Segment is a mutually exclusive outreach category.
type Segment string

const (
	SegmentPostBreachSurvivor    Segment = "post_breach_survivor"
	SegmentSkillsGapSufferer     Segment = "skills_gap_sufferer"
	SegmentInsurancePressured    Segment = "insurance_pressured"
	SegmentResourceConstrained   Segment = "resource_constrained"
	SegmentOverwhelmedGeneralist Segment = "overwhelmed_generalist"
	SegmentGeneralProspect       Segment = "general_prospect"
)

// Prospect is a scored company on its way to the outreach gate.
type Prospect struct {
	ScoreResult
	CompanyName    string  `json:"company_name"`
	Segment        Segment `json:"segment"`
	Recommendation string  `json:"recommendation"`
	Qualified      bool    `json:"qualified"`
	Admitted       bool    `json:"admitted"`
	RunID          string  `json:"run_id"`
}
