// Package segment assigns each scored company exactly one outreach segment
// using a fixed priority list.
package segment

import (
	"time"

	"github.com/ppiankov/painpoint/internal/model"
)

// Thresholds of the decision list.
const (
	RecentBreachDays     = 90
	SkillsGapThreshold   = 0.7
	InsuranceThreshold   = 0.7
	DwellTimeThreshold   = 0.6
	SmallCompanyEmployee = 500
)

// Resolver maps signals and sub-scores to a segment.
type Resolver struct {
	defaultEmployees int
}

// NewResolver creates a resolver. defaultEmployees replaces an unknown
// employee count.
func NewResolver(defaultEmployees int) *Resolver {
	if defaultEmployees <= 0 {
		defaultEmployees = 100
	}
	return &Resolver{defaultEmployees: defaultEmployees}
}

// Resolve returns the first matching segment:
//
//  1. post_breach_survivor: a breach-type signal (ransomware included) dated
//     within 90 days
//  2. skills_gap_sufferer: skills_gap > 0.7
//  3. insurance_pressured: insurance > 0.7
//  4. resource_constrained: dwell_time > 0.6
//  5. overwhelmed_generalist: fewer than 500 employees
//  6. general_prospect
func (r *Resolver) Resolve(signals []model.Signal, sub model.SubScores, employeeCount int, now time.Time) model.Segment {
	if recentBreach(signals, now) {
		return model.SegmentPostBreachSurvivor
	}
	if sub.SkillsGap > SkillsGapThreshold {
		return model.SegmentSkillsGapSufferer
	}
	if sub.Insurance > InsuranceThreshold {
		return model.SegmentInsurancePressured
	}
	if sub.DwellTime > DwellTimeThreshold {
		return model.SegmentResourceConstrained
	}

	if employeeCount <= 0 {
		employeeCount = r.defaultEmployees
	}
	if employeeCount < SmallCompanyEmployee {
		return model.SegmentOverwhelmedGeneralist
	}
	return model.SegmentGeneralProspect
}

// recentBreach ignores undated signals: their age is unknown.
func recentBreach(signals []model.Signal, now time.Time) bool {
	for _, s := range signals {
		if !s.SignalType.IsBreach() {
			continue
		}
		if age, ok := s.AgeDays(now); ok && age < RecentBreachDays {
			return true
		}
	}
	return false
}
