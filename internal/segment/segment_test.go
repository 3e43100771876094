package segment

import (
	"testing"
	"time"

	"github.com/ppiankov/painpoint/internal/model"
)

var now = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func TestResolve_PriorityOrder(t *testing.T) {
	recent := []model.Signal{{SignalType: model.SignalPostBreach, SignalDate: now.AddDate(0, 0, -10)}}
	old := []model.Signal{{SignalType: model.SignalPostBreach, SignalDate: now.AddDate(0, 0, -200)}}
	undated := []model.Signal{{SignalType: model.SignalPostBreach}}

	tests := []struct {
		name      string
		signals   []model.Signal
		sub       model.SubScores
		employees int
		want      model.Segment
	}{
		{"breach beats skills gap", recent, model.SubScores{SkillsGap: 0.95}, 5000, model.SegmentPostBreachSurvivor},
		{"old breach falls through", old, model.SubScores{SkillsGap: 0.95}, 5000, model.SegmentSkillsGapSufferer},
		{"undated breach falls through", undated, model.SubScores{Insurance: 0.8}, 5000, model.SegmentInsurancePressured},
		{"skills gap beats insurance", nil, model.SubScores{SkillsGap: 0.8, Insurance: 1.0}, 5000, model.SegmentSkillsGapSufferer},
		{"skills gap threshold is strict", nil, model.SubScores{SkillsGap: 0.7}, 5000, model.SegmentGeneralProspect},
		{"insurance beats dwell", nil, model.SubScores{Insurance: 0.9, DwellTime: 0.9}, 5000, model.SegmentInsurancePressured},
		{"dwell", nil, model.SubScores{DwellTime: 0.61}, 5000, model.SegmentResourceConstrained},
		{"small company", nil, model.SubScores{}, 499, model.SegmentOverwhelmedGeneralist},
		{"500 is not small", nil, model.SubScores{}, 500, model.SegmentGeneralProspect},
		{"unknown size uses default", nil, model.SubScores{}, 0, model.SegmentOverwhelmedGeneralist},
		{"empty set, 50 employees", nil, model.SubScores{AfterHours: 0.5, BreachCost: 0.3}, 50, model.SegmentOverwhelmedGeneralist},
	}

	r := NewResolver(100)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.signals, tt.sub, tt.employees, now); got != tt.want {
				t.Errorf("Resolve = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolve_RansomwareIsBreach(t *testing.T) {
	signals := []model.Signal{{SignalType: model.SignalActiveRansomware, SignalStrength: 1.0, SignalDate: now}}
	got := NewResolver(100).Resolve(signals, model.SubScores{}, 10000, now)
	if got != model.SegmentPostBreachSurvivor {
		t.Errorf("ransomware victim resolved to %s, want post_breach_survivor", got)
	}
}

func TestResolve_BoundaryAge(t *testing.T) {
	r := NewResolver(100)

	at89 := []model.Signal{{SignalType: model.SignalHIBPBreach, SignalDate: now.AddDate(0, 0, -89)}}
	if got := r.Resolve(at89, model.SubScores{}, 5000, now); got != model.SegmentPostBreachSurvivor {
		t.Errorf("89 days: %s", got)
	}

	at90 := []model.Signal{{SignalType: model.SignalHIBPBreach, SignalDate: now.AddDate(0, 0, -90)}}
	if got := r.Resolve(at90, model.SubScores{}, 5000, now); got != model.SegmentGeneralProspect {
		t.Errorf("90 days: %s", got)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewResolver(100)
	signals := []model.Signal{
		{SignalType: model.SignalSkillsGapCritical, SignalDate: now.AddDate(0, 0, -40)},
		{SignalType: model.SignalPostBreach, SignalDate: now.AddDate(0, 0, -120)},
		{SignalType: model.SignalComplianceVulnerability},
	}
	sub := model.SubScores{DwellTime: 0.65, SkillsGap: 0.4, AfterHours: 0.5, Insurance: 0.7, BreachCost: 0.3}

	first := r.Resolve(signals, sub, 800, now)
	for i := 0; i < 100; i++ {
		if got := r.Resolve(signals, sub, 800, now); got != first {
			t.Fatalf("call %d returned %s, first returned %s", i, got, first)
		}
	}
	if first != model.SegmentResourceConstrained {
		t.Errorf("expected resource_constrained, got %s", first)
	}
}
