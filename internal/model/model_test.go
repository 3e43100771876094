package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestCanonicalDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/", "example.com"},
		{"example.com", "example.com"},
		{"http://example.com", "example.com"},
		{"www.Acme.com/", "acme.com"},
		{"acme.com", "acme.com"},
		{"  HTTPS://Shop.Acme.com/path/to?q=1 ", "shop.acme.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CanonicalDomain(tt.in); got != tt.want {
			t.Errorf("CanonicalDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEstimateDomain(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Acme Corp", "acme.com"},
		{"Blue Ridge Health, Inc.", "blueridgehealth.com"},
		{"Widgets LLC", "widgets.com"},
		{"Co", "co.com"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		if got := EstimateDomain(tt.name); got != tt.want {
			t.Errorf("EstimateDomain(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSignalType_Predicates(t *testing.T) {
	tests := []struct {
		typ        SignalType
		breach     bool
		vacancy    bool
		compliance bool
	}{
		{SignalActiveRansomware, true, false, false},
		{SignalPostBreach, true, false, false},
		{SignalHIBPBreach, true, false, false},
		{SignalHealthcareBreach, true, false, false},
		{SignalExecutiveVacancyCritical, false, true, false},
		{SignalSkillsGapModerate, false, true, false},
		{SignalComplianceVulnerability, false, false, true},
		{SignalGithubExposure, false, false, false},
		{"something_new", false, false, false},
	}

	for _, tt := range tests {
		if got := tt.typ.IsBreach(); got != tt.breach {
			t.Errorf("%s.IsBreach() = %v, want %v", tt.typ, got, tt.breach)
		}
		if got := tt.typ.IsVacancy(); got != tt.vacancy {
			t.Errorf("%s.IsVacancy() = %v, want %v", tt.typ, got, tt.vacancy)
		}
		if got := tt.typ.IsCompliance(); got != tt.compliance {
			t.Errorf("%s.IsCompliance() = %v, want %v", tt.typ, got, tt.compliance)
		}
	}
}

func TestSignal_IsExecutive(t *testing.T) {
	byType := Signal{SignalType: SignalExecutiveVacancyModerate}
	if !byType.IsExecutive() {
		t.Error("executive vacancy type should be executive")
	}

	byTitle := Signal{
		SignalType: SignalSkillsGapCritical,
		RawData:    map[string]any{"job_title": "Director of Security Operations"},
	}
	if !byTitle.IsExecutive() {
		t.Error("director title should be executive")
	}

	analyst := Signal{
		SignalType: SignalSkillsGapCritical,
		RawData:    map[string]any{"job_title": "SOC Analyst"},
	}
	if analyst.IsExecutive() {
		t.Error("analyst title should not be executive")
	}
}

func TestSignal_AgeDays(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

	s := Signal{SignalDate: now.AddDate(0, 0, -10)}
	age, ok := s.AgeDays(now)
	if !ok || age != 10 {
		t.Errorf("AgeDays = %d, %v; want 10, true", age, ok)
	}

	if _, ok := (Signal{}).AgeDays(now); ok {
		t.Error("undated signal should report unknown age")
	}
}

func TestDefaultWeights_SumToOne(t *testing.T) {
	if sum := DefaultWeights().Sum(); math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("weights sum to %v, want 1.0", sum)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights", func(c *Config) { c.Scoring.Weights.DwellTime = 0.5 }},
		{"negative weight", func(c *Config) {
			c.Scoring.Weights.DwellTime = 0.55
			c.Scoring.Weights.BreachCost = -0.10
		}},
		{"threshold", func(c *Config) { c.Outreach.MinPainScore = 120 }},
		{"dedup backend", func(c *Config) { c.Dedup.Backend = "s3" }},
		{"ledger path", func(c *Config) { c.Dedup.LedgerPath = "" }},
		{"postgres url", func(c *Config) { c.Store.Backend = "postgres" }},
		{"webhook secret", func(c *Config) { c.Sink.WebhookURL = "https://hooks.example.com" }},
		{"analysis provider", func(c *Config) { c.Analysis.Provider = "clearbit" }},
		{"analysis url", func(c *Config) { c.Analysis.Provider = "http" }},
		{"refresh days", func(c *Config) { c.Analysis.RefreshDays = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestScoreResult_Recommendation(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{95, RecommendImmediate},
		{90, RecommendImmediate},
		{80, RecommendHigh},
		{60, RecommendMedium},
		{45, RecommendLow},
		{10.5, RecommendNotQualified},
	}
	for _, tt := range tests {
		r := ScoreResult{PainScore: tt.score}
		if got := r.Recommendation(); got != tt.want {
			t.Errorf("Recommendation(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}

	override := ScoreResult{PainScore: 100, Override: true}
	if got := override.Recommendation(); got != RecommendImmediateCritical {
		t.Errorf("override recommendation = %q", got)
	}
}

func TestSignalType_Lookups(t *testing.T) {
	if p := SignalActiveRansomware.Priority(); p != 1.0 {
		t.Errorf("ransomware priority = %v", p)
	}
	if p := SignalType("unknown").Priority(); p != 0.5 {
		t.Errorf("default priority = %v", p)
	}
	if c := SignalPostBreach.Campaign(); c != "breach_recovery" {
		t.Errorf("post_breach campaign = %q", c)
	}
	if c := SignalType("unknown").Campaign(); c != "general_outreach" {
		t.Errorf("default campaign = %q", c)
	}
}
