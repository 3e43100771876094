package score

import (
	"math"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/ppiankov/painpoint/internal/model"
)

var now = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func newTestScorer() *Scorer {
	return NewScorer(model.DefaultConfig().Scoring)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func daysAgo(d int) time.Time {
	return now.AddDate(0, 0, -d)
}

func TestScorer_EmptySignalSet(t *testing.T) {
	result := newTestScorer().Score(model.Company{Domain: "acme.com", CompanyName: "Acme", EmployeeCount: 50}, nil, now)

	want := model.SubScores{AfterHours: 0.5, BreachCost: 0.3}
	if result.SubScores != want {
		t.Errorf("sub-scores = %+v, want %+v", result.SubScores, want)
	}
	if !approx(result.PainScore, 10.5) {
		t.Errorf("pain score = %v, want 10.5", result.PainScore)
	}
	if result.PrimaryEDP != model.EDPAfterHours {
		t.Errorf("primary = %s, want after_hours", result.PrimaryEDP)
	}
	if len(result.Breakdown) != 5 {
		t.Errorf("expected 5 explanations, got %d", len(result.Breakdown))
	}
}

func TestScorer_UnknownMetadataUsesDefaults(t *testing.T) {
	result := newTestScorer().Score(model.Company{Domain: "acme.com"}, nil, now)

	if !approx(result.SubScores.BreachCost, 0.3) {
		t.Errorf("default employee count should give 0.3 breach cost, got %v", result.SubScores.BreachCost)
	}
	if result.SubScores.DwellTime != 0 {
		t.Errorf("unknown tech stack should not add tooling penalties, got %v", result.SubScores.DwellTime)
	}
}

func TestScorer_FullProfile(t *testing.T) {
	co := model.Company{
		Domain:            "stmarys.org",
		CompanyName:       "St Mary",
		Industry:          "Hospital & Health Care",
		EmployeeCount:     2000,
		Technologies:      []string{"Splunk Enterprise"},
		TechStackAnalyzed: true,
	}
	signals := []model.Signal{
		{SignalType: model.SignalPostBreach, SignalDate: daysAgo(10), SignalStrength: 0.9},
		{SignalType: model.SignalExecutiveVacancyCritical, SignalDate: daysAgo(5), RawData: map[string]any{"days_open": 95.0}},
		{SignalType: model.SignalComplianceVulnerability, SignalDate: daysAgo(40)},
	}

	result := newTestScorer().Score(co, signals, now)

	want := model.SubScores{
		DwellTime:  1.0, // 0.9 + 0.3 (no MDR) + 0.2 (no EDR) + 0.2 (vacancy), clamped
		SkillsGap:  0.6, // >90d 0.4 + executive 0.2
		AfterHours: 0.7, // 0.5 + healthcare 0.2
		Insurance:  1.0, // breach + regulated + compliance
		BreachCost: 0.9, // 0.6 * 1.5
	}
	got := result.SubScores
	for _, name := range model.EDPOrder {
		if !approx(got.Get(name), want.Get(name)) {
			t.Errorf("%s = %v, want %v", name, got.Get(name), want.Get(name))
		}
	}

	if !approx(result.PainScore, 84.5) {
		t.Errorf("pain score = %v, want 84.5", result.PainScore)
	}
	// dwell_time and insurance tie at 1.0; declared order wins.
	if result.PrimaryEDP != model.EDPDwellTime {
		t.Errorf("primary = %s, want dwell_time", result.PrimaryEDP)
	}
}

func TestScorer_DwellRecencyBands(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want float64
	}{
		{"10 days", daysAgo(10), 0.9},
		{"60 days", daysAgo(60), 0.7},
		{"120 days", daysAgo(120), 0.5},
		{"400 days", daysAgo(400), 0.3},
		{"undated", time.Time{}, 0.3},
	}

	s := newTestScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := []model.Signal{{SignalType: model.SignalHIBPBreach, SignalDate: tt.date}}
			got := s.Score(model.Company{Domain: "acme.com"}, signals, now).SubScores.DwellTime
			if !approx(got, tt.want) {
				t.Errorf("dwell = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScorer_DwellUsesNewestBreach(t *testing.T) {
	signals := []model.Signal{
		{SignalType: model.SignalPostBreach, SignalDate: daysAgo(300)},
		{SignalType: model.SignalPostBreach},
		{SignalType: model.SignalHealthcareBreach, SignalDate: daysAgo(20)},
	}
	got := newTestScorer().Score(model.Company{Domain: "acme.com"}, signals, now).SubScores.DwellTime
	if !approx(got, 0.9) {
		t.Errorf("dwell = %v, want 0.9", got)
	}
}

func TestScorer_SkillsGapDaysOpen(t *testing.T) {
	tests := []struct {
		name   string
		signal model.Signal
		want   float64
	}{
		{"raw days_open >90", model.Signal{SignalType: model.SignalSkillsGapCritical, RawData: map[string]any{"days_open": 120}}, 0.4},
		{"raw days_open >60", model.Signal{SignalType: model.SignalSkillsGapModerate, RawData: map[string]any{"days_open": "61"}}, 0.3},
		{"age fallback >30", model.Signal{SignalType: model.SignalSkillsGapModerate, SignalDate: daysAgo(45)}, 0.2},
		{"fresh", model.Signal{SignalType: model.SignalSkillsGapModerate, SignalDate: daysAgo(3)}, 0},
		{"undated no days_open", model.Signal{SignalType: model.SignalSkillsGapModerate}, 0},
		{"executive by title", model.Signal{SignalType: model.SignalSkillsGapModerate, RawData: map[string]any{"job_title": "CISO"}}, 0.2},
		{"not a vacancy", model.Signal{SignalType: model.SignalGithubExposure, RawData: map[string]any{"days_open": 200}}, 0},
	}

	s := newTestScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(model.Company{Domain: "acme.com"}, []model.Signal{tt.signal}, now).SubScores.SkillsGap
			if !approx(got, tt.want) {
				t.Errorf("skills_gap = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScorer_SkillsGapClamped(t *testing.T) {
	var signals []model.Signal
	for i := 0; i < 5; i++ {
		signals = append(signals, model.Signal{
			SignalType: model.SignalExecutiveVacancyCritical,
			RawData:    map[string]any{"days_open": 100},
		})
	}
	got := newTestScorer().Score(model.Company{Domain: "acme.com"}, signals, now).SubScores.SkillsGap
	if got != 1.0 {
		t.Errorf("skills_gap = %v, want 1.0", got)
	}
}

func TestScorer_AfterHoursCoverage(t *testing.T) {
	tests := []struct {
		name  string
		co    model.Company
		want  float64
		dwell float64
	}{
		{"mdr", model.Company{Technologies: []string{"CrowdStrike Falcon"}}, 0.1, 0},
		{"mssp", model.Company{Technologies: []string{"Arctic Wolf"}}, 0.2, 0},
		{"mdr and mssp", model.Company{Technologies: []string{"SentinelOne", "Secureworks"}}, 0, 0},
		{"finance", model.Company{CompanyName: "First National Bank"}, 0.7, 0},
		{"stack known, nothing detected", model.Company{TechStackAnalyzed: true}, 0.5, 0.7},
		{"stack known, full coverage", model.Company{TechStackAnalyzed: true, Technologies: []string{"crowdstrike", "splunk"}}, 0.1, 0},
	}

	s := newTestScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.co.Domain = "example.com"
			sub := s.Score(tt.co, nil, now).SubScores
			if !approx(sub.AfterHours, tt.want) {
				t.Errorf("after_hours = %v, want %v", sub.AfterHours, tt.want)
			}
			if !approx(sub.DwellTime, tt.dwell) {
				t.Errorf("dwell_time = %v, want %v", sub.DwellTime, tt.dwell)
			}
		})
	}
}

func TestScorer_BreachCostTiers(t *testing.T) {
	tests := []struct {
		employees int
		industry  string
		want      float64
	}{
		{6000, "", 0.8},
		{6000, "healthcare", 1.0},
		{1500, "finance", 0.78},
		{700, "retail", 0.48},
		{200, "manufacturing", 0.33},
		{200, "", 0.3},
	}

	s := newTestScorer()
	for _, tt := range tests {
		co := model.Company{Domain: "example.com", EmployeeCount: tt.employees, Industry: tt.industry}
		got := s.Score(co, nil, now).SubScores.BreachCost
		if !approx(got, tt.want) {
			t.Errorf("breach_cost(%d, %q) = %v, want %v", tt.employees, tt.industry, got, tt.want)
		}
	}
}

func TestScorer_RansomwareOverride(t *testing.T) {
	s := newTestScorer()
	signals := []model.Signal{
		{SignalType: model.SignalActiveRansomware, SignalStrength: 1.0, SignalDate: now},
	}

	result := s.Score(model.Company{Domain: "victim.com"}, signals, now)
	if result.PainScore != 100 {
		t.Errorf("pain score = %v, want 100", result.PainScore)
	}
	if result.PrimaryEDP != model.PrimaryActiveRansomware {
		t.Errorf("primary = %s, want active_ransomware", result.PrimaryEDP)
	}
	if !result.Override {
		t.Error("override flag should be set")
	}
	if result.Recommendation() != model.RecommendImmediateCritical {
		t.Errorf("recommendation = %s", result.Recommendation())
	}
}

func TestPrimaryEDP_TieBreak(t *testing.T) {
	tests := []struct {
		sub  model.SubScores
		want string
	}{
		{model.SubScores{}, model.EDPDwellTime},
		{model.SubScores{DwellTime: 0.5, SkillsGap: 0.5, AfterHours: 0.5, Insurance: 0.5, BreachCost: 0.5}, model.EDPDwellTime},
		{model.SubScores{SkillsGap: 0.5, AfterHours: 0.5}, model.EDPSkillsGap},
		{model.SubScores{Insurance: 0.4, BreachCost: 0.9}, model.EDPBreachCost},
	}
	for _, tt := range tests {
		if got := PrimaryEDP(tt.sub); got != tt.want {
			t.Errorf("PrimaryEDP(%+v) = %s, want %s", tt.sub, got, tt.want)
		}
	}
}

var fakeTypes = []string{
	string(model.SignalPostBreach),
	string(model.SignalHIBPBreach),
	string(model.SignalHealthcareBreach),
	string(model.SignalSecurityTechGaps),
	string(model.SignalInsuranceCoverageIssue),
	string(model.SignalSkillsGapCritical),
	string(model.SignalSkillsGapModerate),
	string(model.SignalExecutiveVacancyCritical),
	string(model.SignalGithubExposure),
	string(model.SignalHighInsuranceRisk),
	string(model.SignalComplianceVulnerability),
	"unknown_type",
}

func fakeSignals(f *gofakeit.Faker) []model.Signal {
	n := f.Number(0, 25)
	signals := make([]model.Signal, 0, n)
	for i := 0; i < n; i++ {
		s := model.Signal{
			CompanyName:    f.Company(),
			Domain:         f.DomainName(),
			SignalType:     model.SignalType(f.RandomString(fakeTypes)),
			SignalStrength: f.Float64Range(0, 1),
			Source:         f.RandomString([]string{"california_ag", "hibp", "job_board"}),
		}
		if f.Bool() {
			s.SignalDate = f.DateRange(now.AddDate(-3, 0, 0), now.AddDate(0, 0, 7))
		}
		if f.Bool() {
			s.RawData = map[string]any{"days_open": f.Number(0, 400), "job_title": f.JobTitle()}
		}
		signals = append(signals, s)
	}
	return signals
}

func fakeCompany(f *gofakeit.Faker) model.Company {
	return model.Company{
		Domain:            f.DomainName(),
		CompanyName:       f.Company(),
		Industry:          f.RandomString([]string{"", "healthcare", "finance", "retail", "Software", "Utilities", "Consulting"}),
		EmployeeCount:     f.Number(0, 20000),
		Technologies:      []string{f.RandomString([]string{"crowdstrike", "splunk", "arctic wolf", "nginx", ""})},
		TechStackAnalyzed: f.Bool(),
	}
}

func TestScorer_BoundsProperty(t *testing.T) {
	f := gofakeit.New(42)
	s := newTestScorer()

	for i := 0; i < 500; i++ {
		co := fakeCompany(f)
		result := s.Score(co, fakeSignals(f), now)

		for _, name := range model.EDPOrder {
			if v := result.SubScores.Get(name); v < 0 || v > 1 {
				t.Fatalf("iteration %d: %s = %v out of [0,1]", i, name, v)
			}
		}
		if result.PainScore < 0 || result.PainScore > 100 {
			t.Fatalf("iteration %d: pain score %v out of [0,100]", i, result.PainScore)
		}
	}
}

func TestScorer_RansomwareOverrideProperty(t *testing.T) {
	f := gofakeit.New(7)
	s := newTestScorer()

	for i := 0; i < 200; i++ {
		signals := fakeSignals(f)
		pos := 0
		if len(signals) > 0 {
			pos = f.Number(0, len(signals))
		}
		ransom := model.Signal{SignalType: model.SignalActiveRansomware, SignalStrength: f.Float64Range(0, 1)}
		signals = append(signals[:pos], append([]model.Signal{ransom}, signals[pos:]...)...)

		result := s.Score(fakeCompany(f), signals, now)
		if result.PainScore != 100 || result.PrimaryEDP != model.PrimaryActiveRansomware {
			t.Fatalf("iteration %d: got %v/%s, want 100/active_ransomware", i, result.PainScore, result.PrimaryEDP)
		}
	}
}

func TestScorer_Deterministic(t *testing.T) {
	f := gofakeit.New(99)
	s := newTestScorer()
	co := fakeCompany(f)
	signals := fakeSignals(f)

	first := s.Score(co, signals, now)
	for i := 0; i < 100; i++ {
		got := s.Score(co, signals, now)
		if got.PainScore != first.PainScore || got.PrimaryEDP != first.PrimaryEDP || got.SubScores != first.SubScores {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
