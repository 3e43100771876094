package model

import (
	"strings"
	"time"
)

// SignalType classifies a piece of evidence. The set is open: adapters may
// emit types not listed here and they flow through unchanged.
type SignalType string

const (
	SignalActiveRansomware         SignalType = "active_ransomware"
	SignalPostBreach               SignalType = "post_breach"
	SignalHealthcareBreach         SignalType = "healthcare_breach"
	SignalHIBPBreach               SignalType = "hibp_breach_detected"
	SignalSecurityTechGaps         SignalType = "security_tech_gaps"
	SignalInsuranceCoverageIssue   SignalType = "insurance_coverage_issue"
	SignalHighInsuranceRisk        SignalType = "high_insurance_risk"
	SignalComplianceVulnerability  SignalType = "compliance_vulnerability"
	SignalSkillsGapCritical        SignalType = "skills_gap_critical"
	SignalSkillsGapModerate        SignalType = "skills_gap_moderate"
	SignalExecutiveVacancyCritical SignalType = "executive_vacancy_critical"
	SignalExecutiveVacancyModerate SignalType = "executive_vacancy_moderate"
	SignalRecentPosting            SignalType = "recent_posting"
	SignalGithubExposure           SignalType = "github_exposure_detected"
)

// Authoritative date fields an adapter may declare for dedup hashing.
const (
	DateFieldSignal = "signal_date"
	DateFieldBreach = "breach_date"
)

// IsBreach reports whether the type counts as breach evidence.
// Active ransomware is a breach for every consumer.
func (t SignalType) IsBreach() bool {
	return t == SignalActiveRansomware || strings.Contains(string(t), "breach")
}

// IsVacancy reports whether the type is a staffing vacancy signal.
func (t SignalType) IsVacancy() bool {
	s := string(t)
	return strings.Contains(s, "vacancy") || strings.HasPrefix(s, "skills_gap")
}

// IsCompliance reports whether the type is a compliance violation signal.
func (t SignalType) IsCompliance() bool {
	return strings.Contains(string(t), "compliance")
}

// Signal is one normalized, immutable piece of evidence about one company.
type Signal struct {
	CompanyName    string         `json:"company_name"`
	Domain         string         `json:"domain"` // canonical key
	SignalType     SignalType     `json:"signal_type"`
	SignalDate     time.Time      `json:"signal_date"` // zero = unknown age
	SignalStrength float64        `json:"signal_strength"`
	RawData        map[string]any `json:"raw_data,omitempty"`
	Source         string         `json:"source"`
}

// Dated reports whether the signal has a known event date.
func (s Signal) Dated() bool {
	return !s.SignalDate.IsZero()
}

// AgeDays returns whole days between the signal date and now.
// The second value is false for undated signals.
func (s Signal) AgeDays(now time.Time) (int, bool) {
	if !s.Dated() {
		return 0, false
	}
	return int(now.Sub(s.SignalDate).Hours() / 24), true
}

// IsExecutive reports whether a vacancy signal is for an executive role.
func (s Signal) IsExecutive() bool {
	if strings.Contains(string(s.SignalType), "executive") {
		return true
	}
	title, _ := s.RawData["job_title"].(string)
	return IsExecutiveTitle(title)
}

var executiveTitleTerms = []string{"CISO", "CHIEF", "DIRECTOR"}

// IsExecutiveTitle reports whether a job title names an executive role.
func IsExecutiveTitle(title string) bool {
	upper := strings.ToUpper(title)
	for _, term := range executiveTitleTerms {
		if strings.Contains(upper, term) {
			return true
		}
	}
	return false
}

// RawSignal is what an adapter emits before normalization. Dates are still
// provider strings.
type RawSignal struct {
	CompanyName    string         `json:"company_name"`
	Domain         string         `json:"domain,omitempty"`
	SignalType     SignalType     `json:"signal_type"`
	SignalDate     string         `json:"signal_date,omitempty"`
	SignalStrength float64        `json:"signal_strength"`
	RawData        map[string]any `json:"raw_data,omitempty"`
	Source         string         `json:"source"`
}

// signalPriority ranks signal types for downstream enrichment.
var signalPriority = map[SignalType]float64{
	SignalActiveRansomware:         1.0,
	SignalPostBreach:               0.9,
	SignalInsuranceCoverageIssue:   0.85,
	SignalExecutiveVacancyCritical: 0.8,
	"missing_mdr":                  0.75,
	"missing_siem":                 0.7,
	"dark_web_mention":             0.65,
	SignalSkillsGapCritical:        0.6,
}

// Priority returns the enrichment priority for a signal type.
func (t SignalType) Priority() float64 {
	if p, ok := signalPriority[t]; ok {
		return p
	}
	return 0.5
}

var campaignBySignal = map[SignalType]string{
	SignalActiveRansomware:         "emergency_ransomware",
	SignalPostBreach:               "breach_recovery",
	"dark_web_mention":             "dark_web_alert",
	"missing_mdr":                  "dwell_time_alert",
	"missing_siem":                 "siem_gap_analysis",
	SignalSkillsGapCritical:        "skills_gap_tax",
	SignalInsuranceCoverageIssue:   "insurance_gap_analysis",
	SignalExecutiveVacancyCritical: "leadership_gap_alert",
}

// Campaign suggests the campaign type a signal should feed.
func (t SignalType) Campaign() string {
	if c, ok := campaignBySignal[t]; ok {
		return c
	}
	return "general_outreach"
}
