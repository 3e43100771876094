// Package analyze enriches companies with firmographic and technology
// profiles and derives the company-level signals the scorer reads: security
// tooling gaps, insurance risk, compliance exposure and leaked credentials.
package analyze

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ppiankov/painpoint/internal/model"
	"github.com/ppiankov/painpoint/internal/score"
)

// Source ids of analysis signals. The dedup key hashes name, date and
// source, so each check carries its own id.
const (
	SourceTechStack  = "analysis_tech_stack"
	SourceInsurance  = "analysis_insurance"
	SourceCompliance = "analysis_compliance"
	SourceGithub     = "analysis_github"

	sourcePrefix = "analysis_"
)

const (
	insuranceBaseRisk      = 0.3
	insuranceRiskThreshold = 0.6
	largeCompanyEmployees  = 500
	recentIssueWindow      = 180 * 24 * time.Hour
	githubExposureStrength = 0.6
)

// Analyzer runs the per-company checks.
type Analyzer struct {
	provider Provider
}

// New creates an analyzer. A nil provider behaves like None.
func New(provider Provider) *Analyzer {
	if provider == nil {
		provider = None{}
	}
	return &Analyzer{provider: provider}
}

// Provider returns the profile provider in use.
func (a *Analyzer) Provider() Provider { return a.provider }

// Result is one company after analysis.
type Result struct {
	Company  model.Company // profile merged in, Analyzed set
	Profiled bool          // the provider knew the domain
	Signals  []model.Signal
}

// Analyze merges the provider's profile into co and derives analysis
// signals from it and from the company's stored evidence. Signals are dated
// to the UTC day of now. Only a failed lookup is an error.
func (a *Analyzer) Analyze(ctx context.Context, co model.Company, evidence []model.Signal, now time.Time) (Result, error) {
	prof, found, err := a.provider.Lookup(ctx, co.Domain)
	if err != nil {
		return Result{}, fmt.Errorf("profile %s: %w", co.Domain, err)
	}

	now = now.UTC()
	if found {
		co = merge(co, prof)
	}
	co.Analyzed = true
	co.AnalyzedAt = now

	res := Result{Company: co, Profiled: found}
	day := now.Truncate(24 * time.Hour)
	industry := score.ClassifyIndustry(co.Industry, co.CompanyName)

	if gaps := TechGaps(co); len(gaps) > 0 {
		res.add(co, model.SignalSecurityTechGaps, SourceTechStack, day, 0.2*float64(len(gaps)), map[string]any{
			"tech_gaps":        gaps,
			"detection_method": "tech_stack_analysis",
		})
	}

	if risk, factors := InsuranceRisk(co, industry, evidence, now); risk > insuranceRiskThreshold {
		res.add(co, model.SignalHighInsuranceRisk, SourceInsurance, day, risk, map[string]any{
			"risk_factors":     factors,
			"detection_method": "insurance_risk_assessment",
		})
	}

	if issues := ComplianceIssues(co, industry); len(issues) > 0 {
		res.add(co, model.SignalComplianceVulnerability, SourceCompliance, day, 0.3*float64(len(issues)), map[string]any{
			"compliance_issues": issues,
			"detection_method":  "compliance_check",
		})
	}

	if found && prof.GithubExposures > 0 {
		res.add(co, model.SignalGithubExposure, SourceGithub, day, githubExposureStrength, map[string]any{
			"exposures":        prof.GithubExposures,
			"detection_method": "code_search",
		})
	}

	return res, nil
}

func (r *Result) add(co model.Company, t model.SignalType, source string, day time.Time, strength float64, raw map[string]any) {
	// The dedup key hashes the name; a blank one would collide across companies.
	name := strings.TrimSpace(co.CompanyName)
	if name == "" {
		name = co.Domain
	}
	r.Signals = append(r.Signals, model.Signal{
		CompanyName:    name,
		Domain:         co.Domain,
		SignalType:     t,
		SignalDate:     day,
		SignalStrength: math.Min(strength, 1),
		RawData:        raw,
		Source:         source,
	})
}

// merge overlays the fields the profile knows.
func merge(co model.Company, p Profile) model.Company {
	if p.Industry != "" {
		co.Industry = p.Industry
	}
	if p.EmployeeCount > 0 {
		co.EmployeeCount = p.EmployeeCount
	}
	if p.Technologies != nil {
		co.Technologies = p.Technologies
		co.TechStackAnalyzed = true
	}
	return co
}

// TechGaps lists missing security tooling. It is empty until the stack has
// been analyzed.
func TechGaps(co model.Company) []string {
	if !co.TechStackAnalyzed {
		return nil
	}
	t := score.DetectTooling(co.Technologies)

	var gaps []string
	if !t.MDR && !t.MSSP {
		gaps = append(gaps, "missing_mdr")
	}
	if !t.SIEM {
		gaps = append(gaps, "missing_siem")
	}
	if !t.EDR {
		gaps = append(gaps, "missing_edr")
	}
	if !t.MDR && !t.SIEM && !t.EDR && !t.MSSP {
		gaps = append(gaps, "no_security_tools_detected")
	}
	return gaps
}

// InsuranceRisk rates how an underwriter would see the company: a 0.3 base
// raised by high-risk industry, size above 500 employees and security
// evidence from the last 180 days. Analysis signals do not count as
// evidence.
func InsuranceRisk(co model.Company, industry score.Industry, evidence []model.Signal, now time.Time) (float64, []string) {
	risk := insuranceBaseRisk
	var factors []string

	if industry.HighRisk() {
		risk += 0.2
		factors = append(factors, "high_risk_industry")
	}
	if co.EmployeeCount > largeCompanyEmployees {
		risk += 0.2
		factors = append(factors, "large_company")
	}
	cutoff := now.Add(-recentIssueWindow)
	for _, s := range evidence {
		if strings.HasPrefix(s.Source, sourcePrefix) || !s.Dated() {
			continue
		}
		if s.SignalDate.After(cutoff) {
			risk += 0.3
			factors = append(factors, "recent_security_issues")
			break
		}
	}
	return math.Min(risk, 1), factors
}

var governmentTerms = []string{"government", "municipal"}

// ComplianceIssues lists regulatory regimes the company falls under.
func ComplianceIssues(co model.Company, industry score.Industry) []string {
	var issues []string
	switch industry {
	case score.IndustryHealthcare:
		issues = append(issues, "hipaa_compliance_required")
	case score.IndustryFinance:
		issues = append(issues, "financial_compliance_required")
	}

	text := strings.ToLower(co.Industry + " " + co.CompanyName)
	for _, term := range governmentTerms {
		if strings.Contains(text, term) {
			issues = append(issues, "government_compliance_required")
			break
		}
	}
	return issues
}
