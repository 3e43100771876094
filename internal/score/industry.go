package score

import "strings"

// Industry is the scoring category of a company.
type Industry string

const (
	IndustryHealthcare             Industry = "healthcare"
	IndustryFinance                Industry = "finance"
	IndustryRetail                 Industry = "retail"
	IndustryManufacturing          Industry = "manufacturing"
	IndustryTechnology             Industry = "technology"
	IndustryCriticalInfrastructure Industry = "critical_infrastructure"
	IndustryOther                  Industry = "other"
)

// industryKeywords is checked top to bottom; the first category with a
// matching keyword wins.
var industryKeywords = []struct {
	industry Industry
	keywords []string
}{
	{IndustryHealthcare, []string{"healthcare", "health", "medical", "hospital", "clinic", "pharma", "dental", "physician"}},
	{IndustryFinance, []string{"finance", "financial", "bank", "credit", "insurance", "capital", "invest", "lending", "mortgage"}},
	{IndustryCriticalInfrastructure, []string{"critical_infrastructure", "utilities", "utility", "energy", "power", "water", "government", "municipal", "transit"}},
	{IndustryRetail, []string{"retail", "store", "shop", "market", "apparel", "grocery"}},
	{IndustryManufacturing, []string{"manufacturing", "industrial", "factory", "machin", "automotive", "fabrication"}},
	{IndustryTechnology, []string{"technology", "software", "tech", "systems", "digital", "cloud", "data"}},
}

// riskMultipliers scale the breach-cost base tier.
var riskMultipliers = map[Industry]float64{
	IndustryHealthcare:    1.5,
	IndustryFinance:       1.3,
	IndustryRetail:        1.2,
	IndustryManufacturing: 1.1,
	IndustryTechnology:    1.1,
}

// ClassifyIndustry resolves the declared industry first and falls back to
// the company name.
func ClassifyIndustry(declared, companyName string) Industry {
	if ind := matchIndustry(declared); ind != IndustryOther {
		return ind
	}
	return matchIndustry(companyName)
}

func matchIndustry(text string) Industry {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return IndustryOther
	}
	t = strings.ReplaceAll(t, " ", "_")
	for _, entry := range industryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(t, kw) {
				return entry.industry
			}
		}
	}
	return IndustryOther
}

// Multiplier returns the breach-cost risk multiplier.
func (i Industry) Multiplier() float64 {
	if m, ok := riskMultipliers[i]; ok {
		return m
	}
	return 1.0
}

// HighRisk reports industries with elevated after-hours exposure.
func (i Industry) HighRisk() bool {
	return i == IndustryHealthcare || i == IndustryFinance || i == IndustryCriticalInfrastructure
}

// Regulated reports industries with mandated insurance requirements.
func (i Industry) Regulated() bool {
	return i == IndustryHealthcare || i == IndustryFinance
}
