package score

import "strings"

// Tooling is the security coverage detected in a company's technologies.
type Tooling struct {
	MDR  bool `json:"mdr"`
	SIEM bool `json:"siem"`
	EDR  bool `json:"edr"`
	MSSP bool `json:"mssp"`
}

// securityTools maps a tool category to product identifiers.
var securityTools = map[string][]string{
	"mdr":  {"crowdstrike", "sentinelone", "carbon_black", "cylance", "red_canary", "expel"},
	"siem": {"splunk", "qradar", "arcsight", "logrhythm", "elastic", "microsoft_sentinel", "azure_sentinel"},
	"edr":  {"crowdstrike", "sentinelone", "carbon_black", "cylance", "microsoft_defender"},
	"mssp": {"arctic_wolf", "secureworks", "trustwave", "optiv", "mssp"},
}

// DetectTooling matches technology names against the tool table.
func DetectTooling(technologies []string) Tooling {
	var t Tooling
	for _, tech := range technologies {
		name := normalizeTech(tech)
		if name == "" {
			continue
		}
		t.MDR = t.MDR || matchesAny(name, securityTools["mdr"])
		t.SIEM = t.SIEM || matchesAny(name, securityTools["siem"])
		t.EDR = t.EDR || matchesAny(name, securityTools["edr"])
		t.MSSP = t.MSSP || matchesAny(name, securityTools["mssp"])
	}
	return t
}

func normalizeTech(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func matchesAny(name string, products []string) bool {
	for _, p := range products {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}
