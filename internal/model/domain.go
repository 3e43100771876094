package model

import (
	"strings"
	"unicode"
)

// CanonicalDomain reduces a website or domain to the shared entity key:
// no scheme, no leading www., no path or trailing slash, lowercase.
func CanonicalDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimSpace(d)
}

var legalSuffixes = []string{"corporation", "company", "limited", "corp", "inc", "llc", "ltd", "co"}

// EstimateDomain guesses a company's domain from its name when a provider
// gives no website. The result is canonical, or empty if nothing is left.
func EstimateDomain(companyName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(companyName) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	words := strings.Fields(b.String())
	if len(words) > 1 {
		last := words[len(words)-1]
		for _, suffix := range legalSuffixes {
			if last == suffix {
				words = words[:len(words)-1]
				break
			}
		}
	}
	if len(words) == 0 {
		return ""
	}
	return CanonicalDomain(strings.Join(words, "") + ".com")
}
