package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/painpoint/internal/model"
	"github.com/ppiankov/painpoint/internal/sources"
)

// ProviderName is the limiter key and error source of profile lookups.
const ProviderName = "analysis"

// Profile is what a firmographic provider knows about one domain.
// A nil Technologies means the stack was not looked at; an empty list means
// it was and nothing was found.
type Profile struct {
	Domain          string   `json:"domain" yaml:"domain"`
	Industry        string   `json:"industry,omitempty" yaml:"industry"`
	EmployeeCount   int      `json:"employee_count,omitempty" yaml:"employee_count"`
	Technologies    []string `json:"technologies,omitempty" yaml:"technologies"`
	GithubExposures int      `json:"github_exposures,omitempty" yaml:"github_exposures"`
}

// Provider looks up company profiles by canonical domain.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, domain string) (Profile, bool, error)
}

// None never finds a profile. Analysis then works from the company row and
// its name alone.
type None struct{}

func (None) Name() string { return "none" }

func (None) Lookup(context.Context, string) (Profile, bool, error) { return Profile{}, false, nil }

// FileProvider serves profiles from an exported JSON or YAML list. The file
// is read on first lookup.
type FileProvider struct {
	path string

	once     sync.Once
	profiles map[string]Profile
	err      error
}

// NewFileProvider creates a provider over the list at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: strings.TrimPrefix(path, "file://")}
}

func (f *FileProvider) Name() string { return "file" }

// Lookup returns the profile listed for domain.
func (f *FileProvider) Lookup(ctx context.Context, domain string) (Profile, bool, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return Profile{}, false, f.err
	}
	p, ok := f.profiles[model.CanonicalDomain(domain)]
	return p, ok, ctx.Err()
}

func (f *FileProvider) load() {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.err = fmt.Errorf("read profiles %s: %w", f.path, err)
		return
	}

	// YAML is a superset of JSON, so one decoder reads both exports.
	var list []Profile
	if err := yaml.Unmarshal(data, &list); err != nil {
		f.err = fmt.Errorf("decode profiles %s: %w", f.path, err)
		return
	}

	f.profiles = make(map[string]Profile, len(list))
	for _, p := range list {
		d := model.CanonicalDomain(p.Domain)
		if d == "" {
			continue
		}
		p.Domain = d
		f.profiles[d] = p
	}
}

// HTTPProvider queries an enrichment API through the shared fetcher, so
// lookups are rate limited and retried like any provider call.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	fetcher  *sources.Fetcher
}

// NewHTTPProvider creates a provider for endpoint. A "{domain}" placeholder
// is substituted; otherwise the domain is sent as the domain query parameter.
func NewHTTPProvider(endpoint, apiKey string, fetcher *sources.Fetcher) *HTTPProvider {
	return &HTTPProvider{endpoint: endpoint, apiKey: apiKey, fetcher: fetcher}
}

func (h *HTTPProvider) Name() string { return "http" }

// Lookup fetches one profile. A 404 means the provider does not know the
// domain.
func (h *HTTPProvider) Lookup(ctx context.Context, domain string) (Profile, bool, error) {
	header := http.Header{"Accept": []string{"application/json"}}
	if h.apiKey != "" {
		header.Set("Authorization", "Bearer "+h.apiKey)
	}

	body, err := h.fetcher.Get(ctx, ProviderName, h.url(domain), header)
	if err != nil {
		var se *sources.SourceError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return Profile{}, false, nil
		}
		return Profile{}, false, err
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, false, &sources.SourceError{Source: ProviderName, Kind: sources.KindPayload,
			Err: fmt.Errorf("decode profile for %s: %w", domain, err)}
	}
	p.Domain = domain
	return p, true, nil
}

func (h *HTTPProvider) url(domain string) string {
	if strings.Contains(h.endpoint, "{domain}") {
		return strings.ReplaceAll(h.endpoint, "{domain}", url.PathEscape(domain))
	}
	sep := "?"
	if strings.Contains(h.endpoint, "?") {
		sep = "&"
	}
	return h.endpoint + sep + "domain=" + url.QueryEscape(domain)
}
