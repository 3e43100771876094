package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ppiankov/painpoint/internal/model"
)

// hibpBreach is one entry of the breach catalog.
type hibpBreach struct {
	Name        string   `json:"Name"`
	Title       string   `json:"Title"`
	Domain      string   `json:"Domain"`
	BreachDate  string   `json:"BreachDate"`
	AddedDate   string   `json:"AddedDate"`
	PwnCount    int64    `json:"PwnCount"`
	DataClasses []string `json:"DataClasses"`
	IsVerified  bool     `json:"IsVerified"`
}

// HIBP reads the breach catalog of a breach notification service.
type HIBP struct {
	name    string
	url     string
	apiKey  string
	fetcher *Fetcher
}

func newHIBP(name string, cfg model.SourceConfig, deps Deps) (Source, error) {
	if err := requireURL(name, cfg); err != nil {
		return nil, err
	}
	return &HIBP{name: name, url: cfg.URL, apiKey: cfg.APIKey, fetcher: deps.Fetcher}, nil
}

func (h *HIBP) Name() string { return h.name }

func (h *HIBP) DateField() string { return model.DateFieldBreach }

// Collect emits one hibp_breach_detected signal per catalog entry.
func (h *HIBP) Collect(ctx context.Context) ([]model.RawSignal, error) {
	header := http.Header{}
	if h.apiKey != "" {
		header.Set("hibp-api-key", h.apiKey)
	}

	body, err := h.fetcher.Get(ctx, h.name, h.url, header)
	if err != nil {
		return nil, err
	}

	var breaches []hibpBreach
	if err := json.Unmarshal(body, &breaches); err != nil {
		return nil, payloadError(h.name, "decode breaches: %v", err)
	}

	out := make([]model.RawSignal, 0, len(breaches))
	for _, b := range breaches {
		company := strings.TrimSpace(b.Title)
		if company == "" {
			company = strings.TrimSpace(b.Name)
		}
		if company == "" {
			continue
		}

		out = append(out, model.RawSignal{
			CompanyName:    company,
			Domain:         b.Domain,
			SignalType:     model.SignalHIBPBreach,
			SignalDate:     b.BreachDate,
			SignalStrength: pwnStrength(b.PwnCount),
			RawData: map[string]any{
				model.DateFieldBreach: b.BreachDate,
				"breach_name":         b.Name,
				"added_date":          b.AddedDate,
				"pwn_count":           b.PwnCount,
				"data_classes":        b.DataClasses,
				"verified":            b.IsVerified,
			},
			Source: h.name,
		})
	}
	return out, nil
}

// pwnStrength scales with the number of exposed accounts.
func pwnStrength(count int64) float64 {
	switch {
	case count >= 10_000_000:
		return 1.0
	case count >= 1_000_000:
		return 0.9
	case count >= 100_000:
		return 0.75
	case count >= 10_000:
		return 0.6
	default:
		return 0.5
	}
}
