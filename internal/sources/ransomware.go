package sources

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/model"
)

// ransomwareWindow is how far back a leak-site posting still counts as an
// active attack.
const ransomwareWindow = 30 * 24 * time.Hour

// RansomwareLive reads recent victims from a ransomware leak-site tracker.
type RansomwareLive struct {
	name    string
	url     string
	fetcher *Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

func newRansomwareLive(name string, cfg model.SourceConfig, deps Deps) (Source, error) {
	if err := requireURL(name, cfg); err != nil {
		return nil, err
	}
	return &RansomwareLive{
		name:    name,
		url:     cfg.URL,
		fetcher: deps.Fetcher,
		logger:  logging.OrDefault(deps.Logger),
		now:     deps.now,
	}, nil
}

func (r *RansomwareLive) Name() string { return r.name }

func (r *RansomwareLive) DateField() string { return model.DateFieldSignal }

// Collect emits one active_ransomware signal per victim posted in the last
// 30 days.
func (r *RansomwareLive) Collect(ctx context.Context) ([]model.RawSignal, error) {
	body, err := r.fetcher.Get(ctx, r.name, r.url, nil)
	if err != nil {
		return nil, err
	}

	victims, err := decodeVictims(body)
	if err != nil {
		return nil, payloadError(r.name, "decode victims: %v", err)
	}

	now := r.now().UTC()
	var out []model.RawSignal
	for _, v := range victims {
		sig, ok := r.toSignal(v, now)
		if ok {
			out = append(out, sig)
		}
	}

	if len(out) > 0 {
		r.logger.Warn("active ransomware victims found", logging.Source(r.name), logging.Count(len(out)))
	}
	return out, nil
}

func (r *RansomwareLive) toSignal(v map[string]any, now time.Time) (model.RawSignal, bool) {
	name := strings.TrimSpace(firstString(v, "post_title", "title", "victim", "name"))
	if len(name) < 2 {
		return model.RawSignal{}, false
	}

	group := firstString(v, "group_name", "group")
	if group == "" {
		group = "unknown"
	}
	raw := map[string]any{
		"ransomware_group": group,
		"leak_site_url":    firstString(v, "post_url", "url"),
	}

	// An unparseable date leaves the victim undated so its dedup key stays
	// stable across runs.
	var date string
	if discovered := firstString(v, "discovered", "attackdate", "date", "published"); discovered != "" {
		raw["discovered"] = discovered
		t, err := model.ParseDate(discovered)
		if err != nil {
			r.logger.Warn("unparseable discovery date",
				logging.Source(r.name), slog.String("company", name), slog.String("date", discovered))
		} else {
			age := now.Sub(t)
			if age > ransomwareWindow {
				return model.RawSignal{}, false
			}
			date = t.Format(time.RFC3339)
			raw["hours_since_posting"] = float64(int(age.Hours()*10)) / 10
		}
	}

	return model.RawSignal{
		CompanyName:    name,
		Domain:         firstString(v, "website", "domain"),
		SignalType:     model.SignalActiveRansomware,
		SignalDate:     date,
		SignalStrength: 1.0,
		RawData:        raw,
		Source:         r.name,
	}, true
}

// decodeVictims accepts a bare list or a {victims} / {data} envelope.
func decodeVictims(body []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Victims []map[string]any `json:"victims"`
		Data    []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Victims != nil {
		return envelope.Victims, nil
	}
	return envelope.Data, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
