package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/model"
)

// CaliforniaAG scrapes the California Attorney General breach notice list.
type CaliforniaAG struct {
	name    string
	url     string
	fetcher *Fetcher
	robots  *RobotsChecker
	logger  *slog.Logger
	now     func() time.Time
}

func newCaliforniaAG(name string, cfg model.SourceConfig, deps Deps) (Source, error) {
	if err := requireURL(name, cfg); err != nil {
		return nil, err
	}
	return &CaliforniaAG{
		name:    name,
		url:     cfg.URL,
		fetcher: deps.Fetcher,
		robots:  deps.Robots,
		logger:  deps.Logger,
		now:     deps.now,
	}, nil
}

func (c *CaliforniaAG) Name() string { return c.name }

func (c *CaliforniaAG) DateField() string { return model.DateFieldBreach }

// Collect fetches the notice table and emits one post_breach signal per row.
func (c *CaliforniaAG) Collect(ctx context.Context) ([]model.RawSignal, error) {
	if c.robots != nil {
		allowed, delay, err := c.robots.CanFetch(ctx, c.url)
		if err != nil {
			return nil, newError(c.name, KindRobots, err)
		}
		if !allowed {
			return nil, newError(c.name, KindRobots, fmt.Errorf("robots.txt disallows %s", c.url))
		}
		if delay > 0 {
			if err := sleepContext(ctx, delay); err != nil {
				return nil, newError(c.name, KindNetwork, err)
			}
		}
	}

	body, err := c.fetcher.Get(ctx, c.name, c.url, nil)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, newError(c.name, KindPayload, fmt.Errorf("parse html: %w", err))
	}

	table := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "table") && hasClass(n, "views-table")
	})
	if table == nil {
		return nil, payloadError(c.name, "breach table not found")
	}

	now := c.now()
	var out []model.RawSignal
	for _, row := range findAll(table, func(n *html.Node) bool { return isElement(n, "tr") }) {
		if sig, ok := c.parseRow(row, now); ok {
			out = append(out, sig)
		}
	}

	logging.OrDefault(c.logger).Debug("parsed breach notices", logging.Source(c.name), logging.Count(len(out)))
	return out, nil
}

func (c *CaliforniaAG) parseRow(row *html.Node, now time.Time) (model.RawSignal, bool) {
	var cells []string
	for n := row.FirstChild; n != nil; n = n.NextSibling {
		if isElement(n, "td") {
			cells = append(cells, nodeText(n))
		}
	}
	if len(cells) < 3 {
		return model.RawSignal{}, false
	}

	company := strings.TrimSpace(cells[0])
	if company == "" || strings.EqualFold(company, "organization name") {
		return model.RawSignal{}, false
	}

	breachDate := isoDate(cells[1])
	noticeDate := isoDate(cells[2])

	return model.RawSignal{
		CompanyName:    company,
		SignalType:     model.SignalPostBreach,
		SignalDate:     breachDate,
		SignalStrength: recencyStrength(breachDate, now),
		RawData: map[string]any{
			model.DateFieldBreach: breachDate,
			"notice_date":         noticeDate,
		},
		Source: c.name,
	}, true
}

// isoDate rewrites a provider date as YYYY-MM-DD, or returns the trimmed
// input when it cannot be parsed. Multi-date cells keep the first date.
func isoDate(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ","); i > 0 && !strings.ContainsAny(s[:i], "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		s = strings.TrimSpace(s[:i])
	}
	t, err := model.ParseDate(s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

// recencyStrength scores a breach by how recently it happened.
func recencyStrength(date string, now time.Time) float64 {
	t, err := model.ParseDate(date)
	if err != nil {
		return 0.5
	}
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days <= 30:
		return 1.0
	case days <= 90:
		return 0.8
	case days <= 180:
		return 0.6
	case days <= 365:
		return 0.4
	default:
		return 0.2
	}
}
