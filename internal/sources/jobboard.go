package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/painpoint/internal/model"
)

// jobPosting is one security job listing.
type jobPosting struct {
	Company  string `json:"company"`
	Website  string `json:"company_domain"`
	Title    string `json:"job_title"`
	Posted   string `json:"posted_date"`
	Location string `json:"location"`
	URL      string `json:"url"`
}

// JobBoard reads open security postings from a job search feed. Long-open
// roles are the staffing-gap evidence.
type JobBoard struct {
	name    string
	url     string
	apiKey  string
	fetcher *Fetcher
	now     func() time.Time
}

func newJobBoard(name string, cfg model.SourceConfig, deps Deps) (Source, error) {
	if err := requireURL(name, cfg); err != nil {
		return nil, err
	}
	return &JobBoard{name: name, url: cfg.URL, apiKey: cfg.APIKey, fetcher: deps.Fetcher, now: deps.now}, nil
}

func (j *JobBoard) Name() string { return j.name }

func (j *JobBoard) DateField() string { return model.DateFieldSignal }

// Collect emits one vacancy signal per posting.
func (j *JobBoard) Collect(ctx context.Context) ([]model.RawSignal, error) {
	header := http.Header{}
	if j.apiKey != "" {
		header.Set("Authorization", "Bearer "+j.apiKey)
	}

	body, err := j.fetcher.Get(ctx, j.name, j.url, header)
	if err != nil {
		return nil, err
	}

	postings, err := decodePostings(body)
	if err != nil {
		return nil, payloadError(j.name, "decode postings: %v", err)
	}

	now := j.now().UTC()
	out := make([]model.RawSignal, 0, len(postings))
	for _, p := range postings {
		if strings.TrimSpace(p.Company) == "" {
			continue
		}

		days, posted := daysOpen(p.Posted, now)
		out = append(out, model.RawSignal{
			CompanyName:    p.Company,
			Domain:         p.Website,
			SignalType:     vacancyType(days, p.Title),
			SignalDate:     posted,
			SignalStrength: vacancyStrength(days, p.Title),
			RawData: map[string]any{
				"job_title":   p.Title,
				"location":    p.Location,
				"posted_date": p.Posted,
				"days_open":   days,
				"url":         p.URL,
			},
			Source: j.name,
		})
	}
	return out, nil
}

func decodePostings(body []byte) ([]jobPosting, error) {
	var list []jobPosting
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Jobs []jobPosting `json:"jobs"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Jobs, nil
}

// daysOpen reads a posting age, absolute ("2024-03-01") or relative
// ("today", "yesterday", "12 days ago"). It returns the age and the posting
// date as YYYY-MM-DD, or 0 and "" when the value cannot be read.
func daysOpen(posted string, now time.Time) (int, string) {
	p := strings.ToLower(strings.TrimSpace(posted))
	day := now.Truncate(24 * time.Hour)

	var days int
	switch {
	case p == "":
		return 0, ""
	case strings.Contains(p, "today") || strings.Contains(p, "just posted"):
		days = 0
	case strings.Contains(p, "yesterday"):
		days = 1
	case strings.HasSuffix(p, "days ago") || strings.HasSuffix(p, "day ago"):
		n, err := strconv.Atoi(strings.TrimRight(strings.Fields(p)[0], "+"))
		if err != nil || n < 0 {
			return 0, ""
		}
		days = n
	default:
		t, err := model.ParseDate(posted)
		if err != nil {
			return 0, ""
		}
		days = int(now.Sub(t).Hours() / 24)
		if days < 0 {
			days = 0
		}
		return days, t.Format("2006-01-02")
	}
	return days, day.AddDate(0, 0, -days).Format("2006-01-02")
}

func vacancyType(days int, title string) model.SignalType {
	exec := model.IsExecutiveTitle(title)
	switch {
	case days > 60 && exec:
		return model.SignalExecutiveVacancyCritical
	case days > 60:
		return model.SignalSkillsGapCritical
	case days > 30 && exec:
		return model.SignalExecutiveVacancyModerate
	case days > 30:
		return model.SignalSkillsGapModerate
	default:
		return model.SignalRecentPosting
	}
}

func vacancyStrength(days int, title string) float64 {
	score := 0.3
	switch {
	case days > 90:
		score += 0.4
	case days > 60:
		score += 0.3
	case days > 30:
		score += 0.2
	}
	if model.IsExecutiveTitle(title) {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}
