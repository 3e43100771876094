package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/painpoint/internal/model"
)

// ToRecord converts a JSON-tagged value into a Record.
func ToRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// FromRecord decodes a Record into a JSON-tagged value.
func FromRecord(rec Record, v any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Companies is the typed view over company_universe.
type Companies struct {
	store Store
}

// NewCompanies creates a company repository.
func NewCompanies(s Store) *Companies {
	return &Companies{store: s}
}

// Unscored returns companies waiting for a scoring pass, ordered by domain.
func (c *Companies) Unscored(ctx context.Context) ([]model.Company, error) {
	rows, err := c.store.Query(ctx, TableCompanies, Filter{"scored": false})
	if err != nil {
		return nil, fmt.Errorf("query unscored companies: %w", err)
	}
	return decodeCompanies(rows)
}

// Unanalyzed returns companies never analyzed plus, when staleBefore is set,
// those last analyzed before it. Ordered by domain.
func (c *Companies) Unanalyzed(ctx context.Context, staleBefore time.Time) ([]model.Company, error) {
	rows, err := c.store.Query(ctx, TableCompanies, Filter{"analyzed": map[string]any{OpNE: true}})
	if err != nil {
		return nil, fmt.Errorf("query unanalyzed companies: %w", err)
	}
	if !staleBefore.IsZero() {
		stale, err := c.store.Query(ctx, TableCompanies, Filter{
			"analyzed":    true,
			"analyzed_at": map[string]any{OpLT: staleBefore.UTC().Format(time.RFC3339)},
		})
		if err != nil {
			return nil, fmt.Errorf("query stale companies: %w", err)
		}
		rows = append(rows, stale...)
	}
	return decodeCompanies(rows)
}

func decodeCompanies(rows []Record) ([]model.Company, error) {
	companies := make([]model.Company, 0, len(rows))
	for _, row := range rows {
		var co model.Company
		if err := FromRecord(row, &co); err != nil {
			return nil, err
		}
		co.Domain = model.CanonicalDomain(co.Domain)
		if co.Domain == "" {
			continue
		}
		companies = append(companies, co)
	}
	sort.SliceStable(companies, func(i, j int) bool { return companies[i].Domain < companies[j].Domain })
	return companies, nil
}

// Get returns one company by domain.
func (c *Companies) Get(ctx context.Context, domain string) (model.Company, bool, error) {
	rows, err := c.store.Query(ctx, TableCompanies, Filter{"domain": model.CanonicalDomain(domain)})
	if err != nil {
		return model.Company{}, false, fmt.Errorf("query company %s: %w", domain, err)
	}
	if len(rows) == 0 {
		return model.Company{}, false, nil
	}
	var co model.Company
	if err := FromRecord(rows[0], &co); err != nil {
		return model.Company{}, false, err
	}
	return co, true, nil
}

// Touch records sightings of companies. A sighting resets the scored flag
// so new evidence gets a fresh scoring pass. Other fields are merged.
func (c *Companies) Touch(ctx context.Context, companies []model.Company) error {
	records := make([]Record, 0, len(companies))
	for _, co := range companies {
		rec := Record{
			"domain":       co.Domain,
			"company_name": co.CompanyName,
			"scored":       false,
		}
		if co.Industry != "" {
			rec["industry"] = co.Industry
		}
		if co.EmployeeCount > 0 {
			rec["employee_count"] = co.EmployeeCount
		}
		records = append(records, rec)
	}
	if err := c.store.Upsert(ctx, TableCompanies, records, "domain"); err != nil {
		return fmt.Errorf("touch companies: %w", err)
	}
	return nil
}

// MarkScored writes derived scores and the scored flag in one bulk upsert.
// Only scoring fields are written so metadata from other stages survives.
func (c *Companies) MarkScored(ctx context.Context, companies []model.Company) error {
	if len(companies) == 0 {
		return nil
	}
	records := make([]Record, 0, len(companies))
	for _, co := range companies {
		records = append(records, Record{
			"domain":      co.Domain,
			"scored":      true,
			"pain_score":  co.PainScore,
			"primary_edp": co.PrimaryEDP,
			"segment":     string(co.Segment),
			"scored_at":   co.ScoredAt.UTC().Format(time.RFC3339),
		})
	}
	if err := c.store.Upsert(ctx, TableCompanies, records, "domain"); err != nil {
		return fmt.Errorf("mark companies scored: %w", err)
	}
	return nil
}

// MarkAnalyzed writes analysis results: the profile fields that are known,
// the analyzed markers and a reset scored flag so the new metadata gets
// scored.
func (c *Companies) MarkAnalyzed(ctx context.Context, companies []model.Company) error {
	if len(companies) == 0 {
		return nil
	}
	records := make([]Record, 0, len(companies))
	for _, co := range companies {
		rec := Record{
			"domain":              co.Domain,
			"analyzed":            true,
			"analyzed_at":         co.AnalyzedAt.UTC().Format(time.RFC3339),
			"tech_stack_analyzed": co.TechStackAnalyzed,
			"scored":              false,
		}
		if co.Industry != "" {
			rec["industry"] = co.Industry
		}
		if co.EmployeeCount > 0 {
			rec["employee_count"] = co.EmployeeCount
		}
		if co.Technologies != nil {
			rec["technologies"] = co.Technologies
		}
		records = append(records, rec)
	}
	if err := c.store.Upsert(ctx, TableCompanies, records, "domain"); err != nil {
		return fmt.Errorf("mark companies analyzed: %w", err)
	}
	return nil
}

// Prospects is the typed view over scored_prospects.
type Prospects struct {
	store Store
}

// NewProspects creates a prospect repository.
func NewProspects(s Store) *Prospects {
	return &Prospects{store: s}
}

// Save upserts prospects keyed by domain.
func (p *Prospects) Save(ctx context.Context, prospects []model.Prospect) error {
	if len(prospects) == 0 {
		return nil
	}
	records := make([]Record, 0, len(prospects))
	for _, pr := range prospects {
		rec, err := ToRecord(pr)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := p.store.Upsert(ctx, TableProspects, records, "domain"); err != nil {
		return fmt.Errorf("save prospects: %w", err)
	}
	return nil
}

// Deferred returns qualified prospects the gate has not admitted yet.
func (p *Prospects) Deferred(ctx context.Context) ([]model.Prospect, error) {
	rows, err := p.store.Query(ctx, TableProspects, Filter{"qualified": true, "admitted": false})
	if err != nil {
		return nil, fmt.Errorf("query deferred prospects: %w", err)
	}
	out := make([]model.Prospect, 0, len(rows))
	for _, row := range rows {
		var pr model.Prospect
		if err := FromRecord(row, &pr); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, nil
}
