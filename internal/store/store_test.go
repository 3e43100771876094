package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/painpoint/internal/model"
)

func TestMatch(t *testing.T) {
	rec := Record{
		"domain":      "acme.com",
		"pain_score":  72.5,
		"scored":      false,
		"signal_date": "2024-05-01T00:00:00Z",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"equality", Filter{"domain": "acme.com"}, true},
		{"equality miss", Filter{"domain": "other.com"}, false},
		{"bool", Filter{"scored": false}, true},
		{"numeric int vs float", Filter{"pain_score": map[string]any{OpGTE: 70}}, true},
		{"numeric lt", Filter{"pain_score": map[string]any{OpLT: 70}}, false},
		{"iso timestamp", Filter{"signal_date": map[string]any{OpLT: "2024-06-01T00:00:00Z"}}, true},
		{"time value", Filter{"signal_date": map[string]any{OpGT: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}, true},
		{"range", Filter{"pain_score": map[string]any{OpGT: 70, OpLTE: 72.5}}, true},
		{"ne", Filter{"domain": map[string]any{OpNE: "other.com"}}, true},
		{"ne missing field", Filter{"segment": map[string]any{OpNE: "x"}}, true},
		{"missing field", Filter{"segment": "x"}, false},
		{"type mismatch", Filter{"pain_score": map[string]any{OpGT: "abc"}}, false},
		{"nil matches missing", Filter{"segment": nil}, true},
		{"nil on present field", Filter{"domain": nil}, false},
		{"ne nil present", Filter{"domain": map[string]any{OpNE: nil}}, true},
		{"ne nil missing", Filter{"segment": map[string]any{OpNE: nil}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(rec, tt.filter); got != tt.want {
				t.Errorf("Match(%v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestMemoryStore_UpsertMerges(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Upsert(ctx, TableCompanies, []Record{
		{"domain": "acme.com", "company_name": "Acme", "employee_count": 50},
	}, "domain")
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Repeating a write is safe and merges fields.
	for i := 0; i < 2; i++ {
		err = s.Upsert(ctx, TableCompanies, []Record{{"domain": "acme.com", "scored": true}}, "domain")
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	rows, _ := s.Query(ctx, TableCompanies, Filter{"domain": "acme.com"})
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0]["company_name"] != "Acme" || rows[0]["scored"] != true {
		t.Errorf("fields not merged: %v", rows[0])
	}
	if rows[0]["employee_count"] != float64(50) {
		t.Errorf("numbers should normalize to float64, got %T", rows[0]["employee_count"])
	}
}

func TestMemoryStore_UpsertRequiresKey(t *testing.T) {
	s := NewMemoryStore()
	err := s.Upsert(context.Background(), TableCompanies, []Record{{"company_name": "Acme"}}, "domain")
	if err == nil {
		t.Error("expected missing key error")
	}
}

func TestMemoryStore_AppendKeepsDuplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := Record{"domain": "acme.com", "signal_type": "post_breach"}
	_ = s.Append(ctx, TableSignals, rec, rec)

	if n := s.Len(TableSignals); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}

func TestMemoryStore_QueryReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Append(ctx, TableSignals, Record{"domain": "acme.com"})

	rows, _ := s.Query(ctx, TableSignals, nil)
	rows[0]["domain"] = "mutated.com"

	again, _ := s.Query(ctx, TableSignals, nil)
	if again[0]["domain"] != "acme.com" {
		t.Error("query results should not alias stored rows")
	}
}

func TestCompanies_Lifecycle(t *testing.T) {
	s := NewMemoryStore()
	repo := NewCompanies(s)
	ctx := context.Background()

	err := repo.Touch(ctx, []model.Company{
		{Domain: "beta.com", CompanyName: "Beta"},
		{Domain: "acme.com", CompanyName: "Acme", EmployeeCount: 50},
	})
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}

	unscored, err := repo.Unscored(ctx)
	if err != nil {
		t.Fatalf("Unscored: %v", err)
	}
	if len(unscored) != 2 || unscored[0].Domain != "acme.com" {
		t.Fatalf("unexpected unscored set: %+v", unscored)
	}

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	err = repo.MarkScored(ctx, []model.Company{{
		Domain: "acme.com", PainScore: 42, PrimaryEDP: model.EDPAfterHours,
		Segment: model.SegmentOverwhelmedGeneralist, ScoredAt: now,
	}})
	if err != nil {
		t.Fatalf("MarkScored: %v", err)
	}

	co, ok, err := repo.Get(ctx, "https://www.acme.com/")
	if err != nil || !ok {
		t.Fatalf("Get: %v %v", ok, err)
	}
	if !co.Scored || co.PainScore != 42 || co.EmployeeCount != 50 {
		t.Errorf("unexpected company: %+v", co)
	}

	unscored, _ = repo.Unscored(ctx)
	if len(unscored) != 1 || unscored[0].Domain != "beta.com" {
		t.Errorf("expected only beta.com unscored, got %+v", unscored)
	}

	// New evidence resets the flag.
	_ = repo.Touch(ctx, []model.Company{{Domain: "acme.com", CompanyName: "Acme"}})
	unscored, _ = repo.Unscored(ctx)
	if len(unscored) != 2 {
		t.Errorf("touched company should need rescoring, got %+v", unscored)
	}
}

func TestCompanies_Analysis(t *testing.T) {
	repo := NewCompanies(NewMemoryStore())
	ctx := context.Background()

	_ = repo.Touch(ctx, []model.Company{
		{Domain: "acme.com", CompanyName: "Acme"},
		{Domain: "beta.com", CompanyName: "Beta"},
	})
	_ = repo.MarkScored(ctx, []model.Company{{Domain: "acme.com", ScoredAt: time.Now()}})

	analyzedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	err := repo.MarkAnalyzed(ctx, []model.Company{{
		Domain:            "acme.com",
		Industry:          "finance",
		EmployeeCount:     800,
		Technologies:      []string{"splunk"},
		TechStackAnalyzed: true,
		AnalyzedAt:        analyzedAt,
	}})
	if err != nil {
		t.Fatalf("MarkAnalyzed: %v", err)
	}

	co, _, _ := repo.Get(ctx, "acme.com")
	if !co.Analyzed || !co.TechStackAnalyzed || co.Scored {
		t.Errorf("unexpected flags: analyzed=%v stack=%v scored=%v", co.Analyzed, co.TechStackAnalyzed, co.Scored)
	}
	if co.Industry != "finance" || co.EmployeeCount != 800 || len(co.Technologies) != 1 || co.CompanyName != "Acme" {
		t.Errorf("unexpected company: %+v", co)
	}
	if !co.AnalyzedAt.Equal(analyzedAt) {
		t.Errorf("analyzed_at = %v", co.AnalyzedAt)
	}

	pending, err := repo.Unanalyzed(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Unanalyzed: %v", err)
	}
	if len(pending) != 1 || pending[0].Domain != "beta.com" {
		t.Errorf("expected only beta.com, got %+v", pending)
	}

	pending, _ = repo.Unanalyzed(ctx, analyzedAt.Add(time.Hour))
	if len(pending) != 2 || pending[0].Domain != "acme.com" {
		t.Errorf("stale company should be analyzed again, got %+v", pending)
	}

	// A later pass without a profile keeps what is already known.
	_ = repo.MarkAnalyzed(ctx, []model.Company{{Domain: "acme.com", TechStackAnalyzed: true, AnalyzedAt: analyzedAt}})
	co, _, _ = repo.Get(ctx, "acme.com")
	if co.Industry != "finance" || len(co.Technologies) != 1 {
		t.Errorf("profile fields should survive, got %+v", co)
	}
}

func TestProspects_Deferred(t *testing.T) {
	repo := NewProspects(NewMemoryStore())
	ctx := context.Background()

	err := repo.Save(ctx, []model.Prospect{
		{ScoreResult: model.ScoreResult{Domain: "a.com", PainScore: 90}, Qualified: true, Admitted: true},
		{ScoreResult: model.ScoreResult{Domain: "b.com", PainScore: 80}, Qualified: true},
		{ScoreResult: model.ScoreResult{Domain: "c.com", PainScore: 20}},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	deferred, err := repo.Deferred(ctx)
	if err != nil {
		t.Fatalf("Deferred: %v", err)
	}
	if len(deferred) != 1 || deferred[0].Domain != "b.com" {
		t.Errorf("unexpected deferred set: %+v", deferred)
	}

	// Admitting later clears the deferral.
	_ = repo.Save(ctx, []model.Prospect{
		{ScoreResult: model.ScoreResult{Domain: "b.com", PainScore: 80}, Qualified: true, Admitted: true},
	})
	deferred, _ = repo.Deferred(ctx)
	if len(deferred) != 0 {
		t.Errorf("expected no deferred prospects, got %+v", deferred)
	}
}

func TestCompileFilter(t *testing.T) {
	where, args, err := compileFilter(TableSignals, Filter{
		"domain":      "acme.com",
		"signal_date": map[string]any{OpGTE: "2024-01-01T00:00:00Z"},
		"strength":    map[string]any{OpGT: 0.5},
	})
	if err != nil {
		t.Fatalf("compileFilter: %v", err)
	}

	want := "tbl = $1 AND doc->>$2 = $3 AND doc->>$4 >= $5 AND (doc->>$6)::numeric > $7::numeric"
	if where != want {
		t.Errorf("where =\n  %s\nwant\n  %s", where, want)
	}
	if len(args) != 7 || args[0] != TableSignals || args[1] != "domain" || args[6] != 0.5 {
		t.Errorf("unexpected args: %v", args)
	}

	where, args, err = compileFilter(TableCompanies, Filter{
		"industry":     nil,
		"last_updated": map[string]any{OpNE: nil},
		"segment":      map[string]any{OpLT: nil},
	})
	if err != nil {
		t.Fatalf("compileFilter: %v", err)
	}
	want = "tbl = $1 AND doc->>$2 IS NULL AND doc->>$3 IS NOT NULL AND FALSE"
	if where != want {
		t.Errorf("where =\n  %s\nwant\n  %s", where, want)
	}
	if len(args) != 3 || args[1] != "industry" || args[2] != "last_updated" {
		t.Errorf("unexpected args: %v", args)
	}

	if _, _, err := compileFilter(TableSignals, Filter{"x": map[string]any{"$regex": "a"}}); err == nil {
		t.Error("expected unsupported operator error")
	}
}

func TestMigrateURL(t *testing.T) {
	got := migrateURL("postgres://u:p@localhost:5432/painpoint?sslmode=disable")
	if !strings.HasPrefix(got, "pgx5://u:p@localhost") {
		t.Errorf("unexpected migrate URL: %s", got)
	}
}
