package sink

import (
	"context"
	"fmt"

	"github.com/ppiankov/painpoint/internal/model"
	"github.com/ppiankov/painpoint/internal/store"
)

// StoreSink writes delivered evidence into the datastore: one company row
// per domain (first sighting creates it unscored) and one pain_signals row
// per signal.
type StoreSink struct {
	store     store.Store
	companies *store.Companies
}

// NewStoreSink creates a sink over s.
func NewStoreSink(s store.Store) *StoreSink {
	return &StoreSink{store: s, companies: store.NewCompanies(s)}
}

func (s *StoreSink) Name() string { return "store" }

// Deliver upserts companies, then appends signals.
func (s *StoreSink) Deliver(ctx context.Context, batch Batch) error {
	if len(batch.Signals) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(batch.Signals))
	companies := make([]model.Company, 0, len(batch.Signals))
	rows := make([]store.Record, 0, len(batch.Signals))
	for _, sig := range batch.Signals {
		if !seen[sig.Domain] {
			seen[sig.Domain] = true
			companies = append(companies, model.Company{Domain: sig.Domain, CompanyName: sig.CompanyName})
		}
		rows = append(rows, store.SignalRecord(sig))
	}

	if err := s.companies.Touch(ctx, companies); err != nil {
		return err
	}
	if err := s.store.Append(ctx, store.TableSignals, rows...); err != nil {
		return fmt.Errorf("append pain signals: %w", err)
	}
	return nil
}
