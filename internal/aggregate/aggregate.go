// Package aggregate retrieves the full signal set of a company across all
// sources and history. It groups and orders; it never transforms evidence.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ppiankov/painpoint/internal/cache"
	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/model"
	"github.com/ppiankov/painpoint/internal/store"
)

const cacheNamespace = "signals"

// Options configures an Aggregator.
type Options struct {
	// RetentionDays excludes dated signals older than the window. 0 keeps all.
	RetentionDays int
	// Cache memoizes per-domain results within a run. Nil disables it.
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Aggregator reads pain_signals by canonical domain.
type Aggregator struct {
	store     store.Store
	cache     cache.Cache
	cacheTTL  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an aggregator over the datastore.
func New(s store.Store, opts Options) *Aggregator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		store:     s,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		retention: time.Duration(opts.RetentionDays) * 24 * time.Hour,
		logger:    logging.OrDefault(opts.Logger),
		now:       now,
	}
}

// SignalsFor returns every signal for a domain: newest first, undated last.
func (a *Aggregator) SignalsFor(ctx context.Context, domain string) ([]model.Signal, error) {
	domain = model.CanonicalDomain(domain)
	if domain == "" {
		return nil, fmt.Errorf("empty domain")
	}

	key := cache.Key(cacheNamespace, domain)
	if a.cache != nil {
		var cached []model.Signal
		if cache.GetJSON(a.cache, key, &cached) {
			return cached, nil
		}
	}

	rows, err := a.store.Query(ctx, store.TableSignals, store.Filter{"domain": domain})
	if err != nil {
		return nil, fmt.Errorf("query signals for %s: %w", domain, err)
	}

	signals := make([]model.Signal, 0, len(rows))
	for _, row := range rows {
		s := Decode(row)
		if s.Domain == "" {
			s.Domain = domain
		}
		if !s.Dated() {
			a.logger.Debug("signal has no usable date, keeping with unknown age",
				logging.Domain(domain), logging.Source(s.Source))
		}
		signals = append(signals, s)
	}

	signals = a.withinRetention(signals)
	Sort(signals)

	if a.cache != nil {
		if err := cache.SetJSON(a.cache, key, signals, a.cacheTTL); err != nil {
			a.logger.Warn("cache signals failed", logging.Domain(domain), logging.Error(err))
		}
	}
	return signals, nil
}

// Invalidate drops the memoized signal set of a domain.
func (a *Aggregator) Invalidate(domain string) {
	if a.cache == nil {
		return
	}
	_ = a.cache.Delete(cache.Key(cacheNamespace, model.CanonicalDomain(domain)))
}

// withinRetention drops dated signals older than the window. Undated
// signals are never dropped.
func (a *Aggregator) withinRetention(signals []model.Signal) []model.Signal {
	if a.retention <= 0 {
		return signals
	}
	cutoff := a.now().Add(-a.retention)
	kept := signals[:0]
	for _, s := range signals {
		if s.Dated() && s.SignalDate.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// Sort orders signals newest first with undated signals last. Ties keep a
// stable order by source, then type.
func Sort(signals []model.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.Dated() != b.Dated() {
			return a.Dated()
		}
		if !a.SignalDate.Equal(b.SignalDate) {
			return a.SignalDate.After(b.SignalDate)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.SignalType < b.SignalType
	})
}

// Group buckets signals by canonical domain.
func Group(signals []model.Signal) map[string][]model.Signal {
	out := make(map[string][]model.Signal)
	for _, s := range signals {
		d := model.CanonicalDomain(s.Domain)
		if d == "" {
			continue
		}
		out[d] = append(out[d], s)
	}
	return out
}

// Decode converts a stored row into a signal. Malformed dates become the zero
// time and the row is still returned.
func Decode(row store.Record) model.Signal {
	s := model.Signal{
		CompanyName: stringField(row, "company_name"),
		Domain:      model.CanonicalDomain(stringField(row, "domain")),
		SignalType:  model.SignalType(stringField(row, "signal_type")),
		Source:      stringField(row, "source"),
	}

	if v, ok := row["signal_strength"].(float64); ok {
		s.SignalStrength = v
	}

	if raw := stringField(row, "signal_date"); raw != "" {
		if t, err := model.ParseDate(raw); err == nil {
			s.SignalDate = t
		}
	}

	switch raw := row["raw_data"].(type) {
	case map[string]any:
		s.RawData = raw
	case string:
		var m map[string]any
		if json.Unmarshal([]byte(raw), &m) == nil {
			s.RawData = m
		}
	}
	return s
}

func stringField(row store.Record, key string) string {
	s, _ := row[key].(string)
	return s
}
