// Package store is the narrow read/write contract to the external datastore
// that holds company, signal and prospect tables.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Table names.
const (
	TableCompanies     = "company_universe"
	TableSignals       = "pain_signals"
	TableProspects     = "scored_prospects"
	TableOutreachQueue = "outreach_queue"
)

// Record is one schemaless row.
type Record map[string]any

// Filter maps a field to either a scalar (equality) or an operator map such
// as {"$lt": "2024-01-01T00:00:00Z"}. A nil value matches a missing or null
// field.
type Filter map[string]any

// Supported filter operators.
const (
	OpLT  = "$lt"
	OpLTE = "$lte"
	OpGT  = "$gt"
	OpGTE = "$gte"
	OpNE  = "$ne"
)

// Store is the datastore contract. Every write is individually idempotent
// or, for Append, deduplicated upstream.
type Store interface {
	Query(ctx context.Context, table string, filter Filter) ([]Record, error)
	Upsert(ctx context.Context, table string, records []Record, uniqueKey string) error
	Append(ctx context.Context, table string, records ...Record) error
	Close() error
}

// Match reports whether a record satisfies every predicate of the filter.
func Match(rec Record, f Filter) bool {
	for field, want := range f {
		got, ok := rec[field]
		if got == nil {
			ok = false
		}
		if want == nil {
			if ok {
				return false
			}
			continue
		}
		if ops, isOps := want.(map[string]any); isOps {
			for op, v := range ops {
				if !compareOp(op, got, ok, v) {
					return false
				}
			}
			continue
		}
		if !ok || compare(got, want) != 0 {
			return false
		}
	}
	return true
}

func compareOp(op string, got any, present bool, want any) bool {
	if op == OpNE {
		if want == nil {
			return present
		}
		return !present || compare(got, want) != 0
	}
	if !present {
		return false
	}
	c := compare(got, want)
	if c == incomparable {
		return false
	}
	switch op {
	case OpLT:
		return c < 0
	case OpLTE:
		return c <= 0
	case OpGT:
		return c > 0
	case OpGTE:
		return c >= 0
	}
	return false
}

const incomparable = math.MinInt

// compare orders two scalars. Numbers compare numerically, times and strings
// lexically on their RFC3339 form, booleans by equality only.
func compare(a, b any) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
		return incomparable
	}

	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok && ab == bb {
			return 0
		}
		return incomparable
	}

	as, aok := toString(a)
	bs, bok := toString(b)
	if !aok || !bok {
		return incomparable
	}
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case time.Time:
		return s.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}

// KeyOf returns the unique key value of a record as a string.
func KeyOf(rec Record, uniqueKey string) (string, error) {
	v, ok := rec[uniqueKey]
	if !ok || v == nil {
		return "", fmt.Errorf("record missing unique key %q", uniqueKey)
	}
	s := fmt.Sprint(v)
	if s == "" {
		return "", fmt.Errorf("record has empty unique key %q", uniqueKey)
	}
	return s, nil
}

// clone returns a shallow copy of a record.
func clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// normalize round-trips a record through JSON so every backend sees the
// same value types (float64, string, bool, map, slice).
func normalize(rec Record) (Record, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}
