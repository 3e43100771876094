package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used for dry runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Record
	index  map[string]map[string]int // table -> unique key -> row
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]Record),
		index:  make(map[string]map[string]int),
	}
}

// Query returns copies of matching rows in insertion order.
func (m *MemoryStore) Query(ctx context.Context, table string, filter Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, rec := range m.tables[table] {
		if Match(rec, filter) {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

// Upsert merges records into rows identified by uniqueKey.
func (m *MemoryStore) Upsert(ctx context.Context, table string, records []Record, uniqueKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized := make([]Record, 0, len(records))
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		key, err := KeyOf(rec, uniqueKey)
		if err != nil {
			return err
		}
		n, err := normalize(rec)
		if err != nil {
			return err
		}
		normalized = append(normalized, n)
		keys = append(keys, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.index[table]
	if idx == nil {
		idx = make(map[string]int)
		m.index[table] = idx
	}
	for i, rec := range normalized {
		if row, ok := idx[keys[i]]; ok {
			existing := m.tables[table][row]
			for k, v := range rec {
				existing[k] = v
			}
			continue
		}
		idx[keys[i]] = len(m.tables[table])
		m.tables[table] = append(m.tables[table], rec)
	}
	return nil
}

// Append adds rows without any uniqueness check.
func (m *MemoryStore) Append(ctx context.Context, table string, records ...Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized := make([]Record, 0, len(records))
	for _, rec := range records {
		n, err := normalize(rec)
		if err != nil {
			return err
		}
		normalized = append(normalized, n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], normalized...)
	return nil
}

// Len returns the number of rows in a table.
func (m *MemoryStore) Len(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table])
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
