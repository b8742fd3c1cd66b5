package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// MemoryBackend is a map-backed Backend for tests and degraded boot.
// Documents are deep-copied on the way in and out so callers can never
// mutate stored state through a returned map.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string][]map[string]any
}

// NewMemoryBackend creates an empty in-memory backend with no provisioned
// collections.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string][]map[string]any)}
}

// Table returns a query over the named collection.
func (b *MemoryBackend) Table(name string) Query {
	return &memoryQuery{backend: b, collection: name}
}

// EnsureCollections provisions the named collections if absent.
func (b *MemoryBackend) EnsureCollections(_ context.Context, names ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		if _, ok := b.collections[name]; !ok {
			b.collections[name] = []map[string]any{}
		}
	}
	return nil
}

// Close is a no-op for the memory backend.
func (b *MemoryBackend) Close() error {
	return nil
}

type memoryQuery struct {
	backend    *MemoryBackend
	collection string
	filters    []eqFilter
	orderField string
	orderDesc  bool
	limit      int
}

func (q *memoryQuery) Eq(field string, value any) Query {
	q.filters = append(q.filters, eqFilter{field: field, value: value})
	return q
}

func (q *memoryQuery) Order(field string, desc bool) Query {
	q.orderField = field
	q.orderDesc = desc
	return q
}

func (q *memoryQuery) Limit(n int) Query {
	q.limit = n
	return q
}

func (q *memoryQuery) Select(_ context.Context) ([]map[string]any, error) {
	q.backend.mu.RLock()
	defer q.backend.mu.RUnlock()

	rows, ok := q.backend.collections[q.collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotProvisioned, q.collection)
	}

	matched := make([]map[string]any, 0)
	for _, row := range rows {
		if q.matches(row) {
			matched = append(matched, copyDocument(row))
		}
	}

	if q.orderField != "" {
		field, desc := q.orderField, q.orderDesc
		sort.SliceStable(matched, func(i, j int) bool {
			if desc {
				return compareValues(matched[j][field], matched[i][field])
			}
			return compareValues(matched[i][field], matched[j][field])
		})
	}

	if q.limit > 0 && len(matched) > q.limit {
		matched = matched[:q.limit]
	}
	return matched, nil
}

func (q *memoryQuery) Insert(_ context.Context, doc map[string]any) (map[string]any, error) {
	if _, ok := docID(doc); !ok {
		return nil, ErrMissingID
	}

	q.backend.mu.Lock()
	defer q.backend.mu.Unlock()

	if _, ok := q.backend.collections[q.collection]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotProvisioned, q.collection)
	}

	stored := copyDocument(doc)
	q.backend.collections[q.collection] = append(q.backend.collections[q.collection], stored)
	return copyDocument(stored), nil
}

func (q *memoryQuery) Update(_ context.Context, values map[string]any) ([]map[string]any, error) {
	q.backend.mu.Lock()
	defer q.backend.mu.Unlock()

	rows, ok := q.backend.collections[q.collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotProvisioned, q.collection)
	}

	updated := make([]map[string]any, 0)
	for _, row := range rows {
		if !q.matches(row) {
			continue
		}
		for k, v := range copyDocument(values) {
			row[k] = v
		}
		updated = append(updated, copyDocument(row))
	}
	return updated, nil
}

func (q *memoryQuery) Delete(_ context.Context) error {
	q.backend.mu.Lock()
	defer q.backend.mu.Unlock()

	rows, ok := q.backend.collections[q.collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotProvisioned, q.collection)
	}

	kept := rows[:0]
	for _, row := range rows {
		if !q.matches(row) {
			kept = append(kept, row)
		}
	}
	q.backend.collections[q.collection] = kept
	return nil
}

func (q *memoryQuery) matches(row map[string]any) bool {
	for _, f := range q.filters {
		if !valuesEqual(row[f.field], f.value) {
			return false
		}
	}
	return true
}

// normalizeValue round-trips a value through JSON so stored and queried
// representations compare consistently (ints become float64, etc.).
func normalizeValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func compareValues(a, b any) bool {
	na, nb := normalizeValue(a), normalizeValue(b)
	fa, aok := na.(float64)
	fb, bok := nb.(float64)
	if aok && bok {
		return fa < fb
	}
	return fmt.Sprint(na) < fmt.Sprint(nb)
}

func copyDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}
