// Package memstore implements an in-memory composite-key Store for tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"finzops/internal/store/core"
)

type rowKey struct{ pk, sk string }

// Store implements core.Store backed by process memory. Intended for
// tests. FailNext, when set, makes a mutating call or scan return that
// error once, so partial-failure behavior can be exercised
// deterministically; FailAfter defers the failure past that many
// successful calls.
type Store struct {
	mu        sync.RWMutex
	tables    map[string]map[rowKey]map[string]any
	FailNext  error
	FailAfter int
}

// New returns an empty in-memory store.
func New() *Store { return &Store{tables: make(map[string]map[rowKey]map[string]any)} }

// Driver returns the store driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) table(name string) map[rowKey]map[string]any {
	t, ok := s.tables[name]
	if !ok {
		t = make(map[rowKey]map[string]any)
		s.tables[name] = t
	}
	return t
}

func (s *Store) takeFailure() error {
	if s.FailNext == nil {
		return nil
	}
	if s.FailAfter > 0 {
		s.FailAfter--
		return nil
	}
	err := s.FailNext
	s.FailNext = nil
	return err
}

func cloneAttrs(attrs map[string]any) map[string]any {
	c := make(map[string]any, len(attrs))
	for k, v := range attrs {
		c[k] = v
	}
	return c
}

// Get fetches one row.
func (s *Store) Get(_ context.Context, table, pk, sk string) (core.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs, ok := s.tables[table][rowKey{pk, sk}]
	if !ok {
		return core.Record{}, false, nil
	}
	return core.Record{PK: pk, SK: sk, Attrs: cloneAttrs(attrs)}, true, nil
}

// Put writes the full row.
func (s *Store) Put(_ context.Context, table string, rec core.Record) error {
	if rec.PK == "" || rec.SK == "" {
		return core.ErrMissingKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	attrs := cloneAttrs(rec.Attrs)
	attrs["pk"] = rec.PK
	attrs["sk"] = rec.SK
	s.table(table)[rowKey{rec.PK, rec.SK}] = attrs
	return nil
}

// Update sets only the named attributes, creating the row if absent to
// match DynamoDB UpdateItem upsert semantics.
func (s *Store) Update(_ context.Context, table, pk, sk string, set, setIfAbsent map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	t := s.table(table)
	attrs, ok := t[rowKey{pk, sk}]
	if !ok {
		attrs = map[string]any{"pk": pk, "sk": sk}
		t[rowKey{pk, sk}] = attrs
	}
	for k, v := range set {
		attrs[k] = v
	}
	for k, v := range setIfAbsent {
		if _, exists := attrs[k]; !exists {
			attrs[k] = v
		}
	}
	return nil
}

// Delete removes the row; deleting an absent key is a no-op.
func (s *Store) Delete(_ context.Context, table, pk, sk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	delete(s.tables[table], rowKey{pk, sk})
	return nil
}

// Scan streams every row in deterministic pk/sk order.
func (s *Store) Scan(_ context.Context, table string, fn func(core.Record) error) error {
	s.mu.Lock()
	err := s.takeFailure()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.mu.RLock()
	t := s.tables[table]
	keys := make([]rowKey, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	recs := make([]core.Record, 0, len(keys))
	for _, k := range keys {
		recs = append(recs, core.Record{PK: k.pk, SK: k.sk, Attrs: cloneAttrs(t[k])})
	}
	s.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].PK != recs[j].PK {
			return recs[i].PK < recs[j].PK
		}
		return recs[i].SK < recs[j].SK
	})
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of rows in table.
func (s *Store) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}
