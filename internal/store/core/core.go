// Package core defines the composite-key store abstractions shared by the
// backend adapters. The store mirrors a minimal subset of DynamoDB: a
// partition+sort keyed table with get/put/update/delete and a paginated
// full scan. No schema is enforced beyond what callers check themselves.
package core

import (
	"context"
	"errors"
	"fmt"
)

// Driver identifies a concrete store backend implementation.
type Driver string

const (
	DriverDynamo Driver = "dynamo" // DynamoDB (default, prod)
	DriverMemory Driver = "memory" // in-memory (tests)
)

// Record is one physical row: its composite key plus the full attribute
// set, key attributes included. Attribute values keep whatever shape the
// backend round-trips (strings for everything the engine inspects).
type Record struct {
	PK    string
	SK    string
	Attrs map[string]any
}

// Str returns the named attribute as a string, or "" when absent or not a
// string.
func (r Record) Str(name string) string {
	if v, ok := r.Attrs[name].(string); ok {
		return v
	}
	return ""
}

// Clone deep-copies the record's attribute map one level down, enough for
// pre-image snapshots of the flat rows this toolbox handles.
func (r Record) Clone() Record {
	attrs := make(map[string]any, len(r.Attrs))
	for k, v := range r.Attrs {
		attrs[k] = v
	}
	return Record{PK: r.PK, SK: r.SK, Attrs: attrs}
}

// Store is the get/put/update/delete/scan interface shared by backends.
// Every call is a blocking, sequential I/O operation; the tools never
// overlap store calls.
type Store interface {
	// Get fetches one row. The second return is false when the key is absent.
	Get(ctx context.Context, table, pk, sk string) (Record, bool, error)
	// Put writes the full row, replacing any existing row at the key.
	Put(ctx context.Context, table string, rec Record) error
	// Update sets only the named attributes. Attributes in setIfAbsent are
	// written only when the row does not already carry them
	// (first-write-wins, used for provenance fields).
	Update(ctx context.Context, table, pk, sk string, set, setIfAbsent map[string]any) error
	// Delete removes the row. Deleting an absent key is not an error.
	Delete(ctx context.Context, table, pk, sk string) error
	// Scan streams every row of the table to fn, following continuation
	// keys until the table is exhausted. There is no cross-page consistency
	// guarantee. A non-nil error from fn stops the scan.
	Scan(ctx context.Context, table string, fn func(Record) error) error
	// Driver returns the configured backend driver.
	Driver() Driver
}

// ScanError wraps a failed full scan. A partial index would mislead the
// diff, so callers treat this as fatal.
type ScanError struct {
	Table string
	Err   error
}

func (e *ScanError) Error() string { return fmt.Sprintf("scan %s: %v", e.Table, e.Err) }
func (e *ScanError) Unwrap() error { return e.Err }

// ErrMissingKey is returned by backends when a record lacks its key
// attributes.
var ErrMissingKey = errors.New("store: record missing pk/sk")
