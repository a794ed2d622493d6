// Package store re-exports the composite-key store abstractions and
// provides the backend factory plus the taxonomy scan index.
package store

import (
	"finzops/internal/store/core"
)

type (
	// Driver identifies a store backend driver.
	Driver = core.Driver
	// Record is one physical row of a table.
	Record = core.Record
	// Store is the interface for store backends.
	Store = core.Store
	// ScanError wraps a failed full scan.
	ScanError = core.ScanError
)

const (
	// DriverDynamo is the DynamoDB driver.
	DriverDynamo = core.DriverDynamo
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrMissingKey indicates a record without its key attributes.
var ErrMissingKey = core.ErrMissingKey
