// Package backup stores pre-image snapshots taken before every mutating
// store operation. Snapshots are append-only: each write lands under a
// timestamped key, so a re-run adds a new snapshot and never refreshes or
// overwrites an earlier one.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"finzops/internal/store"
)

// Driver identifies a concrete snapshot backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local report directory (default)
	DriverS3         Driver = "s3"     // S3 bucket for shared runs
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// Sink persists snapshot payloads. Write MUST NOT overwrite an existing
// ref; implementations derive refs that are unique per call.
type Sink interface {
	// Write persists data under a ref derived from key and the current
	// time, returning the ref.
	Write(ctx context.Context, key string, data []byte) (string, error)
	// Read returns the payload stored at ref.
	Read(ctx context.Context, ref string) ([]byte, error)
	// List returns the refs under prefix, ascending.
	List(ctx context.Context, prefix string) ([]string, error)
	// Driver returns the configured backend driver.
	Driver() Driver
}

// Snapshot is the JSON payload written per backed-up row.
type Snapshot struct {
	Table   string         `json:"table"`
	PK      string         `json:"pk"`
	SK      string         `json:"sk"`
	TakenAt time.Time      `json:"taken_at"`
	Attrs   map[string]any `json:"attrs"`
}

// Take snapshots rec into the sink and returns the backup ref. Callers
// must not mutate the row until Take returned without error.
func Take(ctx context.Context, sink Sink, table string, rec store.Record) (string, error) {
	snap := Snapshot{Table: table, PK: rec.PK, SK: rec.SK, TakenAt: time.Now().UTC(), Attrs: rec.Attrs}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot %s/%s: %w", rec.PK, rec.SK, err)
	}
	ref, err := sink.Write(ctx, rec.PK+"/"+rec.SK, data)
	if err != nil {
		return "", fmt.Errorf("write snapshot %s/%s: %w", rec.PK, rec.SK, err)
	}
	return ref, nil
}

// timestampRef derives the append-only ref for a snapshot key.
func timestampRef(key string, now time.Time) string {
	return fmt.Sprintf("%s/%s.json", key, now.UTC().Format("20060102T150405.000000000Z"))
}
