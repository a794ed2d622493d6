package store

import (
	"context"

	"finzops/internal/taxonomy"
)

// Index groups the physical rows of the taxonomy table by logical rubro id.
// Multiple rows per id are expected (one metadata row plus legacy rows).
type Index map[string][]Record

// IDs returns the distinct logical ids present in the store.
func (ix Index) IDs() []string {
	ids := make([]string, 0, len(ix))
	for id := range ix {
		ids = append(ids, id)
	}
	return ids
}

// BuildIndex full-scans the taxonomy table and indexes every row by its
// logical rubro id. The row's own canonical-id attribute wins over the id
// embedded in its key: a row physically stored under the wrong key must
// surface under the id it claims to be, so the key-shape check can flag it.
// Any scan failure is fatal to the caller.
func BuildIndex(ctx context.Context, s Store, table string) (Index, error) {
	ix := Index{}
	err := s.Scan(ctx, table, func(rec Record) error {
		id := rec.Str("rubro_id")
		if id == "" {
			id = rec.Str("id")
		}
		if id == "" {
			if decoded, derr := taxonomy.DecodeKey(taxonomy.Key{PK: rec.PK, SK: rec.SK}); derr == nil {
				id = decoded
			}
		}
		if id == "" {
			// Unattributable row: keep it visible under its raw pk.
			id = rec.PK
		}
		ix[id] = append(ix[id], rec)
		return nil
	})
	if err != nil {
		return nil, &ScanError{Table: table, Err: err}
	}
	return ix, nil
}
