// Package seed bootstraps the catalog table: every canonical id without a
// store record gets a minimal row. It is idempotent per id and does not
// reconcile attribute drift on existing rows; ongoing convergence is the
// remediation pipeline's job.
package seed

import (
	"context"
	"fmt"
	"io"

	"finzops/internal/store"
	"finzops/internal/taxonomy"
)

// PlaceholderCategoria marks seeded rows whose category the canonical
// source does not carry yet.
const PlaceholderCategoria = "PENDIENTE"

// Summary tallies one seed run.
type Summary struct {
	Canonical int `json:"canonical"`
	Existing  int `json:"existing"`
	Created   int `json:"created"`
	Planned   int `json:"planned"`
	Failed    int `json:"failed"`
}

// Run upserts a minimal record for every canonical id absent from table.
// With apply false it only reports what would be created.
func Run(ctx context.Context, s store.Store, table string, catalog taxonomy.Catalog, apply bool, out io.Writer) (Summary, error) {
	summary := Summary{Canonical: catalog.Len()}
	for _, id := range catalog.IDs() {
		key := taxonomy.EncodeKey(id)
		_, exists, err := s.Get(ctx, table, key.PK, key.SK)
		if err != nil {
			return summary, fmt.Errorf("get %s: %w", id, err)
		}
		if exists {
			summary.Existing++
			continue
		}
		entry, _ := catalog.Entry(id)
		if !apply {
			summary.Planned++
			fmt.Fprintf(out, "would seed %s (%s)\n", id, categoriaOrPlaceholder(entry))
			continue
		}
		rec := store.Record{PK: key.PK, SK: key.SK, Attrs: map[string]any{
			"rubro_id":    id,
			"descripcion": entry.Descripcion,
			"categoria":   categoriaOrPlaceholder(entry),
		}}
		if err := s.Put(ctx, table, rec); err != nil {
			summary.Failed++
			fmt.Fprintf(out, "seed %s: %v\n", id, err)
			continue
		}
		summary.Created++
		fmt.Fprintf(out, "seeded %s\n", id)
	}
	return summary, nil
}

func categoriaOrPlaceholder(entry taxonomy.Entry) string {
	if entry.Categoria != "" {
		return entry.Categoria
	}
	return PlaceholderCategoria
}
