// Package diff computes the drift report between the canonical taxonomy
// sources and the persisted catalog. Compute is a pure function: it never
// touches the store and never interleaves with remediation writes.
package diff

import (
	"sort"
	"time"

	"finzops/internal/store"
	"finzops/internal/taxonomy"
)

// maxRowSamples bounds how many physical rows per id are compared; the
// report is sized for human triage, not for completeness of row listings.
const maxRowSamples = 3

// Mismatch records one attribute or key-shape divergence on one store row.
type Mismatch struct {
	ID        string `json:"id"`
	Field     string `json:"field"` // descripcion|categoria|categoria_codigo|fuente_referencia|key
	Canonical string `json:"canonical"`
	Stored    string `json:"stored"`
	PK        string `json:"pk"`
	SK        string `json:"sk"`
}

// Counts aggregates the report for the summary table.
type Counts struct {
	FrontendEntries        int `json:"frontend_entries"`
	BackendIDs             int `json:"backend_ids"`
	StoreIDs               int `json:"store_ids"`
	MissingInStore         int `json:"missing_in_store"`
	ExtraInStore           int `json:"extra_in_store"`
	AttributeMismatches    int `json:"attribute_mismatches"`
	BackendMissingFrontend int `json:"backend_missing_frontend"`
	FrontendMissingBackend int `json:"frontend_missing_backend"`
}

// Report is the diff artifact consumed by the remediation executor.
type Report struct {
	GeneratedAt            time.Time  `json:"generated_at"`
	Table                  string     `json:"table"`
	Counts                 Counts     `json:"counts"`
	MissingInStore         []string   `json:"missing_in_store"`
	ExtraInStore           []string   `json:"extra_in_store"`
	BackendMissingFrontend []string   `json:"backend_missing_frontend"`
	FrontendMissingBackend []string   `json:"frontend_missing_backend"`
	AttributeMismatches    []Mismatch `json:"attribute_mismatches"`
}

// Clean reports whether the store already converged on the canonical
// definitions. Backend/frontend source disagreements are reported but do
// not make a run dirty: they are fixed in source control, not in the store.
func (r Report) Clean() bool {
	return len(r.MissingInStore) == 0 && len(r.ExtraInStore) == 0 && len(r.AttributeMismatches) == 0
}

// comparedFields is the fixed attribute set checked per row. Comparisons
// are exact; no case normalization.
var comparedFields = []string{"descripcion", "categoria", "categoria_codigo", "fuente_referencia"}

// Compute builds the Report from the three inputs.
func Compute(catalog taxonomy.Catalog, backendIDs []string, index store.Index, table string) Report {
	r := Report{GeneratedAt: time.Now().UTC(), Table: table}

	frontendIDs := catalog.IDs()
	frontendSet := make(map[string]struct{}, len(frontendIDs))
	for _, id := range frontendIDs {
		frontendSet[id] = struct{}{}
	}
	backendSet := make(map[string]struct{}, len(backendIDs))
	for _, id := range backendIDs {
		backendSet[id] = struct{}{}
	}

	for _, id := range frontendIDs {
		if _, ok := index[id]; !ok {
			r.MissingInStore = append(r.MissingInStore, id)
		}
		if _, ok := backendSet[id]; !ok {
			r.FrontendMissingBackend = append(r.FrontendMissingBackend, id)
		}
	}
	for _, id := range index.IDs() {
		if _, ok := frontendSet[id]; !ok {
			r.ExtraInStore = append(r.ExtraInStore, id)
		}
	}
	for _, id := range backendIDs {
		if _, ok := frontendSet[id]; !ok {
			r.BackendMissingFrontend = append(r.BackendMissingFrontend, id)
		}
	}
	sort.Strings(r.ExtraInStore)

	for _, id := range frontendIDs {
		entry, _ := catalog.Entry(id)
		rows := index[id]
		if len(rows) > maxRowSamples {
			rows = rows[:maxRowSamples]
		}
		for _, row := range rows {
			r.AttributeMismatches = append(r.AttributeMismatches, compareRow(entry, row)...)
		}
	}

	r.Counts = Counts{
		FrontendEntries:        len(frontendIDs),
		BackendIDs:             len(backendIDs),
		StoreIDs:               len(index),
		MissingInStore:         len(r.MissingInStore),
		ExtraInStore:           len(r.ExtraInStore),
		AttributeMismatches:    len(r.AttributeMismatches),
		BackendMissingFrontend: len(r.BackendMissingFrontend),
		FrontendMissingBackend: len(r.FrontendMissingBackend),
	}
	return r
}

// compareRow checks one store row against its canonical entry: the fixed
// field set plus the key shape. A field mismatches when both sides are
// non-empty and unequal, or when the canonical side is non-empty while the
// store side is empty.
func compareRow(entry taxonomy.Entry, row store.Record) []Mismatch {
	var out []Mismatch
	canonical := map[string]string{
		"descripcion":       entry.Descripcion,
		"categoria":         entry.Categoria,
		"categoria_codigo":  entry.CategoriaCodigo,
		"fuente_referencia": entry.FuenteReferencia,
	}
	for _, field := range comparedFields {
		want := canonical[field]
		got := row.Str(field)
		if field == "descripcion" && got == "" {
			got = row.Str("linea_gasto")
		}
		if want == "" {
			continue
		}
		if got == "" || got != want {
			out = append(out, Mismatch{ID: entry.ID, Field: field, Canonical: want, Stored: got, PK: row.PK, SK: row.SK})
		}
	}
	// Key shape is checked on metadata rows only; sub-category rows carry
	// their own sort keys.
	if row.SK != taxonomy.MetadataSK {
		return out
	}
	if key := taxonomy.EncodeKey(entry.ID); row.PK != key.PK || row.SK != key.SK {
		out = append(out, Mismatch{
			ID:        entry.ID,
			Field:     "key",
			Canonical: key.PK + "/" + key.SK,
			Stored:    row.PK + "/" + row.SK,
			PK:        row.PK,
			SK:        row.SK,
		})
	}
	return out
}
