// Package taxonomy holds the canonical rubro catalog model: the frontend
// entry list, the backend legacy-alias map, the composite key codec, and the
// canonicalization function shared by the diff, remediation, and migration
// tools. Parsed sources are immutable value objects built once per run.
package taxonomy

import (
	"sort"
	"strings"
)

// Entry is the authoritative definition of one budget line-item category.
type Entry struct {
	ID               string `json:"id"`
	Descripcion      string `json:"descripcion"`
	Categoria        string `json:"categoria"`
	CategoriaCodigo  string `json:"categoria_codigo"`
	FuenteReferencia string `json:"fuente_referencia"`
	TipoEjecucion    string `json:"tipo_ejecucion"`
	TipoCosto        string `json:"tipo_costo"`
}

// Catalog is the immutable set of canonical entries keyed by id.
type Catalog struct {
	byID map[string]Entry
}

// NewCatalog copies entries into a Catalog. Later duplicates of an id win,
// matching how the frontend list is consumed.
func NewCatalog(entries []Entry) Catalog {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return Catalog{byID: m}
}

// Entry returns the canonical entry for id.
func (c Catalog) Entry(id string) (Entry, bool) {
	e, ok := c.byID[id]
	return e, ok
}

// Has reports whether id is canonical.
func (c Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Len returns the number of canonical entries.
func (c Catalog) Len() int { return len(c.byID) }

// IDs returns all canonical ids in ascending order.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AliasMap is the immutable backend mapping of legacy tokens to canonical
// ids, plus the named defaults the allocation logic falls back to.
type AliasMap struct {
	byToken  map[string]string
	defaults map[string]string
}

// NewAliasMap builds an AliasMap. Tokens are matched case-insensitively, so
// they are stored lower-cased.
func NewAliasMap(aliases map[string]string, defaults map[string]string) AliasMap {
	byToken := make(map[string]string, len(aliases))
	for token, id := range aliases {
		byToken[strings.ToLower(strings.TrimSpace(token))] = id
	}
	d := make(map[string]string, len(defaults))
	for name, id := range defaults {
		d[name] = id
	}
	return AliasMap{byToken: byToken, defaults: d}
}

// Resolve maps a legacy token to its canonical id.
func (a AliasMap) Resolve(token string) (string, bool) {
	id, ok := a.byToken[strings.ToLower(strings.TrimSpace(token))]
	return id, ok
}

// Default returns the named default id (e.g. "labor", "non_labor").
func (a AliasMap) Default(name string) (string, bool) {
	id, ok := a.defaults[name]
	return id, ok
}

// Len returns the number of alias tokens.
func (a AliasMap) Len() int { return len(a.byToken) }

// IDs returns the distinct canonical ids the backend can produce: every
// alias target plus every named default, ascending.
func (a AliasMap) IDs() []string {
	set := make(map[string]struct{}, len(a.byToken))
	for _, id := range a.byToken {
		set[id] = struct{}{}
	}
	for _, id := range a.defaults {
		set[id] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Canonicalizer resolves any raw rubro identifier to its canonical id.
type Canonicalizer struct {
	catalog Catalog
	aliases AliasMap
	upper   map[string]string // upper-cased id -> canonical id
}

// NewCanonicalizer combines the catalog and alias map into one resolver.
func NewCanonicalizer(catalog Catalog, aliases AliasMap) Canonicalizer {
	upper := make(map[string]string, catalog.Len())
	for _, id := range catalog.IDs() {
		upper[strings.ToUpper(id)] = id
	}
	return Canonicalizer{catalog: catalog, aliases: aliases, upper: upper}
}

// Canonicalize resolves raw to a canonical id. Resolution order: exact
// catalog match, legacy alias, case-insensitive catalog match. Unknown
// values are never guessed.
func (c Canonicalizer) Canonicalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if c.catalog.Has(raw) {
		return raw, true
	}
	if id, ok := c.aliases.Resolve(raw); ok && c.catalog.Has(id) {
		return id, true
	}
	if id, ok := c.upper[strings.ToUpper(raw)]; ok {
		return id, true
	}
	return "", false
}
