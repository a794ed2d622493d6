// Package remedy plans and applies convergent fixes for the drift a diff
// report describes. Fixes are processed in strict priority order so
// structural (key-shape) corrections land before attribute fixes target
// the corrected key. Every mutation is preceded by a durable pre-image
// snapshot, and a failure on one item never aborts the batch.
package remedy

import (
	"fmt"
	"sort"

	"finzops/internal/diff"
	"finzops/internal/taxonomy"
)

// Tier is the fix priority class.
type Tier int

const (
	TierKeyShape Tier = iota + 1 // P1: row stored under the wrong key
	TierMissing                  // P2: canonical id absent from the store
	TierAttribute                // P3: correct key, drifted attributes
	TierOrphan                   // P4: store id with no canonical counterpart (log only)
)

func (t Tier) String() string {
	switch t {
	case TierKeyShape:
		return "P1 key-shape"
	case TierMissing:
		return "P2 missing"
	case TierAttribute:
		return "P3 attributes"
	case TierOrphan:
		return "P4 orphan"
	}
	return fmt.Sprintf("P?(%d)", int(t))
}

// Action is one planned fix.
type Action struct {
	Tier   Tier              `json:"tier"`
	ID     string            `json:"id"`
	PK     string            `json:"pk"` // target key (post-fix for rekeys)
	SK     string            `json:"sk"`
	FromPK string            `json:"from_pk,omitempty"` // rekey source
	FromSK string            `json:"from_sk,omitempty"`
	Fields map[string]string `json:"fields,omitempty"` // attribute fixes: field -> canonical value
	Entry  taxonomy.Entry    `json:"entry,omitempty"`  // canonical definition for inserts
}

// Describe renders the action for prompts and tallies.
func (a Action) Describe() string {
	switch a.Tier {
	case TierKeyShape:
		return fmt.Sprintf("[%s] %s: move %s/%s -> %s/%s", a.Tier, a.ID, a.FromPK, a.FromSK, a.PK, a.SK)
	case TierMissing:
		return fmt.Sprintf("[%s] %s: insert %s/%s", a.Tier, a.ID, a.PK, a.SK)
	case TierAttribute:
		fields := make([]string, 0, len(a.Fields))
		for f := range a.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		return fmt.Sprintf("[%s] %s: update %v on %s/%s", a.Tier, a.ID, fields, a.PK, a.SK)
	case TierOrphan:
		return fmt.Sprintf("[%s] %s: orphaned in store, left untouched", a.Tier, a.ID)
	}
	return fmt.Sprintf("[%s] %s", a.Tier, a.ID)
}

// Plan classifies a diff report into tiered actions, ordered P1 -> P4 and
// by id within a tier. Attribute fixes for a row that also needs a rekey
// target the corrected key, since the P1 move completes first.
func Plan(report diff.Report, catalog taxonomy.Catalog) []Action {
	var actions []Action

	type rowRef struct{ pk, sk string }
	rekeyed := map[string]rowRef{} // id -> wrong key being moved

	// P1: key-shape mismatches.
	for _, m := range report.AttributeMismatches {
		if m.Field != "key" {
			continue
		}
		if _, dup := rekeyed[m.ID]; dup {
			continue
		}
		key := taxonomy.EncodeKey(m.ID)
		rekeyed[m.ID] = rowRef{m.PK, m.SK}
		actions = append(actions, Action{
			Tier:   TierKeyShape,
			ID:     m.ID,
			PK:     key.PK,
			SK:     key.SK,
			FromPK: m.PK,
			FromSK: m.SK,
		})
	}

	// P2: missing records get a minimal canonical insert.
	for _, id := range report.MissingInStore {
		entry, ok := catalog.Entry(id)
		if !ok {
			continue
		}
		key := taxonomy.EncodeKey(id)
		actions = append(actions, Action{Tier: TierMissing, ID: id, PK: key.PK, SK: key.SK, Entry: entry})
	}

	// P3: attribute drift, only the differing fields, grouped per row.
	type rowID struct {
		id     string
		pk, sk string
	}
	fieldFixes := map[rowID]map[string]string{}
	var rowOrder []rowID
	for _, m := range report.AttributeMismatches {
		if m.Field == "key" {
			continue
		}
		pk, sk := m.PK, m.SK
		if from, ok := rekeyed[m.ID]; ok && from.pk == m.PK && from.sk == m.SK {
			// The P1 move lands first; aim the update at the corrected key.
			key := taxonomy.EncodeKey(m.ID)
			pk, sk = key.PK, key.SK
		}
		rid := rowID{m.ID, pk, sk}
		if _, ok := fieldFixes[rid]; !ok {
			fieldFixes[rid] = map[string]string{}
			rowOrder = append(rowOrder, rid)
		}
		fieldFixes[rid][m.Field] = m.Canonical
	}
	sort.Slice(rowOrder, func(i, j int) bool {
		if rowOrder[i].id != rowOrder[j].id {
			return rowOrder[i].id < rowOrder[j].id
		}
		return rowOrder[i].pk+rowOrder[i].sk < rowOrder[j].pk+rowOrder[j].sk
	})
	for _, rid := range rowOrder {
		actions = append(actions, Action{Tier: TierAttribute, ID: rid.id, PK: rid.pk, SK: rid.sk, Fields: fieldFixes[rid]})
	}

	// P4: orphans are surfaced, never deleted.
	for _, id := range report.ExtraInStore {
		key := taxonomy.EncodeKey(id)
		actions = append(actions, Action{Tier: TierOrphan, ID: id, PK: key.PK, SK: key.SK})
	}

	return actions
}
