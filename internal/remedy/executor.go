package remedy

import (
	"context"
	"fmt"
	"io"
	"time"

	"finzops/internal/backup"
	"finzops/internal/ledger"
	"finzops/internal/store"
	"finzops/internal/taxonomy"
)

// Outcome is the terminal state of one action. The lifecycle is
// Planned -> BackedUp -> {Applied | Failed | SkippedNoop | SkippedDeclined};
// there is no per-item retry, re-running the whole pipeline is the retry.
type Outcome string

const (
	OutcomePlanned         Outcome = "planned" // dry-run terminal state
	OutcomeApplied         Outcome = "applied"
	OutcomeFailed          Outcome = "failed"
	OutcomeSkippedNoop     Outcome = "skipped-noop"
	OutcomeSkippedDeclined Outcome = "skipped-declined"
)

// LogEntry is one line of the remediation log artifact.
type LogEntry struct {
	Tier      string         `json:"tier"`
	ID        string         `json:"id"`
	PK        string         `json:"pk"`
	SK        string         `json:"sk"`
	Action    string         `json:"action"`
	Outcome   Outcome        `json:"outcome"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
	BackupRef string         `json:"backup_ref,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Summary tallies the outcomes of one run.
type Summary struct {
	Total           int `json:"total"`
	Planned         int `json:"planned"`
	Applied         int `json:"applied"`
	Failed          int `json:"failed"`
	SkippedNoop     int `json:"skipped_noop"`
	SkippedDeclined int `json:"skipped_declined"`
}

// Executor applies planned actions to the taxonomy table, strictly
// sequentially. Ledger is optional; Sink is required in apply mode.
type Executor struct {
	Store  store.Store
	Table  string
	Sink   backup.Sink
	Ledger *ledger.Ledger
	Policy ApprovalPolicy
	Apply  bool
	RunID  string
	Out    io.Writer
}

// Run processes actions in order and returns the tally plus the full log.
// Item failures are recorded and never abort the batch.
func (e *Executor) Run(ctx context.Context, actions []Action) (Summary, []LogEntry) {
	summary := Summary{Total: len(actions)}
	entries := make([]LogEntry, 0, len(actions))
	for _, a := range actions {
		entry := e.runOne(ctx, a)
		entries = append(entries, entry)
		switch entry.Outcome {
		case OutcomePlanned:
			summary.Planned++
		case OutcomeApplied:
			summary.Applied++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeSkippedNoop:
			summary.SkippedNoop++
		case OutcomeSkippedDeclined:
			summary.SkippedDeclined++
		}
		fmt.Fprintf(e.Out, "%s -> %s\n", a.Describe(), entry.Outcome)
		if entry.Error != "" {
			fmt.Fprintf(e.Out, "  error: %s\n", entry.Error)
		}
		e.appendLedger(a, entry)
	}
	return summary, entries
}

func (e *Executor) runOne(ctx context.Context, a Action) LogEntry {
	entry := LogEntry{
		Tier:      a.Tier.String(),
		ID:        a.ID,
		PK:        a.PK,
		SK:        a.SK,
		Action:    a.Describe(),
		Timestamp: time.Now().UTC(),
	}

	// Orphans are surfaced only; deletion is never automated.
	if a.Tier == TierOrphan {
		entry.Outcome = OutcomeSkippedNoop
		entry.Error = ""
		return entry
	}
	if !e.Apply {
		entry.Outcome = OutcomePlanned
		return entry
	}

	approved, err := e.Policy.Approve(a)
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = fmt.Sprintf("approval: %v", err)
		return entry
	}
	if !approved {
		entry.Outcome = OutcomeSkippedDeclined
		return entry
	}

	switch a.Tier {
	case TierKeyShape:
		e.applyRekey(ctx, a, &entry)
	case TierMissing:
		e.applyInsert(ctx, a, &entry)
	case TierAttribute:
		e.applyUpdate(ctx, a, &entry)
	}
	return entry
}

// applyRekey copies the row to its derived key, verifies the copy, then
// deletes the old key. Copy-before-delete: a partial failure leaves at
// least one full copy of the data in the table.
func (e *Executor) applyRekey(ctx context.Context, a Action, entry *LogEntry) {
	old, found, err := e.Store.Get(ctx, e.Table, a.FromPK, a.FromSK)
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		return
	}
	if !found {
		if _, moved, gerr := e.Store.Get(ctx, e.Table, a.PK, a.SK); gerr == nil && moved {
			entry.Outcome = OutcomeSkippedNoop
			return
		}
		entry.Outcome = OutcomeFailed
		entry.Error = fmt.Sprintf("source row %s/%s no longer exists", a.FromPK, a.FromSK)
		return
	}
	entry.Before = old.Attrs

	// A row already at the derived key means two physical rows claim the
	// same id. Overwriting would destroy the destination's fields, so the
	// duplicate is left for a human to resolve.
	if _, occupied, gerr := e.Store.Get(ctx, e.Table, a.PK, a.SK); gerr != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = gerr.Error()
		return
	} else if occupied {
		entry.Outcome = OutcomeFailed
		entry.Error = fmt.Sprintf("destination %s/%s already holds a row; resolve the duplicate for %s manually", a.PK, a.SK, a.ID)
		return
	}

	ref, err := backup.Take(ctx, e.Sink, e.Table, old)
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		return
	}
	entry.BackupRef = ref

	moved := old.Clone()
	moved.PK, moved.SK = a.PK, a.SK
	moved.Attrs["rubro_id"] = a.ID
	if err := e.Store.Put(ctx, e.Table, moved); err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = fmt.Sprintf("copy to %s/%s: %v", a.PK, a.SK, err)
		return
	}
	if _, ok, err := e.Store.Get(ctx, e.Table, a.PK, a.SK); err != nil || !ok {
		entry.Outcome = OutcomeFailed
		entry.Error = fmt.Sprintf("verify copy %s/%s failed (old key kept): %v", a.PK, a.SK, err)
		return
	}
	if err := e.Store.Delete(ctx, e.Table, a.FromPK, a.FromSK); err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = fmt.Sprintf("delete old key %s/%s (copy exists): %v", a.FromPK, a.FromSK, err)
		return
	}
	entry.After = moved.Attrs
	entry.Outcome = OutcomeApplied
}

// applyInsert writes the minimal canonical record for a missing id.
func (e *Executor) applyInsert(ctx context.Context, a Action, entry *LogEntry) {
	if _, exists, err := e.Store.Get(ctx, e.Table, a.PK, a.SK); err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		return
	} else if exists {
		entry.Outcome = OutcomeSkippedNoop
		return
	}
	// The pre-image of an insert is the recorded absence of the key.
	ref, err := backup.Take(ctx, e.Sink, e.Table, store.Record{PK: a.PK, SK: a.SK})
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		return
	}
	entry.BackupRef = ref

	rec := store.Record{PK: a.PK, SK: a.SK, Attrs: entryAttrs(a.Entry)}
	if err := e.Store.Put(ctx, e.Table, rec); err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		return
	}
	entry.After = rec.Attrs
	entry.Outcome = OutcomeApplied
}

// applyUpdate sets only the fields that still differ, never the full row,
// so unrelated attributes are left alone.
func (e *Executor) applyUpdate(ctx context.Context, a Action, entry *LogEntry) {
	current, found, err := e.Store.Get(ctx, e.Table, a.PK, a.SK)
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		return
	}
	if !found {
		entry.Outcome = OutcomeFailed
		entry.Error = fmt.Sprintf("row %s/%s no longer exists; re-run validate", a.PK, a.SK)
		return
	}
	entry.Before = current.Attrs

	set := map[string]any{}
	for field, want := range a.Fields {
		if current.Str(field) != want {
			set[field] = want
		}
	}
	if len(set) == 0 {
		entry.Outcome = OutcomeSkippedNoop
		return
	}
	ref, err := backup.Take(ctx, e.Sink, e.Table, current)
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		return
	}
	entry.BackupRef = ref
	if err := e.Store.Update(ctx, e.Table, a.PK, a.SK, set, nil); err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		return
	}
	entry.After = set
	entry.Outcome = OutcomeApplied
}

func (e *Executor) appendLedger(a Action, entry LogEntry) {
	if e.Ledger == nil {
		return
	}
	lerr := e.Ledger.Append(ledger.Entry{
		RunID:     e.RunID,
		Tool:      "taxonomy-remediate",
		Table:     e.Table,
		PK:        entry.PK,
		SK:        entry.SK,
		Action:    entry.Action,
		Outcome:   string(entry.Outcome),
		BackupRef: entry.BackupRef,
		Detail:    entry.Error,
		At:        entry.Timestamp,
	})
	if lerr != nil {
		fmt.Fprintf(e.Out, "  ledger: %v\n", lerr)
	}
}

// entryAttrs builds the minimal record attributes for a canonical entry.
func entryAttrs(entry taxonomy.Entry) map[string]any {
	attrs := map[string]any{"rubro_id": entry.ID}
	put := func(name, value string) {
		if value != "" {
			attrs[name] = value
		}
	}
	put("descripcion", entry.Descripcion)
	put("categoria", entry.Categoria)
	put("categoria_codigo", entry.CategoriaCodigo)
	put("fuente_referencia", entry.FuenteReferencia)
	put("tipo_ejecucion", entry.TipoEjecucion)
	put("tipo_costo", entry.TipoCosto)
	return attrs
}
