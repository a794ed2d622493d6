// Package migrate canonicalizes the rubro references held by allocation
// and project-rubro records. The primary id field is rewritten to its
// canonical value while the original token is preserved forever in a
// provenance field, written first-write-wins so a re-run can never clobber
// an already-recorded original.
package migrate

import (
	"context"
	"fmt"
	"io"
	"time"

	"finzops/internal/backup"
	"finzops/internal/ledger"
	"finzops/internal/store"
)

const (
	idField         = "rubro_id"
	canonicalField  = "canonical_rubro_id"
	provenanceField = "legacy_rubro_token"

	// DefaultBatchSize bounds write bursts against the shared tables.
	DefaultBatchSize = 25
	// DefaultPause is the fixed (non-adaptive) inter-batch pause.
	DefaultPause = 250 * time.Millisecond
)

// Outcome classifies one scanned record.
type Outcome string

const (
	OutcomeUpdated          Outcome = "updated"
	OutcomePlanned          Outcome = "planned" // dry-run
	OutcomeAlreadyCanonical Outcome = "already-canonical"
	OutcomeNoMapping        Outcome = "no-mapping" // needs human follow-up
	OutcomeNoField          Outcome = "no-field"   // record carries no rubro reference
	OutcomeFailed           Outcome = "failed"     // write error
)

// Item is the per-record report line.
type Item struct {
	Table     string    `json:"table"`
	PK        string    `json:"pk"`
	SK        string    `json:"sk"`
	Before    string    `json:"before"`
	After     string    `json:"after,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	BackupRef string    `json:"backup_ref,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary aggregates one run.
type Summary struct {
	Scanned          int `json:"scanned"`
	Updated          int `json:"updated"`
	Planned          int `json:"planned"`
	AlreadyCanonical int `json:"already_canonical"`
	NoMapping        int `json:"no_mapping"`
	NoField          int `json:"no_field"`
	WriteFailures    int `json:"write_failures"`
	Failures         int `json:"failures"` // no_mapping + write_failures
}

// Report is the JSON artifact of one migration run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Mode        string    `json:"mode"` // dryrun | apply
	Tables      []string  `json:"tables"`
	Summary     Summary   `json:"summary"`
	Items       []Item    `json:"items"`
	Failures    []Item    `json:"failures"`
}

// Config wires one migration run.
type Config struct {
	Store        store.Store
	Tables       []string
	Canonicalize func(string) (string, bool)
	Apply        bool
	BatchSize    int
	Pause        time.Duration
	Sink         backup.Sink    // required in apply mode
	Ledger       *ledger.Ledger // optional
	RunID        string
	Out          io.Writer
	Sleep        func(time.Duration) // defaults to time.Sleep
}

type staged struct {
	table     string
	rec       store.Record
	canonical string
	raw       string
}

// Run scans the configured tables sequentially, stages canonicalizing
// updates, and applies them in fixed-size batches with a fixed pause in
// between. Single-record write failures are counted and do not abort the
// run.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Pause <= 0 {
		cfg.Pause = DefaultPause
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	mode := "dryrun"
	if cfg.Apply {
		mode = "apply"
	}
	report := Report{GeneratedAt: time.Now().UTC(), Mode: mode, Tables: cfg.Tables}

	var pending []staged
	for _, table := range cfg.Tables {
		err := cfg.Store.Scan(ctx, table, func(rec store.Record) error {
			report.Summary.Scanned++
			item := Item{Table: table, PK: rec.PK, SK: rec.SK, Timestamp: time.Now().UTC()}
			raw := rec.Str(idField)
			if raw == "" {
				item.Outcome = OutcomeNoField
				report.Summary.NoField++
				report.Items = append(report.Items, item)
				return nil
			}
			item.Before = raw
			canonical, ok := cfg.Canonicalize(raw)
			if !ok {
				// Never guessed; left for human follow-up.
				item.Outcome = OutcomeNoMapping
				report.Summary.NoMapping++
				report.Items = append(report.Items, item)
				report.Failures = append(report.Failures, item)
				return nil
			}
			if canonical == raw {
				item.Outcome = OutcomeAlreadyCanonical
				report.Summary.AlreadyCanonical++
				report.Items = append(report.Items, item)
				return nil
			}
			item.After = canonical
			if !cfg.Apply {
				item.Outcome = OutcomePlanned
				report.Summary.Planned++
				report.Items = append(report.Items, item)
				return nil
			}
			pending = append(pending, staged{table: table, rec: rec, canonical: canonical, raw: raw})
			return nil
		})
		if err != nil {
			return report, &store.ScanError{Table: table, Err: err}
		}
	}

	for i, st := range pending {
		if i > 0 && i%cfg.BatchSize == 0 {
			cfg.Sleep(cfg.Pause)
		}
		item := applyOne(ctx, cfg, st)
		report.Items = append(report.Items, item)
		switch item.Outcome {
		case OutcomeUpdated:
			report.Summary.Updated++
		case OutcomeFailed:
			report.Summary.WriteFailures++
			report.Failures = append(report.Failures, item)
		}
		fmt.Fprintf(cfg.Out, "%s %s/%s: %s -> %s (%s)\n", st.table, st.rec.PK, st.rec.SK, item.Before, st.canonical, item.Outcome)
	}

	report.Summary.Failures = report.Summary.NoMapping + report.Summary.WriteFailures
	return report, nil
}

func applyOne(ctx context.Context, cfg Config, st staged) Item {
	item := Item{
		Table:     st.table,
		PK:        st.rec.PK,
		SK:        st.rec.SK,
		Before:    st.raw,
		After:     st.canonical,
		Timestamp: time.Now().UTC(),
	}
	ref, err := backup.Take(ctx, cfg.Sink, st.table, st.rec)
	if err != nil {
		item.Outcome = OutcomeFailed
		item.Error = err.Error()
		return item
	}
	item.BackupRef = ref
	err = cfg.Store.Update(ctx, st.table, st.rec.PK, st.rec.SK,
		map[string]any{idField: st.canonical, canonicalField: st.canonical},
		map[string]any{provenanceField: st.raw},
	)
	if err != nil {
		item.Outcome = OutcomeFailed
		item.Error = err.Error()
	} else {
		item.Outcome = OutcomeUpdated
	}
	if cfg.Ledger != nil {
		lerr := cfg.Ledger.Append(ledger.Entry{
			RunID:     cfg.RunID,
			Tool:      "rubro-migrate",
			Table:     st.table,
			PK:        st.rec.PK,
			SK:        st.rec.SK,
			Action:    fmt.Sprintf("canonicalize %s -> %s", st.raw, st.canonical),
			Outcome:   string(item.Outcome),
			BackupRef: item.BackupRef,
			Detail:    item.Error,
			At:        item.Timestamp,
		})
		if lerr != nil {
			fmt.Fprintf(cfg.Out, "  ledger: %v\n", lerr)
		}
	}
	return item
}
