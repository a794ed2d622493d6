// Package ledger persists the audit trail of applied and attempted
// mutations in a local SQLite database, so a run's actions remain
// queryable after the JSON artifacts have been rotated away.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Entry is one appended action.
type Entry struct {
	RunID     string
	Tool      string // taxonomy-remediate | rubro-migrate | taxonomy-seed
	Table     string
	PK        string
	SK        string
	Action    string
	Outcome   string
	BackupRef string
	Detail    string
	At        time.Time
}

// Ledger appends action entries to a single SQLite table.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at path.
func Open(path string) (*Ledger, error) {
	if path == "" {
		path = "reports/audit.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		tbl TEXT NOT NULL,
		pk TEXT NOT NULL,
		sk TEXT NOT NULL,
		action TEXT NOT NULL,
		outcome TEXT NOT NULL,
		backup_ref TEXT,
		detail TEXT,
		at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create actions table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Append records one action. Append failures do not abort a batch; the
// caller decides how loudly to report them.
func (l *Ledger) Append(e Entry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := l.db.Exec(
		`INSERT INTO actions (run_id, tool, tbl, pk, sk, action, outcome, backup_ref, detail, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Tool, e.Table, e.PK, e.SK, e.Action, e.Outcome, e.BackupRef, e.Detail, at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append action: %w", err)
	}
	return nil
}

// Entries returns the actions of one run in insertion order.
func (l *Ledger) Entries(runID string) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT run_id, tool, tbl, pk, sk, action, outcome, backup_ref, detail, at
		 FROM actions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("select actions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.RunID, &e.Tool, &e.Table, &e.PK, &e.SK, &e.Action, &e.Outcome, &e.BackupRef, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }
