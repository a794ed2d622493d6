// Command taxonomy-remediate consumes a diff report and converges the
// catalog table on the canonical definitions: key-shape fixes first, then
// missing inserts, then attribute updates; orphans are only logged. Every
// mutation is preceded by a durable pre-image snapshot. Exit codes: 0 for
// a completed run (item failures included, they are reported), non-zero
// only for fatal setup errors.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"finzops/internal/backup"
	"finzops/internal/diff"
	"finzops/internal/envcfg"
	"finzops/internal/ledger"
	"finzops/internal/remedy"
	"finzops/internal/report"
	"finzops/internal/store"
	"finzops/internal/taxonomy"
)

var (
	exitFunc  = os.Exit
	openStore = store.Open
	openSink  = backup.Open
	stdinFunc = func() io.Reader { return os.Stdin }
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("taxonomy-remediate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		reportPath   string
		apply        bool
		interactive  bool
		frontendPath string
		backendPath  string
		outDir       string
	)
	fs.StringVar(&reportPath, "report", "", "diff report JSON from taxonomy-validate (required)")
	fs.BoolVar(&apply, "apply", false, "mutate the store (default: dry-run)")
	fs.BoolVar(&interactive, "interactive", false, "confirm each change on the terminal (default: auto-approve)")
	fs.StringVar(&frontendPath, "frontend", "", "frontend catalog source (default: provider chain)")
	fs.StringVar(&backendPath, "backend", "", "backend alias map source (default: provider chain)")
	fs.StringVar(&outDir, "out", envcfg.ReportDir(), "report directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if reportPath == "" {
		fmt.Fprintln(stderr, "missing -report; run taxonomy-validate first")
		return 2
	}

	summary, err := run(context.Background(), reportPath, frontendPath, backendPath, outDir, apply, interactive, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "remediate failed: %v\n", err)
		fmt.Fprintln(stderr, "hint: set TABLE_RUBROS explicitly and back up before -apply")
		return 1
	}
	fmt.Fprintf(stdout, "done: %d total, %d applied, %d planned, %d failed, %d skipped (noop), %d skipped (declined)\n",
		summary.Total, summary.Applied, summary.Planned, summary.Failed, summary.SkippedNoop, summary.SkippedDeclined)
	return 0
}

func run(ctx context.Context, reportPath, frontendPath, backendPath, outDir string, apply, interactive bool, stdout io.Writer) (remedy.Summary, error) {
	data, err := os.ReadFile(reportPath)
	if err != nil {
		return remedy.Summary{}, fmt.Errorf("read report: %w", err)
	}
	var diffReport diff.Report
	if err := json.Unmarshal(data, &diffReport); err != nil {
		return remedy.Summary{}, fmt.Errorf("parse report: %w", err)
	}

	catalogPaths := taxonomy.DefaultCatalogPaths
	if frontendPath != "" {
		catalogPaths = []string{frontendPath}
	}
	catalog, _, err := taxonomy.LoadCatalog(catalogPaths, stdout)
	if err != nil {
		return remedy.Summary{}, fmt.Errorf("load catalog: %w", err)
	}

	// The table is taken from the report's validate run; the env var must
	// agree before anything mutates, so a stale report cannot aim writes at
	// the wrong table.
	table, err := envcfg.TaxonomyTable(apply)
	if err != nil {
		return remedy.Summary{}, err
	}
	if diffReport.Table != "" && diffReport.Table != table {
		return remedy.Summary{}, fmt.Errorf("report was computed against table %q, environment resolves %q; re-run taxonomy-validate", diffReport.Table, table)
	}

	st, err := openStore(ctx, envcfg.Region())
	if err != nil {
		return remedy.Summary{}, fmt.Errorf("open store: %w", err)
	}
	sink, err := openSink(ctx, envcfg.Region(), outDir)
	if err != nil {
		return remedy.Summary{}, fmt.Errorf("open backup sink: %w", err)
	}

	var led *ledger.Ledger
	if apply {
		path, _, _ := envcfg.Lookup("FINZOPS_LEDGER_PATH")
		if path == "" {
			path = filepath.Join(outDir, "audit.db")
		}
		led, err = ledger.Open(path)
		if err != nil {
			return remedy.Summary{}, fmt.Errorf("open ledger: %w", err)
		}
		defer func() { _ = led.Close() }()
	}

	var policy remedy.ApprovalPolicy = remedy.AutoApprove{}
	if interactive {
		policy = remedy.PromptUser{In: bufio.NewReader(stdinFunc()), Out: stdout}
	}

	actions := remedy.Plan(diffReport, catalog)
	exec := &remedy.Executor{
		Store:  st,
		Table:  table,
		Sink:   sink,
		Ledger: led,
		Policy: policy,
		Apply:  apply,
		RunID:  time.Now().UTC().Format("20060102T150405Z"),
		Out:    stdout,
	}
	summary, entries := exec.Run(ctx, actions)

	artifact := struct {
		Summary remedy.Summary    `json:"summary"`
		Entries []remedy.LogEntry `json:"entries"`
	}{summary, entries}
	if path, werr := report.WriteJSON(outDir, "remediation-log.json", artifact); werr != nil {
		fmt.Fprintf(stdout, "remediation log: %v\n", werr)
	} else {
		fmt.Fprintf(stdout, "remediation log written to %s\n", path)
	}
	if _, merr := report.WriteMetrics(outDir, "taxonomy_remediate", map[string]float64{
		"finzops_remediate_total":            float64(summary.Total),
		"finzops_remediate_applied":          float64(summary.Applied),
		"finzops_remediate_planned":          float64(summary.Planned),
		"finzops_remediate_failed":           float64(summary.Failed),
		"finzops_remediate_skipped_noop":     float64(summary.SkippedNoop),
		"finzops_remediate_skipped_declined": float64(summary.SkippedDeclined),
	}); merr != nil {
		fmt.Fprintf(stdout, "metrics: %v\n", merr)
	}
	return summary, nil
}
