package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finzops/internal/backup"
	"finzops/internal/diff"
	"finzops/internal/infra/memstore"
	"finzops/internal/report"
	"finzops/internal/store"
)

const catalogFixture = `export const CATALOGO_RUBROS = [
  { id: 'MOD-ING', descripcion: 'Ingenieros', categoria: 'Labor', categoria_codigo: 'MOD' },
  { id: 'GAS-OTR', descripcion: 'Otros gastos', categoria: 'Non-Labor', categoria_codigo: 'GAS' },
];
`

const testTable = "finz_rubros_taxonomia"

func writeFrontend(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogoRubros.ts")
	if err := os.WriteFile(path, []byte(catalogFixture), 0o644); err != nil {
		t.Fatalf("write frontend: %v", err)
	}
	return path
}

func writeReport(t *testing.T, r diff.Report) string {
	t.Helper()
	path, err := report.WriteJSON(t.TempDir(), "diff-report.json", r)
	if err != nil {
		t.Fatalf("write report: %v", err)
	}
	return path
}

func hookBackends(t *testing.T, s *memstore.Store) {
	t.Helper()
	t.Setenv("TABLE_RUBROS", testTable)
	prevStore, prevSink := openStore, openSink
	openStore = func(context.Context, string) (store.Store, error) { return s, nil }
	openSink = func(context.Context, string, string) (backup.Sink, error) { return backup.NewMemory(), nil }
	t.Cleanup(func() { openStore, openSink = prevStore, prevSink })
}

func TestCLIApplyInsertsMissing(t *testing.T) {
	s := memstore.New()
	hookBackends(t, s)
	reportPath := writeReport(t, diff.Report{
		GeneratedAt:    time.Now().UTC(),
		Table:          testTable,
		MissingInStore: []string{"GAS-OTR"},
	})
	outDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-report", reportPath, "-apply", "-frontend", writeFrontend(t), "-out", outDir}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	rec, ok, _ := s.Get(context.Background(), testTable, "RUBRO#GAS-OTR", "METADATA")
	if !ok || rec.Str("descripcion") != "Otros gastos" {
		t.Fatalf("row not inserted: %+v ok=%v", rec, ok)
	}
	if !strings.Contains(stdout.String(), "1 applied") {
		t.Fatalf("stdout: %s", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(outDir, "remediation-log.json")); err != nil {
		t.Fatalf("log artifact: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "audit.db")); err != nil {
		t.Fatalf("audit ledger: %v", err)
	}
}

func TestCLIDryRunByDefault(t *testing.T) {
	s := memstore.New()
	hookBackends(t, s)
	reportPath := writeReport(t, diff.Report{Table: testTable, MissingInStore: []string{"GAS-OTR"}})

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-report", reportPath, "-frontend", writeFrontend(t), "-out", t.TempDir()}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	if s.Count(testTable) != 0 {
		t.Fatalf("dry run wrote to the store")
	}
	if !strings.Contains(stdout.String(), "1 planned") {
		t.Fatalf("stdout: %s", stdout.String())
	}
}

func TestCLIInteractiveDecline(t *testing.T) {
	s := memstore.New()
	hookBackends(t, s)
	prev := stdinFunc
	stdinFunc = func() io.Reader { return strings.NewReader("n\n") }
	t.Cleanup(func() { stdinFunc = prev })
	reportPath := writeReport(t, diff.Report{Table: testTable, MissingInStore: []string{"GAS-OTR"}})

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-report", reportPath, "-apply", "-interactive", "-frontend", writeFrontend(t), "-out", t.TempDir()}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	if s.Count(testTable) != 0 {
		t.Fatalf("declined action still wrote")
	}
	if !strings.Contains(stdout.String(), "1 skipped (declined)") {
		t.Fatalf("stdout: %s", stdout.String())
	}
}

func TestCLIRequiresReportFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stderr.String(), "missing -report") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}

func TestCLIRejectsStaleReportTable(t *testing.T) {
	s := memstore.New()
	hookBackends(t, s)
	reportPath := writeReport(t, diff.Report{Table: "finz_rubros_staging", MissingInStore: []string{"GAS-OTR"}})

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-report", reportPath, "-apply", "-frontend", writeFrontend(t), "-out", t.TempDir()}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stderr.String(), "re-run taxonomy-validate") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}
