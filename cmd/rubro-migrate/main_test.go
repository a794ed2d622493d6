package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"finzops/internal/backup"
	"finzops/internal/infra/memstore"
	"finzops/internal/store"
)

const catalogFixture = `export const CATALOGO_RUBROS = [
  { id: 'MOD-ING', descripcion: 'Ingenieros', categoria: 'Labor' },
  { id: 'MOD-LEAD', descripcion: 'Lider tecnico', categoria: 'Labor' },
];
`

const aliasFixture = `export const RUBRO_MAP = {
  'mod-pm': 'MOD-LEAD',
  'ingeniero': 'MOD-ING',
};
`

func writeSources(t *testing.T) (frontend, backend string) {
	t.Helper()
	dir := t.TempDir()
	frontend = filepath.Join(dir, "catalogoRubros.ts")
	backend = filepath.Join(dir, "rubroMap.ts")
	if err := os.WriteFile(frontend, []byte(catalogFixture), 0o644); err != nil {
		t.Fatalf("write frontend: %v", err)
	}
	if err := os.WriteFile(backend, []byte(aliasFixture), 0o644); err != nil {
		t.Fatalf("write backend: %v", err)
	}
	return frontend, backend
}

func hookBackends(t *testing.T, s *memstore.Store) {
	t.Helper()
	t.Setenv("TABLE_ASIGNACIONES", "finz_asignaciones")
	t.Setenv("TABLE_PROYECTO_RUBROS", "finz_proyecto_rubros")
	prevStore, prevSink := openStore, openSink
	openStore = func(context.Context, string) (store.Store, error) { return s, nil }
	openSink = func(context.Context, string, string) (backup.Sink, error) { return backup.NewMemory(), nil }
	t.Cleanup(func() { openStore, openSink = prevStore, prevSink })
}

func seedRows(t *testing.T, s *memstore.Store) {
	t.Helper()
	ctx := context.Background()
	rows := []struct {
		table string
		rec   store.Record
	}{
		{"finz_asignaciones", store.Record{PK: "PROJECT#p-1", SK: "RUBRO#1", Attrs: map[string]any{"rubro_id": "mod-pm"}}},
		{"finz_asignaciones", store.Record{PK: "PROJECT#p-1", SK: "RUBRO#2", Attrs: map[string]any{"rubro_id": "MOD-ING"}}},
		{"finz_proyecto_rubros", store.Record{PK: "PROJECT#p-2", SK: "RUBRO#1", Attrs: map[string]any{"rubro_id": "ingeniero"}}},
	}
	for _, r := range rows {
		if err := s.Put(ctx, r.table, r.rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestCLIModeFlagIsMandatory(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exit = %d", code)
	}
	if code := cli([]string{"-dryrun", "-apply"}, &stdout, &stderr); code != 2 {
		t.Fatalf("both modes accepted")
	}
}

func TestCLIDryRun(t *testing.T) {
	frontend, backend := writeSources(t)
	s := memstore.New()
	seedRows(t, s)
	hookBackends(t, s)
	outDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-dryrun", "-frontend", frontend, "-backend", backend, "-out", outDir}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "scanned 3: 0 updated, 2 planned, 1 already canonical") {
		t.Fatalf("stdout: %s", stdout.String())
	}
	rec, _, _ := s.Get(context.Background(), "finz_asignaciones", "PROJECT#p-1", "RUBRO#1")
	if rec.Str("rubro_id") != "mod-pm" {
		t.Fatalf("dry run mutated row: %+v", rec.Attrs)
	}
	if _, err := os.Stat(filepath.Join(outDir, "migration-report.json")); err != nil {
		t.Fatalf("report artifact: %v", err)
	}
}

func TestCLIApply(t *testing.T) {
	frontend, backend := writeSources(t)
	s := memstore.New()
	seedRows(t, s)
	hookBackends(t, s)
	outDir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-apply", "-frontend", frontend, "-backend", backend, "-out", outDir}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	ctx := context.Background()
	rec, _, _ := s.Get(ctx, "finz_asignaciones", "PROJECT#p-1", "RUBRO#1")
	if rec.Str("rubro_id") != "MOD-LEAD" || rec.Str("legacy_rubro_token") != "mod-pm" {
		t.Fatalf("row not migrated: %+v", rec.Attrs)
	}
	rec, _, _ = s.Get(ctx, "finz_proyecto_rubros", "PROJECT#p-2", "RUBRO#1")
	if rec.Str("rubro_id") != "MOD-ING" {
		t.Fatalf("second table not migrated: %+v", rec.Attrs)
	}
	if _, err := os.Stat(filepath.Join(outDir, "audit.db")); err != nil {
		t.Fatalf("audit ledger: %v", err)
	}
}

func TestCLIApplyFailuresExitNonzero(t *testing.T) {
	frontend, backend := writeSources(t)
	s := memstore.New()
	if err := s.Put(context.Background(), "finz_asignaciones", store.Record{
		PK: "PROJECT#p-9", SK: "RUBRO#1", Attrs: map[string]any{"rubro_id": "token-desconocido"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	hookBackends(t, s)

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-apply", "-table", "asignaciones", "-frontend", frontend, "-backend", backend, "-out", t.TempDir()}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit = %d, stdout: %s", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), "1 failures need follow-up") {
		t.Fatalf("stdout: %s", stdout.String())
	}
}

func TestCLIRequiresTableConfig(t *testing.T) {
	frontend, backend := writeSources(t)
	t.Setenv("TABLE_ASIGNACIONES", "")
	t.Setenv("FINZ_TABLE_ASIGNACIONES", "")
	t.Setenv("TABLE_PROYECTO_RUBROS", "")
	t.Setenv("FINZ_TABLE_PROYECTO_RUBROS", "")

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-dryrun", "-frontend", frontend, "-backend", backend, "-out", t.TempDir()}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stderr.String(), "not configured") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}
