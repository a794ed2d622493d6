package migrate

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"finzops/internal/backup"
	"finzops/internal/infra/memstore"
	"finzops/internal/store"
	"finzops/internal/taxonomy"
)

func testCanonicalizer() func(string) (string, bool) {
	catalog := taxonomy.NewCatalog([]taxonomy.Entry{
		{ID: "MOD-ING", Descripcion: "Ingenieros"},
		{ID: "MOD-LEAD", Descripcion: "Lider tecnico"},
	})
	aliases := taxonomy.NewAliasMap(map[string]string{"mod-pm": "MOD-LEAD", "ingeniero": "MOD-ING"}, nil)
	return taxonomy.NewCanonicalizer(catalog, aliases).Canonicalize
}

func seedAllocations(t *testing.T, s *memstore.Store, table string) {
	t.Helper()
	ctx := context.Background()
	rows := []store.Record{
		{PK: "PROJECT#p-1", SK: "RUBRO#1", Attrs: map[string]any{"rubro_id": "mod-pm", "monto": "1200"}},
		{PK: "PROJECT#p-1", SK: "RUBRO#2", Attrs: map[string]any{"rubro_id": "MOD-ING", "monto": "800"}},
		{PK: "PROJECT#p-2", SK: "RUBRO#1", Attrs: map[string]any{"rubro_id": "tal-vez-algo", "monto": "50"}},
		{PK: "PROJECT#p-2", SK: "METADATA", Attrs: map[string]any{"nombre": "sin rubro"}},
	}
	for _, r := range rows {
		if err := s.Put(ctx, table, r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func baseConfig(s *memstore.Store, apply bool) Config {
	return Config{
		Store:        s,
		Tables:       []string{"finz_asignaciones"},
		Canonicalize: testCanonicalizer(),
		Apply:        apply,
		Sink:         backup.NewMemory(),
		RunID:        "run-test",
		Out:          &bytes.Buffer{},
		Sleep:        func(time.Duration) {},
	}
}

func TestDryRunClassifiesWithoutWriting(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedAllocations(t, s, "finz_asignaciones")

	report, err := Run(ctx, baseConfig(s, false))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sum := report.Summary
	if sum.Scanned != 4 || sum.Planned != 1 || sum.AlreadyCanonical != 1 || sum.NoMapping != 1 || sum.NoField != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Updated != 0 {
		t.Fatalf("dry run updated records: %+v", sum)
	}
	rec, _, _ := s.Get(ctx, "finz_asignaciones", "PROJECT#p-1", "RUBRO#1")
	if rec.Str("rubro_id") != "mod-pm" {
		t.Fatalf("dry run mutated row: %+v", rec.Attrs)
	}
	if report.Mode != "dryrun" || sum.Failures != 1 {
		t.Fatalf("report = %+v", report.Summary)
	}
}

func TestApplyCanonicalizesAndRecordsProvenance(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedAllocations(t, s, "finz_asignaciones")

	report, err := Run(ctx, baseConfig(s, true))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.Updated != 1 || report.Summary.NoMapping != 1 {
		t.Fatalf("summary = %+v", report.Summary)
	}

	rec, _, _ := s.Get(ctx, "finz_asignaciones", "PROJECT#p-1", "RUBRO#1")
	if rec.Str("rubro_id") != "MOD-LEAD" || rec.Str("canonical_rubro_id") != "MOD-LEAD" {
		t.Fatalf("row not canonicalized: %+v", rec.Attrs)
	}
	if rec.Str("legacy_rubro_token") != "mod-pm" {
		t.Fatalf("provenance missing: %+v", rec.Attrs)
	}
	if rec.Str("monto") != "1200" {
		t.Fatalf("unrelated attribute lost: %+v", rec.Attrs)
	}
	// The unmappable token is never guessed.
	stray, _, _ := s.Get(ctx, "finz_asignaciones", "PROJECT#p-2", "RUBRO#1")
	if stray.Str("rubro_id") != "tal-vez-algo" {
		t.Fatalf("unmappable token was rewritten: %+v", stray.Attrs)
	}
}

func TestRerunPreservesOriginalProvenance(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedAllocations(t, s, "finz_asignaciones")

	if _, err := Run(ctx, baseConfig(s, true)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Drift the id back to a different legacy token, then re-run.
	if err := s.Update(ctx, "finz_asignaciones", "PROJECT#p-1", "RUBRO#1",
		map[string]any{"rubro_id": "ingeniero"}, nil); err != nil {
		t.Fatalf("drift: %v", err)
	}
	if _, err := Run(ctx, baseConfig(s, true)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	rec, _, _ := s.Get(ctx, "finz_asignaciones", "PROJECT#p-1", "RUBRO#1")
	if rec.Str("rubro_id") != "MOD-ING" {
		t.Fatalf("second run did not canonicalize: %+v", rec.Attrs)
	}
	// First write wins: the original token survives the re-run.
	if rec.Str("legacy_rubro_token") != "mod-pm" {
		t.Fatalf("provenance clobbered: %+v", rec.Attrs)
	}
}

func TestBatchPauseBetweenBatches(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	for i := 0; i < 7; i++ {
		rec := store.Record{PK: "PROJECT#p", SK: string(rune('A' + i)), Attrs: map[string]any{"rubro_id": "mod-pm"}}
		if err := s.Put(ctx, "finz_asignaciones", rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	cfg := baseConfig(s, true)
	cfg.BatchSize = 3
	var pauses []time.Duration
	cfg.Sleep = func(d time.Duration) { pauses = append(pauses, d) }
	cfg.Pause = 42 * time.Millisecond

	report, err := Run(ctx, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.Updated != 7 {
		t.Fatalf("summary = %+v", report.Summary)
	}
	// 7 staged updates in batches of 3: pauses after items 3 and 6.
	if len(pauses) != 2 || pauses[0] != 42*time.Millisecond {
		t.Fatalf("pauses = %v", pauses)
	}
}

func TestWriteFailureCountsAndContinues(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedAllocations(t, s, "finz_asignaciones")
	cfg := baseConfig(s, true)
	// Scan passes; the single staged update fails.
	s.FailNext = errors.New("conditional check failed")
	s.FailAfter = 1

	report, err := Run(ctx, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.WriteFailures != 1 || report.Summary.Failures != 2 {
		t.Fatalf("summary = %+v", report.Summary)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("failures = %+v", report.Failures)
	}
}

func TestScanFailureAborts(t *testing.T) {
	s := memstore.New()
	seedAllocations(t, s, "finz_asignaciones")
	s.FailNext = errors.New("throughput exceeded")

	_, err := Run(context.Background(), baseConfig(s, false))
	var serr *store.ScanError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *ScanError, got %v", err)
	}
}

func TestMultipleTables(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedAllocations(t, s, "finz_asignaciones")
	if err := s.Put(ctx, "finz_proyecto_rubros", store.Record{
		PK: "PROJECT#p-9", SK: "RUBRO#1", Attrs: map[string]any{"rubro_id": "ingeniero"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg := baseConfig(s, true)
	cfg.Tables = []string{"finz_asignaciones", "finz_proyecto_rubros"}

	report, err := Run(ctx, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Summary.Scanned != 5 || report.Summary.Updated != 2 {
		t.Fatalf("summary = %+v", report.Summary)
	}
	rec, _, _ := s.Get(ctx, "finz_proyecto_rubros", "PROJECT#p-9", "RUBRO#1")
	if rec.Str("rubro_id") != "MOD-ING" {
		t.Fatalf("second table not migrated: %+v", rec.Attrs)
	}
}
