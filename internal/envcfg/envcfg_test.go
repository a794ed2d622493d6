package envcfg

import "testing"

func clearTableEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TABLE_RUBROS", "FINZ_TABLE_RUBROS",
		"TABLE_ASIGNACIONES", "FINZ_TABLE_ASIGNACIONES",
		"TABLE_PROYECTO_RUBROS", "FINZ_TABLE_PROYECTO_RUBROS",
		"AWS_REGION", "FINZ_AWS_REGION", "FINZOPS_REPORT_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestTaxonomyTableDefaultVsRequired(t *testing.T) {
	clearTableEnv(t)

	got, err := TaxonomyTable(false)
	if err != nil || got != DefaultTaxonomyTable {
		t.Fatalf("read-only resolve = %q, %v", got, err)
	}
	if _, err := TaxonomyTable(true); err == nil {
		t.Fatalf("mutating resolve must fail without an explicit table")
	}

	t.Setenv("TABLE_RUBROS", "finz_rubros_staging")
	got, err = TaxonomyTable(true)
	if err != nil || got != "finz_rubros_staging" {
		t.Fatalf("resolve = %q, %v", got, err)
	}
}

func TestLookupOrderAndTrim(t *testing.T) {
	clearTableEnv(t)
	t.Setenv("FINZ_TABLE_RUBROS", "fallback")
	t.Setenv("TABLE_RUBROS", "  primary  ")

	v, key, ok := Lookup("TABLE_RUBROS", "FINZ_TABLE_RUBROS")
	if !ok || v != "primary" || key != "TABLE_RUBROS" {
		t.Fatalf("Lookup = %q, %q, %v", v, key, ok)
	}

	t.Setenv("TABLE_RUBROS", "   ")
	v, key, ok = Lookup("TABLE_RUBROS", "FINZ_TABLE_RUBROS")
	if !ok || v != "fallback" || key != "FINZ_TABLE_RUBROS" {
		t.Fatalf("Lookup fallback = %q, %q, %v", v, key, ok)
	}
}

func TestMutatingTablesHaveNoDefault(t *testing.T) {
	clearTableEnv(t)
	if _, err := AllocationTable(); err == nil {
		t.Fatalf("allocation table resolved without env")
	}
	if _, err := ProjectRubroTable(); err == nil {
		t.Fatalf("project-rubro table resolved without env")
	}
	t.Setenv("TABLE_ASIGNACIONES", "finz_asignaciones")
	if got, err := AllocationTable(); err != nil || got != "finz_asignaciones" {
		t.Fatalf("resolve = %q, %v", got, err)
	}
}

func TestRegionAndReportDirDefaults(t *testing.T) {
	clearTableEnv(t)
	if got := Region(); got != DefaultRegion {
		t.Fatalf("region = %q", got)
	}
	t.Setenv("FINZ_AWS_REGION", "us-west-1")
	if got := Region(); got != "us-west-1" {
		t.Fatalf("region = %q", got)
	}
	if got := ReportDir(); got != DefaultReportDir {
		t.Fatalf("report dir = %q", got)
	}
	t.Setenv("FINZOPS_REPORT_DIR", "/tmp/run")
	if got := ReportDir(); got != "/tmp/run" {
		t.Fatalf("report dir = %q", got)
	}
}
