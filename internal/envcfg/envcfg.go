// Package envcfg resolves tool configuration from process environment
// variables. Each setting has an ordered list of candidate keys; the first
// key holding a non-empty value wins. Read-only tools may fall back to a
// documented default, mutating tools must refuse to run without an explicit
// value.
package envcfg

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables recognized by the toolbox:
//
//	TABLE_RUBROS / FINZ_TABLE_RUBROS       taxonomy catalog table
//	TABLE_ASIGNACIONES / FINZ_TABLE_ASIGNACIONES   allocation table
//	TABLE_PROYECTO_RUBROS / FINZ_TABLE_PROYECTO_RUBROS  project-rubro table
//	AWS_REGION / FINZ_AWS_REGION           region (default us-east-2)
//	FINZOPS_REPORT_DIR                     report artifact directory (default ./reports)
//	FINZOPS_BACKUP_DRIVER                  fs|s3|memory (default fs)
//	FINZOPS_BACKUP_S3_BUCKET               bucket when driver=s3
//	FINZOPS_LEDGER_PATH                    sqlite audit ledger (default <report dir>/audit.db)

const (
	// DefaultTaxonomyTable is the read-only fallback for the catalog table.
	DefaultTaxonomyTable = "finz_rubros_taxonomia"
	// DefaultRegion matches the region the production tables live in.
	DefaultRegion = "us-east-2"
	// DefaultReportDir is where artifacts land unless overridden.
	DefaultReportDir = "./reports"
)

var (
	taxonomyTableKeys     = []string{"TABLE_RUBROS", "FINZ_TABLE_RUBROS"}
	allocationTableKeys   = []string{"TABLE_ASIGNACIONES", "FINZ_TABLE_ASIGNACIONES"}
	projectRubroTableKeys = []string{"TABLE_PROYECTO_RUBROS", "FINZ_TABLE_PROYECTO_RUBROS"}
	regionKeys            = []string{"AWS_REGION", "FINZ_AWS_REGION"}
)

// Lookup returns the first non-empty value among keys, trimmed, together
// with the key that supplied it.
func Lookup(keys ...string) (value, key string, ok bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v, k, true
		}
	}
	return "", "", false
}

// TaxonomyTable resolves the catalog table name. When require is false the
// documented default is used; when true an unset variable is an error so a
// mutating tool never writes to a guessed table.
func TaxonomyTable(require bool) (string, error) {
	if v, _, ok := Lookup(taxonomyTableKeys...); ok {
		return v, nil
	}
	if require {
		return "", fmt.Errorf("taxonomy table not configured: set %s before running a mutating tool", taxonomyTableKeys[0])
	}
	return DefaultTaxonomyTable, nil
}

// AllocationTable resolves the allocation table name. There is no default:
// the migration engine mutates this table.
func AllocationTable() (string, error) {
	if v, _, ok := Lookup(allocationTableKeys...); ok {
		return v, nil
	}
	return "", fmt.Errorf("allocation table not configured: set %s", allocationTableKeys[0])
}

// ProjectRubroTable resolves the project-rubro table name. No default.
func ProjectRubroTable() (string, error) {
	if v, _, ok := Lookup(projectRubroTableKeys...); ok {
		return v, nil
	}
	return "", fmt.Errorf("project-rubro table not configured: set %s", projectRubroTableKeys[0])
}

// Region resolves the AWS region with the documented fallback.
func Region() string {
	if v, _, ok := Lookup(regionKeys...); ok {
		return v
	}
	return DefaultRegion
}

// ReportDir resolves the artifact directory.
func ReportDir() string {
	if v, _, ok := Lookup("FINZOPS_REPORT_DIR"); ok {
		return v
	}
	return DefaultReportDir
}
