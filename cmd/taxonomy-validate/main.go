// Command taxonomy-validate computes the drift between the canonical rubro
// sources and the persisted catalog table and writes the diff report JSON.
// Exit codes: 0 for a complete run (differences included), 2 for a fatal
// parse or scan error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"finzops/internal/diff"
	"finzops/internal/envcfg"
	"finzops/internal/report"
	"finzops/internal/store"
	"finzops/internal/taxonomy"
)

var (
	exitFunc  = os.Exit
	openStore = store.Open
)

// ReportName is the fixed artifact name consumed by taxonomy-remediate.
const ReportName = "diff-report.json"

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("taxonomy-validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		frontendPath string
		backendPath  string
		outDir       string
	)
	fs.StringVar(&frontendPath, "frontend", "", "frontend catalog source (default: provider chain)")
	fs.StringVar(&backendPath, "backend", "", "backend alias map source (default: provider chain)")
	fs.StringVar(&outDir, "out", envcfg.ReportDir(), "report directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	r, err := run(context.Background(), frontendPath, backendPath, outDir, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "validate failed: %v\n", err)
		fmt.Fprintln(stderr, hint(err))
		return 2
	}
	if r.Clean() {
		fmt.Fprintln(stdout, "Taxonomy store matches the canonical sources.")
	} else {
		fmt.Fprintf(stdout, "Drift detected: %d missing, %d extra, %d attribute mismatches.\n",
			r.Counts.MissingInStore, r.Counts.ExtraInStore, r.Counts.AttributeMismatches)
	}
	return 0
}

func run(ctx context.Context, frontendPath, backendPath, outDir string, stdout io.Writer) (diff.Report, error) {
	catalogPaths := taxonomy.DefaultCatalogPaths
	if frontendPath != "" {
		catalogPaths = []string{frontendPath}
	}
	aliasPaths := taxonomy.DefaultAliasPaths
	if backendPath != "" {
		aliasPaths = []string{backendPath}
	}

	// Canonical sources load before any store access: a partial canonical
	// view would corrupt the diff.
	catalog, _, err := taxonomy.LoadCatalog(catalogPaths, stdout)
	if err != nil {
		return diff.Report{}, fmt.Errorf("load catalog: %w", err)
	}
	aliases, _, err := taxonomy.LoadAliasMap(aliasPaths, stdout)
	if err != nil {
		return diff.Report{}, fmt.Errorf("load alias map: %w", err)
	}

	table, err := envcfg.TaxonomyTable(false)
	if err != nil {
		return diff.Report{}, err
	}
	st, err := openStore(ctx, envcfg.Region())
	if err != nil {
		return diff.Report{}, fmt.Errorf("open store: %w", err)
	}
	index, err := store.BuildIndex(ctx, st, table)
	if err != nil {
		return diff.Report{}, err
	}

	r := diff.Compute(catalog, aliases.IDs(), index, table)
	path, err := report.WriteJSON(outDir, ReportName, r)
	if err != nil {
		return diff.Report{}, err
	}
	fmt.Fprintf(stdout, "diff report written to %s\n", path)
	if _, err := report.WriteMetrics(outDir, "taxonomy_validate", map[string]float64{
		"finzops_validate_missing_in_store":      float64(r.Counts.MissingInStore),
		"finzops_validate_extra_in_store":        float64(r.Counts.ExtraInStore),
		"finzops_validate_attribute_mismatches":  float64(r.Counts.AttributeMismatches),
		"finzops_validate_backend_missing_front": float64(r.Counts.BackendMissingFrontend),
		"finzops_validate_frontend_missing_back": float64(r.Counts.FrontendMissingBackend),
	}); err != nil {
		fmt.Fprintf(stdout, "metrics: %v\n", err)
	}
	return r, nil
}

// hint maps a fatal error to the remediation step an operator should take.
func hint(err error) string {
	var perr *taxonomy.ParseError
	var serr *store.ScanError
	switch {
	case errors.As(err, &perr):
		return "hint: check the canonical source paths (-frontend/-backend) and their declarative shape"
	case errors.As(err, &serr):
		return "hint: verify TABLE_RUBROS, AWS_REGION, and your AWS credentials"
	default:
		return "hint: run with explicit -frontend/-backend paths and TABLE_RUBROS set"
	}
}
