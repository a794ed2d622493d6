// Command rubro-migrate canonicalizes the rubro references held by
// allocation and project-rubro records, preserving each record's original
// token in a provenance field. Exit codes: 0 on dry-run or a clean apply,
// 1 when an apply run ends with failures, 2 for fatal setup errors.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"finzops/internal/backup"
	"finzops/internal/envcfg"
	"finzops/internal/ledger"
	"finzops/internal/migrate"
	"finzops/internal/report"
	"finzops/internal/store"
	"finzops/internal/taxonomy"
)

var (
	exitFunc  = os.Exit
	openStore = store.Open
	openSink  = backup.Open
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rubro-migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dryrun       bool
		apply        bool
		batch        int
		tableFilter  string
		frontendPath string
		backendPath  string
		outDir       string
	)
	fs.BoolVar(&dryrun, "dryrun", false, "report what would change without writing")
	fs.BoolVar(&apply, "apply", false, "write canonicalized references")
	fs.IntVar(&batch, "batch", migrate.DefaultBatchSize, "writes per batch before the fixed pause")
	fs.StringVar(&tableFilter, "table", "", "migrate only this table (default: all configured)")
	fs.StringVar(&frontendPath, "frontend", "", "frontend catalog source (default: provider chain)")
	fs.StringVar(&backendPath, "backend", "", "backend alias map source (default: provider chain)")
	fs.StringVar(&outDir, "out", envcfg.ReportDir(), "report directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if dryrun == apply {
		fmt.Fprintln(stderr, "exactly one of -dryrun or -apply is required")
		return 2
	}

	rep, err := run(context.Background(), apply, batch, tableFilter, frontendPath, backendPath, outDir, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "migrate failed: %v\n", err)
		fmt.Fprintln(stderr, "hint: set TABLE_ASIGNACIONES and TABLE_PROYECTO_RUBROS; back up before -apply")
		return 2
	}
	s := rep.Summary
	fmt.Fprintf(stdout, "scanned %d: %d updated, %d planned, %d already canonical, %d without mapping, %d write failures\n",
		s.Scanned, s.Updated, s.Planned, s.AlreadyCanonical, s.NoMapping, s.WriteFailures)
	if apply && s.Failures > 0 {
		fmt.Fprintf(stdout, "%d failures need follow-up\n", s.Failures)
		return 1
	}
	return 0
}

func run(ctx context.Context, apply bool, batch int, tableFilter, frontendPath, backendPath, outDir string, stdout io.Writer) (migrate.Report, error) {
	catalogPaths := taxonomy.DefaultCatalogPaths
	if frontendPath != "" {
		catalogPaths = []string{frontendPath}
	}
	aliasPaths := taxonomy.DefaultAliasPaths
	if backendPath != "" {
		aliasPaths = []string{backendPath}
	}
	catalog, _, err := taxonomy.LoadCatalog(catalogPaths, stdout)
	if err != nil {
		return migrate.Report{}, fmt.Errorf("load catalog: %w", err)
	}
	aliases, _, err := taxonomy.LoadAliasMap(aliasPaths, stdout)
	if err != nil {
		return migrate.Report{}, fmt.Errorf("load alias map: %w", err)
	}
	canon := taxonomy.NewCanonicalizer(catalog, aliases)

	tables, err := resolveTables(tableFilter)
	if err != nil {
		return migrate.Report{}, err
	}

	st, err := openStore(ctx, envcfg.Region())
	if err != nil {
		return migrate.Report{}, fmt.Errorf("open store: %w", err)
	}
	cfg := migrate.Config{
		Store:        st,
		Tables:       tables,
		Canonicalize: canon.Canonicalize,
		Apply:        apply,
		BatchSize:    batch,
		RunID:        time.Now().UTC().Format("20060102T150405Z"),
		Out:          stdout,
	}
	if apply {
		sink, serr := openSink(ctx, envcfg.Region(), outDir)
		if serr != nil {
			return migrate.Report{}, fmt.Errorf("open backup sink: %w", serr)
		}
		cfg.Sink = sink
		path, _, _ := envcfg.Lookup("FINZOPS_LEDGER_PATH")
		if path == "" {
			path = filepath.Join(outDir, "audit.db")
		}
		led, lerr := ledger.Open(path)
		if lerr != nil {
			return migrate.Report{}, fmt.Errorf("open ledger: %w", lerr)
		}
		defer func() { _ = led.Close() }()
		cfg.Ledger = led
	}

	rep, err := migrate.Run(ctx, cfg)
	if err != nil {
		return migrate.Report{}, err
	}
	if path, werr := report.WriteJSON(outDir, "migration-report.json", rep); werr != nil {
		fmt.Fprintf(stdout, "migration report: %v\n", werr)
	} else {
		fmt.Fprintf(stdout, "migration report written to %s\n", path)
	}
	if _, merr := report.WriteMetrics(outDir, "rubro_migrate", map[string]float64{
		"finzops_migrate_scanned":           float64(rep.Summary.Scanned),
		"finzops_migrate_updated":           float64(rep.Summary.Updated),
		"finzops_migrate_planned":           float64(rep.Summary.Planned),
		"finzops_migrate_already_canonical": float64(rep.Summary.AlreadyCanonical),
		"finzops_migrate_no_mapping":        float64(rep.Summary.NoMapping),
		"finzops_migrate_write_failures":    float64(rep.Summary.WriteFailures),
	}); merr != nil {
		fmt.Fprintf(stdout, "metrics: %v\n", merr)
	}
	return rep, nil
}

// resolveTables maps the -table filter to the configured table names. Both
// referencing tables must be configured explicitly; there are no silent
// defaults for tables this tool mutates.
func resolveTables(filter string) ([]string, error) {
	alloc, allocErr := envcfg.AllocationTable()
	project, projectErr := envcfg.ProjectRubroTable()
	switch filter {
	case "":
		if allocErr != nil {
			return nil, allocErr
		}
		if projectErr != nil {
			return nil, projectErr
		}
		return []string{alloc, project}, nil
	case "asignaciones":
		if allocErr != nil {
			return nil, allocErr
		}
		return []string{alloc}, nil
	case "proyecto_rubros":
		if projectErr != nil {
			return nil, projectErr
		}
		return []string{project}, nil
	default:
		// An explicit table name is taken as-is.
		return []string{filter}, nil
	}
}
