// Command taxonomy-seed bootstraps the catalog table: canonical ids
// without a store record get a minimal row. First-time seeding only; it
// never reconciles drift on existing rows.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"finzops/internal/envcfg"
	"finzops/internal/seed"
	"finzops/internal/store"
	"finzops/internal/taxonomy"
)

var (
	exitFunc  = os.Exit
	openStore = store.Open
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("taxonomy-seed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		apply        bool
		frontendPath string
	)
	fs.BoolVar(&apply, "apply", false, "write missing records (default: list only)")
	fs.StringVar(&frontendPath, "frontend", "", "frontend catalog source (default: provider chain)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	summary, err := run(context.Background(), apply, frontendPath, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "seed failed: %v\n", err)
		fmt.Fprintln(stderr, "hint: set TABLE_RUBROS before seeding")
		return 1
	}
	fmt.Fprintf(stdout, "%d canonical ids: %d existing, %d created, %d planned, %d failed\n",
		summary.Canonical, summary.Existing, summary.Created, summary.Planned, summary.Failed)
	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func run(ctx context.Context, apply bool, frontendPath string, stdout io.Writer) (seed.Summary, error) {
	catalogPaths := taxonomy.DefaultCatalogPaths
	if frontendPath != "" {
		catalogPaths = []string{frontendPath}
	}
	catalog, _, err := taxonomy.LoadCatalog(catalogPaths, stdout)
	if err != nil {
		return seed.Summary{}, fmt.Errorf("load catalog: %w", err)
	}
	table, err := envcfg.TaxonomyTable(apply)
	if err != nil {
		return seed.Summary{}, err
	}
	st, err := openStore(ctx, envcfg.Region())
	if err != nil {
		return seed.Summary{}, fmt.Errorf("open store: %w", err)
	}
	return seed.Run(ctx, st, table, catalog, apply, stdout)
}
