package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := WriteJSON(dir, "diff-report.json", map[string]any{"counts": map[string]int{"missing_in_store": 2}})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Fatalf("artifact missing trailing newline")
	}

	// The next run overwrites the artifact in place.
	if _, err := WriteJSON(dir, "diff-report.json", map[string]any{"counts": map[string]int{}}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestWriteMetrics(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteMetrics(dir, "taxonomy-validate", map[string]float64{
		"finzops_taxonomy_validate_missing_in_store": 2,
		"finzops_taxonomy_validate_extra_in_store":   1,
	})
	if err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}
	if path != filepath.Join(dir, "metrics", "taxonomy-validate.prom") {
		t.Fatalf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "finzops_taxonomy_validate_missing_in_store 2") {
		t.Fatalf("exposition output:\n%s", out)
	}
}

func TestWriteMetricsRejectsInvalidName(t *testing.T) {
	if _, err := WriteMetrics(t.TempDir(), "x", map[string]float64{"not a metric name": 1}); err == nil {
		t.Fatalf("expected error for invalid metric name")
	}
}
