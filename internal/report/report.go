// Package report writes the run artifacts: JSON documents for humans and
// replay, and a Prometheus textfile snapshot so batch runs surface in
// monitoring via the node-exporter textfile collector.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"
)

// WriteJSON marshals v indented into dir/name and returns the full path.
// Reports are per-run artifacts and overwrite the previous run's file.
func WriteJSON(dir, name string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

// WriteMetrics snapshots the run counters into dir/metrics/<tool>.prom in
// Prometheus exposition format. Gauge names must be valid legacy metric
// names (finzops_<tool>_<counter>); the textfile collector predates UTF-8
// names.
func WriteMetrics(dir, tool string, counters map[string]float64) (string, error) {
	registry := prometheus.NewRegistry()
	for name, value := range counters {
		if !model.IsValidLegacyMetricName(name) {
			return "", fmt.Errorf("invalid metric name %q", name)
		}
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name,
			Help: "finzops batch run counter.",
		})
		g.Set(value)
		if err := registry.Register(g); err != nil {
			return "", fmt.Errorf("register %s: %w", name, err)
		}
	}
	metricsDir := filepath.Join(dir, "metrics")
	if err := os.MkdirAll(metricsDir, 0o755); err != nil {
		return "", fmt.Errorf("create metrics dir: %w", err)
	}
	path := filepath.Join(metricsDir, tool+".prom")
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return "", fmt.Errorf("write metrics: %w", err)
	}
	return path, nil
}
