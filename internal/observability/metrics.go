// Package observability provides Prometheus metrics for tf-analyzer runs.
// Sentry-related error telemetry is handled in the telemetry package.
package observability

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Analysis *metrics.AnalysisMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	analysisMetrics, err := metrics.NewAnalysisMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Analysis: analysisMetrics,
	}, nil
}

// Registry returns the registry the collectors are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the text exposition format, for pickup
// by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	logger.Global().Module("metrics").Debug("metrics textfile written", logger.String("path", path))
	return nil
}
