// Package metrics provides the Prometheus collectors of tf-analyzer.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collaborator call outcomes
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// AnalysisMetrics contains all Prometheus metrics of the entry pipeline.
type AnalysisMetrics struct {
	EntriesTotal        *prometheus.CounterVec
	RegionsTotal        *prometheus.CounterVec
	CollaboratorCalls   *prometheus.CounterVec
	EntryDuration       prometheus.Histogram
	CollaboratorLatency *prometheus.HistogramVec
	SinkOperations      *prometheus.CounterVec
}

// NewAnalysisMetrics creates the pipeline metrics and registers them with registry.
func NewAnalysisMetrics(registry *prometheus.Registry) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return m, nil
}

func (m *AnalysisMetrics) initMetrics() {
	m.EntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfa_entries_total",
			Help: "Total number of analyzed entries partitioned by terminal status.",
		},
		[]string{"status"},
	)

	m.RegionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfa_regions_total",
			Help: "Total number of regions present after each pipeline stage.",
		},
		[]string{"stage"},
	)

	m.CollaboratorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfa_collaborator_calls_total",
			Help: "Total number of external collaborator calls by outcome.",
		},
		[]string{"collaborator", "status"},
	)

	m.EntryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tfa_entry_duration_seconds",
			Help:    "Time taken to analyze one entry",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	m.CollaboratorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tfa_collaborator_duration_seconds",
			Help:    "Time taken by external collaborator calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"collaborator"},
	)

	m.SinkOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tfa_sink_operations_total",
			Help: "Total number of result sink operations (database, mirror, mqtt, notify) by outcome.",
		},
		[]string{"sink", "status"},
	)
}

// RecordEntry records the terminal status and duration of one entry
func (m *AnalysisMetrics) RecordEntry(status string, d time.Duration) {
	m.EntriesTotal.WithLabelValues(status).Inc()
	m.EntryDuration.Observe(d.Seconds())
}

// RecordRegions adds n regions to the count of a pipeline stage
func (m *AnalysisMetrics) RecordRegions(stage string, n int) {
	m.RegionsTotal.WithLabelValues(stage).Add(float64(n))
}

// RecordCollaborator records one collaborator call
func (m *AnalysisMetrics) RecordCollaborator(name, status string, d time.Duration) {
	m.CollaboratorCalls.WithLabelValues(name, status).Inc()
	m.CollaboratorLatency.WithLabelValues(name).Observe(d.Seconds())
}

// RecordSink records one result sink operation
func (m *AnalysisMetrics) RecordSink(sink string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.SinkOperations.WithLabelValues(sink, status).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.EntriesTotal.Describe(ch)
	m.RegionsTotal.Describe(ch)
	m.CollaboratorCalls.Describe(ch)
	ch <- m.EntryDuration.Desc()
	m.CollaboratorLatency.Describe(ch)
	m.SinkOperations.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.EntriesTotal.Collect(ch)
	m.RegionsTotal.Collect(ch)
	m.CollaboratorCalls.Collect(ch)
	ch <- m.EntryDuration
	m.CollaboratorLatency.Collect(ch)
	m.SinkOperations.Collect(ch)
}
