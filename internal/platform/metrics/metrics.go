package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run-level counters of a mailanon invocation. A batch run
// has no scrape endpoint, so the registry is exported to a textfile at exit.
type Metrics struct {
	registry *prometheus.Registry

	RowsRead      *prometheus.CounterVec
	RowsSkipped   *prometheus.CounterVec
	OutputRows    prometheus.Counter
	Addresses     prometheus.Gauge
	EntryFailures prometheus.Counter
	RunDuration   *prometheus.HistogramVec
}

// New creates and registers all run metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RowsRead: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailanon_rows_read_total",
			Help: "Input rows read by stage",
		}, []string{"stage"}),
		RowsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailanon_rows_skipped_total",
			Help: "Input rows skipped by stage and reason",
		}, []string{"stage", "reason"}),
		OutputRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailanon_output_rows_total",
			Help: "Anonymized rows written",
		}),
		Addresses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mailanon_mapped_addresses",
			Help: "Distinct canonical addresses in the identity mapping",
		}),
		EntryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailanon_address_entry_failures_total",
			Help: "Address entries dropped because they could not be decoded",
		}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailanon_run_duration_seconds",
			Help:    "Duration of a run by stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
	}
}

// Registry exposes the registry so other modules can register their
// collectors next to the run metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncRowsRead counts one input row.
func (m *Metrics) IncRowsRead(stage string) {
	if m != nil {
		m.RowsRead.WithLabelValues(stage).Inc()
	}
}

// IncRowsSkipped counts one skipped input row.
func (m *Metrics) IncRowsSkipped(stage, reason string) {
	if m != nil {
		m.RowsSkipped.WithLabelValues(stage, reason).Inc()
	}
}

// AddOutputRows counts written anonymized rows.
func (m *Metrics) AddOutputRows(n int) {
	if m != nil {
		m.OutputRows.Add(float64(n))
	}
}

// SetAddresses records the final mapping size.
func (m *Metrics) SetAddresses(n int) {
	if m != nil {
		m.Addresses.Set(float64(n))
	}
}

// AddEntryFailures counts dropped address entries.
func (m *Metrics) AddEntryFailures(n int) {
	if m != nil {
		m.EntryFailures.Add(float64(n))
	}
}

// ObserveRun records a stage duration in seconds.
func (m *Metrics) ObserveRun(stage string, seconds float64) {
	if m != nil {
		m.RunDuration.WithLabelValues(stage).Observe(seconds)
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
