package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for directory resolution.
type Metrics struct {
	// Directory references answered from the cache, by pass
	CacheHits *prometheus.CounterVec

	// Distinct identifiers missing before refresh
	CacheMisses prometheus.Counter

	// Refresh latency by provider
	RefreshLatency *prometheus.HistogramVec

	// Refresh outcomes by provider and result
	RefreshOutcome *prometheus.CounterVec

	// References left unresolved after apply
	Unresolved prometheus.Gauge
}

// New registers the directory metrics on reg. A nil reg yields unregistered
// collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailanon_directory_cache_hits_total",
			Help: "Directory references found in the resolution cache",
		}, []string{"pass"}), // pass: "collect", "apply"

		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailanon_directory_cache_misses_total",
			Help: "Distinct directory identifiers queued for refresh",
		}),

		RefreshLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailanon_directory_refresh_duration_seconds",
			Help:    "Duration of the batched directory refresh call",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"provider"}),

		RefreshOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailanon_directory_refresh_total",
			Help: "Directory refresh calls by provider and outcome",
		}, []string{"provider", "outcome"}), // outcome: "ok" or an error category

		Unresolved: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mailanon_directory_unresolved_references",
			Help: "Directory references passed through unresolved",
		}),
	}
}

func (m *Metrics) IncCacheHit(pass string) {
	if m != nil {
		m.CacheHits.WithLabelValues(pass).Inc()
	}
}

func (m *Metrics) AddCacheMisses(n int) {
	if m != nil {
		m.CacheMisses.Add(float64(n))
	}
}

// ObserveRefresh records one refresh call.
func (m *Metrics) ObserveRefresh(provider, outcome string, d time.Duration) {
	if m != nil {
		m.RefreshLatency.WithLabelValues(provider).Observe(d.Seconds())
		m.RefreshOutcome.WithLabelValues(provider, outcome).Inc()
	}
}

func (m *Metrics) SetUnresolved(n int) {
	if m != nil {
		m.Unresolved.Set(float64(n))
	}
}
