package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meteo_rt"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// generation service.
type Metrics struct {
	Generations        *prometheus.CounterVec // labels: kind={auto,manual_refresh}, outcome={success,enrich_error,persist_error}
	GenerationInFlight prometheus.Gauge

	// Enrichment metrics.
	EnrichmentRequests *prometheus.CounterVec // labels: outcome={success,api_error,parse_error,error}
	EnrichmentDuration prometheus.Histogram

	// History store metrics.
	HistoryUpdates prometheus.Counter
	HistorySize    prometheus.Gauge
	PersistErrors  prometheus.Counter

	// Event fan-out metrics.
	EventsPublished *prometheus.CounterVec // labels: outcome={success,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generate and refresh operations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		GenerationInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_in_flight",
			Help:      "1 while a generation is running, 0 when idle.",
		}),
		EnrichmentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_requests_total",
			Help:      "Gemini enrichment requests by outcome.",
		}, []string{"outcome"}),
		EnrichmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "Gemini enrichment request duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		HistoryUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_updates_total",
			Help:      "History snapshots received from the store feed.",
		}),
		HistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Number of records in the latest history snapshot.",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Records that could not be appended to the history store.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Generation events written to Kafka by outcome.",
		}, []string{"outcome"}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.Generations,
		m.GenerationInFlight,
		m.EnrichmentRequests,
		m.EnrichmentDuration,
		m.HistoryUpdates,
		m.HistorySize,
		m.PersistErrors,
		m.EventsPublished,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
