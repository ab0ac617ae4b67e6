package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "event_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk service.
type Metrics struct {
	// Case data ingestion.
	FetchAttempts *prometheus.CounterVec // labels: format={csv,json,unknown}, outcome={success,error}
	FetchDuration prometheus.Histogram
	CacheLookups  *prometheus.CounterVec // labels: slot={cases,geometry}, result={hit,miss}

	// Data quality.
	JoinMismatches      *prometheus.CounterVec // labels: source={cases,population,geometry,estimates}
	PrevalenceExceeding prometheus.Counter

	// Latest figures.
	DistrictIncidence *prometheus.GaugeVec // labels: district
	CityIncidence     prometheus.Gauge

	// Publisher.
	MessagesProduced prometheus.Counter
	PublishErrors    prometheus.Counter
	PublisherRunning prometheus.Gauge

	// HTTP API.
	APIRequests *prometheus.CounterVec // labels: route, status
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "case_fetch_attempts_total",
			Help:      "Case data fetch attempts by payload format and outcome.",
		}, []string{"format", "outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "case_fetch_duration_seconds",
			Help:      "Duration of a single case data fetch attempt.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by slot and result.",
		}, []string{"slot", "result"}),
		JoinMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_mismatch_total",
			Help:      "District keys that matched no district, by source.",
		}, []string{"source"}),
		PrevalenceExceeding: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prevalence_exceeding_one_total",
			Help:      "District estimates whose prevalence came out above 1.",
		}),
		DistrictIncidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "district_incidence_per_100k",
			Help:      "Latest 7-day incidence per 100,000 residents.",
		}, []string{"district"}),
		CityIncidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "city_incidence_per_100k",
			Help:      "Latest city-wide 7-day incidence per 100,000 residents.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total incidence messages written to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed publish cycles.",
		}),
		PublisherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publisher_running",
			Help:      "1 when the publisher loop is active, 0 when shut down.",
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by route and response status.",
		}, []string{"route", "status"}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.CacheLookups,
		m.JoinMismatches,
		m.PrevalenceExceeding,
		m.DistrictIncidence,
		m.CityIncidence,
		m.MessagesProduced,
		m.PublishErrors,
		m.PublisherRunning,
		m.APIRequests,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// NewUnregisteredMetrics creates Metrics that are never exposed, for one-shot
// commands that reuse the service adapters.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

// CacheObserver returns a hook that counts lookups against the named slot.
func (m *Metrics) CacheObserver(slot string) func(hit bool) {
	return func(hit bool) {
		result := "miss"
		if hit {
			result = "hit"
		}
		m.CacheLookups.WithLabelValues(slot, result).Inc()
	}
}
