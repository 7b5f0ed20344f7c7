// Package metrics provides Prometheus metrics for portalql
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for portalql.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
type Metrics struct {
	// Compiler metrics
	CompilesTotal   *prometheus.CounterVec
	CompileDuration *prometheus.HistogramVec

	// Search engine metrics
	SearchRequestsTotal   *prometheus.CounterVec
	SearchRequestDuration *prometheus.HistogramVec
	ScrollBatchesTotal    prometheus.Counter
	HarvestedTotal        prometheus.Counter

	// Lookup metrics
	LookupWritesTotal *prometheus.CounterVec

	// Facet metrics
	BaselineCacheTotal *prometheus.CounterVec

	// Entity set metrics
	EntitySetsTotal *prometheus.CounterVec
}

// New creates all metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.CompilesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalql_compiles_total",
			Help: "Total number of compiled PQL statements",
		},
		[]string{"entity", "status"},
	)

	m.CompileDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portalql_compile_duration_seconds",
			Help:    "Duration of PQL compilation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		},
		[]string{"entity"},
	)

	m.SearchRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalql_search_requests_total",
			Help: "Total number of search engine round trips",
		},
		[]string{"operation", "status"},
	)

	m.SearchRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portalql_search_request_duration_seconds",
			Help:    "Duration of search engine round trips in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.ScrollBatchesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "portalql_scroll_batches_total",
			Help: "Total number of scroll batches fetched",
		},
	)

	m.HarvestedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "portalql_harvested_values_total",
			Help: "Total number of values collected by scroll harvests",
		},
	)

	m.LookupWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalql_lookup_writes_total",
			Help: "Total number of terms-lookup document writes",
		},
		[]string{"lookup_type", "status"},
	)

	m.BaselineCacheTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalql_baseline_cache_total",
			Help: "Phenotype baseline cache lookups",
		},
		[]string{"result"},
	)

	m.EntitySetsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portalql_entity_sets_total",
			Help: "Total number of materialized entity sets",
		},
		[]string{"entity", "status"},
	)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCompile records one compilation.
func (m *Metrics) ObserveCompile(entity string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CompilesTotal.WithLabelValues(entity, status(err)).Inc()
	m.CompileDuration.WithLabelValues(entity).Observe(d.Seconds())
}

// ObserveSearch records one search engine round trip.
func (m *Metrics) ObserveSearch(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.WithLabelValues(operation, status(err)).Inc()
	m.SearchRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveScrollBatch records one scroll page of n values.
func (m *Metrics) ObserveScrollBatch(n int) {
	if m == nil {
		return
	}
	m.ScrollBatchesTotal.Inc()
	m.HarvestedTotal.Add(float64(n))
}

// ObserveLookupWrite records one lookup document write.
func (m *Metrics) ObserveLookupWrite(lookupType string, err error) {
	if m == nil {
		return
	}
	m.LookupWritesTotal.WithLabelValues(lookupType, status(err)).Inc()
}

// ObserveBaseline records a baseline cache hit or miss.
func (m *Metrics) ObserveBaseline(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.BaselineCacheTotal.WithLabelValues(result).Inc()
}

// ObserveEntitySet records one entity set materialization.
func (m *Metrics) ObserveEntitySet(entity string, err error) {
	if m == nil {
		return
	}
	m.EntitySetsTotal.WithLabelValues(entity, status(err)).Inc()
}
