// Package telemetry exposes Prometheus instrumentation for sync runs, Graph
// calls and the HTTP surface. A nil *Metrics is valid and records nothing.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adsync"

// Metrics holds every collector the service records into.
type Metrics struct {
	registry *prometheus.Registry

	syncRuns        *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	entitiesWritten *prometheus.CounterVec
	leadsProcessed  *prometheus.CounterVec
	graphRequests   *prometheus.CounterVec
	graphThrottles  prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewMetrics registers every collector on reg. A nil reg gets a fresh
// registry including the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync runs by type and outcome.",
		}, []string{"type", "status"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of sync runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"type"}),
		entitiesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_written_total",
			Help:      "Rows upserted or replaced, by entity.",
		}, []string{"entity"}),
		leadsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_processed_total",
			Help:      "Leads seen by lead sync and webhook, by outcome.",
		}, []string{"source", "outcome"}),
		graphRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_requests_total",
			Help:      "Graph API requests by HTTP status code.",
		}, []string{"code"}),
		graphThrottles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_throttled_total",
			Help:      "Graph API responses classified as rate limited.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Read cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		m.syncRuns, m.syncDuration, m.entitiesWritten, m.leadsProcessed,
		m.graphRequests, m.graphThrottles, m.cacheLookups, m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSync records one finished run.
func (m *Metrics) ObserveSync(syncType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(syncType, status).Inc()
	m.syncDuration.WithLabelValues(syncType).Observe(elapsed.Seconds())
}

func (m *Metrics) AddEntities(entity string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.entitiesWritten.WithLabelValues(entity).Add(float64(n))
}

func (m *Metrics) AddLeads(source, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.leadsProcessed.WithLabelValues(source, outcome).Add(float64(n))
}

// ObserveGraphResponse counts one Graph response.
func (m *Metrics) ObserveGraphResponse(statusCode int, throttled bool) {
	if m == nil {
		return
	}
	m.graphRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	if throttled {
		m.graphThrottles.Inc()
	}
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) ObserveHTTP(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
