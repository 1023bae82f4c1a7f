// Package metrics exposes pipeline counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

const namespace = "databridge"

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	jobs        *prometheus.CounterVec
	records     *prometheus.CounterVec
	matches     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates and registers all collectors. Go runtime and process collectors
// are included when withRuntime is true.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_jobs_total",
			Help:      "Import jobs that reached a terminal status.",
		}, []string{"import_type", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_records_total",
			Help:      "Staging records by final processing status.",
		}, []string{"import_type", "outcome"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "address_match_attempts_total",
			Help:      "Address match attempts by the tier that decided them.",
		}, []string{"tier"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_job_duration_seconds",
			Help:      "Wall time from job start to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"import_type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route template and status code.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(m.jobs, m.records, m.matches, m.jobDuration, m.requests, m.latency)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// JobFinished counts a terminal job and observes its duration.
func (m *Metrics) JobFinished(importType models.ImportType, status models.JobStatus, elapsed time.Duration) {
	m.jobs.WithLabelValues(string(importType), string(status)).Inc()
	m.jobDuration.WithLabelValues(string(importType)).Observe(elapsed.Seconds())
}

// RecordFinished counts one record by its processing status.
func (m *Metrics) RecordFinished(importType models.ImportType, outcome models.ProcessingStatus) {
	m.records.WithLabelValues(string(importType), string(outcome)).Inc()
}

// MatchAttempted counts one address match attempt.
func (m *Metrics) MatchAttempted(tier string) {
	m.matches.WithLabelValues(tier).Inc()
}

// RequestServed counts one HTTP request and observes its latency. route is the
// matched route template so label cardinality stays bounded.
func (m *Metrics) RequestServed(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
