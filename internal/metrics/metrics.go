// Package metrics provides Prometheus metrics for impactlens.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	SyncRunsTotal       *prometheus.CounterVec
	SyncTicketsTotal    *prometheus.CounterVec
	SyncDuration        prometheus.Histogram
	AnalysisTotal       *prometheus.CounterVec
	UpstreamCallsTotal  *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impactlens_sync_runs_total",
				Help: "Sync runs by final status.",
			},
			[]string{"status"},
		),
		SyncTicketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impactlens_sync_tickets_total",
				Help: "Tickets processed by sync, by outcome (new, updated, failed).",
			},
			[]string{"outcome"},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "impactlens_sync_duration_seconds",
				Help:    "Wall time of a sync run.",
				Buckets: prometheus.DefBuckets,
			},
		),
		AnalysisTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impactlens_analysis_total",
				Help: "Analysis operations by operation and outcome (ok, fallback).",
			},
			[]string{"operation", "outcome"},
		),
		UpstreamCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impactlens_upstream_calls_total",
				Help: "Calls to external services by service and result.",
			},
			[]string{"service", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "impactlens_http_requests_total",
				Help: "HTTP API requests by method, route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "impactlens_http_request_duration_seconds",
				Help:    "HTTP API request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		registry: reg,
	}

	reg.MustRegister(m.SyncRunsTotal)
	reg.MustRegister(m.SyncTicketsTotal)
	reg.MustRegister(m.SyncDuration)
	reg.MustRegister(m.AnalysisTotal)
	reg.MustRegister(m.UpstreamCallsTotal)
	reg.MustRegister(m.HTTPRequestsTotal)
	reg.MustRegister(m.HTTPRequestDuration)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (for testing).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSync records the outcome of one sync run.
func (m *Metrics) RecordSync(status string, added, updated, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(status).Inc()
	m.SyncTicketsTotal.WithLabelValues("new").Add(float64(added))
	m.SyncTicketsTotal.WithLabelValues("updated").Add(float64(updated))
	m.SyncTicketsTotal.WithLabelValues("failed").Add(float64(failed))
	m.SyncDuration.Observe(seconds)
}

// RecordAnalysis records whether an analysis operation decoded the model
// output or fell back.
func (m *Metrics) RecordAnalysis(operation string, fallback bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if fallback {
		outcome = "fallback"
	}
	m.AnalysisTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordUpstream records one call to an external service.
func (m *Metrics) RecordUpstream(service, result string) {
	if m == nil {
		return
	}
	m.UpstreamCallsTotal.WithLabelValues(service, result).Inc()
}

// ObserveHTTP records one served API request.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}
