// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	staleDropped  *prometheus.CounterVec
	snapshotSize  *prometheus.GaugeVec
	exports       *prometheus.CounterVec
	alerts        *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_fetches_total",
			Help: "Upstream telemetry fetches by source and result.",
		}, []string{"source", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telemetry_fetch_duration_seconds",
			Help:    "Histogram of upstream telemetry fetch durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		staleDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_stale_snapshots_total",
			Help: "Snapshots discarded because a newer delivery superseded them.",
		}, []string{"sensor"}),
		snapshotSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telemetry_snapshot_records",
			Help: "Number of records in the current snapshot per sensor.",
		}, []string{"sensor"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exports_total",
			Help: "Spreadsheet exports by kind and result.",
		}, []string{"kind", "result"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_alerts_total",
			Help: "Status transitions into low or high by sensor.",
		}, []string{"sensor", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.fetches,
		m.fetchDuration,
		m.staleDropped,
		m.snapshotSize,
		m.exports,
		m.alerts,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveFetch records one upstream fetch.
func (m *Metrics) ObserveFetch(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(source, result).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// StaleDropped counts a snapshot rejected by the token guard.
func (m *Metrics) StaleDropped(sensor string) {
	if m == nil {
		return
	}
	m.staleDropped.WithLabelValues(sensor).Inc()
}

// SnapshotApplied records the size of an installed snapshot.
func (m *Metrics) SnapshotApplied(sensor string, records int) {
	if m == nil {
		return
	}
	m.snapshotSize.WithLabelValues(sensor).Set(float64(records))
}

// Export counts one export attempt.
func (m *Metrics) Export(kind, result string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(kind, result).Inc()
}

// Alert counts a status transition that triggered notifications.
func (m *Metrics) Alert(sensor, status string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(sensor, status).Inc()
}
