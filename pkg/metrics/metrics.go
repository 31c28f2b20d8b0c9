// Package metrics defines the Prometheus metric collectors used by both
// services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	EventsPublishedTotal *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
	EventRetriesTotal    *prometheus.CounterVec
	DeadLettersTotal     *prometheus.CounterVec
	HandlerDuration      *prometheus.HistogramVec
	ViewCacheHitsTotal   prometheus.Counter
	ViewCacheMissesTotal prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Total events published to Kafka by topic and status (ok, error).",
			},
			[]string{"topic", "status"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_consumed_total",
				Help: "Total events consumed by event type and outcome (processed, skipped, decode_error, dead_letter).",
			},
			[]string{"event_type", "outcome"},
		),
		EventRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_retries_total",
				Help: "Total handler retry attempts by event type.",
			},
			[]string{"event_type"},
		),
		DeadLettersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dead_letters_total",
				Help: "Total messages dead-lettered by topic and reason (decode, handler).",
			},
			[]string{"topic", "reason"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "event_handler_duration_seconds",
				Help:    "Event handler execution time in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"event_type"},
		),
		ViewCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "view_cache_hits_total",
				Help: "Total number of view cache hits.",
			},
		),
		ViewCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "view_cache_misses_total",
				Help: "Total number of view cache misses.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.EventsPublishedTotal,
		m.EventsConsumedTotal,
		m.EventRetriesTotal,
		m.DeadLettersTotal,
		m.HandlerDuration,
		m.ViewCacheHitsTotal,
		m.ViewCacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
