// Package metrics defines the Prometheus collectors for the bot and exposes
// an HTTP handler for scraping. All helper methods are safe on a nil
// *Metrics so components can run without observability wired in.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the request pipeline.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal           *prometheus.CounterVec
	RequestDuration         *prometheus.HistogramVec
	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	RefreshFailuresTotal    prometheus.Counter
	GenerationAttemptsTotal prometheus.Counter
	GenerationLatency       prometheus.Histogram
	DeliveryFailuresTotal   prometheus.Counter
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groundbot_requests_total",
				Help: "Total requests by channel and terminal state.",
			},
			[]string{"channel", "state"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groundbot_request_duration_seconds",
				Help:    "End-to-end request latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"channel"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "groundbot_document_cache_hits_total",
				Help: "Document cache reads served from the memoized record.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "groundbot_document_cache_misses_total",
				Help: "Document cache reads that required a refresh attempt.",
			},
		),
		RefreshFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "groundbot_document_refresh_failures_total",
				Help: "Failed document fetch-and-extract attempts.",
			},
		),
		GenerationAttemptsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "groundbot_generation_attempts_total",
				Help: "Generation API calls including retries.",
			},
		),
		GenerationLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "groundbot_generation_latency_seconds",
				Help:    "Latency of the generation call including retries.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		DeliveryFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "groundbot_delivery_failures_total",
				Help: "Replies that could not be delivered to the platform.",
			},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RefreshFailuresTotal,
		m.GenerationAttemptsTotal,
		m.GenerationLatency,
		m.DeliveryFailuresTotal,
	)
	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(channel string, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(channel, state).Inc()
	m.RequestDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) RefreshFailure() {
	if m == nil {
		return
	}
	m.RefreshFailuresTotal.Inc()
}

func (m *Metrics) GenerationAttempt() {
	if m == nil {
		return
	}
	m.GenerationAttemptsTotal.Inc()
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationLatency.Observe(d.Seconds())
}

func (m *Metrics) DeliveryFailure() {
	if m == nil {
		return
	}
	m.DeliveryFailuresTotal.Inc()
}
