// Package metrics exposes Prometheus metrics for the grid server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leapstack-labs/leapgrid/pkg/grid"
)

const namespace = "leapgrid"

// Metrics holds the collectors of one server. Each instance owns its own
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	views         prometheus.Gauge
	navigations   *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Grid fetch lifecycle events by outcome.",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent loading a page of rows.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"outcome"}),
		views: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_views",
			Help:      "Grid views currently held by the server.",
		}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Location changes by origin.",
		}, []string{"origin"}),
	}

	m.registry.MustRegister(
		m.fetches,
		m.fetchDuration,
		m.views,
		m.navigations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveFetch records a grid fetch event. It has the signature of
// grid.Options.Observer.
func (m *Metrics) ObserveFetch(ev grid.FetchEvent) {
	outcome := ev.Outcome.String()
	m.fetches.WithLabelValues(outcome).Inc()
	if ev.Outcome != grid.FetchIssued {
		m.fetchDuration.WithLabelValues(outcome).Observe(ev.Duration.Seconds())
	}
}

// ViewOpened and ViewClosed track the number of live views.
func (m *Metrics) ViewOpened() { m.views.Inc() }

// ViewClosed decrements the live view gauge.
func (m *Metrics) ViewClosed() { m.views.Dec() }

// Navigated counts a location change. origin is "intent" for changes made
// through the grid and "history" for back/forward.
func (m *Metrics) Navigated(origin string) {
	m.navigations.WithLabelValues(origin).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
