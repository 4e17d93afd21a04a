// Package metrics holds the Prometheus collectors exported on the metrics port.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the service's custom collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry     *prometheus.Registry
	AuthEvents   *prometheus.CounterVec
	ViewDuration *prometheus.HistogramVec
}

// New creates a registry with the Go/process collectors and the service collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidtube_auth_events_total",
				Help: "Session lifecycle events by type",
			},
			[]string{"event"},
		),
		ViewDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidtube_view_duration_seconds",
				Help:    "Latency of relational view aggregations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"view", "outcome"},
		),
	}
	reg.MustRegister(m.AuthEvents, m.ViewDuration)
	return m
}

// AuthEvent counts one session event.
func (m *Metrics) AuthEvent(event string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(event).Inc()
}

// ObserveView records how long a view aggregation took.
func (m *Metrics) ObserveView(view string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ViewDuration.WithLabelValues(view, outcome).Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
