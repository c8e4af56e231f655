// Package metrics provides Prometheus instrumentation for request dispatch and
// service lifecycle phases.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const logPrefix = "metrics:metrics"

const defaultNamespace = "servicehost"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec   // method, status
	requestDuration *prometheus.HistogramVec // method

	phases        *prometheus.CounterVec   // phase, outcome
	phaseDuration *prometheus.HistogramVec // phase

	services prometheus.Gauge
}

// New creates and registers the collectors on a fresh registry.
func New(namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Total number of dispatched resource requests",
		}, []string{"method", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "Resource request handling duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "phases_total",
			Help:      "Total number of lifecycle phases run",
		}, []string{"phase", "outcome"}), // outcome: success, failure

		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "phase_duration_seconds",
			Help:      "Lifecycle phase duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		}, []string{"phase"}),

		services: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "services",
			Help:      "Number of services in the service cache",
		}),
	}

	all := []prometheus.Collector{
		m.requests, m.requestDuration, m.phases, m.phaseDuration, m.services,
		collectors.NewGoCollector(),
	}
	for _, c := range all {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("%s - failed to register collector: %w", logPrefix, err)
		}
	}
	return m, nil
}

// ObserveRequest records one dispatched request.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObservePhase records one lifecycle phase run.
func (m *Metrics) ObservePhase(phase string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.phases.WithLabelValues(phase, outcome).Inc()
	m.phaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// SetServices records the service cache size.
func (m *Metrics) SetServices(n int) {
	if m == nil {
		return
	}
	m.services.Set(float64(n))
}

// Registry returns the underlying registry, or nil for a nil *Metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
