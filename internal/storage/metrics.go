package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

// serviceMetrics are the prometheus collectors of a Service. A nil
// *serviceMetrics records nothing.
type serviceMetrics struct {
	appends      *prometheus.CounterVec
	measurements prometheus.Counter
	deployments  *prometheus.GaugeVec
	queries      prometheus.Counter
}

// RegisterMetrics creates the service collectors and registers them.
//
// This should be called once during initialization, before the service is
// used. Returns the service for method chaining.
func (s *Service) RegisterMetrics(registry prometheus.Registerer) *Service {
	m := &serviceMetrics{
		appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datastreams",
			Subsystem: "service",
			Name:      "appends_total",
			Help:      "Append calls by result (accepted or rejected)",
		}, []string{"result"}),

		measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datastreams",
			Subsystem: "service",
			Name:      "measurements_appended_total",
			Help:      "Measurements stored by accepted appends",
		}),

		deployments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "datastreams",
			Subsystem: "service",
			Name:      "deployments",
			Help:      "Configured deployments by state (open or closed)",
		}, []string{"state"}),

		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datastreams",
			Subsystem: "service",
			Name:      "queries_total",
			Help:      "Range queries served",
		}),
	}

	registry.MustRegister(
		m.appends,
		m.measurements,
		m.deployments,
		m.queries,
	)

	// Seed the gauges with deployments opened before registration.
	stats := s.Stats()
	m.deployments.WithLabelValues("open").Set(float64(stats.Open))
	m.deployments.WithLabelValues("closed").Set(float64(stats.Closed))

	s.metrics.Store(m)
	return s
}

func (m *serviceMetrics) appendAccepted(measurements int) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues("accepted").Inc()
	m.measurements.Add(float64(measurements))
}

func (m *serviceMetrics) appendRejected() {
	if m == nil {
		return
	}
	m.appends.WithLabelValues("rejected").Inc()
}

func (m *serviceMetrics) queried() {
	if m == nil {
		return
	}
	m.queries.Inc()
}

func (m *serviceMetrics) deploymentOpened() {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues("open").Inc()
}

func (m *serviceMetrics) deploymentClosed() {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues("open").Dec()
	m.deployments.WithLabelValues("closed").Inc()
}

func (m *serviceMetrics) deploymentRemoved(wasClosed bool) {
	if m == nil {
		return
	}
	if wasClosed {
		m.deployments.WithLabelValues("closed").Dec()
		return
	}
	m.deployments.WithLabelValues("open").Dec()
}
