package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RemoteCalls     *prometheus.CounterVec
	RemoteDuration  *prometheus.HistogramVec
	Reconciliations *prometheus.CounterVec
}

// NewMetrics creates metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carriersync_requests_total",
				Help: "Total number of inbound requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carriersync_request_duration_seconds",
				Help:    "Inbound request duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RemoteCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carriersync_remote_calls_total",
				Help: "Total Shopify carrier service calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RemoteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carriersync_remote_call_duration_seconds",
				Help:    "Shopify carrier service call duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carriersync_reconciliations_total",
				Help: "Total reconciliations by result and failure cause",
			},
			[]string{"result", "cause"},
		),
	}
}

// RecordRequest records an inbound request metric.
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRemoteCall records a Shopify API call metric.
func (m *Metrics) RecordRemoteCall(operation, outcome string, duration float64) {
	m.RemoteCalls.WithLabelValues(operation, outcome).Inc()
	m.RemoteDuration.WithLabelValues(operation).Observe(duration)
}

// RecordReconcile records the terminal outcome of a reconciliation.
// cause is empty on success.
func (m *Metrics) RecordReconcile(result, cause string) {
	m.Reconciliations.WithLabelValues(result, cause).Inc()
}
