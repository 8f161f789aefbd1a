package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Registry metrics
	PatientsCreated       prometheus.Counter
	PatientCreateFailures *prometheus.CounterVec

	// Broadcast metrics
	BroadcastsPublished prometheus.Counter
	BroadcastsDropped   *prometheus.CounterVec
	ViewerSessions      prometheus.Gauge

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all application metrics and registers them with reg.
// Each process builds one set; tests pass a fresh prometheus.NewRegistry().
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PatientsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patients_created_total",
			Help:      "Total number of patient records stored",
		}),
		PatientCreateFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patient_create_failures_total",
			Help:      "Total number of rejected or failed patient creates",
		}, []string{"reason"}),

		BroadcastsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_published_total",
			Help:      "Total number of events fanned out to viewer sessions",
		}),
		BroadcastsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_dropped_total",
			Help:      "Total number of events or deliveries dropped",
		}, []string{"reason"}),
		ViewerSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewer_sessions",
			Help:      "Current number of subscribed viewer sessions",
		}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// NewNop returns metrics bound to a throwaway registry
func NewNop() *Metrics {
	return NewMetrics("rch", prometheus.NewRegistry())
}

// ObserveDB records one database operation outcome
func (m *Metrics) ObserveDB(operation string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DatabaseOperations.WithLabelValues(operation, status).Inc()
	m.DatabaseLatency.WithLabelValues(operation).Observe(seconds)
}
