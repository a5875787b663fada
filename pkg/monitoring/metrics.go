package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection. A nil collector
// records nothing, so components can take one optionally.
type MetricsCollector struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	recordsAppendedTotal  prometheus.Counter
	providersAuthorized   prometheus.Counter
	writeRejectionsTotal  *prometheus.CounterVec
	storeOperationLatency *prometheus.HistogramVec
	eventsPublishedTotal  *prometheus.CounterVec
}

// NewMetricsCollector creates the collector and registers it on reg
func NewMetricsCollector(serviceName string, reg *prometheus.Registry) *MetricsCollector {
	constLabels := prometheus.Labels{"service": serviceName}

	m := &MetricsCollector{
		gatherer: reg,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: constLabels,
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"method", "route"},
		),
		recordsAppendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "records_appended_total",
			Help:        "Total number of records appended to the ledger",
			ConstLabels: constLabels,
		}),
		providersAuthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "providers_authorized_total",
			Help:        "Total number of providers added to the authorized set",
			ConstLabels: constLabels,
		}),
		writeRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "write_rejections_total",
				Help:        "Total number of rejected write requests",
				ConstLabels: constLabels,
			},
			[]string{"operation", "reason"},
		),
		storeOperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "store_operation_duration_seconds",
				Help:        "Duration of record store operations in seconds",
				Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
				ConstLabels: constLabels,
			},
			[]string{"operation"},
		),
		eventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "events_published_total",
				Help:        "Total number of change events handed to the publisher",
				ConstLabels: constLabels,
			},
			[]string{"type", "status"},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.recordsAppendedTotal,
		m.providersAuthorized,
		m.writeRejectionsTotal,
		m.storeOperationLatency,
		m.eventsPublishedTotal,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAppend records a committed ledger append
func (m *MetricsCollector) RecordAppend() {
	if m == nil {
		return
	}
	m.recordsAppendedTotal.Inc()
}

// RecordProviderAuthorized records a provider added to the set
func (m *MetricsCollector) RecordProviderAuthorized() {
	if m == nil {
		return
	}
	m.providersAuthorized.Inc()
}

// RecordRejection records a write rejected before it reached storage
func (m *MetricsCollector) RecordRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.writeRejectionsTotal.WithLabelValues(operation, reason).Inc()
}

// RecordOperation records the latency of a store operation
func (m *MetricsCollector) RecordOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeOperationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventPublished records the outcome of a publish attempt
func (m *MetricsCollector) RecordEventPublished(eventType string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.eventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
