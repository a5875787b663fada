package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/medrex/healthcare-records/pkg/logger"
)

func TestMetricsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollector("records-test", reg)

	m.RecordAppend()
	m.RecordAppend()
	m.RecordProviderAuthorized()
	m.RecordRejection("add_record", "unauthorized")
	m.RecordEventPublished("record.appended", false)
	m.RecordOperation("add_record", 3*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.recordsAppendedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.providersAuthorized))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.writeRejectionsTotal.WithLabelValues("add_record", "unauthorized")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsPublishedTotal.WithLabelValues("record.appended", "failure")))

	// a second collector on a fresh registry must not panic
	assert.NotPanics(t, func() { NewMetricsCollector("records-test", prometheus.NewRegistry()) })
}

func TestMetricsCollector_NilIsNoop(t *testing.T) {
	var m *MetricsCollector
	assert.NotPanics(t, func() {
		m.RecordAppend()
		m.RecordProviderAuthorized()
		m.RecordRejection("add_record", "invalid")
		m.RecordOperation("add_record", time.Millisecond)
		m.RecordEventPublished("x", true)
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestMetricsCollector_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollector("records-test", reg)
	m.RecordAppend()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `records_appended_total{service="records-test"} 1`)
}

func TestMonitoringMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollector("records-test", reg)
	var logs bytes.Buffer
	mm := NewMonitoringMiddleware(m, logger.NewWithOutput("info", &logs))

	router := mux.NewRouter()
	router.Use(mm.HTTPMiddleware)
	router.HandleFunc("/patients/{patientID}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, logger.RequestIDFromContext(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("generates request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/101", nil))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		assert.Equal(t, float64(1), testutil.ToFloat64(
			m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/patients/{patientID}", "418")))
	})

	t.Run("propagates request id", func(t *testing.T) {
		logs.Reset()
		req := httptest.NewRequest(http.MethodGet, "/patients/202", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
		assert.Equal(t, "req-123", entry["request_id"])
		assert.Equal(t, float64(http.StatusTeapot), entry["status_code"])
	})
}

type probeFunc func(ctx context.Context) error

func (f probeFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthManager(t *testing.T) {
	hm := NewHealthManager("records-test", "1.0.0")
	hm.RegisterChecker("storage", NewProbeChecker(probeFunc(func(context.Context) error { return nil })))

	report := hm.CheckHealth(context.Background())
	assert.Equal(t, HealthStatusHealthy, report.Status)
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "storage", report.Checks[0].Name)

	hm.RegisterChecker("events", NewCustomHealthChecker(func(context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusDegraded}
	}))
	assert.Equal(t, HealthStatusDegraded, hm.CheckHealth(context.Background()).Status)

	hm.RegisterChecker("broken", NewProbeChecker(probeFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))
	report = hm.CheckHealth(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
	assert.Equal(t, []string{"broken", "events", "storage"},
		[]string{report.Checks[0].Name, report.Checks[1].Name, report.Checks[2].Name})

	rec := httptest.NewRecorder()
	hm.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTracing_SpansReachProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tm, err := newTracingManager(&TracingConfig{
		ServiceName:  "records-test",
		SamplingRate: 1,
	}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer tm.Shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "store.add_record")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	RecordError(span, errors.New("boom"))
	span.End()

	handler := tm.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/owner", nil))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "store.add_record", ended[0].Name())
	assert.Equal(t, "GET /owner", ended[1].Name())
}
