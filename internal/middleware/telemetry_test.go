package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/irfndi/vana-arb-go/internal/logging"
)

func newRecordingProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return tp, recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTelemetryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tp, recorder := newRecordingProvider(t)

	router := gin.New()
	router.Use(TelemetryMiddleware("vana-test", otelgin.WithTracerProvider(tp)))
	router.GET("/api/v1/dashboard", func(c *gin.Context) {
		AddSpanAttribute(c, "dashboard.stale", true)
		AddSpanAttribute(c, "dashboard.quotes", 6)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1, "health probes are filtered")
	stale, ok := spanAttr(spans[0], "dashboard.stale")
	require.True(t, ok)
	assert.True(t, stale.AsBool())
	quotes, ok := spanAttr(spans[0], "dashboard.quotes")
	require.True(t, ok)
	assert.Equal(t, int64(6), quotes.AsInt64())
}

func TestRecordError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tp, recorder := newRecordingProvider(t)

	router := gin.New()
	router.Use(TelemetryMiddleware("vana-test", otelgin.WithTracerProvider(tp)))
	router.POST("/api/v1/dashboard/refresh", func(c *gin.Context) {
		RecordError(c, errors.New("all venues failed"), "refresh failed")
		RecordError(c, nil, "ignored")
		c.JSON(http.StatusBadGateway, gin.H{"error": "all venues failed"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/refresh", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestSpanHelpers_NoSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	assert.NotPanics(t, func() {
		RecordError(c, errors.New("boom"), "boom")
		AddSpanAttribute(c, "key", struct{}{})
	})
}

func TestHealthCheckTelemetryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tp, recorder := newRecordingProvider(t)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	router := gin.New()
	router.GET("/health", HealthCheckTelemetryMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Health /health", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	status, ok := spanAttr(spans[0], "health.status")
	require.True(t, ok)
	assert.Equal(t, "server_error", status.AsString())
}

func TestGetHealthStatusFromCode(t *testing.T) {
	tests := map[int]string{
		200: "healthy",
		204: "healthy",
		302: "unknown",
		404: "client_error",
		503: "server_error",
	}
	for code, want := range tests {
		assert.Equal(t, want, getHealthStatusFromCode(code), code)
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := logging.NewStandardLoggerWithHandler(slog.NewJSONHandler(&buf, nil))

	router := gin.New()
	router.Use(RequestLogger(logger))
	router.GET("/api/v1/quotes", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/quotes?exchange=mexc", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/v1/quotes?exchange=mexc", entry["path"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
}
