package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestParseLogrusLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"DEBUG":   logrus.DebugLevel,
		"warn":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"info":    logrus.InfoLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogrusLevel(in), in)
	}
}

func TestNewLogrusLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogrusLogger(&buf, "debug", "production")
	logger.WithField("exchange", "binance").Debug("fetched")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fetched", entry["message"])
	assert.Equal(t, "binance", entry["exchange"])
	assert.Equal(t, "debug", entry["level"])

	buf.Reset()
	dev := newLogrusLogger(&buf, "info", "development")
	dev.Debug("hidden")
	dev.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.IsType(t, &logrus.TextFormatter{}, dev.Formatter)
}

func newBufferedStandardLogger(buf *bytes.Buffer) *StandardLogger {
	return NewStandardLoggerWithHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestStandardLogger_Events(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferedStandardLogger(&buf)

	logger.LogStartup("vana-arb-go", "1.0.0", 8080)
	logger.LogShutdown("vana-arb-go", "signal")
	logger.LogAPIRequest("GET", "/api/v1/dashboard", 200, 12, "127.0.0.1")
	logger.LogAPIRequest("POST", "/api/v1/dashboard/refresh", 502, 40, "127.0.0.1")
	logger.LogBusinessEvent("manual_refresh", map[string]interface{}{"snapshot_id": "abc"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 5)

	assert.Equal(t, "startup", lines[0]["event"])
	assert.Equal(t, float64(8080), lines[0]["port"])
	assert.Equal(t, "shutdown", lines[1]["event"])
	assert.Equal(t, "INFO", lines[2]["level"])
	assert.Equal(t, "/api/v1/dashboard", lines[2]["path"])
	assert.Equal(t, "ERROR", lines[3]["level"])
	assert.Equal(t, "manual_refresh", lines[4]["event_type"])
	assert.Equal(t, "abc", lines[4]["snapshot_id"])
}

func TestStandardLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferedStandardLogger(&buf)

	logger.WithComponent("aggregator").Info("cycle")
	logger.WithExchange("mexc").Info("venue")
	logger.WithSymbol("VANAUSDT").Info("symbol")
	logger.WithService("api").Info("service")
	logger.WithError(errors.New("boom")).Error("failed")
	logger.WithError(nil).Info("no error")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 6)
	assert.Equal(t, "aggregator", lines[0]["component"])
	assert.Equal(t, "mexc", lines[1]["exchange"])
	assert.Equal(t, "VANAUSDT", lines[2]["symbol"])
	assert.Equal(t, "api", lines[3]["service"])
	assert.Equal(t, "boom", lines[4]["error"])
	assert.NotContains(t, lines[5], "error")
	assert.Same(t, logger.logger, logger.Logger())
}

// memoryExporter collects exported log records.
type memoryExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryExporter) Export(ctx context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryExporter) Shutdown(ctx context.Context) error   { return nil }
func (e *memoryExporter) ForceFlush(ctx context.Context) error { return nil }

func attrsOf(r sdklog.Record) map[string]otellog.Value {
	out := make(map[string]otellog.Value)
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value
		return true
	})
	return out
}

func TestOTLPHandler(t *testing.T) {
	exporter := &memoryExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	logger := slog.New(NewOTLPHandler(provider.Logger("test"), slog.LevelInfo))
	logger.Debug("dropped")
	logger.With("component", "aggregator").WithGroup("venue").Warn("slow venue", "name", "bitget", "latency_ms", 1200, "partial", true)

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	require.Len(t, exporter.records, 1)

	rec := exporter.records[0]
	assert.Equal(t, "slow venue", rec.Body().AsString())
	assert.Equal(t, otellog.SeverityWarn, rec.Severity())

	attrs := attrsOf(rec)
	assert.Equal(t, "aggregator", attrs["component"].AsString())
	assert.Equal(t, "bitget", attrs["venue.name"].AsString())
	assert.Equal(t, int64(1200), attrs["venue.latency_ms"].AsInt64())
	assert.True(t, attrs["venue.partial"].AsBool())
}

func TestConvertSlogLevelToSeverity(t *testing.T) {
	assert.Equal(t, otellog.SeverityDebug, convertSlogLevelToSeverity(slog.LevelDebug))
	assert.Equal(t, otellog.SeverityInfo, convertSlogLevelToSeverity(slog.LevelInfo))
	assert.Equal(t, otellog.SeverityWarn, convertSlogLevelToSeverity(slog.LevelWarn))
	assert.Equal(t, otellog.SeverityError, convertSlogLevelToSeverity(slog.LevelError))
	assert.Equal(t, otellog.SeverityError, convertSlogLevelToSeverity(slog.LevelError+4))
}

func TestNewOTLPLogger_Disabled(t *testing.T) {
	logger, err := NewOTLPLogger(context.Background(), OTLPConfig{Enabled: false, LogLevel: "warn"})
	require.NoError(t, err)
	assert.NotNil(t, logger.Logger())
	assert.False(t, logger.Logger().Enabled(context.Background(), slog.LevelInfo))
	assert.NoError(t, logger.Shutdown(context.Background()))
}

func TestNewOTLPLogger_InvalidEndpoint(t *testing.T) {
	_, err := NewOTLPLogger(context.Background(), OTLPConfig{Enabled: true, Endpoint: "collector:4318"})
	assert.Error(t, err)

	std, otlp := NewStandardOTLPLogger(context.Background(), OTLPConfig{Enabled: true, Endpoint: "collector:4318"})
	assert.NotNil(t, std)
	assert.NoError(t, otlp.Shutdown(context.Background()))
}

func TestNewOTLPLogger_Enabled(t *testing.T) {
	// The exporter connects lazily, so no collector is needed to build it
	logger, err := NewOTLPLogger(context.Background(), OTLPConfig{
		Enabled:        true,
		Endpoint:       "http://127.0.0.1:4318",
		ServiceVersion: "test",
		Environment:    "test",
	})
	require.NoError(t, err)
	assert.NotNil(t, logger.provider)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_ = logger.Shutdown(ctx)
}
