package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/vana-arb-go/internal/api/handlers"
	"github.com/irfndi/vana-arb-go/internal/config"
	"github.com/irfndi/vana-arb-go/internal/logging"
	"github.com/irfndi/vana-arb-go/internal/models"
)

// fakeBinance serves the three Binance endpoints for any symbol.
func fakeBinance(t *testing.T, healthy bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		symbol := r.URL.Query().Get("symbol")
		switch {
		case strings.HasSuffix(r.URL.Path, "/ticker/price"):
			_, _ = w.Write([]byte(`{"symbol":"` + symbol + `","price":"6.50"}`))
		case strings.HasSuffix(r.URL.Path, "/ticker/24hr"):
			_, _ = w.Write([]byte(`{"symbol":"` + symbol + `","quoteVolume":"1250000"}`))
		case strings.HasSuffix(r.URL.Path, "/depth"):
			_, _ = w.Write([]byte(`{"bids":[["6.49","1000"],["6.48","2000"]],"asks":[["6.51","1000"],["6.52","2000"]]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Environment: "test",
		LogLevel:    "error",
		Server:      config.ServerConfig{Port: 0},
		Market: config.MarketConfig{
			Exchanges:          []string{"binance"},
			DefaultSymbols:     []string{"VANAUSDT"},
			Symbols:            map[string][]string{"binance": {"VANAUSDT", "VANAUSDC"}},
			DepthLimit:         20,
			RequestTimeout:     "2s",
			AggregationTimeout: "5s",
			RefreshInterval:    "1h",
			BaseURLs:           map[string]string{"binance": baseURL},
			MaxRetries:         0,
			RetryDelay:         "1ms",
		},
		Liquidity: config.LiquidityConfig{BandPercent: 0.02, LowLiquidityThresholdUSD: 60000},
		Arbitrage: config.ArbitrageConfig{
			TakerFee:       0.001,
			Kinds:          []string{"pair_spread", "triangular", "cross_exchange"},
			QuoteAssets:    []string{"USDT", "USDC", "FDUSD"},
			AlertThreshold: 0.0025,
		},
		Cache:          config.CacheConfig{SnapshotTTL: "5m", Cooldown: "1m"},
		CircuitBreaker: config.CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 1, Timeout: "30s", MaxRequests: 1, ResetTimeout: "5m"},
		Telemetry:      config.TelemetryConfig{ServiceName: "vana-arb-go", ServiceVersion: "test"},
		Admin:          config.AdminConfig{APIKey: "secret"},
	}
}

func newTestApplication(t *testing.T, cfg *config.Config) *application {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	stdLogger := logging.NewStandardLoggerWithHandler(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	app, err := newApplication(cfg, logger, stdLogger)
	require.NoError(t, err)
	t.Cleanup(app.close)
	return app
}

func get(app *application, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func TestNewApplication_ServesDashboard(t *testing.T) {
	venue := fakeBinance(t, true)
	app := newTestApplication(t, testConfig(venue.URL))
	assert.Nil(t, app.redis)

	w := get(app, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data models.DashboardData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	require.Len(t, data.Quotes, 2)
	assert.Equal(t, "binance", data.Quotes[0].Exchange)
	assert.False(t, data.Stale)
	assert.NotEmpty(t, data.Opportunities, "two symbols on one venue produce pair and cross candidates")

	w = get(app, http.MethodGet, "/api/v1/quotes?exchange=binance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)
}

func TestNewApplication_RefreshNeedsAdminKey(t *testing.T) {
	venue := fakeBinance(t, true)
	app := newTestApplication(t, testConfig(venue.URL))

	assert.Equal(t, http.StatusUnauthorized, get(app, http.MethodPost, "/api/v1/dashboard/refresh", nil).Code)

	w := get(app, http.MethodPost, "/api/v1/dashboard/refresh", map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.RefreshResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)
	assert.Equal(t, int64(1), app.dashboard.Status().Refreshes)
}

func TestNewApplication_AllVenuesDown(t *testing.T) {
	venue := fakeBinance(t, false)
	app := newTestApplication(t, testConfig(venue.URL))

	w := get(app, http.MethodGet, "/api/v1/dashboard", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "error")

	w = get(app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "disabled", health.Services["redis"])
}

func TestNewApplication_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	venue := fakeBinance(t, true)

	cfg := testConfig(venue.URL)
	cfg.Redis = config.RedisConfig{Enabled: true, Host: mr.Host(), Port: mustPort(t, mr.Port())}
	app := newTestApplication(t, cfg)
	require.NotNil(t, app.redis)

	require.Equal(t, http.StatusOK, get(app, http.MethodGet, "/api/v1/dashboard", nil).Code)
	assert.NotEmpty(t, mr.Keys(), "snapshot is stored in Redis")

	w := get(app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"healthy"`)

	mr.Close()
	assert.Equal(t, http.StatusServiceUnavailable, get(app, http.MethodGet, "/health", nil).Code)
}

func TestNewApplication_RedisUnreachable(t *testing.T) {
	venue := fakeBinance(t, true)
	cfg := testConfig(venue.URL)
	cfg.Redis = config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

	app := newTestApplication(t, cfg)
	assert.Nil(t, app.redis, "startup continues with memory caches")
	assert.Equal(t, http.StatusOK, get(app, http.MethodGet, "/api/v1/dashboard", nil).Code)
}

func TestNewApplication_InvalidKind(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Arbitrage.Kinds = []string{"futures"}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	_, err := newApplication(cfg, logger, logging.NewStandardLoggerWithHandler(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	assert.Error(t, err)
}

func TestNewApplication_StartStop(t *testing.T) {
	venue := fakeBinance(t, true)
	app := newTestApplication(t, testConfig(venue.URL))

	require.NoError(t, app.dashboard.Start())
	require.Eventually(t, func() bool {
		return app.dashboard.Status().Refreshes >= 1
	}, 3*time.Second, 10*time.Millisecond)
	app.dashboard.Stop()
	assert.False(t, app.dashboard.IsRunning())
}

func mustPort(t *testing.T, port string) int {
	t.Helper()
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}
