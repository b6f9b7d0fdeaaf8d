package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/vana-arb-go/internal/api"
	"github.com/irfndi/vana-arb-go/internal/api/handlers"
	"github.com/irfndi/vana-arb-go/internal/arbitrage"
	"github.com/irfndi/vana-arb-go/internal/cache"
	"github.com/irfndi/vana-arb-go/internal/config"
	"github.com/irfndi/vana-arb-go/internal/database"
	"github.com/irfndi/vana-arb-go/internal/exchange"
	"github.com/irfndi/vana-arb-go/internal/liquidity"
	"github.com/irfndi/vana-arb-go/internal/logging"
	"github.com/irfndi/vana-arb-go/internal/middleware"
	"github.com/irfndi/vana-arb-go/internal/services"
	"github.com/irfndi/vana-arb-go/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// application is the wired process: caches, services and the HTTP router.
type application struct {
	cfg       *config.Config
	logger    *logrus.Logger
	stdLogger *logging.StandardLogger
	redis     *database.RedisClient
	breakers  *services.CircuitBreakerManager
	dashboard *services.DashboardService
	router    *gin.Engine
}

func run() error {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()

	provider, err := telemetry.InitTelemetry(ctx, telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown telemetry: %v\n", err)
		}
	}()

	logger := logging.NewLogrusLogger(cfg.LogLevel, cfg.Environment)
	stdLogger, otlpLogger := logging.NewStandardOTLPLogger(ctx, logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint != "",
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otlpLogger.Shutdown(shutdownCtx)
	}()

	app, err := newApplication(cfg, logger, stdLogger)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.dashboard.Start(); err != nil {
		return fmt.Errorf("failed to start dashboard service: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Market.GetAggregationTimeout() + 15*time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		stdLogger.LogStartup(cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		stdLogger.LogShutdown(cfg.Telemetry.ServiceName, "signal received: "+sig.String())
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// newApplication wires every component from cfg. Redis is optional: when it is
// disabled or unreachable the caches fall back to memory.
func newApplication(cfg *config.Config, logger *logrus.Logger, stdLogger *logging.StandardLogger) (*application, error) {
	app := &application{cfg: cfg, logger: logger, stdLogger: stdLogger}

	var (
		snapshots cache.SnapshotCache
		cooldowns cache.CooldownCache
	)
	if cfg.Redis.Enabled {
		redisClient, err := database.NewRedisConnection(cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, using in-memory caches")
		} else {
			app.redis = redisClient
			snapshots = cache.NewRedisSnapshotCache(redisClient.Client, cfg.Cache.GetSnapshotTTL(), logger)
			cooldowns = cache.NewRedisCooldownCache(redisClient.Client, logger)
		}
	}
	if snapshots == nil {
		snapshots = cache.NewMemorySnapshotCache(cfg.Cache.GetSnapshotTTL())
		cooldowns = cache.NewMemoryCooldownCache()
	}

	registry := exchange.NewDefaultRegistry(
		exchange.NewHTTPFetcher(cfg.Market.GetRequestTimeout(), logger),
		exchange.RegistryOptions{
			DepthLimit: cfg.Market.DepthLimit,
			BaseURLs:   cfg.Market.BaseURLs,
			Logger:     logger,
		},
	)

	kinds, err := cfg.Arbitrage.OpportunityKinds()
	if err != nil {
		app.close()
		return nil, err
	}
	takerFee := cfg.Arbitrage.GetTakerFee()
	engine := arbitrage.NewEngine(arbitrage.Config{
		TakerFee:    &takerFee,
		Kinds:       kinds,
		QuoteAssets: cfg.Arbitrage.QuoteAssets,
		MinNet:      cfg.Arbitrage.GetMinNet(),
	})
	analyzer := liquidity.NewAnalyzer(cfg.Liquidity.GetBandPercent(), cfg.Liquidity.GetThresholdUSD())

	app.breakers = services.NewCircuitBreakerManager(services.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.GetTimeout(),
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		ResetTimeout:     cfg.CircuitBreaker.GetResetTimeout(),
	}, logger)

	retryDelay := cfg.Market.GetRetryDelay()
	retrier := services.NewRetrier(services.RetryPolicy{
		MaxRetries:    cfg.Market.MaxRetries,
		InitialDelay:  retryDelay,
		MaxDelay:      10 * retryDelay,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}, logger)

	aggregator := services.NewAggregator(registry, analyzer, engine, services.AggregatorConfig{
		Targets:     cfg.Market.Targets(),
		Timeout:     cfg.Market.GetAggregationTimeout(),
		CooldownTTL: cfg.Cache.GetCooldown(),
	}, logger).
		WithCircuitBreakers(app.breakers).
		WithRetrier(retrier).
		WithCooldowns(cooldowns)

	var notifier *services.NotificationService
	if cfg.Telegram.Enabled() {
		sender, err := services.NewTelegramSender(cfg.Telegram.BotToken)
		if err != nil {
			logger.WithError(err).Warn("Telegram alerts disabled")
		} else {
			notifier = services.NewNotificationService(sender, cfg.Telegram.ChatID, cfg.Arbitrage.GetAlertThreshold(), logger)
		}
	}

	app.dashboard = services.NewDashboardService(aggregator, snapshots, notifier, cfg.Market.GetRefreshInterval(), logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TelemetryMiddleware(cfg.Telemetry.ServiceName))
	router.Use(middleware.RequestLogger(stdLogger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	api.SetupRoutes(router, api.Dependencies{
		Dashboard: app.dashboard,
		Health: handlers.HealthDeps{
			Redis:     app.redis,
			Breakers:  app.breakers,
			Dashboard: app.dashboard,
			Snapshots: snapshots,
			Cooldowns: cooldowns,
			Version:   cfg.Telemetry.ServiceVersion,
		},
		Admin:  middleware.NewAdminMiddleware(cfg.Admin.APIKey),
		Logger: stdLogger,
	})
	app.router = router

	logger.WithFields(logrus.Fields{
		"targets":  len(aggregator.Targets()),
		"venues":   registry.List(),
		"redis":    app.redis != nil,
		"alerts":   notifier.Enabled(),
		"interval": cfg.Market.GetRefreshInterval().String(),
	}).Info("Application wired")

	return app, nil
}

// close stops the refresh loop and releases Redis.
func (a *application) close() {
	if a.dashboard != nil {
		a.dashboard.Stop()
	}
	if err := a.redis.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close Redis")
	}
}
