package api

import (
	"github.com/gin-gonic/gin"

	"github.com/irfndi/vana-arb-go/internal/api/handlers"
	"github.com/irfndi/vana-arb-go/internal/logging"
	"github.com/irfndi/vana-arb-go/internal/middleware"
)

// Dependencies are the components the routes are served from.
type Dependencies struct {
	Dashboard handlers.DashboardSource
	Health    handlers.HealthDeps
	Admin     *middleware.AdminMiddleware
	Logger    *logging.StandardLogger
}

// SetupRoutes registers the health probes and the v1 API.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewStandardLogger("info")
	}
	admin := deps.Admin
	if admin == nil {
		admin = middleware.NewAdminMiddleware("")
	}

	healthHandler := handlers.NewHealthHandler(deps.Health)
	dashboardHandler := handlers.NewDashboardHandler(deps.Dashboard, logger)
	arbitrageHandler := handlers.NewArbitrageHandler(deps.Dashboard)

	health := router.Group("/", middleware.HealthCheckTelemetryMiddleware())
	{
		health.GET("/health", healthHandler.HealthCheck)
		health.HEAD("/health", healthHandler.HealthCheck)
		health.GET("/live", healthHandler.LivenessCheck)
	}

	v1 := router.Group("/api/v1")
	{
		dashboard := v1.Group("/dashboard")
		{
			dashboard.GET("", dashboardHandler.GetDashboard)
			dashboard.POST("/refresh", admin.RequireAdminAuth(), dashboardHandler.RefreshDashboard)
		}

		v1.GET("/quotes", dashboardHandler.GetQuotes)

		arbitrage := v1.Group("/arbitrage")
		{
			arbitrage.GET("/opportunities", arbitrageHandler.GetOpportunities)
			arbitrage.GET("/best", arbitrageHandler.GetBest)
		}
	}
}
