package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/irfndi/vana-arb-go/internal/cache"
	"github.com/irfndi/vana-arb-go/internal/database"
	"github.com/irfndi/vana-arb-go/internal/services"
)

var startTime = time.Now()

// DashboardStatusSource reports the refresh loop state.
type DashboardStatusSource interface {
	Status() services.DashboardStatus
}

// HealthHandler reports dependency and process health.
type HealthHandler struct {
	redis     *database.RedisClient
	breakers  *services.CircuitBreakerManager
	dashboard DashboardStatusSource
	snapshots cache.SnapshotCache
	cooldowns cache.CooldownCache
	version   string
}

// HealthDeps are the optional components inspected by /health. A nil Redis
// means Redis is not configured.
type HealthDeps struct {
	Redis     *database.RedisClient
	Breakers  *services.CircuitBreakerManager
	Dashboard DashboardStatusSource
	Snapshots cache.SnapshotCache
	Cooldowns cache.CooldownCache
	Version   string
}

type HealthResponse struct {
	Status          string                                  `json:"status"`
	Timestamp       time.Time                               `json:"timestamp"`
	Version         string                                  `json:"version"`
	Uptime          string                                  `json:"uptime"`
	Services        map[string]string                       `json:"services"`
	Dashboard       *services.DashboardStatus               `json:"dashboard,omitempty"`
	CircuitBreakers map[string]services.CircuitBreakerStats `json:"circuit_breakers,omitempty"`
	SnapshotCache   *cache.SnapshotCacheStats               `json:"snapshot_cache,omitempty"`
	Cooldowns       []cache.CooldownEntry                   `json:"cooldowns,omitempty"`
	RedisPool       map[string]uint32                       `json:"redis_pool,omitempty"`
	System          SystemHealth                            `json:"system"`
}

// SystemHealth is the host and process resource section.
type SystemHealth struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryTotalMB     uint64  `json:"memory_total_mb"`
	CPUPercent        float64 `json:"cpu_percent"`
	Goroutines        int     `json:"goroutines"`
	HeapAllocMB       uint64  `json:"heap_alloc_mb"`
}

func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{
		redis:     deps.Redis,
		breakers:  deps.Breakers,
		dashboard: deps.Dashboard,
		snapshots: deps.Snapshots,
		cooldowns: deps.Cooldowns,
		version:   deps.Version,
	}
}

// HealthCheck answers 503 only when a configured Redis is unreachable. Open
// breakers and failed refreshes degrade the report but keep 200.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	servicesStatus := make(map[string]string)
	status := "healthy"

	if h.redis == nil {
		servicesStatus["redis"] = "disabled"
	} else if err := h.redis.HealthCheck(ctx); err != nil {
		servicesStatus["redis"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		servicesStatus["redis"] = "healthy"
	}

	response := HealthResponse{
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
		Services:  servicesStatus,
		RedisPool: h.redis.PoolStats(),
		System:    systemHealth(ctx),
	}

	if h.dashboard != nil {
		ds := h.dashboard.Status()
		response.Dashboard = &ds
		switch {
		case !ds.Running:
			servicesStatus["refresh_loop"] = "stopped"
		case ds.LastError != "":
			servicesStatus["refresh_loop"] = "degraded: " + ds.LastError
		default:
			servicesStatus["refresh_loop"] = "healthy"
		}
		if status == "healthy" && ds.LastError != "" {
			status = "degraded"
		}
	}

	if h.breakers != nil {
		response.CircuitBreakers = h.breakers.GetAllStats()
		for name, stats := range response.CircuitBreakers {
			if stats.State != services.Closed.String() {
				servicesStatus["exchange:"+name] = "circuit " + stats.State
				if status == "healthy" {
					status = "degraded"
				}
			}
		}
	}

	if h.snapshots != nil {
		stats := h.snapshots.GetStats()
		response.SnapshotCache = &stats
	}

	if h.cooldowns != nil {
		if entries, err := h.cooldowns.List(ctx); err == nil {
			response.Cooldowns = entries
		}
	}

	response.Status = status
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// LivenessCheck reports that the process is responsive.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func systemHealth(ctx context.Context) SystemHealth {
	var sys SystemHealth
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sys.MemoryUsedPercent = vm.UsedPercent
		sys.MemoryTotalMB = vm.Total / 1024 / 1024
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		sys.CPUPercent = percents[0]
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	sys.HeapAllocMB = ms.HeapAlloc / 1024 / 1024
	sys.Goroutines = runtime.NumGoroutine()
	return sys
}
