package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/vana-arb-go/internal/logging"
	"github.com/irfndi/vana-arb-go/internal/middleware"
	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/irfndi/vana-arb-go/internal/utils"
)

// DashboardSource serves dashboard snapshots.
type DashboardSource interface {
	Latest(ctx context.Context) (*models.DashboardData, error)
	Refresh(ctx context.Context) (*models.DashboardData, error)
	RefreshOrStale(ctx context.Context) (*models.DashboardData, error)
}

// DashboardHandler serves the snapshot, its quotes and manual refreshes.
type DashboardHandler struct {
	source DashboardSource
	logger *logging.StandardLogger
}

// RefreshResponse is the refresh envelope: exactly one of Data or Error is set.
type RefreshResponse struct {
	Data  *models.DashboardData `json:"data,omitempty"`
	Error string                `json:"error,omitempty"`
}

// QuotesResponse lists the quotes of one snapshot.
type QuotesResponse struct {
	Quotes      []models.NormalizedQuote `json:"quotes"`
	Count       int                      `json:"count"`
	SnapshotID  string                   `json:"snapshot_id"`
	GeneratedAt time.Time                `json:"generated_at"`
	Stale       bool                     `json:"stale"`
}

func NewDashboardHandler(source DashboardSource, logger *logging.StandardLogger) *DashboardHandler {
	return &DashboardHandler{source: source, logger: logger}
}

// GetDashboard returns the latest snapshot.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	data, ok := latest(c, h.source)
	if !ok {
		return
	}
	middleware.AddSpanAttribute(c, "dashboard.snapshot_id", data.ID)
	middleware.AddSpanAttribute(c, "dashboard.stale", data.Stale)
	c.JSON(http.StatusOK, data)
}

// RefreshDashboard runs an aggregation cycle now. With allow_stale=true a
// failed cycle answers with the cached snapshot marked stale.
func (h *DashboardHandler) RefreshDashboard(c *gin.Context) {
	allowStale, ok := boolQuery(c, "allow_stale")
	if !ok {
		return
	}

	refresh := h.source.Refresh
	if allowStale {
		refresh = h.source.RefreshOrStale
	}

	start := time.Now()
	data, err := refresh(c.Request.Context())
	details := map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
		"client_ip":   c.ClientIP(),
	}
	if err != nil {
		details["error"] = err.Error()
		h.logger.LogBusinessEvent("dashboard_refresh_failed", details)
		middleware.RecordError(c, err, "dashboard refresh failed")
		c.JSON(errorStatus(err), RefreshResponse{Error: err.Error()})
		return
	}

	details["snapshot_id"] = data.ID
	details["quotes"] = len(data.Quotes)
	details["opportunities"] = len(data.Opportunities)
	details["stale"] = data.Stale
	h.logger.LogBusinessEvent("dashboard_refreshed", details)
	c.JSON(http.StatusOK, RefreshResponse{Data: data})
}

// GetQuotes returns the quotes of the latest snapshot, optionally for one exchange.
func (h *DashboardHandler) GetQuotes(c *gin.Context) {
	data, ok := latest(c, h.source)
	if !ok {
		return
	}

	exchange := strings.ToLower(strings.TrimSpace(c.Query("exchange")))
	quotes := make([]models.NormalizedQuote, 0, len(data.Quotes))
	for _, q := range data.Quotes {
		if exchange == "" || q.Exchange == exchange {
			quotes = append(quotes, q)
		}
	}

	c.JSON(http.StatusOK, QuotesResponse{
		Quotes:      quotes,
		Count:       len(quotes),
		SnapshotID:  data.ID,
		GeneratedAt: data.GeneratedAt,
		Stale:       data.Stale,
	})
}

// latest loads the snapshot or writes the error response.
func latest(c *gin.Context, source DashboardSource) (*models.DashboardData, bool) {
	data, err := source.Latest(c.Request.Context())
	if err != nil {
		middleware.RecordError(c, err, "no dashboard snapshot")
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return nil, false
	}
	return data, true
}

// errorStatus maps a refresh error to an HTTP status.
func errorStatus(err error) int {
	var aggErr *utils.AggregationError
	switch {
	case errors.As(err, &aggErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
