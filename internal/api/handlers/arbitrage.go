package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/vana-arb-go/internal/arbitrage"
	"github.com/irfndi/vana-arb-go/internal/models"
)

// ArbitrageHandler serves the opportunities of the latest snapshot.
type ArbitrageHandler struct {
	source DashboardSource
}

// OpportunitiesResponse lists the selected opportunities of one snapshot.
type OpportunitiesResponse struct {
	Opportunities []models.ArbitrageOpportunity `json:"opportunities"`
	Count         int                           `json:"count"`
	SnapshotID    string                        `json:"snapshot_id"`
	GeneratedAt   time.Time                     `json:"generated_at"`
	Stale         bool                          `json:"stale"`
}

// BestResponse holds the best opportunity per kind; kinds without a
// candidate are null.
type BestResponse struct {
	Best        map[models.OpportunityKind]*models.ArbitrageOpportunity `json:"best"`
	SnapshotID  string                                                  `json:"snapshot_id"`
	GeneratedAt time.Time                                               `json:"generated_at"`
	Stale       bool                                                    `json:"stale"`
}

func NewArbitrageHandler(source DashboardSource) *ArbitrageHandler {
	return &ArbitrageHandler{source: source}
}

// GetOpportunities filters by kind and positive_only and optionally sorts by net.
func (h *ArbitrageHandler) GetOpportunities(c *gin.Context) {
	kind, ok := kindQuery(c)
	if !ok {
		return
	}
	positiveOnly, ok := boolQuery(c, "positive_only")
	if !ok {
		return
	}
	sortBy := strings.ToLower(c.Query("sort"))
	if sortBy != "" && sortBy != "net" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sort parameter, only 'net' is supported"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = n
	}

	data, ok := latest(c, h.source)
	if !ok {
		return
	}

	opps := arbitrage.FilterKind(data.Opportunities, kind)
	if positiveOnly {
		opps = arbitrage.PositiveOnly(opps)
	}
	if sortBy == "net" {
		opps = arbitrage.SortByNet(opps)
	}
	if limit > 0 && len(opps) > limit {
		opps = opps[:limit]
	}
	if opps == nil {
		opps = []models.ArbitrageOpportunity{}
	}

	c.JSON(http.StatusOK, OpportunitiesResponse{
		Opportunities: opps,
		Count:         len(opps),
		SnapshotID:    data.ID,
		GeneratedAt:   data.GeneratedAt,
		Stale:         data.Stale,
	})
}

// GetBest returns the highest-net opportunity of each kind, or of one kind.
func (h *ArbitrageHandler) GetBest(c *gin.Context) {
	kind, ok := kindQuery(c)
	if !ok {
		return
	}
	positiveOnly, ok := boolQuery(c, "positive_only")
	if !ok {
		return
	}

	data, ok := latest(c, h.source)
	if !ok {
		return
	}

	kinds := models.AllOpportunityKinds
	if kind != "" {
		kinds = []models.OpportunityKind{kind}
	}
	best := make(map[models.OpportunityKind]*models.ArbitrageOpportunity, len(kinds))
	for _, k := range kinds {
		if opp, found := arbitrage.Best(data.Opportunities, k, positiveOnly); found {
			best[k] = &opp
		} else {
			best[k] = nil
		}
	}

	c.JSON(http.StatusOK, BestResponse{
		Best:        best,
		SnapshotID:  data.ID,
		GeneratedAt: data.GeneratedAt,
		Stale:       data.Stale,
	})
}

func kindQuery(c *gin.Context) (models.OpportunityKind, bool) {
	kind := models.OpportunityKind(strings.ToLower(c.Query("kind")))
	if kind != "" && !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid kind parameter"})
		return "", false
	}
	return kind, true
}

// boolQuery parses an optional boolean query parameter, writing 400 when malformed.
func boolQuery(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter"})
		return false, false
	}
	return v, true
}
