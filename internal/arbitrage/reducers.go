package arbitrage

import (
	"sort"

	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/shopspring/decimal"
)

// FilterKind returns the candidates of the given kind. An empty kind matches all.
func FilterKind(opps []models.ArbitrageOpportunity, kind models.OpportunityKind) []models.ArbitrageOpportunity {
	if kind == "" {
		return opps
	}
	out := make([]models.ArbitrageOpportunity, 0, len(opps))
	for _, o := range opps {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

// AboveNet returns the candidates whose net value is strictly greater than min.
func AboveNet(opps []models.ArbitrageOpportunity, min decimal.Decimal) []models.ArbitrageOpportunity {
	out := make([]models.ArbitrageOpportunity, 0, len(opps))
	for _, o := range opps {
		if o.Net.GreaterThan(min) {
			out = append(out, o)
		}
	}
	return out
}

// PositiveOnly returns the candidates with a net value above zero.
func PositiveOnly(opps []models.ArbitrageOpportunity) []models.ArbitrageOpportunity {
	return AboveNet(opps, decimal.Zero)
}

// SortByNet returns a copy ordered by net value, highest first. Equal values keep their order.
func SortByNet(opps []models.ArbitrageOpportunity) []models.ArbitrageOpportunity {
	out := make([]models.ArbitrageOpportunity, len(opps))
	copy(out, opps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Net.GreaterThan(out[j].Net)
	})
	return out
}

// Best returns the candidate of kind with the highest net value. An empty kind
// considers every candidate; positiveOnly ignores candidates with net <= 0.
func Best(opps []models.ArbitrageOpportunity, kind models.OpportunityKind, positiveOnly bool) (models.ArbitrageOpportunity, bool) {
	var best models.ArbitrageOpportunity
	found := false
	for _, o := range opps {
		if kind != "" && o.Kind != kind {
			continue
		}
		if positiveOnly && !o.Net.IsPositive() {
			continue
		}
		if !found || o.Net.GreaterThan(best.Net) {
			best = o
			found = true
		}
	}
	return best, found
}
