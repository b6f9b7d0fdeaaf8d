// Package liquidity measures quote-notional depth around the mid price.
package liquidity

import (
	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/shopspring/decimal"
)

var (
	DefaultBandPercent  = decimal.NewFromFloat(0.02)
	DefaultThresholdUSD = decimal.NewFromInt(60000)
)

// Analyzer computes depth inside a symmetric band around the mid price.
// It holds no state besides its parameters.
type Analyzer struct {
	BandPercent  decimal.Decimal
	ThresholdUSD decimal.Decimal
}

// Report is the result of analyzing one quote
type Report struct {
	Band         models.LiquidityBand
	DepthUSD     models.DepthUSD
	LowLiquidity models.LowLiquidity
}

// NewAnalyzer creates an analyzer. A non-positive band or a negative threshold
// falls back to its default. A zero threshold never flags a side as low.
func NewAnalyzer(bandPercent, thresholdUSD decimal.Decimal) *Analyzer {
	if !bandPercent.IsPositive() {
		bandPercent = DefaultBandPercent
	}
	if thresholdUSD.IsNegative() {
		thresholdUSD = DefaultThresholdUSD
	}
	return &Analyzer{
		BandPercent:  bandPercent,
		ThresholdUSD: thresholdUSD,
	}
}

// NewDefaultAnalyzer uses DefaultBandPercent and DefaultThresholdUSD.
func NewDefaultAnalyzer() *Analyzer {
	return NewAnalyzer(DefaultBandPercent, DefaultThresholdUSD)
}

// Band returns [mid*(1-band), mid*(1+band)].
func (a *Analyzer) Band(mid decimal.Decimal) models.LiquidityBand {
	one := decimal.NewFromInt(1)
	return models.LiquidityBand{
		Lower: mid.Mul(one.Sub(a.BandPercent)),
		Upper: mid.Mul(one.Add(a.BandPercent)),
	}
}

// Analyze sums price*size of the levels inside the band on each side and flags
// sides whose depth is strictly below the threshold.
func (a *Analyzer) Analyze(q *models.NormalizedQuote) Report {
	band := a.Band(q.MidPrice)
	depth := models.DepthUSD{
		Bids: depthWithin(q.Bids, band),
		Asks: depthWithin(q.Asks, band),
	}
	return Report{
		Band:     band,
		DepthUSD: depth,
		LowLiquidity: models.LowLiquidity{
			Bids: depth.Bids.LessThan(a.ThresholdUSD),
			Asks: depth.Asks.LessThan(a.ThresholdUSD),
		},
	}
}

// Annotate returns a copy of q carrying the analysis result.
func (a *Analyzer) Annotate(q models.NormalizedQuote) models.NormalizedQuote {
	report := a.Analyze(&q)
	q.Band = report.Band
	q.DepthUSD = report.DepthUSD
	q.LowLiquidity = report.LowLiquidity
	return q
}

func depthWithin(side models.OrderBookSide, band models.LiquidityBand) decimal.Decimal {
	sum := decimal.Zero
	for _, lvl := range side {
		if band.Contains(lvl.Price) {
			sum = sum.Add(lvl.Notional())
		}
	}
	return sum
}
