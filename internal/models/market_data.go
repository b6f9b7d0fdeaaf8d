package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawLevel is a depth entry exactly as a venue returns it: [price, size].
type RawLevel [2]string

// OrderBookLevel is one depth-of-book entry with the cumulative size up to and including it
type OrderBookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Total decimal.Decimal `json:"total"`
}

// Notional returns price * size.
func (l OrderBookLevel) Notional() decimal.Decimal {
	return l.Price.Mul(l.Size)
}

// OrderBookSide holds levels best price first: bids descending, asks ascending.
type OrderBookSide []OrderBookLevel

// Best returns the top-of-book level.
func (s OrderBookSide) Best() (OrderBookLevel, bool) {
	if len(s) == 0 {
		return OrderBookLevel{}, false
	}
	return s[0], true
}

// BestPrice returns the top-of-book price, zero when the side is empty.
func (s OrderBookSide) BestPrice() decimal.Decimal {
	if len(s) == 0 {
		return decimal.Zero
	}
	return s[0].Price
}

// LiquidityBand is the inclusive price range used to measure depth
type LiquidityBand struct {
	Lower decimal.Decimal `json:"lower"`
	Upper decimal.Decimal `json:"upper"`
}

// Contains reports whether price lies within [Lower, Upper].
func (b LiquidityBand) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(b.Lower) && price.LessThanOrEqual(b.Upper)
}

// DepthUSD is the quote-notional depth on each side inside the band
type DepthUSD struct {
	Bids decimal.Decimal `json:"bids"`
	Asks decimal.Decimal `json:"asks"`
}

// LowLiquidity flags sides whose depth is below the configured threshold
type LowLiquidity struct {
	Bids bool `json:"bids"`
	Asks bool `json:"asks"`
}

// NormalizedQuote is the per-venue, per-symbol unit the pipeline works on
type NormalizedQuote struct {
	Exchange     string          `json:"exchange"`
	Symbol       string          `json:"symbol"`
	LastPrice    decimal.Decimal `json:"last_price"`
	QuoteVolume  decimal.Decimal `json:"quote_volume"`
	MidPrice     decimal.Decimal `json:"mid_price"`
	Bids         OrderBookSide   `json:"bids"`
	Asks         OrderBookSide   `json:"asks"`
	Band         LiquidityBand   `json:"band"`
	DepthUSD     DepthUSD        `json:"depth_usd"`
	LowLiquidity LowLiquidity    `json:"low_liquidity"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// BestBid returns the highest bid, zero when there are no bids.
func (q *NormalizedQuote) BestBid() decimal.Decimal {
	return q.Bids.BestPrice()
}

// BestAsk returns the lowest ask, zero when there are no asks.
func (q *NormalizedQuote) BestAsk() decimal.Decimal {
	return q.Asks.BestPrice()
}

// Key identifies the quote as "exchange:symbol".
func (q *NormalizedQuote) Key() string {
	return q.Exchange + ":" + q.Symbol
}
