package models

import (
	"github.com/shopspring/decimal"
)

// OpportunityKind tags the variant of an ArbitrageOpportunity
type OpportunityKind string

const (
	KindPairSpread    OpportunityKind = "pair_spread"
	KindTriangular    OpportunityKind = "triangular"
	KindCrossExchange OpportunityKind = "cross_exchange"
)

// AllOpportunityKinds lists every kind in evaluation order.
var AllOpportunityKinds = []OpportunityKind{KindPairSpread, KindTriangular, KindCrossExchange}

// Valid reports whether k is a known kind.
func (k OpportunityKind) Valid() bool {
	switch k {
	case KindPairSpread, KindTriangular, KindCrossExchange:
		return true
	}
	return false
}

// PairSpread is the mid-price divergence between two symbols on one exchange
type PairSpread struct {
	Exchange string    `json:"exchange"`
	Symbols  [2]string `json:"symbols"`
}

// TriangularCycle is a closed loop through quote assets of one base asset on one exchange.
// Path starts and ends with the same asset, e.g. [USDT USDC FDUSD USDT].
type TriangularCycle struct {
	Exchange string   `json:"exchange"`
	Base     string   `json:"base"`
	Path     []string `json:"path"`
}

// CrossExchangeSpread buys at the ask of one quote and sells at the bid of another
type CrossExchangeSpread struct {
	BuyVenue   string          `json:"buy_venue"`
	BuySymbol  string          `json:"buy_symbol"`
	BuyPrice   decimal.Decimal `json:"buy_price"`
	SellVenue  string          `json:"sell_venue"`
	SellSymbol string          `json:"sell_symbol"`
	SellPrice  decimal.Decimal `json:"sell_price"`
}

// ArbitrageOpportunity is one scored candidate. Gross and Net are signed;
// exactly one of Pair, Triangular or Cross is set according to Kind.
type ArbitrageOpportunity struct {
	Kind       OpportunityKind      `json:"kind"`
	Gross      decimal.Decimal      `json:"gross"`
	Net        decimal.Decimal      `json:"net"`
	Pair       *PairSpread          `json:"pair,omitempty"`
	Triangular *TriangularCycle     `json:"triangular,omitempty"`
	Cross      *CrossExchangeSpread `json:"cross_exchange,omitempty"`
}

// Exchanges returns the venues involved in the opportunity.
func (o *ArbitrageOpportunity) Exchanges() []string {
	switch {
	case o.Pair != nil:
		return []string{o.Pair.Exchange}
	case o.Triangular != nil:
		return []string{o.Triangular.Exchange}
	case o.Cross != nil:
		return []string{o.Cross.BuyVenue, o.Cross.SellVenue}
	}
	return nil
}
