// Package arbitrage enumerates and scores arbitrage candidates over a set of quotes.
//
// Three classes are produced:
//   - pair spread: mid-price divergence between two symbols on one exchange
//   - triangular: a closed loop through three quote assets of one base asset on one exchange
//   - cross-exchange: buy at one quote's best ask, sell at another quote's best bid
//
// Fees are a flat taker fee subtracted once per leg, not compounded. Every
// candidate is returned with its signed net value; choosing the "best" one is
// left to the reducers in reducers.go.
package arbitrage

import (
	"strings"

	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/shopspring/decimal"
)

var (
	DefaultTakerFee    = decimal.NewFromFloat(0.001)
	DefaultQuoteAssets = []string{"USDT", "USDC", "FDUSD"}
)

// Config holds the engine knobs
type Config struct {
	// TakerFee is the per-leg fee. Nil uses DefaultTakerFee; zero is a valid fee.
	TakerFee    *decimal.Decimal
	Kinds       []models.OpportunityKind
	QuoteAssets []string
	// MinNet, when set, drops candidates whose net value is not strictly greater.
	MinNet *decimal.Decimal
}

// Engine scores arbitrage candidates. It keeps no state between calls.
type Engine struct {
	takerFee    decimal.Decimal
	kinds       map[models.OpportunityKind]bool
	quoteAssets []string
	minNet      *decimal.Decimal
}

// NewEngine creates an engine. Empty Kinds enables every kind and an empty
// QuoteAssets uses DefaultQuoteAssets. A nil or negative fee falls back to DefaultTakerFee.
func NewEngine(cfg Config) *Engine {
	fee := DefaultTakerFee
	if cfg.TakerFee != nil && !cfg.TakerFee.IsNegative() {
		fee = *cfg.TakerFee
	}

	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = models.AllOpportunityKinds
	}
	enabled := make(map[models.OpportunityKind]bool, len(kinds))
	for _, k := range kinds {
		enabled[k] = true
	}

	assets := cfg.QuoteAssets
	if len(assets) == 0 {
		assets = DefaultQuoteAssets
	}
	normalized := make([]string, 0, len(assets))
	for _, a := range assets {
		normalized = append(normalized, strings.ToUpper(a))
	}

	return &Engine{
		takerFee:    fee,
		kinds:       enabled,
		quoteAssets: normalized,
		minNet:      cfg.MinNet,
	}
}

// TakerFee returns the per-leg fee in use.
func (e *Engine) TakerFee() decimal.Decimal {
	return e.takerFee
}

// Enabled reports whether kind is evaluated.
func (e *Engine) Enabled(kind models.OpportunityKind) bool {
	return e.kinds[kind]
}

// Evaluate enumerates every enabled kind in the order pair, triangular, cross
// and applies the MinNet filter when configured. The result is not sorted.
func (e *Engine) Evaluate(quotes []models.NormalizedQuote) []models.ArbitrageOpportunity {
	var out []models.ArbitrageOpportunity
	if e.kinds[models.KindPairSpread] {
		out = append(out, e.PairSpreads(quotes)...)
	}
	if e.kinds[models.KindTriangular] {
		out = append(out, e.TriangularCycles(quotes)...)
	}
	if e.kinds[models.KindCrossExchange] {
		out = append(out, e.CrossExchangeSpreads(quotes)...)
	}
	if e.minNet != nil {
		out = AboveNet(out, *e.minNet)
	}
	return out
}

// PairSpreads scores every unordered symbol pair {A,B} on the same exchange:
// gross = |mid(A)/mid(B) - 1|, net = gross - 2*fee.
func (e *Engine) PairSpreads(quotes []models.NormalizedQuote) []models.ArbitrageOpportunity {
	one := decimal.NewFromInt(1)
	fees := e.takerFee.Mul(decimal.NewFromInt(2))

	var out []models.ArbitrageOpportunity
	for _, group := range groupByExchange(quotes) {
		for i := 0; i < len(group.quotes); i++ {
			for j := i + 1; j < len(group.quotes); j++ {
				a, b := group.quotes[i], group.quotes[j]
				if !b.MidPrice.IsPositive() {
					continue
				}
				gross := a.MidPrice.Div(b.MidPrice).Sub(one).Abs()
				out = append(out, models.ArbitrageOpportunity{
					Kind:  models.KindPairSpread,
					Gross: gross,
					Net:   gross.Sub(fees),
					Pair: &models.PairSpread{
						Exchange: group.exchange,
						Symbols:  [2]string{a.Symbol, b.Symbol},
					},
				})
			}
		}
	}
	return out
}

// CrossExchangeSpreads scores every ordered pair (i, j), i != j, of quotes that
// share a base asset: buy at ask(i), sell at bid(j), gross = bid(j)/ask(i) - 1,
// net = gross - 2*fee. Both directions are emitted.
func (e *Engine) CrossExchangeSpreads(quotes []models.NormalizedQuote) []models.ArbitrageOpportunity {
	one := decimal.NewFromInt(1)
	fees := e.takerFee.Mul(decimal.NewFromInt(2))

	bases := make([]string, len(quotes))
	for i := range quotes {
		bases[i] = e.baseOf(quotes[i].Symbol)
	}

	var out []models.ArbitrageOpportunity
	for i := range quotes {
		buy := &quotes[i]
		ask := buy.BestAsk()
		if !ask.IsPositive() {
			continue
		}
		for j := range quotes {
			if i == j || bases[i] != bases[j] {
				continue
			}
			sell := &quotes[j]
			bid := sell.BestBid()
			if !bid.IsPositive() {
				continue
			}
			gross := bid.Div(ask).Sub(one)
			out = append(out, models.ArbitrageOpportunity{
				Kind:  models.KindCrossExchange,
				Gross: gross,
				Net:   gross.Sub(fees),
				Cross: &models.CrossExchangeSpread{
					BuyVenue:   buy.Exchange,
					BuySymbol:  buy.Symbol,
					BuyPrice:   ask,
					SellVenue:  sell.Exchange,
					SellSymbol: sell.Symbol,
					SellPrice:  bid,
				},
			})
		}
	}
	return out
}

// SplitSymbol splits a concatenated symbol such as "VANAFDUSD" into base and
// quote using the longest matching quote asset.
func SplitSymbol(symbol string, quoteAssets []string) (base, quote string, ok bool) {
	upper := strings.ToUpper(symbol)
	for _, q := range quoteAssets {
		q = strings.ToUpper(q)
		if len(q) >= len(upper) || !strings.HasSuffix(upper, q) {
			continue
		}
		if len(q) > len(quote) {
			quote = q
		}
	}
	if quote == "" {
		return "", "", false
	}
	return upper[:len(upper)-len(quote)], quote, true
}

// baseOf returns the base asset of symbol, or the whole symbol when no quote asset matches.
func (e *Engine) baseOf(symbol string) string {
	if base, _, ok := SplitSymbol(symbol, e.quoteAssets); ok {
		return base
	}
	return strings.ToUpper(symbol)
}

type exchangeGroup struct {
	exchange string
	quotes   []*models.NormalizedQuote
}

// groupByExchange keeps exchanges and their quotes in first-seen order.
func groupByExchange(quotes []models.NormalizedQuote) []exchangeGroup {
	index := make(map[string]int)
	var groups []exchangeGroup
	for i := range quotes {
		q := &quotes[i]
		idx, ok := index[q.Exchange]
		if !ok {
			idx = len(groups)
			index[q.Exchange] = idx
			groups = append(groups, exchangeGroup{exchange: q.Exchange})
		}
		groups[idx].quotes = append(groups[idx].quotes, q)
	}
	return groups
}
