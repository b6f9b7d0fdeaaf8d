package arbitrage

import (
	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/shopspring/decimal"
)

// TriangularCycles scores closed loops through three quote assets of the same
// base asset on one exchange.
//
// A leg X -> Y buys the base with X at ask(BASE/X) and sells it for Y at
// bid(BASE/Y), so its rate is bid(Y)/ask(X). Quote assets are treated as 1:1,
// which ignores the spread of the stablecoin pairs themselves.
//
// For each 3-combination (a, b, c) of quote assets, taken in configured order,
// exactly two directed cycles are reported, both starting at a:
// a -> b -> c -> a and a -> c -> b -> a. Rotations of these are the same cycle
// and are not repeated. gross = product of the leg rates - 1, net = gross - 3*fee.
func (e *Engine) TriangularCycles(quotes []models.NormalizedQuote) []models.ArbitrageOpportunity {
	one := decimal.NewFromInt(1)
	fees := e.takerFee.Mul(decimal.NewFromInt(3))

	var out []models.ArbitrageOpportunity
	for _, group := range groupByExchange(quotes) {
		for _, book := range e.booksByBase(group.quotes) {
			assets := book.assetsIn(e.quoteAssets)
			for i := 0; i < len(assets); i++ {
				for j := i + 1; j < len(assets); j++ {
					for k := j + 1; k < len(assets); k++ {
						a, b, c := assets[i], assets[j], assets[k]
						for _, path := range [][]string{{a, b, c, a}, {a, c, b, a}} {
							product, ok := book.cycleProduct(path)
							if !ok {
								continue
							}
							gross := product.Sub(one)
							out = append(out, models.ArbitrageOpportunity{
								Kind:  models.KindTriangular,
								Gross: gross,
								Net:   gross.Sub(fees),
								Triangular: &models.TriangularCycle{
									Exchange: group.exchange,
									Base:     book.base,
									Path:     path,
								},
							})
						}
					}
				}
			}
		}
	}
	return out
}

// baseBook holds one exchange's quotes of a single base asset, keyed by quote asset.
type baseBook struct {
	base   string
	quotes map[string]*models.NormalizedQuote
}

// assetsIn returns the quote assets present in the book, in configured order.
func (b *baseBook) assetsIn(order []string) []string {
	var present []string
	for _, a := range order {
		if _, ok := b.quotes[a]; ok {
			present = append(present, a)
		}
	}
	return present
}

// cycleProduct multiplies bid(next)/ask(current) over every leg of path.
func (b *baseBook) cycleProduct(path []string) (decimal.Decimal, bool) {
	product := decimal.NewFromInt(1)
	for i := 0; i+1 < len(path); i++ {
		from, to := b.quotes[path[i]], b.quotes[path[i+1]]
		ask := from.BestAsk()
		bid := to.BestBid()
		if !ask.IsPositive() || !bid.IsPositive() {
			return decimal.Zero, false
		}
		product = product.Mul(bid.Div(ask))
	}
	return product, true
}

// booksByBase splits an exchange's quotes by base asset. The first quote seen
// for a given base/quote combination wins.
func (e *Engine) booksByBase(quotes []*models.NormalizedQuote) []*baseBook {
	index := make(map[string]*baseBook)
	var books []*baseBook
	for _, q := range quotes {
		base, quote, ok := SplitSymbol(q.Symbol, e.quoteAssets)
		if !ok {
			continue
		}
		book, exists := index[base]
		if !exists {
			book = &baseBook{base: base, quotes: make(map[string]*models.NormalizedQuote)}
			index[base] = book
			books = append(books, book)
		}
		if _, dup := book.quotes[quote]; !dup {
			book.quotes[quote] = q
		}
	}
	return books
}
