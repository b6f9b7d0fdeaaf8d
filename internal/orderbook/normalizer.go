// Package orderbook turns raw venue depth into canonically ordered book sides.
package orderbook

import (
	"errors"
	"fmt"
	"sort"

	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/shopspring/decimal"
)

// Side selects the sort direction of a book side
type Side int

const (
	Bids Side = iota
	Asks
)

func (s Side) String() string {
	if s == Bids {
		return "bids"
	}
	return "asks"
}

// ErrNoPriceSource is returned when neither the book nor the last price yields a usable price.
var ErrNoPriceSource = errors.New("no usable price: order book side empty and last price not positive")

// Normalize parses raw levels, sorts them best price first and fills the running totals.
// Ties keep the order the venue returned them in. An empty input yields an empty side.
func Normalize(raw []models.RawLevel, side Side) (models.OrderBookSide, error) {
	levels := make(models.OrderBookSide, 0, len(raw))
	for i, r := range raw {
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, fmt.Errorf("%s[%d] price %q: %w", side, i, r[0], err)
		}
		size, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, fmt.Errorf("%s[%d] size %q: %w", side, i, r[1], err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("%s[%d] price %s is not positive", side, i, price)
		}
		if size.IsNegative() {
			return nil, fmt.Errorf("%s[%d] size %s is negative", side, i, size)
		}
		levels = append(levels, models.OrderBookLevel{Price: price, Size: size})
	}

	sort.SliceStable(levels, func(i, j int) bool {
		if side == Bids {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})

	total := decimal.Zero
	for i := range levels {
		total = total.Add(levels[i].Size)
		levels[i].Total = total
	}
	return levels, nil
}

// NormalizeBook normalizes both sides of a book.
func NormalizeBook(rawBids, rawAsks []models.RawLevel) (models.OrderBookSide, models.OrderBookSide, error) {
	bids, err := Normalize(rawBids, Bids)
	if err != nil {
		return nil, nil, err
	}
	asks, err := Normalize(rawAsks, Asks)
	if err != nil {
		return nil, nil, err
	}
	return bids, asks, nil
}

// MidPrice applies the price fallback rule: the average of best bid and best ask
// when both sides have levels, otherwise lastPrice when it is positive.
func MidPrice(bids, asks models.OrderBookSide, lastPrice decimal.Decimal) (decimal.Decimal, error) {
	bestBid, hasBid := bids.Best()
	bestAsk, hasAsk := asks.Best()
	if hasBid && hasAsk {
		return bestBid.Price.Add(bestAsk.Price).Div(decimal.NewFromInt(2)), nil
	}
	if lastPrice.IsPositive() {
		return lastPrice, nil
	}
	return decimal.Zero, ErrNoPriceSource
}
