package arbitrage

import (
	"testing"

	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fee(s string) *decimal.Decimal {
	f := d(s)
	return &f
}

// quote builds a one-level book with the given best bid and ask
func quote(exchange, symbol, bid, ask string) models.NormalizedQuote {
	b, a := d(bid), d(ask)
	return models.NormalizedQuote{
		Exchange: exchange,
		Symbol:   symbol,
		MidPrice: b.Add(a).Div(decimal.NewFromInt(2)),
		Bids:     models.OrderBookSide{{Price: b, Size: d("1"), Total: d("1")}},
		Asks:     models.OrderBookSide{{Price: a, Size: d("1"), Total: d("1")}},
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(Config{})

	assert.True(t, e.TakerFee().Equal(d("0.001")))
	for _, k := range models.AllOpportunityKinds {
		assert.True(t, e.Enabled(k))
	}
	assert.Equal(t, []string{"USDT", "USDC", "FDUSD"}, e.quoteAssets)
}

func TestNewEngine_ZeroFee(t *testing.T) {
	e := NewEngine(Config{TakerFee: fee("0")})
	assert.True(t, e.TakerFee().IsZero())

	quotes := []models.NormalizedQuote{
		quote("binance", "VANAUSDT", "99", "100"),
		quote("bybit", "VANAUSDT", "104", "105"),
		quote("binance", "VANAUSDC", "100", "101"),
	}
	opps := e.Evaluate(quotes)
	require.NotEmpty(t, opps)
	for _, o := range opps {
		assert.True(t, o.Net.Equal(o.Gross), "%s net %s gross %s", o.Kind, o.Net, o.Gross)
	}

	assert.True(t, NewEngine(Config{TakerFee: fee("-0.5")}).TakerFee().Equal(DefaultTakerFee))
}

func TestSplitSymbol(t *testing.T) {
	assets := []string{"USDT", "USDC", "FDUSD", "USD"}
	tests := []struct {
		symbol, base, quote string
		ok                  bool
	}{
		{"VANAUSDT", "VANA", "USDT", true},
		{"vanausdc", "VANA", "USDC", true},
		{"VANAFDUSD", "VANA", "FDUSD", true},
		{"VANABTC", "", "", false},
		{"USDT", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			base, q, ok := SplitSymbol(tt.symbol, assets)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.quote, q)
		})
	}
}

func TestEngine_PairSpreads(t *testing.T) {
	e := NewEngine(Config{TakerFee: fee("0.001")})

	t.Run("net spread of 1.00 vs 1.01", func(t *testing.T) {
		opps := e.PairSpreads([]models.NormalizedQuote{
			quote("binance", "VANAUSDT", "1.00", "1.00"),
			quote("binance", "VANAUSDC", "1.01", "1.01"),
		})
		require.Len(t, opps, 1)

		opp := opps[0]
		assert.Equal(t, models.KindPairSpread, opp.Kind)
		require.NotNil(t, opp.Pair)
		assert.Equal(t, [2]string{"VANAUSDT", "VANAUSDC"}, opp.Pair.Symbols)
		assert.Equal(t, "binance", opp.Pair.Exchange)
		assert.Equal(t, "0.0079", opp.Net.Round(4).String())
		assert.True(t, opp.Net.Equal(opp.Gross.Sub(d("0.002"))))
	})

	t.Run("C(n,2) pairs per exchange", func(t *testing.T) {
		opps := e.PairSpreads([]models.NormalizedQuote{
			quote("binance", "VANAUSDT", "1.00", "1.00"),
			quote("mexc", "VANAUSDT", "1.00", "1.00"),
			quote("binance", "VANAUSDC", "1.01", "1.01"),
			quote("binance", "VANAFDUSD", "1.02", "1.02"),
		})
		// three symbols on binance, one on mexc
		assert.Len(t, opps, 3)
		for _, o := range opps {
			assert.Equal(t, "binance", o.Pair.Exchange)
		}
	})

	t.Run("signed net below zero is kept", func(t *testing.T) {
		opps := e.PairSpreads([]models.NormalizedQuote{
			quote("binance", "VANAUSDT", "1.000", "1.000"),
			quote("binance", "VANAUSDC", "1.001", "1.001"),
		})
		require.Len(t, opps, 1)
		assert.True(t, opps[0].Net.IsNegative())
	})
}

func TestEngine_CrossExchangeSpreads(t *testing.T) {
	e := NewEngine(Config{TakerFee: fee("0.001")})
	q1 := quote("binance", "VANAUSDT", "99", "100")
	q2 := quote("bybit", "VANAUSDT", "104", "105")

	opps := e.CrossExchangeSpreads([]models.NormalizedQuote{q1, q2})
	require.Len(t, opps, 2)

	forward := opps[0]
	require.NotNil(t, forward.Cross)
	assert.Equal(t, "binance", forward.Cross.BuyVenue)
	assert.Equal(t, "bybit", forward.Cross.SellVenue)
	assert.True(t, forward.Cross.BuyPrice.Equal(d("100")))
	assert.True(t, forward.Cross.SellPrice.Equal(d("104")))
	assert.True(t, forward.Net.Equal(d("0.038")), forward.Net.String())

	reverse := opps[1]
	assert.Equal(t, "bybit", reverse.Cross.BuyVenue)
	assert.Equal(t, "binance", reverse.Cross.SellVenue)
	expected := d("99").Div(d("105")).Sub(d("1")).Sub(d("0.002"))
	assert.True(t, reverse.Net.Equal(expected), reverse.Net.String())
	assert.Equal(t, "-0.05914", reverse.Net.Round(5).String())

	// direction matters and the scores are not mirror images
	assert.False(t, reverse.Net.Equal(forward.Net.Neg()))
}

func TestEngine_CrossExchangeSpreads_OrderedPairs(t *testing.T) {
	e := NewEngine(Config{})
	quotes := []models.NormalizedQuote{
		quote("binance", "VANAUSDT", "1.00", "1.01"),
		quote("mexc", "VANAUSDT", "1.00", "1.01"),
		quote("bitget", "VANAUSDT", "1.00", "1.01"),
		quote("bybit", "VANAUSDT", "1.00", "1.01"),
	}

	opps := e.CrossExchangeSpreads(quotes)
	// n*(n-1) ordered pairs
	assert.Len(t, opps, 12)

	seen := make(map[string]bool)
	for _, o := range opps {
		assert.NotEqual(t, o.Cross.BuyVenue, o.Cross.SellVenue)
		key := o.Cross.BuyVenue + ">" + o.Cross.SellVenue
		assert.False(t, seen[key], "duplicate %s", key)
		seen[key] = true
	}
}

func TestEngine_CrossExchangeSpreads_SkipsOtherBases(t *testing.T) {
	e := NewEngine(Config{})
	opps := e.CrossExchangeSpreads([]models.NormalizedQuote{
		quote("binance", "VANAUSDT", "1.00", "1.01"),
		quote("bybit", "BTCUSDT", "60000", "60001"),
	})
	assert.Empty(t, opps)
}

func TestEngine_CrossExchangeSpreads_SkipsEmptySides(t *testing.T) {
	e := NewEngine(Config{})
	noAsks := quote("binance", "VANAUSDT", "1.00", "1.01")
	noAsks.Asks = nil

	opps := e.CrossExchangeSpreads([]models.NormalizedQuote{noAsks, quote("mexc", "VANAUSDT", "1.00", "1.01")})
	// only mexc -> binance remains
	require.Len(t, opps, 1)
	assert.Equal(t, "mexc", opps[0].Cross.BuyVenue)
}

func TestEngine_Evaluate_Kinds(t *testing.T) {
	quotes := []models.NormalizedQuote{
		quote("binance", "VANAUSDT", "1.00", "1.01"),
		quote("binance", "VANAUSDC", "1.00", "1.01"),
		quote("mexc", "VANAUSDT", "1.00", "1.01"),
	}

	e := NewEngine(Config{Kinds: []models.OpportunityKind{models.KindCrossExchange}})
	for _, o := range e.Evaluate(quotes) {
		assert.Equal(t, models.KindCrossExchange, o.Kind)
	}

	all := NewEngine(Config{}).Evaluate(quotes)
	// 1 pair + 0 triangular + 3*2 cross
	assert.Len(t, all, 7)
	assert.Equal(t, models.KindPairSpread, all[0].Kind)
}

func TestEngine_Evaluate_MinNetFilter(t *testing.T) {
	minNet := d("0.0025")
	e := NewEngine(Config{TakerFee: fee("0.001"), Kinds: []models.OpportunityKind{models.KindCrossExchange}, MinNet: &minNet})

	opps := e.Evaluate([]models.NormalizedQuote{
		quote("binance", "VANAUSDT", "99", "100"),
		quote("bybit", "VANAUSDT", "104", "105"),
	})
	require.Len(t, opps, 1)
	assert.Equal(t, "binance", opps[0].Cross.BuyVenue)

	// the threshold itself is excluded
	exact := d("0.038")
	e = NewEngine(Config{TakerFee: fee("0.001"), Kinds: []models.OpportunityKind{models.KindCrossExchange}, MinNet: &exact})
	assert.Empty(t, e.Evaluate([]models.NormalizedQuote{
		quote("binance", "VANAUSDT", "99", "100"),
		quote("bybit", "VANAUSDT", "104", "105"),
	}))
}
