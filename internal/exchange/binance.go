package exchange

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/irfndi/vana-arb-go/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBinanceBaseURL = "https://api.binance.com/api/v3"
	DefaultMEXCBaseURL    = "https://api.mexc.com/api/v3"
)

type binanceTickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type binanceTicker24hr struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

type binanceDepth struct {
	Bids []models.RawLevel `json:"bids"`
	Asks []models.RawLevel `json:"asks"`
}

// BinanceAdapter fetches quotes from the Binance spot REST API. MEXC exposes
// the same v3 shapes and is served by the same adapter under its own name.
type BinanceAdapter struct {
	name       string
	client     *restClient
	depthLimit int
}

// NewBinanceAdapter creates the Binance adapter.
func NewBinanceAdapter(fetcher Fetcher, opts Options) *BinanceAdapter {
	return newBinanceStyleAdapter(VenueBinance, DefaultBinanceBaseURL, fetcher, opts)
}

// NewMEXCAdapter creates the MEXC adapter.
func NewMEXCAdapter(fetcher Fetcher, opts Options) *BinanceAdapter {
	return newBinanceStyleAdapter(VenueMEXC, DefaultMEXCBaseURL, fetcher, opts)
}

func newBinanceStyleAdapter(name, defaultBaseURL string, fetcher Fetcher, opts Options) *BinanceAdapter {
	opts = opts.withDefaults(defaultBaseURL)
	return &BinanceAdapter{
		name:       name,
		client:     newRESTClient(name, opts.BaseURL, fetcher, opts.Logger),
		depthLimit: opts.DepthLimit,
	}
}

func (a *BinanceAdapter) Name() string { return a.name }

// FetchQuote issues the price, 24h ticker and depth requests concurrently.
func (a *BinanceAdapter) FetchQuote(ctx context.Context, symbol string) (*models.NormalizedQuote, error) {
	symbol = strings.ToUpper(symbol)

	var (
		price  binanceTickerPrice
		ticker binanceTicker24hr
		depth  binanceDepth
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.client.getJSON(gctx, symbol, "/ticker/price", url.Values{"symbol": {symbol}}, &price)
	})
	g.Go(func() error {
		return a.client.getJSON(gctx, symbol, "/ticker/24hr", url.Values{"symbol": {symbol}}, &ticker)
	})
	g.Go(func() error {
		params := url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(a.depthLimit)}}
		return a.client.getJSON(gctx, symbol, "/depth", params, &depth)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lastPrice, err := a.client.pickDecimal(symbol, "price", price.Price)
	if err != nil {
		return nil, err
	}
	volume, err := a.client.pickDecimal(symbol, "quoteVolume", ticker.QuoteVolume)
	if err != nil {
		return nil, err
	}

	return a.client.buildQuote(symbol, lastPrice, volume, depth.Bids, depth.Asks)
}
