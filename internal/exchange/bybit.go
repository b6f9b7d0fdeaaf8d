package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/irfndi/vana-arb-go/internal/utils"
	"golang.org/x/sync/errgroup"
)

const DefaultBybitBaseURL = "https://api.bybit.com/spot/v3/public"

// bybitRateLimitCode is the retCode Bybit answers with when the IP is throttled.
const bybitRateLimitCode = 10006

type bybitEnvelope[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
}

type bybitPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type bybitTicker24hr struct {
	Symbol      string `json:"s"`
	QuoteVolume string `json:"quoteVolume"`
	QV          string `json:"qv"`
}

type bybitDepth struct {
	Bids []models.RawLevel `json:"bids"`
	Asks []models.RawLevel `json:"asks"`
}

// BybitAdapter fetches quotes from the Bybit v3 spot public API.
type BybitAdapter struct {
	client     *restClient
	depthLimit int
}

func NewBybitAdapter(fetcher Fetcher, opts Options) *BybitAdapter {
	opts = opts.withDefaults(DefaultBybitBaseURL)
	return &BybitAdapter{
		client:     newRESTClient(VenueBybit, opts.BaseURL, fetcher, opts.Logger),
		depthLimit: opts.DepthLimit,
	}
}

func (a *BybitAdapter) Name() string { return VenueBybit }

func (a *BybitAdapter) FetchQuote(ctx context.Context, symbol string) (*models.NormalizedQuote, error) {
	symbol = strings.ToUpper(symbol)

	var (
		price  bybitEnvelope[bybitPrice]
		ticker bybitEnvelope[bybitTicker24hr]
		depth  bybitEnvelope[bybitDepth]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.client.getJSON(gctx, symbol, "/quote/ticker/price", url.Values{"symbol": {symbol}}, &price); err != nil {
			return err
		}
		return a.checkRetCode(symbol, "/quote/ticker/price", price.RetCode, price.RetMsg)
	})
	g.Go(func() error {
		if err := a.client.getJSON(gctx, symbol, "/quote/ticker/24hr", url.Values{"symbol": {symbol}}, &ticker); err != nil {
			return err
		}
		return a.checkRetCode(symbol, "/quote/ticker/24hr", ticker.RetCode, ticker.RetMsg)
	})
	g.Go(func() error {
		params := url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(a.depthLimit)}}
		if err := a.client.getJSON(gctx, symbol, "/quote/depth", params, &depth); err != nil {
			return err
		}
		return a.checkRetCode(symbol, "/quote/depth", depth.RetCode, depth.RetMsg)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lastPrice, err := a.client.pickDecimal(symbol, "price", price.Result.Price)
	if err != nil {
		return nil, err
	}
	volume, err := a.client.pickDecimal(symbol, "quoteVolume", ticker.Result.QuoteVolume, ticker.Result.QV)
	if err != nil {
		return nil, err
	}

	return a.client.buildQuote(symbol, lastPrice, volume, depth.Result.Bids, depth.Result.Asks)
}

func (a *BybitAdapter) checkRetCode(symbol, path string, code int, msg string) error {
	switch code {
	case 0:
		return nil
	case bybitRateLimitCode:
		return utils.NewFetchError(VenueBybit, symbol, 0, &utils.RateLimitError{Venue: VenueBybit})
	default:
		return a.client.parseError(symbol, path, fmt.Errorf("retCode %d: %s", code, msg))
	}
}
