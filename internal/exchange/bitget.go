package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/irfndi/vana-arb-go/internal/models"
	"golang.org/x/sync/errgroup"
)

const DefaultBitgetBaseURL = "https://api.bitget.com/api/v2/spot/market"

const bitgetSuccessCode = "00000"

type bitgetTicker struct {
	Symbol      string `json:"symbol"`
	LastPr      string `json:"lastPr"`
	Open        string `json:"open"`
	OpenPrice   string `json:"openPrice"`
	QuoteVolume string `json:"quoteVolume"`
	QuoteVol    string `json:"quoteVol"`
}

type bitgetTickersResponse struct {
	Code string         `json:"code"`
	Msg  string         `json:"msg"`
	Data []bitgetTicker `json:"data"`
}

type bitgetOrderBookResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Bids []models.RawLevel `json:"bids"`
		Asks []models.RawLevel `json:"asks"`
	} `json:"data"`
}

// BitgetAdapter fetches quotes from the Bitget v2 spot market API.
type BitgetAdapter struct {
	client     *restClient
	depthLimit int
}

func NewBitgetAdapter(fetcher Fetcher, opts Options) *BitgetAdapter {
	opts = opts.withDefaults(DefaultBitgetBaseURL)
	return &BitgetAdapter{
		client:     newRESTClient(VenueBitget, opts.BaseURL, fetcher, opts.Logger),
		depthLimit: opts.DepthLimit,
	}
}

func (a *BitgetAdapter) Name() string { return VenueBitget }

// FetchQuote fetches the ticker and the order book concurrently. The ticker
// carries both price and volume on this venue.
func (a *BitgetAdapter) FetchQuote(ctx context.Context, symbol string) (*models.NormalizedQuote, error) {
	symbol = strings.ToUpper(symbol)

	var (
		tickers bitgetTickersResponse
		book    bitgetOrderBookResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.client.getJSON(gctx, symbol, "/tickers", url.Values{"symbol": {symbol}}, &tickers); err != nil {
			return err
		}
		return a.checkCode(symbol, "/tickers", tickers.Code, tickers.Msg)
	})
	g.Go(func() error {
		params := url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(a.depthLimit)}}
		if err := a.client.getJSON(gctx, symbol, "/orderbook", params, &book); err != nil {
			return err
		}
		return a.checkCode(symbol, "/orderbook", book.Code, book.Msg)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(tickers.Data) == 0 {
		return nil, a.client.parseError(symbol, "data", errors.New("empty ticker list"))
	}
	t := tickers.Data[0]

	lastPrice, err := a.client.pickDecimal(symbol, "lastPr", t.LastPr, t.Open, t.OpenPrice)
	if err != nil {
		return nil, err
	}
	volume, err := a.client.pickDecimal(symbol, "quoteVolume", t.QuoteVolume, t.QuoteVol)
	if err != nil {
		return nil, err
	}

	return a.client.buildQuote(symbol, lastPrice, volume, book.Data.Bids, book.Data.Asks)
}

func (a *BitgetAdapter) checkCode(symbol, path, code, msg string) error {
	if code == bitgetSuccessCode {
		return nil
	}
	return a.client.parseError(symbol, path, fmt.Errorf("code %s: %s", code, msg))
}
