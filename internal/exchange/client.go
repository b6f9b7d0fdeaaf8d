package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/irfndi/vana-arb-go/internal/orderbook"
	"github.com/irfndi/vana-arb-go/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// restClient issues JSON GET requests against one venue and classifies failures.
type restClient struct {
	venue   string
	baseURL string
	fetcher Fetcher
	logger  *logrus.Logger
}

func newRESTClient(venue, baseURL string, fetcher Fetcher, logger *logrus.Logger) *restClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &restClient{
		venue:   venue,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		fetcher: fetcher,
		logger:  logger,
	}
}

// getJSON fetches path with params and decodes the body into out. Every error
// it returns is a *utils.FetchError.
func (c *restClient) getJSON(ctx context.Context, symbol, path string, params url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	resp, err := c.fetcher.Fetch(ctx, &Request{Method: http.MethodGet, URL: target})
	if err != nil {
		return utils.NewFetchError(c.venue, symbol, 0, err)
	}

	switch {
	case resp.Status == http.StatusTooManyRequests:
		return utils.NewFetchError(c.venue, symbol, resp.Status, &utils.RateLimitError{
			Venue:      c.venue,
			RetryAfter: parseRetryAfter(resp.Headers),
		})
	case resp.Status < 200 || resp.Status >= 300:
		c.logger.WithFields(logrus.Fields{
			"exchange": c.venue,
			"symbol":   symbol,
			"status":   resp.Status,
			"body":     truncate(string(resp.Body), 256),
		}).Debug("Exchange returned non-2xx status")
		return utils.NewFetchError(c.venue, symbol, resp.Status,
			fmt.Errorf("unexpected status %d from %s", resp.Status, path))
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return utils.NewFetchError(c.venue, symbol, resp.Status,
			&utils.ParseError{Venue: c.venue, Field: path, Cause: err})
	}
	return nil
}

// parseError builds a FetchError carrying a ParseError for field.
func (c *restClient) parseError(symbol, field string, cause error) error {
	return utils.NewFetchError(c.venue, symbol, 0, &utils.ParseError{Venue: c.venue, Field: field, Cause: cause})
}

// pickDecimal parses the first non-empty candidate.
func (c *restClient) pickDecimal(symbol, field string, candidates ...string) (decimal.Decimal, error) {
	for _, s := range candidates {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, c.parseError(symbol, field, err)
		}
		return v, nil
	}
	return decimal.Zero, c.parseError(symbol, field, errors.New("missing value"))
}

// buildQuote normalizes the raw book and resolves the mid price. A book that
// cannot be parsed, or that leaves no usable price, fails the whole quote.
func (c *restClient) buildQuote(symbol string, lastPrice, quoteVolume decimal.Decimal, rawBids, rawAsks []models.RawLevel) (*models.NormalizedQuote, error) {
	bids, asks, err := orderbook.NormalizeBook(rawBids, rawAsks)
	if err != nil {
		return nil, c.parseError(symbol, "depth", err)
	}

	mid, err := orderbook.MidPrice(bids, asks, lastPrice)
	if err != nil {
		return nil, c.parseError(symbol, "price", err)
	}

	return &models.NormalizedQuote{
		Exchange:    c.venue,
		Symbol:      symbol,
		LastPrice:   lastPrice,
		QuoteVolume: quoteVolume,
		MidPrice:    mid,
		Bids:        bids,
		Asks:        asks,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
