package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps how much of a venue response is read into memory.
const maxBodyBytes = 4 << 20

// Request is an outbound call made by an adapter
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is what a Fetcher hands back. Status interpretation is left to the adapter.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Fetcher is the transport adapters depend on. Implementations may add proxying
// or their own retries; adapters assume neither.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPFetcher is the default Fetcher backed by net/http.
type HTTPFetcher struct {
	HTTPClient *http.Client
	userAgent  string
	logger     *logrus.Logger
}

// NewHTTPFetcher creates a fetcher whose requests time out after timeout (30s when zero).
func NewHTTPFetcher(timeout time.Duration, logger *logrus.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HTTPFetcher{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "Vana-Arb-Go/1.0",
		logger:    logger,
	}
}

// Fetch performs the request and returns the full response body.
func (f *HTTPFetcher) Fetch(ctx context.Context, r *Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range r.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.WithError(err).Debug("Error closing response body")
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	f.logger.WithFields(logrus.Fields{
		"method":      method,
		"url":         r.URL,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Exchange request completed")

	return &Response{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    respBody,
	}, nil
}
