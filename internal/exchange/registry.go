// Package exchange holds the per-venue REST adapters that turn public market
// data into NormalizedQuote values.
package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Venue identifiers.
const (
	VenueBinance = "binance"
	VenueMEXC    = "mexc"
	VenueBitget  = "bitget"
	VenueBybit   = "bybit"
)

// DefaultDepthLimit is the number of levels requested per side.
const DefaultDepthLimit = 20

// Adapter fetches one normalized quote for a symbol on a single venue.
type Adapter interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (*models.NormalizedQuote, error)
}

// Options configures a single adapter
type Options struct {
	BaseURL    string
	DepthLimit int
	Logger     *logrus.Logger
}

func (o Options) withDefaults(baseURL string) Options {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.DepthLimit <= 0 {
		o.DepthLimit = DefaultDepthLimit
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Registry holds the adapters known to the aggregator, keyed by lower-case venue id.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registering the same venue twice is an error.
func (r *Registry) Register(a Adapter) error {
	name := strings.ToLower(a.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("exchange adapter %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("exchange adapter %q not found", name)
	}
	return a, nil
}

// List returns the registered venue ids in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryOptions configures NewDefaultRegistry.
type RegistryOptions struct {
	DepthLimit int
	// BaseURLs overrides the default endpoint per venue id.
	BaseURLs map[string]string
	Logger   *logrus.Logger
}

// NewDefaultRegistry registers the four supported venues on a shared fetcher.
func NewDefaultRegistry(fetcher Fetcher, opts RegistryOptions) *Registry {
	optsFor := func(venue string) Options {
		return Options{
			BaseURL:    opts.BaseURLs[venue],
			DepthLimit: opts.DepthLimit,
			Logger:     opts.Logger,
		}
	}

	r := NewRegistry()
	for _, a := range []Adapter{
		NewBinanceAdapter(fetcher, optsFor(VenueBinance)),
		NewMEXCAdapter(fetcher, optsFor(VenueMEXC)),
		NewBitgetAdapter(fetcher, optsFor(VenueBitget)),
		NewBybitAdapter(fetcher, optsFor(VenueBybit)),
	} {
		// names are distinct constants
		_ = r.Register(a)
	}
	return r
}
