package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irfndi/vana-arb-go/internal/models"
	"github.com/irfndi/vana-arb-go/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Environment    string               `mapstructure:"environment"`
	LogLevel       string               `mapstructure:"log_level"`
	Server         ServerConfig         `mapstructure:"server"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Market         MarketConfig         `mapstructure:"market"`
	Liquidity      LiquidityConfig      `mapstructure:"liquidity"`
	Arbitrage      ArbitrageConfig      `mapstructure:"arbitrage"`
	Cache          CacheConfig          `mapstructure:"cache"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Telegram       TelegramConfig       `mapstructure:"telegram"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
	Admin          AdminConfig          `mapstructure:"admin"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password" json:"-"`
	DB       int    `mapstructure:"db"`
}

// MarketConfig selects the venues and symbols polled each cycle.
type MarketConfig struct {
	Exchanges          []string            `mapstructure:"exchanges"`
	DefaultSymbols     []string            `mapstructure:"default_symbols"`
	Symbols            map[string][]string `mapstructure:"symbols"`
	DepthLimit         int                 `mapstructure:"depth_limit"`
	RequestTimeout     string              `mapstructure:"request_timeout"`
	AggregationTimeout string              `mapstructure:"aggregation_timeout"`
	RefreshInterval    string              `mapstructure:"refresh_interval"`
	BaseURLs           map[string]string   `mapstructure:"base_urls"`
	// MaxRetries is how often a transient venue failure is retried within a cycle.
	MaxRetries int    `mapstructure:"max_retries"`
	RetryDelay string `mapstructure:"retry_delay"`
}

type LiquidityConfig struct {
	BandPercent              float64 `mapstructure:"band_percent"`
	LowLiquidityThresholdUSD float64 `mapstructure:"low_liquidity_threshold_usd"`
}

type ArbitrageConfig struct {
	TakerFee       float64  `mapstructure:"taker_fee"`
	Kinds          []string `mapstructure:"kinds"`
	QuoteAssets    []string `mapstructure:"quote_assets"`
	MinNetEnabled  bool     `mapstructure:"min_net_enabled"`
	MinNet         float64  `mapstructure:"min_net"`
	AlertThreshold float64  `mapstructure:"alert_threshold"`
}

type CacheConfig struct {
	SnapshotTTL string `mapstructure:"snapshot_ttl"`
	Cooldown    string `mapstructure:"cooldown"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	SuccessThreshold int    `mapstructure:"success_threshold"`
	Timeout          string `mapstructure:"timeout"`
	MaxRequests      int    `mapstructure:"max_requests"`
	ResetTimeout     string `mapstructure:"reset_timeout"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	SampleRate     float64 `mapstructure:"sample_rate"`
}

type AdminConfig struct {
	APIKey string `mapstructure:"api_key" json:"-"`
}

// Load reads config.yaml from ./configs or the working directory, then
// environment variables. A missing file is not an error.
func Load() (*Config, error) {
	return load("")
}

// LoadFile reads the given config file instead of searching for one.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range map[string]string{
		"admin.api_key":      "ADMIN_API_KEY",
		"telegram.bot_token": "TELEGRAM_BOT_TOKEN",
		"telegram.chat_id":   "TELEGRAM_CHAT_ID",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	config.Environment = strings.ToLower(config.Environment)
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Redis
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Market
	v.SetDefault("market.exchanges", []string{"binance", "mexc", "bitget", "bybit"})
	v.SetDefault("market.default_symbols", []string{"VANAUSDT"})
	v.SetDefault("market.symbols", map[string][]string{
		"binance": {"VANAUSDT", "VANAUSDC", "VANAFDUSD"},
	})
	v.SetDefault("market.depth_limit", 20)
	v.SetDefault("market.request_timeout", "10s")
	v.SetDefault("market.aggregation_timeout", "15s")
	v.SetDefault("market.refresh_interval", "30s")
	v.SetDefault("market.base_urls", map[string]string{})
	v.SetDefault("market.max_retries", 0)
	v.SetDefault("market.retry_delay", "200ms")

	// Liquidity
	v.SetDefault("liquidity.band_percent", 0.02)
	v.SetDefault("liquidity.low_liquidity_threshold_usd", 60000)

	// Arbitrage
	v.SetDefault("arbitrage.taker_fee", 0.001)
	v.SetDefault("arbitrage.kinds", []string{
		string(models.KindPairSpread),
		string(models.KindTriangular),
		string(models.KindCrossExchange),
	})
	v.SetDefault("arbitrage.quote_assets", []string{"USDT", "USDC", "FDUSD"})
	v.SetDefault("arbitrage.min_net_enabled", false)
	v.SetDefault("arbitrage.min_net", 0.0025)
	v.SetDefault("arbitrage.alert_threshold", 0.0025)

	// Cache
	v.SetDefault("cache.snapshot_ttl", "5m")
	v.SetDefault("cache.cooldown", "1m")

	// Circuit breaker
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.success_threshold", 1)
	v.SetDefault("circuit_breaker.timeout", "30s")
	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.reset_timeout", "5m")

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "vana-arb-go")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.sample_rate", 1.0)

	// Admin
	v.SetDefault("admin.api_key", "")
}

// normalize lower-cases venue ids and upper-cases symbols and assets.
func (c *Config) normalize() {
	for i, ex := range c.Market.Exchanges {
		c.Market.Exchanges[i] = strings.ToLower(strings.TrimSpace(ex))
	}
	for i, s := range c.Market.DefaultSymbols {
		c.Market.DefaultSymbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	symbols := make(map[string][]string, len(c.Market.Symbols))
	for ex, list := range c.Market.Symbols {
		upper := make([]string, 0, len(list))
		for _, s := range list {
			upper = append(upper, strings.ToUpper(strings.TrimSpace(s)))
		}
		symbols[strings.ToLower(ex)] = upper
	}
	c.Market.Symbols = symbols
	for i, a := range c.Arbitrage.QuoteAssets {
		c.Arbitrage.QuoteAssets[i] = strings.ToUpper(strings.TrimSpace(a))
	}
}

// Validate checks the values the core depends on.
func (c *Config) Validate() error {
	if len(c.Market.Exchanges) == 0 {
		return utils.NewValidationError("market.exchanges must list at least one exchange")
	}
	if c.Market.DepthLimit < 0 {
		return utils.NewValidationErrorf("market.depth_limit must not be negative, got %d", c.Market.DepthLimit)
	}
	if c.Market.MaxRetries < 0 {
		return utils.NewValidationErrorf("market.max_retries must not be negative, got %d", c.Market.MaxRetries)
	}

	for field, value := range map[string]string{
		"market.request_timeout":        c.Market.RequestTimeout,
		"market.aggregation_timeout":    c.Market.AggregationTimeout,
		"market.refresh_interval":       c.Market.RefreshInterval,
		"market.retry_delay":            c.Market.RetryDelay,
		"cache.snapshot_ttl":            c.Cache.SnapshotTTL,
		"cache.cooldown":                c.Cache.Cooldown,
		"circuit_breaker.timeout":       c.CircuitBreaker.Timeout,
		"circuit_breaker.reset_timeout": c.CircuitBreaker.ResetTimeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return utils.NewValidationErrorf("invalid %s duration %q: %v", field, value, err)
		}
	}

	if c.Liquidity.BandPercent <= 0 || c.Liquidity.BandPercent >= 1 {
		return utils.NewValidationErrorf("liquidity.band_percent must be in (0, 1), got %v", c.Liquidity.BandPercent)
	}
	if c.Liquidity.LowLiquidityThresholdUSD < 0 {
		return utils.NewValidationError("liquidity.low_liquidity_threshold_usd must not be negative")
	}

	if c.Arbitrage.TakerFee < 0 {
		return utils.NewValidationErrorf("arbitrage.taker_fee must not be negative, got %v", c.Arbitrage.TakerFee)
	}

	kinds, err := c.Arbitrage.OpportunityKinds()
	if err != nil {
		return err
	}
	for _, k := range kinds {
		if k == models.KindTriangular && len(c.Arbitrage.QuoteAssets) < 3 {
			return utils.NewValidationErrorf("triangular arbitrage needs at least three quote assets, got %d", len(c.Arbitrage.QuoteAssets))
		}
	}

	return nil
}

// SymbolsFor returns the symbols polled on exchange.
func (m MarketConfig) SymbolsFor(exchange string) []string {
	if symbols, ok := m.Symbols[strings.ToLower(exchange)]; ok && len(symbols) > 0 {
		return symbols
	}
	return m.DefaultSymbols
}

// Target is one (exchange, symbol) pair fetched per cycle.
type Target struct {
	Exchange string
	Symbol   string
}

func (t Target) String() string {
	return t.Exchange + ":" + t.Symbol
}

// Targets expands the configured exchanges into fetch targets, in configuration order.
func (m MarketConfig) Targets() []Target {
	var targets []Target
	for _, ex := range m.Exchanges {
		for _, symbol := range m.SymbolsFor(ex) {
			targets = append(targets, Target{Exchange: ex, Symbol: symbol})
		}
	}
	return targets
}

func (m MarketConfig) GetRequestTimeout() time.Duration {
	return parseDuration(m.RequestTimeout, 10*time.Second)
}

func (m MarketConfig) GetAggregationTimeout() time.Duration {
	return parseDuration(m.AggregationTimeout, 15*time.Second)
}

func (m MarketConfig) GetRefreshInterval() time.Duration {
	return parseDuration(m.RefreshInterval, 30*time.Second)
}

func (m MarketConfig) GetRetryDelay() time.Duration {
	return parseDuration(m.RetryDelay, 200*time.Millisecond)
}

// OpportunityKinds parses the configured kinds. An empty list enables all of them.
func (a ArbitrageConfig) OpportunityKinds() ([]models.OpportunityKind, error) {
	if len(a.Kinds) == 0 {
		return models.AllOpportunityKinds, nil
	}
	kinds := make([]models.OpportunityKind, 0, len(a.Kinds))
	for _, raw := range a.Kinds {
		k := models.OpportunityKind(strings.ToLower(strings.TrimSpace(raw)))
		if !k.Valid() {
			return nil, utils.NewValidationErrorf("unknown arbitrage kind %q", raw)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (a ArbitrageConfig) GetTakerFee() decimal.Decimal {
	return decimal.NewFromFloat(a.TakerFee)
}

// GetMinNet returns the server-side net filter, or nil when it is disabled.
func (a ArbitrageConfig) GetMinNet() *decimal.Decimal {
	if !a.MinNetEnabled {
		return nil
	}
	minNet := decimal.NewFromFloat(a.MinNet)
	return &minNet
}

func (a ArbitrageConfig) GetAlertThreshold() decimal.Decimal {
	return decimal.NewFromFloat(a.AlertThreshold)
}

func (l LiquidityConfig) GetBandPercent() decimal.Decimal {
	return decimal.NewFromFloat(l.BandPercent)
}

func (l LiquidityConfig) GetThresholdUSD() decimal.Decimal {
	return decimal.NewFromFloat(l.LowLiquidityThresholdUSD)
}

func (c CacheConfig) GetSnapshotTTL() time.Duration {
	return parseDuration(c.SnapshotTTL, 5*time.Minute)
}

// GetCooldown returns the rate-limit cooldown. Zero disables it.
func (c CacheConfig) GetCooldown() time.Duration {
	return parseDuration(c.Cooldown, 0)
}

func (c CircuitBreakerConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

func (c CircuitBreakerConfig) GetResetTimeout() time.Duration {
	return parseDuration(c.ResetTimeout, 5*time.Minute)
}

// Enabled reports whether alerts can be sent.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
