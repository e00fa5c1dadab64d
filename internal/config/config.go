// Package config defines the scanner's configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Trading modes.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Scan       ScanConfig       `toml:"scan"`
	Cache      CacheConfig      `toml:"cache"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Swing      SwingConfig      `toml:"swing"`
	Risk       RiskConfig       `toml:"risk"`
	Paper      PaperConfig      `toml:"paper"`
	Venues     VenuesConfig     `toml:"venues"`
	Chains     ChainsConfig     `toml:"chains"`
	Gas        GasConfig        `toml:"gas"`
	Pairs      []PairConfig     `toml:"pairs"`

	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Report   ReportConfig   `toml:"report"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
}

// ScanIntervals are the loop periods for one mode.
type ScanIntervals struct {
	Arbitrage duration `toml:"arbitrage_interval"`
	Swing     duration `toml:"swing_interval"`
}

// ScanConfig holds the scanner loop schedule. Intervals are chosen by mode.
type ScanConfig struct {
	Paper ScanIntervals `toml:"paper"`
	Live  ScanIntervals `toml:"live"`
	// TickTimeout bounds one tick; zero means the loop interval.
	TickTimeout duration `toml:"tick_timeout"`
	Workers     int      `toml:"workers"`
}

// CacheConfig sets price cache lifetimes. The effective TTL of a quote is
// the venue duration (or PriceDuration) times the mode's venue multiplier.
type CacheConfig struct {
	PriceDuration  duration                      `toml:"price_duration"`
	VenueDurations map[string]duration           `toml:"venue_durations"`
	Multipliers    map[string]map[string]float64 `toml:"multipliers"`
	SweepInterval  duration                      `toml:"sweep_interval"`
}

// EndpointLimit is a call budget per trailing window.
type EndpointLimit struct {
	Calls  int      `toml:"calls"`
	Window duration `toml:"window"`
}

// RateLimitConfig configures the upstream call budgets.
type RateLimitConfig struct {
	// Policy is "wait" or "reject".
	Policy    string                   `toml:"policy"`
	MaxWait   duration                 `toml:"max_wait"`
	Endpoints map[string]EndpointLimit `toml:"endpoints"`
}

// AggregatorConfig tunes multi-venue price collection.
type AggregatorConfig struct {
	MinVenues        int      `toml:"min_venues"`
	PrimaryVenues    int      `toml:"primary_venues"`
	Workers          int      `toml:"workers"`
	BreakerThreshold int      `toml:"breaker_threshold"`
	BreakerCooldown  duration `toml:"breaker_cooldown"`
}

// ArbitrageConfig holds the cross-venue detection thresholds and cost model.
type ArbitrageConfig struct {
	Enabled bool `toml:"enabled"`
	// MinProfit is the minimum net spread, as a fraction.
	MinProfit float64 `toml:"min_arbitrage_profit"`
	// MinLiquidity is the per-leg liquidity floor. Zero follows
	// risk.min_trade_size; a smaller positive value is rejected.
	MinLiquidity  float64            `toml:"min_liquidity"`
	FeeBps        map[string]float64 `toml:"fee_bps"`
	DefaultFeeBps float64            `toml:"default_fee_bps"`
	AbsoluteCost  float64            `toml:"absolute_cost"`
	// Notional is the reference trade size gas is normalised by.
	Notional float64 `toml:"notional"`
}

// SwingConfig holds the indicator strategy settings.
type SwingConfig struct {
	Enabled       bool    `toml:"enabled"`
	HistorySize   int     `toml:"history_size"`
	MinHistory    int     `toml:"min_history"`
	RSIPeriod     int     `toml:"rsi_period"`
	EMAShort      int     `toml:"ema_short"`
	EMALong       int     `toml:"ema_long"`
	MACDFast      int     `toml:"macd_fast"`
	MACDSlow      int     `toml:"macd_slow"`
	MACDSignal    int     `toml:"macd_signal"`
	SMAPeriod     int     `toml:"sma_period"`
	Oversold      float64 `toml:"oversold"`
	Overbought    float64 `toml:"overbought"`
	MinConfidence float64 `toml:"min_confidence"`
}

// RiskConfig holds the portfolio limits. Fractions are of current equity.
type RiskConfig struct {
	InitialEquity          float64 `toml:"initial_equity"`
	MaxPositionSize        float64 `toml:"max_position_size"`
	MinTradeSize           float64 `toml:"min_trade_size"`
	MaxDailyLoss           float64 `toml:"max_daily_loss"`
	MaxDrawdown            float64 `toml:"max_drawdown"`
	StopLoss               float64 `toml:"stop_loss_percentage"`
	TakeProfit             float64 `toml:"take_profit_percentage"`
	MaxSlippage            float64 `toml:"max_slippage"`
	MaxSignalsPerMinute    int     `toml:"max_signals_per_minute"`
	MaxSwingSignalsPerHour int     `toml:"max_swing_signals_per_hour"`
	MinSwingConfidence     float64 `toml:"min_swing_confidence"`
	// ReservationTTL bounds how long an approval holds headroom without a fill.
	ReservationTTL duration `toml:"reservation_ttl"`
}

// PaperConfig tunes the simulated executor.
type PaperConfig struct {
	DedupTTL duration `toml:"dedup_ttl"`
	Seed     int64    `toml:"seed"`
}

// VenuesConfig holds the price source endpoints and the shared retry policy.
type VenuesConfig struct {
	Timeout     duration `toml:"timeout"`
	Attempts    int      `toml:"attempts"`
	BaseBackoff duration `toml:"base_backoff"`
	MaxBackoff  duration `toml:"max_backoff"`

	JupiterURL    string `toml:"jupiter_url"`
	UniswapURL    string `toml:"uniswap_subgraph_url"`
	UniswapAPIKey string `toml:"uniswap_api_key"`
	CoinGeckoURL  string `toml:"coingecko_url"`
	BinanceURL    string `toml:"binance_url"`
	KrakenURL     string `toml:"kraken_url"`
	CoinbaseURL   string `toml:"coinbase_url"`

	// Disabled venues are never registered.
	Disabled []string `toml:"disabled"`

	SolanaMints  map[string]string `toml:"solana_mints"`
	BaseTokens   map[string]string `toml:"base_tokens"`
	CoinGeckoIDs map[string]string `toml:"coingecko_ids"`
}

// ChainsConfig holds the chain RPC endpoints.
type ChainsConfig struct {
	// BaseRPCURL is the JSON-RPC endpoint gas prices are read from.
	BaseRPCURL string `toml:"base_rpc_url"`
}

// GasConfig configures swap cost estimation.
type GasConfig struct {
	// Dynamic enables the Base RPC gas oracle; Static is used otherwise and
	// as its fallback.
	Dynamic      bool               `toml:"dynamic"`
	SwapGasLimit uint64             `toml:"swap_gas_limit"`
	TTL          duration           `toml:"ttl"`
	Static       map[string]float64 `toml:"static"`
}

// PairConfig is one traded pair with its venues in fallback order.
type PairConfig struct {
	Chain  string   `toml:"chain"`
	Symbol string   `toml:"symbol"`
	Venues []string `toml:"venues"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// Namespace prefixes every key so several deployments can share a server.
	Namespace string `toml:"namespace"`
	// SharedLimiter moves venue rate limiting into Redis.
	SharedLimiter bool `toml:"shared_limiter"`
}

// PostgresConfig holds the trade journal database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"sslmode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ReportConfig schedules session report uploads.
type ReportConfig struct {
	Interval duration `toml:"interval"`
	Prefix   string   `toml:"prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	DiscordPerMinute  float64  `toml:"discord_per_minute"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func dur(d time.Duration) duration { return duration{d} }

// Defaults returns a Config populated with the built-in paper-trading
// profile.
func Defaults() Config {
	return Config{
		Mode:     ModePaper,
		LogLevel: "info",
		Scan: ScanConfig{
			Paper:   ScanIntervals{Arbitrage: dur(30 * time.Second), Swing: dur(5 * time.Minute)},
			Live:    ScanIntervals{Arbitrage: dur(10 * time.Second), Swing: dur(time.Minute)},
			Workers: 4,
		},
		Cache: CacheConfig{
			PriceDuration:  dur(time.Minute),
			VenueDurations: map[string]duration{},
			Multipliers: map[string]map[string]float64{
				ModePaper: {"jupiter": 5, "uniswap_v3_base": 10},
				ModeLive:  {"jupiter": 1, "uniswap_v3_base": 2},
			},
			SweepInterval: dur(time.Minute),
		},
		RateLimit: RateLimitConfig{
			Policy:  "wait",
			MaxWait: dur(5 * time.Second),
			Endpoints: map[string]EndpointLimit{
				"solana_rpc":    {Calls: 100, Window: dur(time.Minute)},
				"base_rpc":      {Calls: 50, Window: dur(time.Minute)},
				"jupiter_api":   {Calls: 200, Window: dur(time.Minute)},
				"uniswap_api":   {Calls: 100, Window: dur(time.Minute)},
				"coingecko_api": {Calls: 30, Window: dur(time.Minute)},
				"binance_api":   {Calls: 1200, Window: dur(time.Minute)},
				"kraken_api":    {Calls: 60, Window: dur(time.Minute)},
				"coinbase_api":  {Calls: 100, Window: dur(time.Minute)},
			},
		},
		Aggregator: AggregatorConfig{
			MinVenues:        2,
			PrimaryVenues:    0,
			Workers:          4,
			BreakerThreshold: 3,
			BreakerCooldown:  dur(time.Minute),
		},
		Arbitrage: ArbitrageConfig{
			Enabled:       true,
			MinProfit:     0.001,
			DefaultFeeBps: 10,
			FeeBps: map[string]float64{
				"jupiter":         0,
				"uniswap_v3_base": 30,
				"binance":         10,
				"kraken":          26,
				"coinbase":        60,
				"coingecko":       0,
			},
			Notional: 1000,
		},
		Swing: SwingConfig{
			Enabled:       true,
			HistorySize:   200,
			MinHistory:    50,
			RSIPeriod:     14,
			EMAShort:      12,
			EMALong:       26,
			MACDFast:      12,
			MACDSlow:      26,
			MACDSignal:    9,
			SMAPeriod:     50,
			Oversold:      30,
			Overbought:    70,
			MinConfidence: 0.3,
		},
		Risk: RiskConfig{
			InitialEquity:          10_000,
			MaxPositionSize:        0.3,
			MinTradeSize:           500,
			MaxDailyLoss:           0.05,
			MaxDrawdown:            0.15,
			StopLoss:               0.03,
			TakeProfit:             0.05,
			MaxSlippage:            0.005,
			MaxSignalsPerMinute:    3,
			MaxSwingSignalsPerHour: 2,
			MinSwingConfidence:     0.5,
			ReservationTTL:         dur(5 * time.Minute),
		},
		Paper: PaperConfig{DedupTTL: dur(time.Hour)},
		Venues: VenuesConfig{
			Timeout:      dur(10 * time.Second),
			Attempts:     3,
			BaseBackoff:  dur(250 * time.Millisecond),
			MaxBackoff:   dur(2 * time.Second),
			JupiterURL:   "https://price.jup.ag/v4",
			UniswapURL:   "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3",
			CoinGeckoURL: "https://api.coingecko.com/api/v3",
			KrakenURL:    "https://api.kraken.com",
			CoinbaseURL:  "https://api.coinbase.com",
		},
		Chains: ChainsConfig{
			BaseRPCURL: "https://mainnet.base.org",
		},
		Gas: GasConfig{
			Dynamic:      true,
			SwapGasLimit: 200_000,
			TTL:          dur(time.Minute),
			Static:       map[string]float64{"solana": 0.01, "base": 0.05},
		},
		Pairs: []PairConfig{
			{Chain: "solana", Symbol: "SOL/USDC", Venues: []string{"jupiter", "binance", "coinbase", "kraken", "coingecko"}},
			{Chain: "solana", Symbol: "ETH/USDC", Venues: []string{"jupiter", "binance", "coinbase", "coingecko"}},
			{Chain: "solana", Symbol: "RAY/USDC", Venues: []string{"jupiter", "binance", "coingecko"}},
			{Chain: "base", Symbol: "WETH/USDC", Venues: []string{"uniswap_v3_base", "coinbase", "kraken", "coingecko"}},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Namespace:  "arbscan",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbscan",
			User:          "arbscan",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "arbscan-reports",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Report: ReportConfig{
			Interval: dur(15 * time.Minute),
			Prefix:   "sessions",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  dur(time.Minute),
		},
		Notify: NotifyConfig{
			DiscordUsername:  "arbscan",
			DiscordPerMinute: 20,
			Events:           []string{"trade_filled", "position_closed", "emergency_stop", "circuit_breaker_opened"},
		},
	}
}

// Intervals returns the scan periods for the configured mode.
func (c *Config) Intervals() ScanIntervals {
	if strings.EqualFold(c.Mode, ModeLive) {
		return c.Scan.Live
	}
	return c.Scan.Paper
}

// LiquidityFloor is the smallest per-leg liquidity an opportunity may show:
// arbitrage.min_liquidity when set, otherwise risk.min_trade_size.
func (c *Config) LiquidityFloor() float64 {
	return max(c.Arbitrage.MinLiquidity, c.Risk.MinTradeSize)
}

var validModes = map[string]bool{
	ModePaper: true,
	ModeLive:  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validChains = map[string]bool{
	"solana": true,
	"base":   true,
}

// knownVenues lists the venues an adapter exists for.
var knownVenues = map[string]bool{
	"jupiter":         true,
	"uniswap_v3_base": true,
	"coingecko":       true,
	"binance":         true,
	"kraken":          true,
	"coinbase":        true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: paper, live)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Scan
	for name, iv := range map[string]ScanIntervals{"paper": c.Scan.Paper, "live": c.Scan.Live} {
		if iv.Arbitrage.Duration <= 0 {
			add("scan.%s: arbitrage_interval must be > 0", name)
		}
		if iv.Swing.Duration <= 0 {
			add("scan.%s: swing_interval must be > 0", name)
		}
	}
	if c.Scan.TickTimeout.Duration < 0 {
		add("scan: tick_timeout must be >= 0")
	}
	if c.Scan.Workers < 1 {
		add("scan: workers must be >= 1")
	}

	// Cache
	if c.Cache.PriceDuration.Duration <= 0 {
		add("cache: price_duration must be > 0")
	}
	for mode, mult := range c.Cache.Multipliers {
		for venue, m := range mult {
			if m <= 0 {
				add("cache.multipliers.%s: %s must be > 0", mode, venue)
			}
		}
	}

	// Rate limits
	if c.RateLimit.Policy != "wait" && c.RateLimit.Policy != "reject" {
		add("rate_limit: unknown policy %q (valid: wait, reject)", c.RateLimit.Policy)
	}
	for ep, l := range c.RateLimit.Endpoints {
		if l.Calls < 1 || l.Window.Duration <= 0 {
			add("rate_limit.endpoints.%s: calls and window must be positive", ep)
		}
	}

	// Aggregator
	if c.Aggregator.MinVenues < 2 {
		add("aggregator: min_venues must be >= 2")
	}
	if c.Aggregator.PrimaryVenues < 0 {
		add("aggregator: primary_venues must be >= 0")
	}
	if c.Aggregator.BreakerThreshold < 1 {
		add("aggregator: breaker_threshold must be >= 1")
	}
	if c.Aggregator.BreakerCooldown.Duration <= 0 {
		add("aggregator: breaker_cooldown must be > 0")
	}

	// Arbitrage
	if c.Arbitrage.MinProfit < 0 {
		add("arbitrage: min_arbitrage_profit must be >= 0")
	}
	if c.Arbitrage.MinLiquidity < 0 || c.Arbitrage.AbsoluteCost < 0 || c.Arbitrage.DefaultFeeBps < 0 {
		add("arbitrage: min_liquidity, absolute_cost and default_fee_bps must be >= 0")
	}
	if c.Arbitrage.Notional <= 0 {
		add("arbitrage: notional must be > 0")
	}

	// Swing
	if c.Swing.Enabled {
		if c.Swing.HistorySize < c.Swing.MinHistory {
			add("swing: history_size must be >= min_history")
		}
		if c.Swing.EMAShort >= c.Swing.EMALong || c.Swing.MACDFast >= c.Swing.MACDSlow {
			add("swing: short periods must be below long periods")
		}
	}
	if !c.Arbitrage.Enabled && !c.Swing.Enabled {
		add("at least one of arbitrage.enabled or swing.enabled must be set")
	}

	// Risk
	r := c.Risk
	if r.InitialEquity <= 0 {
		add("risk: initial_equity must be > 0")
	}
	for name, v := range map[string]float64{
		"max_position_size":      r.MaxPositionSize,
		"max_daily_loss":         r.MaxDailyLoss,
		"max_drawdown":           r.MaxDrawdown,
		"stop_loss_percentage":   r.StopLoss,
		"take_profit_percentage": r.TakeProfit,
	} {
		if v <= 0 || v > 1 {
			add("risk: %s must be in (0, 1], got %g", name, v)
		}
	}
	if r.MaxSlippage < 0 || r.MaxSlippage >= 1 {
		add("risk: max_slippage must be in [0, 1)")
	}
	if r.MinTradeSize <= 0 {
		add("risk: min_trade_size must be > 0")
	}
	if m := c.Arbitrage.MinLiquidity; m > 0 && m < r.MinTradeSize {
		add("arbitrage: min_liquidity %g is below risk.min_trade_size %g", m, r.MinTradeSize)
	}
	if r.MinSwingConfidence < 0 || r.MinSwingConfidence > 1 {
		add("risk: min_swing_confidence must be in [0, 1]")
	}
	if r.ReservationTTL.Duration <= 0 {
		add("risk: reservation_ttl must be > 0")
	}

	// Venues
	if c.Venues.Timeout.Duration <= 0 {
		add("venues: timeout must be > 0")
	}
	if c.Venues.Attempts < 1 {
		add("venues: attempts must be >= 1")
	}
	for name, raw := range map[string]string{
		"jupiter_url":          c.Venues.JupiterURL,
		"uniswap_subgraph_url": c.Venues.UniswapURL,
		"coingecko_url":        c.Venues.CoinGeckoURL,
		"kraken_url":           c.Venues.KrakenURL,
		"coinbase_url":         c.Venues.CoinbaseURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add("venues: %s is not an absolute URL: %q", name, raw)
		}
	}

	// Gas
	if c.Gas.Dynamic && c.Chains.BaseRPCURL == "" {
		add("gas: dynamic requires chains.base_rpc_url")
	}
	for chain, v := range c.Gas.Static {
		if v < 0 {
			add("gas.static: %s must be >= 0", chain)
		}
	}

	// Pairs
	if len(c.Pairs) == 0 {
		add("pairs: at least one pair is required")
	}
	disabled := make(map[string]bool, len(c.Venues.Disabled))
	for _, v := range c.Venues.Disabled {
		disabled[v] = true
	}
	for i, p := range c.Pairs {
		if !validChains[p.Chain] {
			add("pairs[%d]: unknown chain %q (valid: solana, base)", i, p.Chain)
		}
		base, quote, ok := strings.Cut(p.Symbol, "/")
		if !ok || base == "" || quote == "" {
			add("pairs[%d]: symbol %q must be BASE/QUOTE", i, p.Symbol)
		}
		enabled := 0
		for _, v := range p.Venues {
			if !knownVenues[v] {
				add("pairs[%d]: unknown venue %q", i, v)
				continue
			}
			if !disabled[v] {
				enabled++
			}
		}
		if enabled < c.Aggregator.MinVenues {
			add("pairs[%d]: %s needs at least %d enabled venues", i, p.Symbol, c.Aggregator.MinVenues)
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			add("postgres: host or dsn must be set when enabled")
		}
		if c.Postgres.PoolMaxConns < 1 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_max_conns must be >= 1 and >= pool_min_conns")
		}
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		add("redis: addr must not be empty when enabled")
	}
	if c.Redis.SharedLimiter && !c.Redis.Enabled {
		add("redis: shared_limiter requires redis.enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			add("s3: bucket and region must be set when enabled")
		}
		if c.Report.Interval.Duration <= 0 {
			add("report: interval must be > 0 when s3 is enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
