package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCAN_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			keys := make([]string, len(undec))
			for i, k := range undec {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSCAN_MODE")
	setStr(&cfg.LogLevel, "ARBSCAN_LOG_LEVEL")

	// ── Scan ──
	setDuration(&cfg.Scan.Paper.Arbitrage, "ARBSCAN_SCAN_PAPER_ARBITRAGE_INTERVAL")
	setDuration(&cfg.Scan.Paper.Swing, "ARBSCAN_SCAN_PAPER_SWING_INTERVAL")
	setDuration(&cfg.Scan.Live.Arbitrage, "ARBSCAN_SCAN_LIVE_ARBITRAGE_INTERVAL")
	setDuration(&cfg.Scan.Live.Swing, "ARBSCAN_SCAN_LIVE_SWING_INTERVAL")
	setInt(&cfg.Scan.Workers, "ARBSCAN_SCAN_WORKERS")
	setDuration(&cfg.Cache.PriceDuration, "ARBSCAN_CACHE_PRICE_DURATION")
	setStr(&cfg.RateLimit.Policy, "ARBSCAN_RATE_LIMIT_POLICY")

	// ── Strategies ──
	setBool(&cfg.Arbitrage.Enabled, "ARBSCAN_ARBITRAGE_ENABLED")
	setFloat64(&cfg.Arbitrage.MinProfit, "ARBSCAN_ARBITRAGE_MIN_ARBITRAGE_PROFIT")
	setBool(&cfg.Swing.Enabled, "ARBSCAN_SWING_ENABLED")

	// ── Risk ──
	setFloat64(&cfg.Risk.InitialEquity, "ARBSCAN_RISK_INITIAL_EQUITY")
	setFloat64(&cfg.Risk.MaxPositionSize, "ARBSCAN_RISK_MAX_POSITION_SIZE")
	setFloat64(&cfg.Risk.MinTradeSize, "ARBSCAN_RISK_MIN_TRADE_SIZE")
	setFloat64(&cfg.Risk.MaxDailyLoss, "ARBSCAN_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.MaxDrawdown, "ARBSCAN_RISK_MAX_DRAWDOWN")
	setFloat64(&cfg.Risk.StopLoss, "ARBSCAN_RISK_STOP_LOSS_PERCENTAGE")
	setFloat64(&cfg.Risk.TakeProfit, "ARBSCAN_RISK_TAKE_PROFIT_PERCENTAGE")
	setFloat64(&cfg.Risk.MaxSlippage, "ARBSCAN_RISK_MAX_SLIPPAGE")

	// ── Venues & chains ──
	setStr(&cfg.Venues.JupiterURL, "ARBSCAN_VENUES_JUPITER_URL")
	setStr(&cfg.Venues.UniswapURL, "ARBSCAN_VENUES_UNISWAP_SUBGRAPH_URL")
	setStr(&cfg.Venues.UniswapAPIKey, "ARBSCAN_VENUES_UNISWAP_API_KEY")
	setStringSlice(&cfg.Venues.Disabled, "ARBSCAN_VENUES_DISABLED")
	setStr(&cfg.Chains.BaseRPCURL, "ARBSCAN_CHAINS_BASE_RPC_URL")
	setBool(&cfg.Gas.Dynamic, "ARBSCAN_GAS_DYNAMIC")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBSCAN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBSCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCAN_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCAN_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "ARBSCAN_REDIS_NAMESPACE")
	setBool(&cfg.Redis.SharedLimiter, "ARBSCAN_REDIS_SHARED_LIMITER")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBSCAN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBSCAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBSCAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCAN_POSTGRES_SSLMODE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBSCAN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBSCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBSCAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBSCAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBSCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBSCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBSCAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBSCAN_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.Report.Interval, "ARBSCAN_REPORT_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBSCAN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBSCAN_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.DiscordWebhookURL, "DISCORD_WEBHOOK_URL") // compatibility alias
	setStr(&cfg.Notify.TelegramToken, "ARBSCAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBSCAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "ARBSCAN_NOTIFY_EVENTS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
