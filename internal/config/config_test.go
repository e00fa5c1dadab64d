package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arbscan.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModePaper, cfg.Mode)
	assert.Equal(t, 0.001, cfg.Arbitrage.MinProfit)
	assert.Equal(t, 0.3, cfg.Risk.MaxPositionSize)
	assert.Equal(t, 500.0, cfg.Risk.MinTradeSize)
	assert.Equal(t, 30*time.Second, cfg.Intervals().Arbitrage.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Intervals().Swing.Duration)
	assert.Equal(t, EndpointLimit{Calls: 200, Window: dur(time.Minute)}, cfg.RateLimit.Endpoints["jupiter_api"])
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "live"

[scan.live]
arbitrage_interval = "5s"
swing_interval = "2m"

[rate_limit.endpoints.jupiter_api]
calls = 50
window = "30s"

[risk]
max_position_size = 0.2

[[pairs]]
chain = "solana"
symbol = "SOL/USDC"
venues = ["jupiter", "binance"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, 5*time.Second, cfg.Intervals().Arbitrage.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Intervals().Swing.Duration)
	assert.Equal(t, 0.2, cfg.Risk.MaxPositionSize)
	assert.Equal(t, 0.05, cfg.Risk.MaxDailyLoss, "untouched keys keep defaults")

	assert.Equal(t, 50, cfg.RateLimit.Endpoints["jupiter_api"].Calls)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Endpoints["jupiter_api"].Window.Duration)
	assert.Equal(t, 1200, cfg.RateLimit.Endpoints["binance_api"].Calls, "other endpoints keep defaults")

	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, []string{"jupiter", "binance"}, cfg.Pairs[0].Venues)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[risk]
max_position = 0.2
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk.max_position")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "arbscan.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	def := Defaults()
	assert.Equal(t, def.Pairs, cfg.Pairs)
	assert.Equal(t, def.Risk, cfg.Risk)
	assert.Equal(t, def.Redis.Namespace, cfg.Redis.Namespace)
	assert.Equal(t, def.Intervals(), cfg.Intervals())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBSCAN_MODE", "live")
	t.Setenv("ARBSCAN_RISK_MAX_DAILY_LOSS", "0.02")
	t.Setenv("ARBSCAN_REDIS_ENABLED", "true")
	t.Setenv("ARBSCAN_SCAN_LIVE_ARBITRAGE_INTERVAL", "3s")
	t.Setenv("ARBSCAN_VENUES_DISABLED", "kraken, coinbase")
	t.Setenv("ARBSCAN_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, 0.02, cfg.Risk.MaxDailyLoss)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Intervals().Arbitrage.Duration)
	assert.Equal(t, []string{"kraken", "coinbase"}, cfg.Venues.Disabled)
	assert.Equal(t, 8000, cfg.Server.Port, "unparsable values are ignored")
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"
	cfg.Scan.Paper.Arbitrage = dur(0)
	cfg.Risk.MaxDailyLoss = 1.5
	cfg.RateLimit.Policy = "drop"
	cfg.Pairs = append(cfg.Pairs, PairConfig{Chain: "polygon", Symbol: "MATIC", Venues: []string{"quickswap"}})

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "backtest"`,
		"scan.paper: arbitrage_interval must be > 0",
		"max_daily_loss must be in (0, 1]",
		`unknown policy "drop"`,
		`unknown chain "polygon"`,
		`symbol "MATIC" must be BASE/QUOTE`,
		`unknown venue "quickswap"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLiquidityFloorFollowsMinTradeSize(t *testing.T) {
	cfg := Defaults()
	assert.Zero(t, cfg.Arbitrage.MinLiquidity)
	assert.Equal(t, 500.0, cfg.LiquidityFloor())

	cfg.Risk.MinTradeSize = 750
	assert.Equal(t, 750.0, cfg.LiquidityFloor())

	cfg.Arbitrage.MinLiquidity = 2000
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2000.0, cfg.LiquidityFloor())

	cfg.Arbitrage.MinLiquidity = 100
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_liquidity 100 is below risk.min_trade_size 750")
}

func TestValidateCountsOnlyEnabledVenues(t *testing.T) {
	cfg := Defaults()
	cfg.Venues.Disabled = []string{"binance", "coingecko"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAY/USDC needs at least 2 enabled venues")
}

func TestValidateOptionalBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.SharedLimiter = true
	cfg.S3.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared_limiter requires redis.enabled")
	assert.Contains(t, err.Error(), "s3: bucket and region must be set")
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/1/abc"

	red := cfg.Redacted()
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)
	assert.Empty(t, red.Server.APIKey, "empty secrets stay empty")

	red.Pairs[0].Venues[0] = "mutated"
	red.RateLimit.Endpoints["jupiter_api"] = EndpointLimit{}
	red.Cache.Multipliers[ModePaper]["jupiter"] = 99
	assert.Equal(t, "jupiter", cfg.Pairs[0].Venues[0])
	assert.Equal(t, 200, cfg.RateLimit.Endpoints["jupiter_api"].Calls)
	assert.Equal(t, 5.0, cfg.Cache.Multipliers[ModePaper]["jupiter"])
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)
}
