package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/config"
	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/gas"
	"github.com/alanyoungcy/arbscan/internal/scanner"
	"github.com/alanyoungcy/arbscan/internal/source"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offlineConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Gas.Dynamic = false
	cfg.Server.Enabled = false
	return &cfg
}

func TestWireInMemory(t *testing.T) {
	cfg := offlineConfig()
	cfg.Venues.Disabled = []string{"kraken"}

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotEmpty(t, deps.SessionID)
	assert.Nil(t, deps.Redis)
	assert.Nil(t, deps.Journal)
	assert.Nil(t, deps.Reporter)
	assert.NotNil(t, deps.LocalLimiter)
	assert.NotNil(t, deps.Paper, "paper mode simulates fills")
	assert.Empty(t, deps.Checks)

	venues := deps.Registry.List()
	assert.NotContains(t, venues, source.VenueKraken)
	assert.Contains(t, venues, source.VenueJupiter)
	assert.Contains(t, venues, source.VenueUniswap)

	entry, err := deps.Registry.Get(source.VenueUniswap)
	require.NoError(t, err)
	assert.Equal(t, "uniswap_api", entry.Endpoint)
	assert.Equal(t, domain.ChainBase, entry.Chain)

	_, ok := deps.Gas.(gas.Static)
	assert.True(t, ok, "static gas when dynamic is off")
}

func TestWireLiveModeLogsOnly(t *testing.T) {
	cfg := offlineConfig()
	cfg.Mode = config.ModeLive

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Paper)
	assert.NotNil(t, deps.Executor)
}

func TestWireFailsWhenRedisUnreachable(t *testing.T) {
	cfg := offlineConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	_, _, err := Wire(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire: redis")
}

func TestTTLPolicyFromConfig(t *testing.T) {
	cfg := config.Defaults()
	p := ttlPolicy(cfg.Cache)

	assert.Equal(t, 5*time.Minute, p.For(config.ModePaper, source.VenueJupiter))
	assert.Equal(t, 10*time.Minute, p.For(config.ModePaper, source.VenueUniswap))
	assert.Equal(t, time.Minute, p.For(config.ModeLive, source.VenueJupiter))
	assert.Equal(t, 2*time.Minute, p.For(config.ModeLive, source.VenueUniswap))
	assert.Equal(t, time.Minute, p.For(config.ModePaper, source.VenueBinance))
}

func TestRateLimitConfig(t *testing.T) {
	rl := rateLimitConfig(config.Defaults().RateLimit)
	assert.Equal(t, 100, rl.Limits["solana_rpc"].Calls)
	assert.Equal(t, time.Minute, rl.Limits["base_rpc"].Window)
	assert.EqualValues(t, "wait", rl.Policy)
	assert.Equal(t, 5*time.Second, rl.MaxWait)
}

func TestScannerPairsKeepVenueOrder(t *testing.T) {
	pairs := scannerPairs([]config.PairConfig{
		{Chain: "base", Symbol: "WETH/USDC", Venues: []string{"uniswap_v3_base", "coinbase"}},
	})
	require.Len(t, pairs, 1)
	assert.Equal(t, domain.Pair("WETH/USDC"), pairs[0].Pair)
	assert.Equal(t, domain.ChainBase, pairs[0].Chain)
	assert.Equal(t, []domain.Venue{"uniswap_v3_base", "coinbase"}, pairs[0].Venues)
}

func TestIndicatorConfigOverridesOnlySetFields(t *testing.T) {
	ind := indicatorConfig(config.SwingConfig{RSIPeriod: 7, Oversold: 25})
	def := scanner.DefaultIndicators()

	assert.Equal(t, 7, ind.RSIPeriod)
	assert.Equal(t, 25.0, ind.Oversold)
	assert.Equal(t, def.EMALong, ind.EMALong)
	assert.Equal(t, def.MinConfidence, ind.MinConfidence)
}

func TestNativeVenues(t *testing.T) {
	cfg := config.Defaults()
	venues := nativeVenues(&cfg)
	assert.Equal(t, []domain.Venue{"jupiter", "binance", "coinbase", "coingecko", "uniswap_v3_base", "kraken"}, venues)
}

func TestNativePriceAveragesQuotes(t *testing.T) {
	cfg := offlineConfig()
	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	_, err = nativePrice(deps, nil)(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}
