package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscan/internal/aggregator"
	"github.com/alanyoungcy/arbscan/internal/arbitrage"
	s3blob "github.com/alanyoungcy/arbscan/internal/blob/s3"
	"github.com/alanyoungcy/arbscan/internal/cache/redis"
	"github.com/alanyoungcy/arbscan/internal/config"
	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/events"
	"github.com/alanyoungcy/arbscan/internal/executor"
	"github.com/alanyoungcy/arbscan/internal/metrics"
	"github.com/alanyoungcy/arbscan/internal/notify"
	"github.com/alanyoungcy/arbscan/internal/pricecache"
	"github.com/alanyoungcy/arbscan/internal/ratelimit"
	"github.com/alanyoungcy/arbscan/internal/risk"
	"github.com/alanyoungcy/arbscan/internal/server/handler"
	"github.com/alanyoungcy/arbscan/internal/source"
	"github.com/alanyoungcy/arbscan/internal/store/postgres"
)

// Dependencies bundles every component the run loop needs. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	SessionID string

	// Backends; nil when disabled.
	Redis    *redis.Client
	Postgres *postgres.Client
	S3       *s3blob.Client

	Registry *source.Registry
	Limiter  domain.RateLimiter
	// LocalLimiter is set when rate limiting is in-process.
	LocalLimiter *ratelimit.Limiter
	Cache        *pricecache.Cache
	Aggregator   *aggregator.Aggregator
	Costs        arbitrage.Costs
	Gas          domain.GasOracle
	Risk         *risk.Manager
	Executor     domain.Executor
	// Paper is set in paper mode so its dedup cleanup can run.
	Paper   *executor.PaperExecutor
	Journal domain.Journal

	Bus       domain.EventBus
	Publisher *events.Publisher
	Recent    *events.Recent
	Metrics   *metrics.Metrics
	Notifier  *notify.Notifier
	Sink      domain.EventSink
	Reporter  *s3blob.Reporter

	Checks map[string]handler.Check
}

// Wire constructs all concrete implementations from cfg and returns them
// together with a cleanup function that releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	deps := &Dependencies{
		SessionID: uuid.NewString(),
		Checks:    make(map[string]handler.Check),
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.Redis = rc
		deps.Checks["redis"] = rc.Ping
	}

	// --- PostgreSQL trade journal ---
	if cfg.Postgres.Enabled {
		pc, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pc.Close)
		if cfg.Postgres.RunMigrations {
			if err := pc.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.Postgres = pc
		deps.Journal = postgres.NewJournal(pc.Pool())
		deps.Checks["postgres"] = func(ctx context.Context) error { return pc.Pool().Ping(ctx) }
	}

	// --- S3 session reports ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.S3 = sc
		deps.Checks["s3"] = sc.Health
	}

	// --- Events ---
	// Sinks that components emit into are assembled first; the fan-out is
	// shared by every producer.
	deps.Recent = events.NewRecent(512)
	deps.Metrics = metrics.New()
	if deps.Redis != nil {
		deps.Bus = redis.NewEventBus(deps.Redis)
	} else {
		deps.Bus = events.NewLocalBus()
	}
	deps.Publisher = events.NewPublisher(deps.Bus, 1024, logger)
	sinks := events.Fanout{events.NewLogSink(logger), deps.Recent, deps.Metrics, deps.Publisher}
	if senders := buildSenders(cfg.Notify); len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, 128, logger)
		sinks = append(sinks, deps.Notifier)
	}
	deps.Sink = sinks

	// --- Rate limiting ---
	rlCfg := rateLimitConfig(cfg.RateLimit)
	if cfg.Redis.SharedLimiter {
		deps.Limiter = redis.NewRateLimiter(deps.Redis, rlCfg, logger)
	} else {
		deps.LocalLimiter = ratelimit.New(rlCfg, logger)
		deps.Limiter = deps.LocalLimiter
	}

	// --- Price sources ---
	registry, err := buildRegistry(cfg.Venues, logger)
	if err != nil {
		return fail("sources", err)
	}
	deps.Registry = registry

	cacheOpts := []pricecache.Option{pricecache.WithSink(deps.Sink)}
	if deps.Redis != nil {
		cacheOpts = append(cacheOpts, pricecache.WithStore(redis.NewPriceStore(deps.Redis)))
	}
	deps.Cache = pricecache.New(logger, cacheOpts...)

	deps.Aggregator = aggregator.New(aggregator.Config{
		Mode:             cfg.Mode,
		MinVenues:        cfg.Aggregator.MinVenues,
		Primary:          cfg.Aggregator.PrimaryVenues,
		Workers:          cfg.Aggregator.Workers,
		BreakerThreshold: cfg.Aggregator.BreakerThreshold,
		BreakerCooldown:  cfg.Aggregator.BreakerCooldown.Duration,
	}, registry, deps.Cache, deps.Limiter, ttlPolicy(cfg.Cache), logger, aggregator.WithSink(deps.Sink))

	// --- Costs and gas ---
	deps.Costs = arbitrage.Costs{
		FeeBps:        venueMap(cfg.Arbitrage.FeeBps),
		DefaultFeeBps: cfg.Arbitrage.DefaultFeeBps,
		Absolute:      cfg.Arbitrage.AbsoluteCost,
		Notional:      cfg.Arbitrage.Notional,
	}
	gasOracle, gasClose := buildGasOracle(ctx, cfg, deps, logger)
	if gasClose != nil {
		closers = append(closers, gasClose)
	}
	deps.Gas = gasOracle

	// --- Portfolio and execution ---
	deps.Risk = risk.NewManager(risk.Config{
		InitialEquity:          cfg.Risk.InitialEquity,
		MaxPositionSize:        cfg.Risk.MaxPositionSize,
		MinTradeSize:           cfg.Risk.MinTradeSize,
		MaxDailyLoss:           cfg.Risk.MaxDailyLoss,
		MaxDrawdown:            cfg.Risk.MaxDrawdown,
		StopLoss:               cfg.Risk.StopLoss,
		TakeProfit:             cfg.Risk.TakeProfit,
		MaxSignalsPerMinute:    cfg.Risk.MaxSignalsPerMinute,
		MaxSwingSignalsPerHour: cfg.Risk.MaxSwingSignalsPerHour,
		MinSwingConfidence:     cfg.Risk.MinSwingConfidence,
		ReservationTTL:         cfg.Risk.ReservationTTL.Duration,
	}, logger, risk.WithSink(deps.Sink))

	if cfg.Mode == config.ModeLive {
		logger.WarnContext(ctx, "wire: live mode has no venue executor, approved trades are logged only")
		deps.Executor = executor.NewLogExecutor(logger)
	} else {
		var opts []executor.PaperOption
		if cfg.Paper.Seed != 0 {
			opts = append(opts, executor.WithSeed(cfg.Paper.Seed))
		}
		deps.Paper = executor.NewPaperExecutor(executor.PaperConfig{
			MaxSlippage: cfg.Risk.MaxSlippage,
			DedupTTL:    cfg.Paper.DedupTTL.Duration,
		}, deps.Costs, logger, opts...)
		deps.Executor = deps.Paper
	}

	if deps.S3 != nil {
		deps.Reporter = s3blob.NewReporter(
			s3blob.NewWriter(deps.S3, 0),
			deps.Risk,
			cfg.Report.Prefix,
			deps.SessionID,
			cfg.Mode,
			logger,
		)
	}

	return deps, cleanup, nil
}

func rateLimitConfig(c config.RateLimitConfig) ratelimit.Config {
	limits := make(map[string]ratelimit.Limit, len(c.Endpoints))
	for ep, l := range c.Endpoints {
		limits[ep] = ratelimit.Limit{Calls: l.Calls, Window: l.Window.Duration}
	}
	return ratelimit.Config{
		Limits:  limits,
		Policy:  ratelimit.Policy(c.Policy),
		MaxWait: c.MaxWait.Duration,
	}
}

func ttlPolicy(c config.CacheConfig) pricecache.TTLPolicy {
	p := pricecache.TTLPolicy{
		Default:     c.PriceDuration.Duration,
		VenueBase:   make(map[domain.Venue]time.Duration, len(c.VenueDurations)),
		Multipliers: make(map[string]map[domain.Venue]float64, len(c.Multipliers)),
	}
	for v, d := range c.VenueDurations {
		p.VenueBase[domain.Venue(v)] = d.Duration
	}
	for mode, m := range c.Multipliers {
		p.Multipliers[mode] = venueMap(m)
	}
	return p
}

func venueMap(m map[string]float64) map[domain.Venue]float64 {
	out := make(map[domain.Venue]float64, len(m))
	for k, v := range m {
		out[domain.Venue(k)] = v
	}
	return out
}

// buildRegistry registers every enabled venue behind the shared retry
// policy, with the rate-limit endpoint and chain it belongs to.
func buildRegistry(c config.VenuesConfig, logger *slog.Logger) (*source.Registry, error) {
	httpClient := &http.Client{Timeout: c.Timeout.Duration + time.Second}
	retry := source.RetryConfig{
		Timeout:     c.Timeout.Duration,
		Attempts:    c.Attempts,
		BaseBackoff: c.BaseBackoff.Duration,
		MaxBackoff:  c.MaxBackoff.Duration,
	}

	uniswap, err := source.NewUniswapAdapter(c.UniswapURL, c.UniswapAPIKey, c.BaseTokens, httpClient)
	if err != nil {
		return nil, err
	}
	all := []struct {
		adapter  domain.SourceAdapter
		endpoint string
		chain    domain.Chain
	}{
		{source.NewJupiterAdapter(c.JupiterURL, c.SolanaMints, httpClient), "jupiter_api", domain.ChainSolana},
		{uniswap, "uniswap_api", domain.ChainBase},
		{source.NewCoinGeckoAdapter(c.CoinGeckoURL, c.CoinGeckoIDs, httpClient), "coingecko_api", ""},
		{source.NewBinanceAdapter(c.BinanceURL, httpClient), "binance_api", ""},
		{source.NewKrakenAdapter(c.KrakenURL, httpClient), "kraken_api", ""},
		{source.NewCoinbaseAdapter(c.CoinbaseURL, httpClient), "coinbase_api", ""},
	}

	reg := source.NewRegistry()
	for _, v := range all {
		if slices.Contains(c.Disabled, string(v.adapter.Venue())) {
			continue
		}
		if err := reg.Register(source.NewResilient(v.adapter, retry, logger), v.endpoint, v.chain); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildSenders(c config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if c.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(c.DiscordWebhookURL, c.DiscordUsername, c.DiscordPerMinute, 5))
	}
	if c.TelegramToken != "" && c.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", c.TelegramToken, c.TelegramChatID))
	}
	return senders
}
