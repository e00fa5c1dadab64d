// Package aggregator gathers prices for a pair across venues. Each venue is
// guarded by a circuit breaker and reached through the price cache and the
// endpoint rate limiter.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/pricecache"
	"github.com/alanyoungcy/arbscan/internal/source"
)

// Config holds aggregator tuning.
type Config struct {
	// Mode selects the cache TTL multipliers (paper or live).
	Mode string
	// MinVenues is the number of successful quotes a pair needs. Defaults to 2.
	MinVenues int
	// Primary is how many venues from the head of the fallback list are
	// queried first. The rest are tried only when the first wave falls short
	// of MinVenues. Zero queries every venue at once.
	Primary int
	// Workers bounds concurrent venue fetches per pair.
	Workers int
	// BreakerThreshold is the number of consecutive failures that opens a
	// venue breaker.
	BreakerThreshold int
	// BreakerCooldown is how long an open breaker excludes its venue.
	BreakerCooldown time.Duration
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	cfg      Config
	registry *source.Registry
	cache    *pricecache.Cache
	limiter  domain.RateLimiter
	ttl      pricecache.TTLPolicy
	breakers *Breakers
	sink     domain.EventSink
	now      func() time.Time
	logger   *slog.Logger
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now for breaker bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithSink reports rate-limit hits and breaker trips.
func WithSink(sink domain.EventSink) Option {
	return func(a *Aggregator) { a.sink = sink }
}

// New creates an Aggregator.
func New(
	cfg Config,
	registry *source.Registry,
	cache *pricecache.Cache,
	limiter domain.RateLimiter,
	ttl pricecache.TTLPolicy,
	logger *slog.Logger,
	opts ...Option,
) *Aggregator {
	if cfg.MinVenues < 2 {
		cfg.MinVenues = 2
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.BreakerThreshold < 1 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 5 * time.Minute
	}
	a := &Aggregator{
		cfg:      cfg,
		registry: registry,
		cache:    cache,
		limiter:  limiter,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
	for _, o := range opts {
		o(a)
	}
	a.breakers = NewBreakers(cfg.BreakerThreshold, cfg.BreakerCooldown, a.now, a.breakerOpened)
	return a
}

// PricesFor fetches quotes for pair from venues, in fallback order. Venues
// that fail are left out of the result. When fewer than MinVenues succeed,
// the partial result is returned together with domain.ErrInsufficientData.
func (a *Aggregator) PricesFor(ctx context.Context, pair domain.Pair, venues []domain.Venue) (map[domain.Venue]domain.PricePoint, error) {
	out := make(map[domain.Venue]domain.PricePoint, len(venues))

	waves := [][]domain.Venue{venues}
	if a.cfg.Primary > 0 && a.cfg.Primary < len(venues) {
		waves = [][]domain.Venue{venues[:a.cfg.Primary], venues[a.cfg.Primary:]}
	}

	for _, wave := range waves {
		if len(out) >= a.cfg.MinVenues {
			break
		}
		a.fanOut(ctx, pair, wave, out)
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("aggregator: %s: %w", pair, err)
		}
	}

	if len(out) < a.cfg.MinVenues {
		return out, fmt.Errorf("aggregator: %s: %d of %d venues: %w",
			pair, len(out), a.cfg.MinVenues, domain.ErrInsufficientData)
	}
	return out, nil
}

func (a *Aggregator) fanOut(ctx context.Context, pair domain.Pair, venues []domain.Venue, out map[domain.Venue]domain.PricePoint) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)

	for _, v := range venues {
		g.Go(func() error {
			pp, err := a.fetch(gctx, pair, v)
			if err != nil {
				a.logger.DebugContext(gctx, "aggregator: venue skipped",
					slog.String("venue", string(v)),
					slog.String("pair", string(pair)),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			out[v] = pp
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// fetch resolves one venue: breaker, then cache, then limiter and adapter.
func (a *Aggregator) fetch(ctx context.Context, pair domain.Pair, venue domain.Venue) (domain.PricePoint, error) {
	entry, err := a.registry.Get(venue)
	if err != nil {
		return domain.PricePoint{}, err
	}
	ok, trial := a.breakers.admit(venue)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("aggregator: %s: %w", venue, domain.ErrCircuitOpen)
	}

	// Breaker outcomes are recorded once per adapter call, by whichever
	// caller leads the cache flight. Cache hits and shared results leave the
	// breaker alone.
	var recorded atomic.Bool
	key := domain.CacheKey{Venue: venue, Pair: pair}
	supplier := func(sctx context.Context) (domain.PricePoint, error) {
		adm, err := a.limiter.Admit(sctx, entry.Endpoint)
		if err != nil {
			return domain.PricePoint{}, err
		}
		if adm.Outcome != domain.Admitted {
			a.emit(sctx, domain.Event{
				Kind:     domain.EventRateLimitHit,
				Pair:     pair,
				Venue:    venue,
				Endpoint: entry.Endpoint,
				Reason:   adm.Outcome.String(),
			})
			return domain.PricePoint{}, fmt.Errorf("aggregator: %s: retry in %s: %w",
				entry.Endpoint, adm.WaitHint, domain.ErrRateLimited)
		}
		pp, err := entry.Adapter.FetchPrice(sctx, pair)
		switch {
		case err == nil:
			a.breakers.RecordSuccess(venue)
			recorded.Store(true)
		case countsAsFailure(err):
			a.breakers.RecordFailure(venue)
			recorded.Store(true)
		}
		return pp, err
	}

	pp, err := a.cache.GetOrFetch(ctx, key, supplier, a.ttl.For(a.cfg.Mode, venue))
	if trial && !recorded.Load() {
		a.breakers.EndTrial(venue)
	}
	if err != nil {
		return domain.PricePoint{}, err
	}
	return pp, nil
}

// countsAsFailure reports whether err reflects venue health. Rate limiting
// and caller cancellation say nothing about the venue.
func countsAsFailure(err error) bool {
	switch {
	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, context.Canceled):
		return false
	}
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return true
	}
	return !errors.Is(err, context.DeadlineExceeded)
}

// Status exposes per-venue breaker state.
func (a *Aggregator) Status() []BreakerStatus {
	return a.breakers.Status()
}

func (a *Aggregator) breakerOpened(venue domain.Venue, failures int) {
	a.logger.Warn("aggregator: circuit opened",
		slog.String("venue", string(venue)),
		slog.Int("failures", failures),
		slog.Duration("cooldown", a.cfg.BreakerCooldown),
	)
	a.emit(context.Background(), domain.Event{
		Kind:   domain.EventCircuitBreakerOpened,
		Venue:  venue,
		Reason: fmt.Sprintf("%d consecutive failures", failures),
	})
}

func (a *Aggregator) emit(ctx context.Context, ev domain.Event) {
	if a.sink == nil {
		return
	}
	ev.Time = a.now()
	a.sink.Emit(ctx, ev)
}
