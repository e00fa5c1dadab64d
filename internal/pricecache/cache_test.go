package pricecache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Emit(_ context.Context, ev domain.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var solKey = domain.CacheKey{Venue: "jupiter", Pair: "SOL/USDC"}

func countingSupplier(calls *atomic.Int64, price float64) Supplier {
	return func(context.Context) (domain.PricePoint, error) {
		calls.Add(1)
		return domain.PricePoint{Venue: solKey.Venue, Pair: solKey.Pair, Price: price}, nil
	}
}

func TestGetOrFetchHitAndExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	sink := &recordingSink{}
	c := New(testLogger(), WithClock(clock.Now), WithSink(sink))
	ctx := context.Background()

	var calls atomic.Int64
	pp, err := c.GetOrFetch(ctx, solKey, countingSupplier(&calls, 180), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 180.0, pp.Price)

	clock.Advance(59 * time.Second)
	pp, err = c.GetOrFetch(ctx, solKey, countingSupplier(&calls, 181), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 180.0, pp.Price, "fresh entry must be served from cache")
	assert.EqualValues(t, 1, calls.Load())

	// At exactly ttl the entry is expired and must not be served.
	clock.Advance(time.Second)
	pp, err = c.GetOrFetch(ctx, solKey, countingSupplier(&calls, 182), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 182.0, pp.Price)
	assert.EqualValues(t, 2, calls.Load())

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 2, stats.Misses)
	require.Len(t, sink.events, 2)
	assert.Equal(t, domain.EventCacheMiss, sink.events[0].Kind)
	assert.Equal(t, "jupiter:SOL/USDC", sink.events[0].Key)
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	c := New(testLogger())
	release := make(chan struct{})
	var calls atomic.Int64
	supplier := func(context.Context) (domain.PricePoint, error) {
		calls.Add(1)
		<-release
		return domain.PricePoint{Price: 100}, nil
	}

	const n = 50
	var wg sync.WaitGroup
	results := make([]float64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pp, err := c.GetOrFetch(context.Background(), solKey, supplier, time.Minute)
			results[i], errs[i] = pp.Price, err
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 100.0, results[i])
	}
}

func TestGetOrFetchSharesErrorsWithoutCaching(t *testing.T) {
	c := New(testLogger())
	boom := errors.New("upstream 502")
	var calls atomic.Int64
	failing := func(context.Context) (domain.PricePoint, error) {
		calls.Add(1)
		return domain.PricePoint{}, boom
	}

	_, err := c.GetOrFetch(context.Background(), solKey, failing, time.Minute)
	require.ErrorIs(t, err, boom)

	pp, err := c.GetOrFetch(context.Background(), solKey, countingSupplier(&calls, 99), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 99.0, pp.Price)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCancelledLeaderStillFillsFollowers(t *testing.T) {
	c := New(testLogger())
	started := make(chan struct{})
	release := make(chan struct{})
	supplierCtxErr := make(chan error, 1)
	supplier := func(ctx context.Context) (domain.PricePoint, error) {
		close(started)
		<-release
		supplierCtxErr <- ctx.Err()
		return domain.PricePoint{Price: 42}, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(leaderCtx, solKey, supplier, time.Minute)
		leaderErr <- err
	}()
	<-started

	followerRes := make(chan domain.PricePoint, 1)
	go func() {
		pp, err := c.GetOrFetch(context.Background(), solKey, supplier, time.Minute)
		if err == nil {
			followerRes <- pp
		}
	}()

	cancel()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	time.Sleep(10 * time.Millisecond)
	close(release)
	assert.Equal(t, 42.0, (<-followerRes).Price)
	assert.NoError(t, <-supplierCtxErr)

	pp, ok := c.Peek(solKey)
	require.True(t, ok)
	assert.Equal(t, 42.0, pp.Price)
}

func TestGetOrFetchRejectsNonPositiveTTL(t *testing.T) {
	c := New(testLogger())
	var calls atomic.Int64
	_, err := c.GetOrFetch(context.Background(), solKey, countingSupplier(&calls, 1), 0)
	require.ErrorIs(t, err, domain.ErrInvariant)
	assert.Zero(t, calls.Load())
}

func TestSweepDropsExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New(testLogger(), WithClock(clock.Now))
	var calls atomic.Int64
	_, err := c.GetOrFetch(context.Background(), solKey, countingSupplier(&calls, 1), time.Second)
	require.NoError(t, err)

	other := domain.CacheKey{Venue: "binance", Pair: "SOL/USDC"}
	_, err = c.GetOrFetch(context.Background(), other, countingSupplier(&calls, 1), time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestTTLPolicy(t *testing.T) {
	p := TTLPolicy{
		Default:   60 * time.Second,
		VenueBase: map[domain.Venue]time.Duration{"binance": 10 * time.Second},
		Multipliers: map[string]map[domain.Venue]float64{
			"paper": {"jupiter": 5, "uniswap_v3_base": 10},
			"live":  {"uniswap_v3_base": 2},
		},
	}

	tests := []struct {
		mode  string
		venue domain.Venue
		want  time.Duration
	}{
		{"paper", "jupiter", 5 * time.Minute},
		{"paper", "uniswap_v3_base", 10 * time.Minute},
		{"live", "jupiter", time.Minute},
		{"live", "uniswap_v3_base", 2 * time.Minute},
		{"live", "binance", 10 * time.Second},
		{"paper", "kraken", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+string(tt.venue), func(t *testing.T) {
			assert.Equal(t, tt.want, p.For(tt.mode, tt.venue))
		})
	}
}
