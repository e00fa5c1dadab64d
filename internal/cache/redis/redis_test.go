package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewFailsWithoutServer(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Addr: "127.0.0.1:1", MaxRetries: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: ping")
}

func TestRateLimiterRejectPolicy(t *testing.T) {
	c, _ := newTestClient(t)
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(c, ratelimit.Config{
		Limits: map[string]ratelimit.Limit{"dex": {Calls: 2, Window: time.Second}},
		Policy: ratelimit.PolicyReject,
	}, testLogger(), WithLimiterClock(func() time.Time { return now }))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		adm, err := rl.Admit(ctx, "dex")
		require.NoError(t, err)
		assert.Equal(t, domain.Admitted, adm.Outcome)
	}

	adm, err := rl.Admit(ctx, "dex")
	require.NoError(t, err)
	assert.Equal(t, domain.Rejected, adm.Outcome)
	assert.Equal(t, time.Second, adm.WaitHint)

	now = now.Add(time.Second)
	adm, err = rl.Admit(ctx, "dex")
	require.NoError(t, err)
	assert.Equal(t, domain.Admitted, adm.Outcome)
}

func TestRateLimiterWaitBeyondMaxDefers(t *testing.T) {
	c, _ := newTestClient(t)
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(c, ratelimit.Config{
		Limits:  map[string]ratelimit.Limit{"dex": {Calls: 1, Window: time.Minute}},
		Policy:  ratelimit.PolicyWait,
		MaxWait: time.Second,
	}, testLogger(), WithLimiterClock(func() time.Time { return now }))

	ctx := context.Background()
	adm, err := rl.Admit(ctx, "dex")
	require.NoError(t, err)
	require.Equal(t, domain.Admitted, adm.Outcome)

	adm, err = rl.Admit(ctx, "dex")
	require.NoError(t, err)
	assert.Equal(t, domain.Deferred, adm.Outcome)
	assert.Equal(t, time.Minute, adm.WaitHint)
}

func TestRateLimiterUnknownEndpointAdmitted(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c, ratelimit.Config{}, testLogger())

	adm, err := rl.Admit(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Equal(t, domain.Admitted, adm.Outcome)
}

func TestRateLimiterAllow(t *testing.T) {
	c, _ := newTestClient(t)
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(c, ratelimit.Config{}, testLogger(), WithLimiterClock(func() time.Time { return now }))
	ctx := context.Background()

	ok, err := rl.Allow(ctx, "10.0.0.1", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rl.Allow(ctx, "10.0.0.1", 1, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "10.0.0.2", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = rl.Allow(ctx, "x", 0, time.Second)
	assert.Error(t, err)
}

func TestPriceStoreRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	ps := NewPriceStore(c)
	ctx := context.Background()

	key := domain.CacheKey{Venue: "jupiter", Pair: "SOL/USDC"}
	observed := time.Unix(1_700_000_000, 500)
	entry := domain.CacheEntry{
		Key: key,
		Value: domain.PricePoint{
			Venue: "jupiter", Pair: "SOL/USDC",
			Price: 180.25, ObservedAt: observed, Confidence: 0.9, Liquidity: 50_000,
		},
		ExpiresAt: time.Now().Add(10 * time.Second),
	}
	require.NoError(t, ps.Put(ctx, entry))
	assert.True(t, mr.Exists("price:jupiter:SOL/USDC"))

	got, err := ps.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 180.25, got.Value.Price)
	assert.Equal(t, 0.9, got.Value.Confidence)
	assert.Equal(t, 50_000.0, got.Value.Liquidity)
	assert.True(t, got.Value.ObservedAt.Equal(observed))
	assert.Equal(t, entry.ExpiresAt.UnixNano(), got.ExpiresAt.UnixNano())

	mr.FastForward(11 * time.Second)
	_, err = ps.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPriceStoreMissingKey(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := NewPriceStore(c).Get(context.Background(), domain.CacheKey{Venue: "x", Pair: "A/B"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNamespacePrefixesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr(), Namespace: "staging:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	entry := domain.CacheEntry{
		Key:       domain.CacheKey{Venue: "kraken", Pair: "SOL/USDC"},
		Value:     domain.PricePoint{Venue: "kraken", Pair: "SOL/USDC", Price: 181, ObservedAt: time.Now()},
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, NewPriceStore(c).Put(context.Background(), entry))
	assert.True(t, mr.Exists("staging:price:kraken:SOL/USDC"))

	rl := NewRateLimiter(c, ratelimit.Config{}, testLogger())
	ok, err := rl.Allow(context.Background(), "api:10.0.0.1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("staging:ratelimit:adhoc:api:10.0.0.1"))
	assert.NotNil(t, c.PoolStats())
}

func TestEventBusPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewEventBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "arbscan:*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "arbscan:events", []byte(`{"kind":"x"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"kind":"x"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventBusStream(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewEventBus(c)
	ctx := context.Background()

	tail, err := bus.StreamTail(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, tail)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, "arbscan:events", []byte(p)))
	}
	tail, err = bus.StreamTail(ctx, "arbscan:events", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "c", string(tail[0]))
	assert.Equal(t, "b", string(tail[1]))
}
