package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecent(t *testing.T) {
	r := NewRecent(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r.Emit(ctx, domain.Event{Kind: domain.EventOpportunityFound, Key: string(rune('a' + i))})
	}
	r.Emit(ctx, domain.Event{Kind: domain.EventCacheMiss, Key: "miss"})

	got := r.List(domain.EventOpportunityFound, 0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"e", "d", "c"}, []string{got[0].Key, got[1].Key, got[2].Key})

	assert.Len(t, r.List(domain.EventOpportunityFound, 2), 2)
	assert.Len(t, r.List(domain.EventCacheMiss, 10), 1)
	assert.Empty(t, r.List(domain.EventTradeFilled, 10))
}

func TestFanout(t *testing.T) {
	a, b := NewRecent(2), NewRecent(2)
	f := Fanout{a, nil, b, NewLogSink(testLogger())}
	f.Emit(context.Background(), domain.Event{Kind: domain.EventTradeApproved})
	assert.Len(t, a.List(domain.EventTradeApproved, 0), 1)
	assert.Len(t, b.List(domain.EventTradeApproved, 0), 1)
}

func TestPublisherOverLocalBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus()
	sub, err := bus.Subscribe(ctx, Channel)
	require.NoError(t, err)

	p := NewPublisher(bus, 4, testLogger())
	go func() { _ = p.Run(ctx) }()

	p.Emit(ctx, domain.Event{Kind: domain.EventCircuitBreakerOpened, Venue: "kraken"})

	select {
	case payload := <-sub:
		var ev domain.Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, domain.EventCircuitBreakerOpened, ev.Kind)
		assert.Equal(t, domain.Venue("kraken"), ev.Venue)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := NewPublisher(NewLocalBus(), 1, testLogger())
	p.Emit(context.Background(), domain.Event{Kind: domain.EventCacheMiss})
	p.Emit(context.Background(), domain.Event{Kind: domain.EventCacheMiss})
	assert.EqualValues(t, 1, p.Dropped())
}

func TestLocalBusUnsubscribe(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, "c")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
	require.NoError(t, bus.Publish(context.Background(), "c", []byte("x")))
}
