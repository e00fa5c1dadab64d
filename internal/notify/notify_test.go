package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	return c.err
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.titles)
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL, "arbscan", 60, 1)
	require.NoError(t, d.Send(context.Background(), "ALERT emergency stop", "reason: operator"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "arbscan", got.Username)
	assert.Equal(t, "ALERT emergency stop", got.Embeds[0].Title)
	assert.Equal(t, 0xE74C3C, got.Embeds[0].Color)

	// Burst of one is spent.
	err := d.Send(context.Background(), "INFO", "x")
	assert.ErrorIs(t, err, ErrThrottled)
}

func TestDiscordSender_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL, "", 60, 5).Send(context.Background(), "INFO", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestTelegramSender(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewTelegramSender(srv.URL, "tok", "42").Send(context.Background(), "T", "m"))
	assert.Equal(t, "/bottok/sendMessage", path)
}

func TestNotifier_FilterAndRun(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier([]Sender{sender}, []string{"emergency_stop", " trade_filled "}, 8, testLogger())
	assert.True(t, n.Allowed(domain.EventTradeFilled))
	assert.False(t, n.Allowed(domain.EventCacheMiss))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	n.Emit(ctx, domain.Event{Kind: domain.EventCacheMiss})
	n.Emit(ctx, domain.Event{Kind: domain.EventEmergencyStop, Reason: "operator"})

	require.Eventually(t, func() bool { return sender.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ALERT emergency stop", sender.titles[0])
}

func TestNotifier_DispatchJoinsErrors(t *testing.T) {
	ok := &captureSender{}
	bad := &captureSender{err: errors.New("down")}
	n := NewNotifier([]Sender{bad, ok}, nil, 1, testLogger())

	err := n.Dispatch(context.Background(), "INFO x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 1, ok.count())
}

func TestFormat(t *testing.T) {
	title, msg := Format(domain.Event{
		Kind: domain.EventOpportunityFound,
		Pair: "SOL/USDC",
		Payload: domain.Opportunity{
			BuyVenue: "jupiter", BuyPrice: 180, SellVenue: "coingecko", SellPrice: 182, NetSpread: 0.00944,
		},
	})
	assert.Equal(t, "INFO opportunity found", title)
	assert.Contains(t, msg, "pair: SOL/USDC")
	assert.Contains(t, msg, "buy jupiter @ 180.000000")
	assert.Contains(t, msg, "net spread 0.944%")

	exit := 190.0
	title, msg = Format(domain.Event{
		Kind:    domain.EventPositionClosed,
		Payload: domain.Position{Side: domain.SideBuy, Pair: "SOL/USDC", Size: 1800, EntryPrice: 180, ExitPrice: &exit, RealizedPnL: 100},
	})
	assert.Equal(t, "TRADE position closed", title)
	assert.Contains(t, msg, "pnl 100.00")
}
