package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

type flatFees float64

func (f flatFees) FeeFraction(domain.Venue) float64 { return float64(f) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPaperExecutor_Fill(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewPaperExecutor(PaperConfig{MaxSlippage: 0.005}, flatFees(0.001), testLogger(),
		WithSeed(7), WithClock(func() time.Time { return now }))

	buy := domain.ApprovedTrade{ID: "t-buy", Pair: "SOL/USDC", Venue: "jupiter", Side: domain.SideBuy, Size: 1000, LimitPrice: 180}
	f, err := p.Execute(context.Background(), buy)
	require.NoError(t, err)
	assert.Equal(t, "t-buy", f.TradeID)
	assert.GreaterOrEqual(t, f.ExecutedPrice, 180.0)
	assert.Less(t, f.ExecutedPrice, 180*1.005)
	assert.InDelta(t, 1.0, f.FeesPaid, 1e-12)
	assert.Equal(t, now, f.Timestamp)
	assert.NotEmpty(t, f.Reference)

	sell := domain.ApprovedTrade{ID: "t-sell", Pair: "SOL/USDC", Venue: "jupiter", Side: domain.SideSell, Size: 1000, LimitPrice: 180}
	f, err = p.Execute(context.Background(), sell)
	require.NoError(t, err)
	assert.LessOrEqual(t, f.ExecutedPrice, 180.0)
	assert.Greater(t, f.ExecutedPrice, 180*0.995)
}

func TestPaperExecutor_Failures(t *testing.T) {
	p := NewPaperExecutor(PaperConfig{}, nil, testLogger(), WithSeed(1))
	trade := domain.ApprovedTrade{ID: "dup", Side: domain.SideBuy, Size: 500, LimitPrice: 10}

	f, err := p.Execute(context.Background(), trade)
	require.NoError(t, err)
	assert.Equal(t, 10.0, f.ExecutedPrice)
	assert.Zero(t, f.FeesPaid)

	_, err = p.Execute(context.Background(), trade)
	var failure *domain.ExecutionFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "dup", failure.TradeID)
	assert.Contains(t, failure.Reason, "duplicate")

	_, err = p.Execute(context.Background(), domain.ApprovedTrade{ID: "zero", Size: 0, LimitPrice: 10})
	require.True(t, errors.As(err, &failure))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Execute(ctx, domain.ApprovedTrade{ID: "late", Size: 500, LimitPrice: 10})
	require.True(t, errors.As(err, &failure))
}

func TestLogExecutor(t *testing.T) {
	_, err := NewLogExecutor(testLogger()).Execute(context.Background(), domain.ApprovedTrade{ID: "live-1"})
	var failure *domain.ExecutionFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "live-1", failure.TradeID)
}

func TestDedup(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d := NewDedup(time.Minute, func() time.Time { return now })

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate("b"))

	now = now.Add(time.Minute)
	assert.Equal(t, 2, d.Cleanup())
	assert.Zero(t, d.Len())
	assert.False(t, d.IsDuplicate("a"))
}
