package gas

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

type fakePricer struct {
	calls atomic.Int64
	wei   *big.Int
	err   error
}

func (f *fakePricer) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.calls.Add(1)
	return f.wei, f.err
}

func ethAt(price float64) PriceFunc {
	return func(context.Context) (float64, error) { return price, nil }
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestEVMOracleEstimatesAndCaches(t *testing.T) {
	// 0.05 gwei × 200k gas = 1e-5 ETH; at 3000 USD that is 0.03 USD.
	pricer := &fakePricer{wei: big.NewInt(50_000_000)}
	o := NewEVMOracle(pricer, ethAt(3000), nil, Static{domain.ChainBase: 0.5},
		Config{Chain: domain.ChainBase, GasLimit: 200_000, TTL: time.Minute}, discard())

	cost, err := o.GasCost(context.Background(), domain.ChainBase)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, cost, 1e-9)

	_, err = o.GasCost(context.Background(), domain.ChainBase)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pricer.calls.Load())
}

func TestEVMOracleFallsBack(t *testing.T) {
	pricer := &fakePricer{err: errors.New("rpc down")}
	o := NewEVMOracle(pricer, ethAt(3000), nil,
		Static{domain.ChainBase: 0.5, domain.ChainSolana: 0.01},
		Config{Chain: domain.ChainBase}, discard())

	cost, err := o.GasCost(context.Background(), domain.ChainBase)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cost)

	cost, err = o.GasCost(context.Background(), domain.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, 0.01, cost)
}

func TestEVMOracleRespectsAdmission(t *testing.T) {
	pricer := &fakePricer{wei: big.NewInt(1)}
	denied := func(context.Context) error { return domain.ErrRateLimited }
	o := NewEVMOracle(pricer, ethAt(3000), denied, Static{domain.ChainBase: 0.25},
		Config{Chain: domain.ChainBase}, discard())

	cost, err := o.GasCost(context.Background(), domain.ChainBase)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cost)
	assert.Zero(t, pricer.calls.Load())
}
