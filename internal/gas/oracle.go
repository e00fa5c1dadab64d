// Package gas estimates per-swap network costs in quote currency.
package gas

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// GasPricer is the subset of ethclient.Client the oracle needs.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// PriceFunc returns the USD price of the chain's native token.
type PriceFunc func(ctx context.Context) (float64, error)

// Admit gates RPC calls; nil admits everything.
type Admit func(ctx context.Context) error

// Static returns fixed costs per chain.
type Static map[domain.Chain]float64

// GasCost returns the configured cost, or zero for unknown chains.
func (s Static) GasCost(_ context.Context, chain domain.Chain) (float64, error) {
	return s[chain], nil
}

// Config configures an EVMOracle.
type Config struct {
	Chain    domain.Chain
	GasLimit uint64
	TTL      time.Duration
}

// EVMOracle prices a swap on an EVM chain as gasPrice × gasLimit converted
// to USD. Results are cached for TTL. Chains other than Config.Chain, and
// any RPC failure, fall back to the static table.
type EVMOracle struct {
	pricer   GasPricer
	native   PriceFunc
	admit    Admit
	fallback Static
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	cached   float64
	cachedAt time.Time
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("gas: dial %s: %w", rpcURL, err)
	}
	return client, nil
}

// NewEVMOracle creates an oracle for cfg.Chain.
func NewEVMOracle(pricer GasPricer, native PriceFunc, admit Admit, fallback Static, cfg Config, logger *slog.Logger) *EVMOracle {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 200_000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	return &EVMOracle{
		pricer:   pricer,
		native:   native,
		admit:    admit,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "gas"), slog.String("chain", string(cfg.Chain))),
		now:      time.Now,
	}
}

// GasCost returns the estimated USD cost of one swap on chain.
func (o *EVMOracle) GasCost(ctx context.Context, chain domain.Chain) (float64, error) {
	if chain != o.cfg.Chain {
		return o.fallback.GasCost(ctx, chain)
	}

	o.mu.Lock()
	if !o.cachedAt.IsZero() && o.now().Sub(o.cachedAt) < o.cfg.TTL {
		v := o.cached
		o.mu.Unlock()
		return v, nil
	}
	o.mu.Unlock()

	cost, err := o.estimate(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "gas: estimate failed, using static cost",
			slog.String("error", err.Error()),
		)
		return o.fallback.GasCost(ctx, chain)
	}

	o.mu.Lock()
	o.cached, o.cachedAt = cost, o.now()
	o.mu.Unlock()
	return cost, nil
}

func (o *EVMOracle) estimate(ctx context.Context) (float64, error) {
	if o.admit != nil {
		if err := o.admit(ctx); err != nil {
			return 0, err
		}
	}
	wei, err := o.pricer.SuggestGasPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("suggest gas price: %w", err)
	}
	nativeUSD, err := o.native(ctx)
	if err != nil {
		return 0, fmt.Errorf("native price: %w", err)
	}

	feeWei := new(big.Int).Mul(wei, new(big.Int).SetUint64(o.cfg.GasLimit))
	feeEth, _ := new(big.Float).Quo(new(big.Float).SetInt(feeWei), big.NewFloat(1e18)).Float64()
	return feeEth * nativeUSD, nil
}

var (
	_ domain.GasOracle = Static(nil)
	_ domain.GasOracle = (*EVMOracle)(nil)
)
