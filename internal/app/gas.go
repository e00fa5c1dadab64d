package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbscan/internal/config"
	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/gas"
)

// nativePair is priced to convert Base gas from ETH to USD.
const nativePair domain.Pair = "ETH/USDC"

// baseRPCEndpoint is the rate-limit endpoint gas price reads consume.
const baseRPCEndpoint = "base_rpc"

// buildGasOracle returns the static cost table, or an EVM oracle on Base
// backed by it when dynamic gas is enabled and the RPC is reachable. The
// returned close function may be nil.
func buildGasOracle(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (domain.GasOracle, func()) {
	static := make(gas.Static, len(cfg.Gas.Static))
	for chain, usd := range cfg.Gas.Static {
		static[domain.Chain(chain)] = usd
	}
	if !cfg.Gas.Dynamic {
		return static, nil
	}

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := gas.Dial(dctx, cfg.Chains.BaseRPCURL)
	if err != nil {
		logger.WarnContext(ctx, "wire: base rpc unavailable, using static gas costs",
			slog.String("error", err.Error()),
		)
		return static, nil
	}

	native := nativePrice(deps, nativeVenues(cfg))
	admit := func(ctx context.Context) error {
		adm, err := deps.Limiter.Admit(ctx, baseRPCEndpoint)
		if err != nil {
			return err
		}
		if adm.Outcome != domain.Admitted {
			return fmt.Errorf("%s %s: %w", baseRPCEndpoint, adm.Outcome, domain.ErrRateLimited)
		}
		return nil
	}
	oracle := gas.NewEVMOracle(client, native, admit, static, gas.Config{
		Chain:    domain.ChainBase,
		GasLimit: cfg.Gas.SwapGasLimit,
		TTL:      cfg.Gas.TTL.Duration,
	}, logger)
	return oracle, client.Close
}

// nativeVenues returns the venues quoting ETH/USD, taken from the configured
// pairs whose base is ETH or WETH.
func nativeVenues(cfg *config.Config) []domain.Venue {
	seen := make(map[domain.Venue]bool)
	var out []domain.Venue
	for _, p := range cfg.Pairs {
		base := domain.Pair(p.Symbol).Base()
		if base != "ETH" && base != "WETH" {
			continue
		}
		for _, v := range p.Venues {
			if !seen[domain.Venue(v)] {
				seen[domain.Venue(v)] = true
				out = append(out, domain.Venue(v))
			}
		}
	}
	return out
}

// nativePrice averages the aggregated ETH/USD quotes.
func nativePrice(deps *Dependencies, venues []domain.Venue) gas.PriceFunc {
	return func(ctx context.Context) (float64, error) {
		if len(venues) == 0 {
			return 0, fmt.Errorf("no venues quote %s: %w", nativePair, domain.ErrNoPrice)
		}
		prices, err := deps.Aggregator.PricesFor(ctx, nativePair, venues)
		if err != nil {
			return 0, err
		}
		var sum float64
		for _, pp := range prices {
			sum += pp.Price
		}
		return sum / float64(len(prices)), nil
	}
}
