package source

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Solana SPL mint addresses for the default pairs.
var defaultSolanaMints = map[string]string{
	"SOL":  "So11111111111111111111111111111111111111112",
	"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"USDT": "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
	"RAY":  "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
	"ETH":  "7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs",
}

// Base token contract addresses for the default pairs.
var defaultBaseTokens = map[string]string{
	"WETH": "0x4200000000000000000000000000000000000006",
	"ETH":  "0x4200000000000000000000000000000000000006",
	"USDC": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
}

// CoinGecko ids for the assets the default pairs use.
var defaultCoinGeckoIDs = map[string]string{
	"SOL":  "solana",
	"ETH":  "ethereum",
	"WETH": "ethereum",
	"RAY":  "raydium",
	"USDC": "usd-coin",
}

// cexAsset maps wrapped or chain-specific tickers to the symbol centralised
// exchanges list them under.
func cexAsset(sym string) string {
	switch sym {
	case "WETH":
		return "ETH"
	case "WSOL":
		return "SOL"
	}
	return sym
}

// requireUSDQuote rejects pairs a USD-only market-data source cannot price.
func requireUSDQuote(pair domain.Pair) error {
	if !pair.QuoteIsUSD() {
		return fmt.Errorf("quote %s not supported, only USD-quoted pairs", pair.Quote())
	}
	return nil
}

func mergeSymbols(defaults, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[strings.ToUpper(k)] = v
	}
	return out
}
