package domain

import (
	"fmt"
	"strings"
	"time"
)

// Venue identifies a price source such as "jupiter" or "binance".
type Venue string

// Chain identifies the network a pair is traded on.
type Chain string

const (
	ChainSolana Chain = "solana"
	ChainBase   Chain = "base"
)

// Pair is a trading pair in BASE/QUOTE form, e.g. "SOL/USDC".
type Pair string

// ParsePair validates and normalises a BASE/QUOTE string.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid pair %q: want BASE/QUOTE", s)
	}
	return Pair(strings.ToUpper(parts[0]) + "/" + strings.ToUpper(parts[1])), nil
}

// Base returns the base asset symbol.
func (p Pair) Base() string {
	base, _, _ := strings.Cut(string(p), "/")
	return base
}

// Quote returns the quote asset symbol.
func (p Pair) Quote() string {
	_, quote, _ := strings.Cut(string(p), "/")
	return quote
}

// QuoteIsUSD reports whether the quote leg is a dollar or dollar stablecoin.
func (p Pair) QuoteIsUSD() bool {
	switch p.Quote() {
	case "USD", "USDC", "USDT", "USDBC":
		return true
	}
	return false
}

// PricePoint is a single venue quote. It is never mutated after creation.
type PricePoint struct {
	Venue      Venue
	Pair       Pair
	Price      float64
	ObservedAt time.Time
	// Confidence is the source's own confidence in the quote, 0..1.
	Confidence float64
	// Liquidity is the quoted notional available at Price; zero means unknown.
	Liquidity float64
}

// CacheKey addresses a cached PricePoint.
type CacheKey struct {
	Venue Venue
	Pair  Pair
}

func (k CacheKey) String() string {
	return string(k.Venue) + ":" + string(k.Pair)
}

// CacheEntry is a cached PricePoint with its absolute expiry.
type CacheEntry struct {
	Key       CacheKey
	Value     PricePoint
	ExpiresAt time.Time
}

// Fresh reports whether the entry may still be served at now.
func (e CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
