package pricecache

import (
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// TTLPolicy derives the cache TTL for a (mode, venue) pair: the venue's base
// duration (or the default) scaled by the mode's venue multiplier.
type TTLPolicy struct {
	Default     time.Duration
	VenueBase   map[domain.Venue]time.Duration
	Multipliers map[string]map[domain.Venue]float64
}

// For returns the TTL to use for venue quotes in mode.
func (p TTLPolicy) For(mode string, venue domain.Venue) time.Duration {
	base := p.Default
	if d, ok := p.VenueBase[venue]; ok && d > 0 {
		base = d
	}
	if m, ok := p.Multipliers[mode][venue]; ok && m > 0 {
		base = time.Duration(float64(base) * m)
	}
	if base <= 0 {
		return time.Second
	}
	return base
}
