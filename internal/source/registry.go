// Package source implements per-venue price adapters and the registry that
// maps venue ids to them.
package source

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Entry is a registered adapter together with the rate-limit endpoint it
// consumes and the chain it quotes for.
type Entry struct {
	Adapter  domain.SourceAdapter
	Endpoint string
	Chain    domain.Chain
}

// Registry holds adapters keyed by venue. It is built once at startup.
type Registry struct {
	entries map[domain.Venue]Entry
	mu      sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[domain.Venue]Entry)}
}

// Register adds an adapter under its venue id. Registering the same venue
// twice is an error.
func (r *Registry) Register(a domain.SourceAdapter, endpoint string, chain domain.Chain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := a.Venue()
	if _, ok := r.entries[v]; ok {
		return fmt.Errorf("source: venue %q: %w", v, domain.ErrAlreadyExists)
	}
	r.entries[v] = Entry{Adapter: a, Endpoint: endpoint, Chain: chain}
	return nil
}

// Get returns the entry for venue.
func (r *Registry) Get(v domain.Venue) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[v]
	if !ok {
		return Entry{}, fmt.Errorf("source: venue %q: %w", v, domain.ErrUnknownVenue)
	}
	return e, nil
}

// List returns all registered venues, sorted.
func (r *Registry) List() []domain.Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Venue, 0, len(r.entries))
	for v := range r.entries {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
