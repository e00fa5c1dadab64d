package aggregator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "closed":
		*s = StateClosed
	case "open":
		*s = StateOpen
	case "half_open":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("aggregator: unknown breaker state %q", b)
	}
	return nil
}

// BreakerStatus is a read-only view of one venue breaker.
type BreakerStatus struct {
	Venue       domain.Venue `json:"venue"`
	State       State        `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure time.Time    `json:"last_failure,omitempty"`
	OpenedAt    time.Time    `json:"opened_at,omitempty"`
}

type breaker struct {
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time
	// trial is set while a half-open trial call is outstanding.
	trial bool
}

// Breakers tracks one circuit breaker per venue. A venue opens after
// threshold consecutive failures, each within cooldown of the previous one,
// and stays open until cooldown has elapsed since it opened. After that one
// caller at a time is let through as a half-open trial: success closes the
// breaker, failure re-opens it, and everyone else is refused meanwhile.
type Breakers struct {
	mu        sync.Mutex
	venues    map[domain.Venue]*breaker
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onOpen    func(venue domain.Venue, failures int)
}

// NewBreakers creates a breaker set. onOpen, if non-nil, is called
// synchronously, outside the lock, whenever a venue transitions to open.
func NewBreakers(threshold int, cooldown time.Duration, now func() time.Time, onOpen func(domain.Venue, int)) *Breakers {
	if threshold < 1 {
		threshold = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Breakers{
		venues:    make(map[domain.Venue]*breaker),
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		onOpen:    onOpen,
	}
}

func (b *Breakers) get(v domain.Venue) *breaker {
	br, ok := b.venues[v]
	if !ok {
		br = &breaker{}
		b.venues[v] = br
	}
	return br
}

// Allow reports whether venue may be queried now.
func (b *Breakers) Allow(v domain.Venue) bool {
	ok, _ := b.admit(v)
	return ok
}

// admit is Allow that also reports whether the caller holds the half-open
// trial. A trial holder must resolve it with RecordSuccess, RecordFailure or
// EndTrial.
func (b *Breakers) admit(v domain.Venue) (ok, trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	br := b.get(v)
	switch br.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.now().Sub(br.openedAt) < b.cooldown {
			return false, false
		}
		br.state = StateHalfOpen
	}
	if br.trial {
		return false, false
	}
	br.trial = true
	return true, true
}

// EndTrial hands back a half-open trial that ended without reaching the
// venue, so the next caller may try.
func (b *Breakers) EndTrial(v domain.Venue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if br := b.get(v); br.state == StateHalfOpen {
		br.trial = false
	}
}

// RecordSuccess closes the venue's breaker and clears its failure streak.
func (b *Breakers) RecordSuccess(v domain.Venue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	br := b.get(v)
	br.state = StateClosed
	br.failures = 0
	br.trial = false
}

// RecordFailure extends the venue's failure streak and opens the breaker
// when the threshold is reached.
func (b *Breakers) RecordFailure(v domain.Venue) {
	now := b.now()

	b.mu.Lock()
	br := b.get(v)
	if br.failures > 0 && now.Sub(br.lastFailure) > b.cooldown {
		// Streak went stale; failures are no longer consecutive within the window.
		br.failures = 0
	}
	br.failures++
	br.lastFailure = now

	opened := false
	switch br.state {
	case StateClosed:
		if br.failures >= b.threshold {
			br.state, br.openedAt, opened = StateOpen, now, true
		}
	case StateHalfOpen:
		br.state, br.openedAt, opened = StateOpen, now, true
	}
	br.trial = false
	failures := br.failures
	b.mu.Unlock()

	if opened && b.onOpen != nil {
		b.onOpen(v, failures)
	}
}

// Status returns every known breaker, sorted by venue.
func (b *Breakers) Status() []BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BreakerStatus, 0, len(b.venues))
	for v, br := range b.venues {
		out = append(out, BreakerStatus{
			Venue:       v,
			State:       br.state,
			Failures:    br.failures,
			LastFailure: br.lastFailure,
			OpenedAt:    br.openedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Venue < out[j].Venue })
	return out
}
