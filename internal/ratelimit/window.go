package ratelimit

import (
	"sync"
	"time"
)

// window records admitted call timestamps in ascending order. A call at t
// counts against every trailing window (now-span, now] that contains t.
type window struct {
	mu     sync.Mutex
	limit  int
	span   time.Duration
	stamps []time.Time
}

func newWindow(lim Limit) *window {
	return &window{
		limit:  lim.Calls,
		span:   lim.Window,
		stamps: make([]time.Time, 0, lim.Calls),
	}
}

// tryAdmit records a call if the window has room. Otherwise it returns how
// long until the oldest call expires. The clock is read under w.mu so stamps
// stay ascending across concurrent callers; the instant used is returned.
func (w *window) tryAdmit(clock func() time.Time) (bool, time.Duration, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := clock()
	w.evict(now)
	if len(w.stamps) < w.limit {
		w.stamps = append(w.stamps, now)
		return true, 0, now
	}
	if len(w.stamps) == 0 {
		return false, w.span, now
	}
	return false, w.stamps[0].Add(w.span).Sub(now), now
}

func (w *window) count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)
	return len(w.stamps)
}

// evict drops timestamps that are no longer inside (now-span, now].
// Caller holds w.mu.
func (w *window) evict(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
