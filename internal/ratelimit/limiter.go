// Package ratelimit implements in-process sliding-window admission control
// for upstream API endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Policy selects what Admit does when an endpoint is saturated.
type Policy string

const (
	// PolicyWait blocks until a slot frees, bounded by MaxWait.
	PolicyWait Policy = "wait"
	// PolicyReject fails immediately.
	PolicyReject Policy = "reject"
)

// Limit is the number of calls allowed in any trailing Window.
type Limit struct {
	Calls  int
	Window time.Duration
}

// Config configures a Limiter. Endpoints missing from Limits are admitted
// without accounting.
type Config struct {
	Limits  map[string]Limit
	Policy  Policy
	MaxWait time.Duration
}

// Usage is a point-in-time view of one endpoint window.
type Usage struct {
	Endpoint string        `json:"endpoint"`
	Used     int           `json:"used"`
	Limit    int           `json:"limit"`
	Window   time.Duration `json:"window"`
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// Limiter keeps one sliding window per endpoint. It is safe for concurrent
// use; each window has its own lock so endpoints never contend.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	adhoc   map[string]*window
	limits  map[string]Limit
	policy  Policy
	maxWait time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// New builds a Limiter from cfg.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Limiter {
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyWait
	}
	l := &Limiter{
		windows: make(map[string]*window, len(cfg.Limits)),
		adhoc:   make(map[string]*window),
		limits:  make(map[string]Limit, len(cfg.Limits)),
		policy:  policy,
		maxWait: cfg.MaxWait,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "ratelimit")),
	}
	for endpoint, lim := range cfg.Limits {
		l.limits[endpoint] = lim
		l.windows[endpoint] = newWindow(lim)
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Admit requests one call slot for endpoint.
//
// Under PolicyWait the caller is suspended until the oldest recorded call
// leaves the window, as long as the total wait stays within MaxWait; a wait
// that would exceed MaxWait returns Deferred with the remaining hint and
// records nothing. Under PolicyReject a saturated endpoint returns Rejected.
// A cancelled context while waiting returns Deferred and the context error.
func (l *Limiter) Admit(ctx context.Context, endpoint string) (domain.Admission, error) {
	l.mu.Lock()
	w, ok := l.windows[endpoint]
	l.mu.Unlock()
	if !ok {
		return domain.Admission{Outcome: domain.Admitted}, nil
	}

	deadline := l.now().Add(l.maxWait)
	for {
		admitted, wait, now := w.tryAdmit(l.now)
		if admitted {
			return domain.Admission{Outcome: domain.Admitted}, nil
		}

		if l.policy == PolicyReject {
			return domain.Admission{Outcome: domain.Rejected, WaitHint: wait}, nil
		}
		if now.Add(wait).After(deadline) {
			l.logger.DebugContext(ctx, "ratelimit: wait exceeds max",
				slog.String("endpoint", endpoint),
				slog.Duration("wait", wait),
				slog.Duration("max_wait", l.maxWait),
			)
			return domain.Admission{Outcome: domain.Deferred, WaitHint: wait}, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Admission{Outcome: domain.Deferred, WaitHint: wait},
				fmt.Errorf("ratelimit: admit %s: %w", endpoint, ctx.Err())
		case <-timer.C:
		}
		// Another waiter may have taken the slot; loop and re-check.
	}
}

// Acquire is Admit collapsed to an error: nil when admitted, otherwise an
// error wrapping domain.ErrRateLimited.
func (l *Limiter) Acquire(ctx context.Context, endpoint string) error {
	adm, err := l.Admit(ctx, endpoint)
	if err != nil {
		return err
	}
	if adm.Outcome != domain.Admitted {
		return fmt.Errorf("ratelimit: %s %s (retry in %s): %w",
			endpoint, adm.Outcome, adm.WaitHint, domain.ErrRateLimited)
	}
	return nil
}

// Allow checks an ad-hoc key (for example a client IP) against limit calls
// per window. It never blocks.
func (l *Limiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, fmt.Errorf("ratelimit: allow %s: limit and window must be positive", key)
	}
	l.mu.Lock()
	w, ok := l.adhoc[key]
	if !ok || w.limit != limit || w.span != window {
		w = newWindow(Limit{Calls: limit, Window: window})
		l.adhoc[key] = w
	}
	l.mu.Unlock()

	admitted, _, _ := w.tryAdmit(l.now)
	return admitted, nil
}

// Usage returns the current window occupancy of every configured endpoint,
// sorted by endpoint.
func (l *Limiter) Usage() []Usage {
	now := l.now()
	l.mu.Lock()
	out := make([]Usage, 0, len(l.windows))
	for endpoint, w := range l.windows {
		out = append(out, Usage{
			Endpoint: endpoint,
			Used:     w.count(now),
			Limit:    w.limit,
			Window:   w.span,
		})
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// Prune drops idle ad-hoc windows so per-client keys do not accumulate.
func (l *Limiter) Prune() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.adhoc {
		if w.count(now) == 0 {
			delete(l.adhoc, key)
		}
	}
}

var _ domain.RateLimiter = (*Limiter)(nil)
