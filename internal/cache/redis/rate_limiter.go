package redis

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements domain.RateLimiter using a sliding window kept in a
// Redis sorted set per key, so several scanner processes share one budget
// per upstream endpoint.
type RateLimiter struct {
	client        *Client
	rdb           *redis.Client
	slidingWindow *redis.Script
	limits        map[string]ratelimit.Limit
	policy        ratelimit.Policy
	maxWait       time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// RateLimiterOption customises a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithLimiterClock replaces time.Now, for tests.
func WithLimiterClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) { rl.now = now }
}

// NewRateLimiter creates a RateLimiter backed by the given Client. Endpoint
// limits and the saturation policy come from cfg.
func NewRateLimiter(c *Client, cfg ratelimit.Config, logger *slog.Logger, opts ...RateLimiterOption) *RateLimiter {
	policy := cfg.Policy
	if policy == "" {
		policy = ratelimit.PolicyWait
	}
	rl := &RateLimiter{
		client:        c,
		rdb:           c.rdb,
		slidingWindow: redis.NewScript(slidingWindowLua),
		limits:        cfg.Limits,
		policy:        policy,
		maxWait:       cfg.MaxWait,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "redis_ratelimit")),
	}
	for _, o := range opts {
		o(rl)
	}
	return rl
}

func (rl *RateLimiter) windowKey(key string) string {
	return rl.client.key("ratelimit", key)
}

// Admit requests one call slot for endpoint under its configured limit.
// Semantics match the in-process limiter: Rejected under the reject policy,
// a bounded wait under the wait policy, Deferred once MaxWait would be
// exceeded. Endpoints without a configured limit are admitted.
func (rl *RateLimiter) Admit(ctx context.Context, endpoint string) (domain.Admission, error) {
	lim, ok := rl.limits[endpoint]
	if !ok {
		return domain.Admission{Outcome: domain.Admitted}, nil
	}

	deadline := rl.now().Add(rl.maxWait)
	for {
		allowed, wait, err := rl.run(ctx, "endpoint:"+endpoint, lim.Calls, lim.Window)
		if err != nil {
			return domain.Admission{Outcome: domain.Deferred}, err
		}
		if allowed {
			return domain.Admission{Outcome: domain.Admitted}, nil
		}
		if rl.policy == ratelimit.PolicyReject {
			return domain.Admission{Outcome: domain.Rejected, WaitHint: wait}, nil
		}
		if rl.now().Add(wait).After(deadline) {
			rl.logger.DebugContext(ctx, "redis: rate limit wait exceeds max",
				slog.String("endpoint", endpoint),
				slog.Duration("wait", wait),
			)
			return domain.Admission{Outcome: domain.Deferred, WaitHint: wait}, nil
		}

		timer := time.NewTimer(max(wait, time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Admission{Outcome: domain.Deferred, WaitHint: wait},
				fmt.Errorf("redis: rate limit admit %s: %w", endpoint, ctx.Err())
		case <-timer.C:
		}
	}
}

// Allow checks whether a request for the given key is permitted under the
// sliding window rate limit. It returns true if the request is allowed (and
// the request is counted), or false if the limit has been reached.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, fmt.Errorf("redis: rate limit allow %s: limit and window must be positive", key)
	}
	allowed, _, err := rl.run(ctx, "adhoc:"+key, limit, window)
	return allowed, err
}

func (rl *RateLimiter) run(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rl.windowKey(key)},
		rl.now().UnixMilli(),
		window.Milliseconds(),
		limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(result) < 3 {
		return false, 0, fmt.Errorf("redis: rate limit %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, time.Duration(result[2]) * time.Millisecond, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
