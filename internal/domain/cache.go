package domain

import (
	"context"
	"time"
)

// AdmitOutcome is the result of a rate-limiter admission request.
type AdmitOutcome int

const (
	Admitted AdmitOutcome = iota
	Deferred
	Rejected
)

func (o AdmitOutcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Deferred:
		return "deferred"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Admission describes a rate-limiter decision. WaitHint is set when the call
// was deferred or rejected and tells the caller when a slot frees up.
type Admission struct {
	Outcome  AdmitOutcome
	WaitHint time.Duration
}

// RateLimiter provides sliding-window admission control per endpoint.
type RateLimiter interface {
	// Admit applies the endpoint's configured limit and policy.
	Admit(ctx context.Context, endpoint string) (Admission, error)
	// Allow checks an ad-hoc key against the given limit without waiting.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PriceStore is a shared second-level price cache.
type PriceStore interface {
	Put(ctx context.Context, entry CacheEntry) error
	Get(ctx context.Context, key CacheKey) (CacheEntry, error)
}

// EventBus provides pub/sub fan-out of serialized events.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
