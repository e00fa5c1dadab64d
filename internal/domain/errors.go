package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrInsufficientData = errors.New("insufficient data")
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrUnknownVenue     = errors.New("unknown venue")
	ErrNoPrice          = errors.New("no price")
	ErrInvariant        = errors.New("invariant violated")
)

// FetchError is returned by a SourceAdapter when a venue cannot produce a
// price. Transient errors (timeouts, 5xx, connection resets) are eligible for
// retry; permanent ones (bad pair, malformed payload) are not.
type FetchError struct {
	Venue     Venue
	Pair      Pair
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("fetch %s %s (%s): %v", e.Venue, e.Pair, kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err wraps a transient FetchError.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}
