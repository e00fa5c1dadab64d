package domain

import "context"

// SourceAdapter fetches a price for a pair from a single venue.
type SourceAdapter interface {
	Venue() Venue
	FetchPrice(ctx context.Context, pair Pair) (PricePoint, error)
}

// Executor carries out approved trades. On failure it returns an
// *ExecutionFailure.
type Executor interface {
	Execute(ctx context.Context, trade ApprovedTrade) (Fill, error)
}

// EventSink receives structured observations. Emit must not block the caller
// for long and never fails the operation that produced the event.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// GasOracle estimates the network cost, in quote currency, of one swap.
type GasOracle interface {
	GasCost(ctx context.Context, chain Chain) (float64, error)
}
