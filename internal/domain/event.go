package domain

import "time"

// EventKind names a structured observation emitted by the scanner core.
type EventKind string

const (
	EventOpportunityFound     EventKind = "opportunity_found"
	EventTradeApproved        EventKind = "trade_approved"
	EventTradeRejected        EventKind = "trade_rejected"
	EventRateLimitHit         EventKind = "rate_limit_hit"
	EventCacheMiss            EventKind = "cache_miss"
	EventCircuitBreakerOpened EventKind = "circuit_breaker_opened"
	EventTradeFilled          EventKind = "trade_filled"
	EventExecutionFailed      EventKind = "execution_failed"
	EventPositionClosed       EventKind = "position_closed"
	EventSwingSignal          EventKind = "swing_signal"
	EventEmergencyStop        EventKind = "emergency_stop"
)

// Event is a fire-and-forget observation. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind     EventKind `json:"kind"`
	Time     time.Time `json:"time"`
	Strategy string    `json:"strategy,omitempty"`
	Pair     Pair      `json:"pair,omitempty"`
	Venue    Venue     `json:"venue,omitempty"`
	Endpoint string    `json:"endpoint,omitempty"`
	Key      string    `json:"key,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Payload  any       `json:"payload,omitempty"`
}
