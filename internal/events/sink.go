// Package events fans scanner observations out to logs, metrics, the live
// event stream, and an in-memory history for the API.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Fanout forwards every event to each sink in order.
type Fanout []domain.EventSink

// Emit implements domain.EventSink.
func (f Fanout) Emit(ctx context.Context, ev domain.Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// LogSink writes events to a structured logger. High-volume kinds are logged
// at debug level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "events"))}
}

// Emit implements domain.EventSink.
func (l *LogSink) Emit(ctx context.Context, ev domain.Event) {
	level := slog.LevelInfo
	switch ev.Kind {
	case domain.EventCacheMiss, domain.EventTradeRejected:
		level = slog.LevelDebug
	case domain.EventRateLimitHit, domain.EventCircuitBreakerOpened, domain.EventExecutionFailed, domain.EventEmergencyStop:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{slog.String("kind", string(ev.Kind))}
	if ev.Strategy != "" {
		attrs = append(attrs, slog.String("strategy", ev.Strategy))
	}
	if ev.Pair != "" {
		attrs = append(attrs, slog.String("pair", string(ev.Pair)))
	}
	if ev.Venue != "" {
		attrs = append(attrs, slog.String("venue", string(ev.Venue)))
	}
	if ev.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", ev.Endpoint))
	}
	if ev.Key != "" {
		attrs = append(attrs, slog.String("key", ev.Key))
	}
	if ev.Reason != "" {
		attrs = append(attrs, slog.String("reason", ev.Reason))
	}
	l.logger.LogAttrs(ctx, level, "events: "+string(ev.Kind), attrs...)
}

// Recent keeps the last N events of each kind in ring buffers.
type Recent struct {
	mu    sync.RWMutex
	size  int
	kinds map[domain.EventKind]*ring
}

type ring struct {
	buf  []domain.Event
	next int
	full bool
}

// NewRecent creates a history holding up to size events per kind.
func NewRecent(size int) *Recent {
	if size < 1 {
		size = 100
	}
	return &Recent{size: size, kinds: make(map[domain.EventKind]*ring)}
}

// Emit implements domain.EventSink.
func (r *Recent) Emit(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rg, ok := r.kinds[ev.Kind]
	if !ok {
		rg = &ring{buf: make([]domain.Event, r.size)}
		r.kinds[ev.Kind] = rg
	}
	rg.buf[rg.next] = ev
	rg.next = (rg.next + 1) % r.size
	if rg.next == 0 {
		rg.full = true
	}
}

// List returns up to limit events of kind, newest first. A non-positive
// limit returns everything held.
func (r *Recent) List(kind domain.EventKind, limit int) []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rg, ok := r.kinds[kind]
	if !ok {
		return []domain.Event{}
	}
	n := rg.next
	if rg.full {
		n = r.size
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Event, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (rg.next - 1 - i + r.size) % r.size
		out = append(out, rg.buf[idx])
	}
	return out
}

var (
	_ domain.EventSink = Fanout(nil)
	_ domain.EventSink = (*LogSink)(nil)
	_ domain.EventSink = (*Recent)(nil)
)
