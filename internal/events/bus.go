package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Channel is the bus channel events are published on.
const Channel = "arbscan:events"

// Appender is implemented by buses that also keep a durable stream.
type Appender interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// Publisher serialises events onto an EventBus from a background loop so
// that Emit never waits on the network. Events are dropped when the buffer
// is full.
type Publisher struct {
	bus     domain.EventBus
	queue   chan domain.Event
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewPublisher creates a Publisher with the given queue depth.
func NewPublisher(bus domain.EventBus, depth int, logger *slog.Logger) *Publisher {
	if depth < 1 {
		depth = 256
	}
	return &Publisher{
		bus:    bus,
		queue:  make(chan domain.Event, depth),
		logger: logger.With(slog.String("component", "event_publisher")),
	}
}

// Emit implements domain.EventSink.
func (p *Publisher) Emit(_ context.Context, ev domain.Event) {
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Run publishes queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	appender, durable := p.bus.(Appender)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.queue:
			payload, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("event_publisher: marshal failed", slog.String("error", err.Error()))
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := p.bus.Publish(pctx, Channel, payload); err != nil {
				p.logger.Warn("event_publisher: publish failed", slog.String("error", err.Error()))
			}
			if durable {
				if err := appender.StreamAppend(pctx, Channel, payload); err != nil {
					p.logger.Warn("event_publisher: stream append failed", slog.String("error", err.Error()))
				}
			}
			cancel()
		}
	}
}

// LocalBus is an in-process EventBus used when Redis is disabled.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to every subscriber of channel. Slow subscribers
// miss messages rather than blocking the publisher.
func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published on channel. It is closed
// when ctx is cancelled.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

var (
	_ domain.EventSink = (*Publisher)(nil)
	_ domain.EventBus  = (*LocalBus)(nil)
)
