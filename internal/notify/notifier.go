// Package notify sends operator alerts for scanner events to chat webhooks.
// Events are filtered by kind and delivered from a background queue so the
// scanner never waits on a webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// ErrThrottled is returned by senders whose local rate budget is spent.
var ErrThrottled = errors.New("notification throttled")

const (
	titleAlert = "ALERT"
	titleTrade = "TRADE"
	titleInfo  = "INFO"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every sender. Only event kinds in the allowed set
// are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan domain.Event
	logger  *slog.Logger
}

// NewNotifier creates a Notifier with a queue of the given depth.
func NewNotifier(senders []Sender, events []string, depth int, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if depth < 1 {
		depth = 64
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan domain.Event, depth),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Allowed reports whether kind passes the filter.
func (n *Notifier) Allowed(kind domain.EventKind) bool {
	return len(n.events) == 0 || n.events[string(kind)]
}

// Emit implements domain.EventSink. Filtered events are dropped immediately;
// the rest are queued, or dropped when the queue is full.
func (n *Notifier) Emit(ctx context.Context, ev domain.Event) {
	if len(n.senders) == 0 || !n.Allowed(ev.Kind) {
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.logger.WarnContext(ctx, "notifier: queue full, dropping", slog.String("kind", string(ev.Kind)))
	}
}

// Run delivers queued events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.queue:
			title, msg := Format(ev)
			if err := n.Dispatch(ctx, title, msg); err != nil && !errors.Is(err, ErrThrottled) {
				n.logger.WarnContext(ctx, "notifier: delivery failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Dispatch sends to every sender. A failing sender does not stop delivery
// to the rest; failures are joined into the returned error.
func (n *Notifier) Dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			if !errors.Is(err, ErrThrottled) {
				n.logger.ErrorContext(ctx, "notifier: sender failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notifier: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}

// Format renders an event as a title and message body.
func Format(ev domain.Event) (title, message string) {
	var b strings.Builder
	field := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}

	switch ev.Kind {
	case domain.EventEmergencyStop, domain.EventCircuitBreakerOpened, domain.EventExecutionFailed:
		title = titleAlert
	case domain.EventTradeFilled, domain.EventPositionClosed, domain.EventTradeApproved:
		title = titleTrade
	default:
		title = titleInfo
	}
	title += " " + strings.ReplaceAll(string(ev.Kind), "_", " ")

	field("strategy", ev.Strategy)
	field("pair", string(ev.Pair))
	field("venue", string(ev.Venue))
	field("endpoint", ev.Endpoint)
	field("reason", ev.Reason)

	switch p := ev.Payload.(type) {
	case domain.Opportunity:
		fmt.Fprintf(&b, "buy %s @ %.6f, sell %s @ %.6f\nnet spread %.3f%%\n",
			p.BuyVenue, p.BuyPrice, p.SellVenue, p.SellPrice, p.NetSpread*100)
	case domain.Position:
		fmt.Fprintf(&b, "%s %s size %.2f entry %.6f\n", p.Side, p.Pair, p.Size, p.EntryPrice)
		if p.ExitPrice != nil {
			fmt.Fprintf(&b, "exit %.6f pnl %.2f\n", *p.ExitPrice, p.RealizedPnL)
		}
	case domain.Fill:
		fmt.Fprintf(&b, "executed %.6f fees %.4f\n", p.ExecutedPrice, p.FeesPaid)
	case []domain.Position:
		fmt.Fprintf(&b, "%d positions closed\n", len(p))
	}
	return title, strings.TrimRight(b.String(), "\n")
}

var _ domain.EventSink = (*Notifier)(nil)
