package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// RetryConfig bounds per-call timeouts and retries for an adapter.
type RetryConfig struct {
	Timeout     time.Duration
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Resilient decorates an adapter with a per-attempt timeout and bounded
// exponential backoff on transient FetchErrors.
type Resilient struct {
	inner  domain.SourceAdapter
	cfg    RetryConfig
	logger *slog.Logger
}

// NewResilient wraps inner. Zero fields in cfg fall back to one attempt with
// a ten second timeout.
func NewResilient(inner domain.SourceAdapter, cfg RetryConfig, logger *slog.Logger) *Resilient {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Resilient{
		inner: inner,
		cfg:   cfg,
		logger: logger.With(
			slog.String("component", "source"),
			slog.String("venue", string(inner.Venue())),
		),
	}
}

func (r *Resilient) Venue() domain.Venue { return r.inner.Venue() }

// FetchPrice calls the wrapped adapter, retrying transient failures.
func (r *Resilient) FetchPrice(ctx context.Context, pair domain.Pair) (domain.PricePoint, error) {
	var lastErr error
	backoff := r.cfg.BaseBackoff
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		pp, err := r.inner.FetchPrice(callCtx, pair)
		cancel()
		if err == nil {
			return pp, nil
		}
		lastErr = asFetchError(r.inner.Venue(), pair, err)

		if !domain.IsTransient(lastErr) || attempt == r.cfg.Attempts || ctx.Err() != nil {
			break
		}

		r.logger.DebugContext(ctx, "source: transient failure, retrying",
			slog.String("pair", string(pair)),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return domain.PricePoint{}, lastErr
			case <-timer.C:
			}
			backoff *= 2
			if backoff > r.cfg.MaxBackoff {
				backoff = r.cfg.MaxBackoff
			}
		}
	}
	return domain.PricePoint{}, lastErr
}

// asFetchError normalises any adapter error into a *domain.FetchError.
// Deadline errors are transient; anything else unclassified is permanent.
func asFetchError(venue domain.Venue, pair domain.Pair, err error) error {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &domain.FetchError{
		Venue:     venue,
		Pair:      pair,
		Transient: errors.Is(err, context.DeadlineExceeded),
		Err:       err,
	}
}

var _ domain.SourceAdapter = (*Resilient)(nil)
