package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// PortfolioSource is the read side of the risk manager that a report
// snapshots.
type PortfolioSource interface {
	Metrics() domain.RiskMetrics
	Positions() []domain.Position
}

// SessionReport is the JSON document uploaded for a scanner session.
type SessionReport struct {
	SessionID   string             `json:"session_id"`
	Mode        string             `json:"mode"`
	StartedAt   time.Time          `json:"started_at"`
	GeneratedAt time.Time          `json:"generated_at"`
	Final       bool               `json:"final"`
	Metrics     domain.RiskMetrics `json:"metrics"`
	Open        []domain.Position  `json:"open_positions"`
	Closed      []domain.Position  `json:"closed_positions"`
}

// Reporter periodically uploads a SessionReport for the running session.
// Each upload overwrites the session's "latest" object and writes a
// timestamped copy.
type Reporter struct {
	blob      domain.BlobWriter
	source    PortfolioSource
	prefix    string
	sessionID string
	mode      string
	startedAt time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// NewReporter creates a Reporter. Objects are written under
// prefix/sessionID/.
func NewReporter(blob domain.BlobWriter, source PortfolioSource, prefix, sessionID, mode string, logger *slog.Logger) *Reporter {
	return &Reporter{
		blob:      blob,
		source:    source,
		prefix:    prefix,
		sessionID: sessionID,
		mode:      mode,
		startedAt: time.Now(),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "report")),
	}
}

// Build assembles the current report.
func (r *Reporter) Build(final bool) SessionReport {
	rep := SessionReport{
		SessionID:   r.sessionID,
		Mode:        r.mode,
		StartedAt:   r.startedAt,
		GeneratedAt: r.now().UTC(),
		Final:       final,
		Metrics:     r.source.Metrics(),
		Open:        []domain.Position{},
		Closed:      []domain.Position{},
	}
	for _, p := range r.source.Positions() {
		if p.Status.Closed() {
			rep.Closed = append(rep.Closed, p)
		} else {
			rep.Open = append(rep.Open, p)
		}
	}
	return rep
}

// Upload writes the report. final marks the shutdown report.
func (r *Reporter) Upload(ctx context.Context, final bool) error {
	rep := r.Build(final)
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal report: %w", err)
	}

	base := r.prefix + "/" + r.sessionID + "/"
	stamped := base + rep.GeneratedAt.Format("20060102T150405Z") + ".json"
	for _, path := range []string{stamped, base + "latest.json"} {
		if err := r.blob.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
			return err
		}
	}

	r.logger.InfoContext(ctx, "report: uploaded",
		slog.String("path", stamped),
		slog.Int("closed", len(rep.Closed)),
		slog.Bool("final", final),
	)
	return nil
}

// Run uploads every interval and once more, with a fresh context, when ctx
// ends.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := r.Upload(fctx, true); err != nil {
				r.logger.Error("report: final upload failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			if err := r.Upload(ctx, false); err != nil {
				r.logger.WarnContext(ctx, "report: upload failed", slog.String("error", err.Error()))
			}
		}
	}
}
