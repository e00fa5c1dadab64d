// Package risk owns portfolio state and gates every proposed trade against
// daily-loss, drawdown, exposure and sizing limits.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Reason names why an evaluation was rejected.
type Reason string

const (
	ReasonEmergencyStop     Reason = "emergency_stop"
	ReasonDailyLossLimit    Reason = "daily_loss_limit_reached"
	ReasonMaxDrawdown       Reason = "max_drawdown_breached"
	ReasonDuplicatePosition Reason = "duplicate_position"
	ReasonSignalRate        Reason = "signal_rate_exceeded"
	ReasonLowConfidence     Reason = "low_confidence"
	ReasonNoHeadroom        Reason = "no_headroom"
	ReasonBelowMinimumSize  Reason = "below_minimum_size"
)

// Decision is the outcome of an evaluation. TradeID, Size, StopLoss and
// TakeProfit are set only when Approved. An approved Size stays reserved
// against the exposure cap until OnFill or Release is called with TradeID.
type Decision struct {
	Approved   bool
	TradeID    string
	Size       float64
	EntryPrice float64
	Side       domain.Side
	StopLoss   float64
	TakeProfit float64
	Reason     Reason
}

// Config holds the risk limits. Fractions are of current equity.
type Config struct {
	InitialEquity   float64
	MaxPositionSize float64
	MinTradeSize    float64
	MaxDailyLoss    float64
	MaxDrawdown     float64
	StopLoss        float64
	TakeProfit      float64

	// MaxSignalsPerMinute caps arbitrage evaluations per pair.
	MaxSignalsPerMinute int
	// MaxSwingSignalsPerHour caps swing evaluations per pair.
	MaxSwingSignalsPerHour int
	// MinSwingConfidence is the smallest swing confidence that is evaluated.
	MinSwingConfidence float64
	// ReservationTTL drops approvals that were never filled or released.
	// Defaults to five minutes.
	ReservationTTL time.Duration
}

const defaultReservationTTL = 5 * time.Minute

// reservation is headroom held by an approved trade awaiting its fill.
type reservation struct {
	pair domain.Pair
	size decimal.Decimal
	at   time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSink reports position closes and emergency stops.
func WithSink(sink domain.EventSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// Manager is the single serialization point for portfolio state. Every
// method takes the same mutex, so a decision always sees one consistent
// snapshot.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	ledger    ledger
	dayStart  time.Time
	positions map[string]*domain.Position
	reserved  map[string]reservation
	marks     map[domain.Pair]float64
	closed    []domain.Position
	signals   map[string][]time.Time
	stopped   bool
	stopWhy   string

	now    func() time.Time
	sink   domain.EventSink
	logger *slog.Logger
}

// NewManager creates a Manager starting at cfg.InitialEquity.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		positions: make(map[string]*domain.Position),
		reserved:  make(map[string]reservation),
		marks:     make(map[domain.Pair]float64),
		signals:   make(map[string][]time.Time),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "risk")),
	}
	for _, o := range opts {
		o(m)
	}
	if m.cfg.ReservationTTL <= 0 {
		m.cfg.ReservationTTL = defaultReservationTTL
	}
	m.ledger = newLedger(cfg.InitialEquity)
	m.dayStart = m.now().UTC().Truncate(24 * time.Hour)
	return m
}

// Evaluate gates an arbitrage opportunity. The trade buys on the
// opportunity's buy venue at its buy price.
func (m *Manager) Evaluate(ctx context.Context, opp domain.Opportunity) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.rollDay(now)
	d := m.evaluate(ctx, request{
		pair:       opp.Pair,
		side:       domain.SideBuy,
		entry:      opp.BuyPrice,
		liquidity:  opp.AvailableLiquidity,
		scale:      1,
		signalKey:  "arb:" + string(opp.Pair),
		signalMax:  m.cfg.MaxSignalsPerMinute,
		signalSpan: time.Minute,
	}, now)
	return d
}

// EvaluateSwing gates a swing signal. Signals below MinSwingConfidence are
// rejected; the position size scales with confidence.
func (m *Manager) EvaluateSwing(ctx context.Context, sig domain.SwingSignal) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sig.Confidence < m.cfg.MinSwingConfidence {
		return Decision{Reason: ReasonLowConfidence}
	}
	now := m.now()
	m.rollDay(now)
	return m.evaluate(ctx, request{
		pair:       sig.Pair,
		side:       sig.Side,
		entry:      sig.Price,
		scale:      sig.Confidence,
		signalKey:  "swing:" + string(sig.Pair),
		signalMax:  m.cfg.MaxSwingSignalsPerHour,
		signalSpan: time.Hour,
	}, now)
}

type request struct {
	pair       domain.Pair
	side       domain.Side
	entry      float64
	liquidity  float64
	scale      float64
	signalKey  string
	signalMax  int
	signalSpan time.Duration
}

func (m *Manager) evaluate(ctx context.Context, req request, now time.Time) Decision {
	reject := func(r Reason, attrs ...slog.Attr) Decision {
		attrs = append(attrs, slog.String("pair", string(req.pair)), slog.String("reason", string(r)))
		m.logger.LogAttrs(ctx, slog.LevelDebug, "risk: rejected", attrs...)
		return Decision{Reason: r}
	}

	// 1. Emergency stop
	if m.stopped {
		return reject(ReasonEmergencyStop)
	}

	equity := m.ledger.equity

	// 2. Daily loss
	lossLimit := equity.Mul(decimal.NewFromFloat(m.cfg.MaxDailyLoss)).Neg()
	if m.ledger.daily.LessThanOrEqual(lossLimit) {
		return reject(ReasonDailyLossLimit,
			slog.String("daily_pnl", m.ledger.daily.StringFixed(2)),
			slog.String("limit", lossLimit.StringFixed(2)),
		)
	}

	// 3. Drawdown
	if dd := m.ledger.drawdown(); dd >= m.cfg.MaxDrawdown && m.cfg.MaxDrawdown > 0 {
		return reject(ReasonMaxDrawdown, slog.Float64("drawdown", dd))
	}

	// 4. Over-trading guards
	for _, p := range m.positions {
		if p.Pair == req.pair {
			return reject(ReasonDuplicatePosition, slog.String("position_id", p.ID))
		}
	}
	m.expireReservations(now)
	for id, r := range m.reserved {
		if r.pair == req.pair {
			return reject(ReasonDuplicatePosition, slog.String("trade_id", id))
		}
	}
	if req.signalMax > 0 {
		recent := m.recentSignals(req.signalKey, now, req.signalSpan)
		if len(recent) >= req.signalMax {
			return reject(ReasonSignalRate, slog.Int("recent", len(recent)))
		}
		m.signals[req.signalKey] = append(recent, now)
	}

	// 5. Headroom, counting fills still in flight
	maxExposure := equity.Mul(decimal.NewFromFloat(m.cfg.MaxPositionSize))
	headroom := maxExposure.Sub(m.openExposure()).Sub(m.reservedExposure())
	if !headroom.IsPositive() {
		return reject(ReasonNoHeadroom, slog.String("headroom", headroom.StringFixed(2)))
	}

	// 6. Size
	size := headroom
	if req.scale > 0 && req.scale < 1 {
		size = decimal.Min(size, maxExposure.Mul(decimal.NewFromFloat(req.scale)))
	}
	if req.liquidity > 0 {
		size = decimal.Min(size, decimal.NewFromFloat(req.liquidity))
	}
	if size.LessThan(decimal.NewFromFloat(m.cfg.MinTradeSize)) {
		return reject(ReasonBelowMinimumSize, slog.String("size", size.StringFixed(2)))
	}

	id := uuid.NewString()
	m.reserved[id] = reservation{pair: req.pair, size: size, at: now}

	sl, tp := m.exits(req.side, req.entry)
	return Decision{
		Approved:   true,
		TradeID:    id,
		Size:       size.InexactFloat64(),
		EntryPrice: req.entry,
		Side:       req.side,
		StopLoss:   sl,
		TakeProfit: tp,
	}
}

// exits returns stop-loss and take-profit prices for an entry.
func (m *Manager) exits(side domain.Side, entry float64) (stopLoss, takeProfit float64) {
	if side == domain.SideSell {
		return entry * (1 + m.cfg.StopLoss), entry * (1 - m.cfg.TakeProfit)
	}
	return entry * (1 - m.cfg.StopLoss), entry * (1 + m.cfg.TakeProfit)
}

func (m *Manager) recentSignals(key string, now time.Time, span time.Duration) []time.Time {
	cutoff := now.Add(-span)
	kept := m.signals[key][:0]
	for _, t := range m.signals[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.signals[key] = kept
	return kept
}

func (m *Manager) reservedExposure() decimal.Decimal {
	total := decimal.Zero
	for _, r := range m.reserved {
		total = total.Add(r.size)
	}
	return total
}

func (m *Manager) expireReservations(now time.Time) {
	for id, r := range m.reserved {
		if now.Sub(r.at) >= m.cfg.ReservationTTL {
			delete(m.reserved, id)
			m.logger.Warn("risk: reservation expired without fill",
				slog.String("trade_id", id),
				slog.String("pair", string(r.pair)),
			)
		}
	}
}

// Release returns an approval's reserved headroom, for trades that were not
// filled. It reports whether a reservation was held.
func (m *Manager) Release(ctx context.Context, tradeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reserved[tradeID]
	if !ok {
		return false
	}
	delete(m.reserved, tradeID)
	m.logger.DebugContext(ctx, "risk: reservation released",
		slog.String("trade_id", tradeID),
		slog.String("pair", string(r.pair)),
		slog.String("size", r.size.StringFixed(2)),
	)
	return true
}

func (m *Manager) openExposure() decimal.Decimal {
	total := decimal.Zero
	for _, p := range m.positions {
		total = total.Add(decimal.NewFromFloat(p.Size))
	}
	return total
}

// rollDay resets daily PnL once per elapsed 24h boundary.
func (m *Manager) rollDay(now time.Time) {
	if now.Sub(m.dayStart) < 24*time.Hour {
		return
	}
	days := now.Sub(m.dayStart) / (24 * time.Hour)
	m.dayStart = m.dayStart.Add(days * 24 * time.Hour)
	m.ledger.daily = decimal.Zero
	m.logger.Info("risk: daily pnl reset", slog.Time("day_start", m.dayStart))
}

// OnFill opens a position from a confirmed fill and consumes the trade's
// reservation.
func (m *Manager) OnFill(ctx context.Context, trade domain.ApprovedTrade, fill domain.Fill) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reserved, trade.ID)
	if trade.Size <= 0 || fill.ExecutedPrice <= 0 {
		return domain.Position{}, fmt.Errorf("risk: fill %s: size %.4f at %.6f: %w",
			trade.ID, trade.Size, fill.ExecutedPrice, domain.ErrInvariant)
	}

	opened := fill.Timestamp
	if opened.IsZero() {
		opened = m.now()
	}
	pos := &domain.Position{
		ID:         uuid.NewString(),
		TradeID:    trade.ID,
		Strategy:   trade.Strategy,
		Pair:       trade.Pair,
		Venue:      trade.Venue,
		Side:       trade.Side,
		EntryPrice: fill.ExecutedPrice,
		Size:       trade.Size,
		Quantity:   decimal.NewFromFloat(trade.Size).Div(decimal.NewFromFloat(fill.ExecutedPrice)).InexactFloat64(),
		FeesPaid:   fill.FeesPaid,
		StopLoss:   trade.StopLoss,
		TakeProfit: trade.TakeProfit,
		Status:     domain.PositionOpen,
		OpenedAt:   opened,
	}
	m.positions[pos.ID] = pos

	m.logger.InfoContext(ctx, "risk: position opened",
		slog.String("position_id", pos.ID),
		slog.String("pair", string(pos.Pair)),
		slog.String("side", string(pos.Side)),
		slog.Float64("size", pos.Size),
		slog.Float64("entry", pos.EntryPrice),
	)
	return *pos, nil
}

// OnClose realises PnL for an open position.
func (m *Manager) OnClose(ctx context.Context, positionID string, exitPrice float64, status domain.PositionStatus) (domain.Position, error) {
	if !status.Closed() {
		return domain.Position{}, fmt.Errorf("risk: close %s with status %q: %w", positionID, status, domain.ErrInvariant)
	}
	if exitPrice <= 0 {
		return domain.Position{}, fmt.Errorf("risk: close %s at %.6f: %w", positionID, exitPrice, domain.ErrInvariant)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[positionID]
	if !ok {
		return domain.Position{}, fmt.Errorf("risk: position %s: %w", positionID, domain.ErrNotFound)
	}
	m.rollDay(m.now())
	return m.close(ctx, pos, exitPrice, status), nil
}

func (m *Manager) close(ctx context.Context, pos *domain.Position, exitPrice float64, status domain.PositionStatus) domain.Position {
	now := m.now()
	pnl := pos.PnLAt(exitPrice)

	pos.Status = status
	pos.ClosedAt = &now
	pos.ExitPrice = &exitPrice
	pos.RealizedPnL = pnl
	delete(m.positions, pos.ID)
	m.closed = append(m.closed, *pos)

	m.ledger.realize(decimal.NewFromFloat(pnl))

	m.logger.InfoContext(ctx, "risk: position closed",
		slog.String("position_id", pos.ID),
		slog.String("pair", string(pos.Pair)),
		slog.String("status", string(status)),
		slog.Float64("pnl", pnl),
		slog.String("equity", m.ledger.equity.StringFixed(2)),
	)
	if m.sink != nil {
		m.sink.Emit(ctx, domain.Event{
			Kind:    domain.EventPositionClosed,
			Time:    now,
			Pair:    pos.Pair,
			Venue:   pos.Venue,
			Reason:  string(status),
			Payload: *pos,
		})
	}
	return *pos
}

// MarkPrice checks every open position on pair against its stop-loss and
// take-profit and closes the ones that were hit.
func (m *Manager) MarkPrice(ctx context.Context, pair domain.Pair, price float64) []domain.Position {
	if price <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay(m.now())
	m.marks[pair] = price

	var hits []*domain.Position
	var statuses []domain.PositionStatus
	for _, p := range m.positions {
		if p.Pair != pair {
			continue
		}
		if st, ok := exitStatus(*p, price); ok {
			hits = append(hits, p)
			statuses = append(statuses, st)
		}
	}

	closed := make([]domain.Position, 0, len(hits))
	for i, p := range hits {
		closed = append(closed, m.close(ctx, p, price, statuses[i]))
	}
	return closed
}

func exitStatus(p domain.Position, price float64) (domain.PositionStatus, bool) {
	if p.Side == domain.SideSell {
		switch {
		case p.StopLoss > 0 && price >= p.StopLoss:
			return domain.PositionClosedSL, true
		case p.TakeProfit > 0 && price <= p.TakeProfit:
			return domain.PositionClosedTP, true
		}
		return "", false
	}
	switch {
	case p.StopLoss > 0 && price <= p.StopLoss:
		return domain.PositionClosedSL, true
	case p.TakeProfit > 0 && price >= p.TakeProfit:
		return domain.PositionClosedTP, true
	}
	return "", false
}

// EmergencyStop halts all further approvals, drops pending reservations and
// closes every open position at its pair's last marked price (the entry price
// when the pair was never marked) as ClosedManual. It reports whether the
// stop was newly engaged, and the positions it closed.
func (m *Manager) EmergencyStop(ctx context.Context, reason string) (bool, []domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false, nil
	}
	m.stopped, m.stopWhy = true, reason
	clear(m.reserved)
	m.rollDay(m.now())

	open := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		open = append(open, p)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].OpenedAt.Before(open[j].OpenedAt) })

	closed := make([]domain.Position, 0, len(open))
	for _, p := range open {
		exit, ok := m.marks[p.Pair]
		if !ok || exit <= 0 {
			exit = p.EntryPrice
		}
		closed = append(closed, m.close(ctx, p, exit, domain.PositionClosedManual))
	}

	m.logger.WarnContext(ctx, "risk: emergency stop engaged",
		slog.String("reason", reason),
		slog.Int("positions_closed", len(closed)),
	)
	if m.sink != nil {
		m.sink.Emit(ctx, domain.Event{Kind: domain.EventEmergencyStop, Time: m.now(), Reason: reason, Payload: closed})
	}
	return true, closed
}

// Snapshot returns a copy of the current portfolio state.
func (m *Manager) Snapshot() domain.PortfolioState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.PortfolioState{
		Equity:           m.ledger.equity.InexactFloat64(),
		OpenPositions:    m.openLocked(),
		OpenExposure:     m.openExposure().InexactFloat64(),
		ReservedExposure: m.reservedExposure().InexactFloat64(),
		DailyRealizedPnL: m.ledger.daily.InexactFloat64(),
		PeakEquity:       m.ledger.peak.InexactFloat64(),
		CurrentDrawdown:  m.ledger.drawdown(),
		DayStart:         m.dayStart,
		EmergencyStopped: m.stopped,
	}
}

// Positions returns open positions followed by closed ones, newest first
// within each group.
func (m *Manager) Positions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.openLocked()
	for i := len(m.closed) - 1; i >= 0; i-- {
		out = append(out, m.closed[i])
	}
	return out
}

// OpenPairs returns the distinct pairs with open positions.
func (m *Manager) OpenPairs() []domain.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[domain.Pair]struct{})
	var pairs []domain.Pair
	for _, p := range m.positions {
		if _, ok := seen[p.Pair]; !ok {
			seen[p.Pair] = struct{}{}
			pairs = append(pairs, p.Pair)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i] < pairs[j] })
	return pairs
}

func (m *Manager) openLocked() []domain.Position {
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return out
}

// Metrics summarises session performance.
func (m *Manager) Metrics() domain.RiskMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	wins := 0
	for _, p := range m.closed {
		if p.RealizedPnL > 0 {
			wins++
		}
	}
	var winRate float64
	if len(m.closed) > 0 {
		winRate = float64(wins) / float64(len(m.closed))
	}
	return domain.RiskMetrics{
		Equity:           m.ledger.equity.InexactFloat64(),
		PeakEquity:       m.ledger.peak.InexactFloat64(),
		TotalPnL:         m.ledger.total.InexactFloat64(),
		DailyPnL:         m.ledger.daily.InexactFloat64(),
		CurrentDrawdown:  m.ledger.drawdown(),
		MaxDrawdown:      m.ledger.maxDrawdown,
		WinRate:          winRate,
		TotalTrades:      len(m.closed),
		ProfitableTrades: wins,
		OpenPositions:    len(m.positions),
		OpenExposure:     m.openExposure().InexactFloat64(),
		EmergencyStopped: m.stopped,
	}
}
