package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Journal implements domain.Journal. Monetary columns are NUMERIC and travel
// as decimal.Decimal so ledger amounts survive a round trip exactly.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal backed by the given connection pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// RecordFill inserts the fill for trade. Replaying the same trade ID is a
// no-op.
func (j *Journal) RecordFill(ctx context.Context, trade domain.ApprovedTrade, fill domain.Fill) error {
	const query = `
		INSERT INTO fills (
			trade_id, strategy, pair, venue, side,
			size, limit_price, executed_price, fees_paid, reference,
			gross_spread, net_spread, filled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (trade_id) DO NOTHING`

	var gross, net *float64
	if opp := trade.Opportunity; opp != nil {
		gross, net = &opp.GrossSpread, &opp.NetSpread
	}

	_, err := j.pool.Exec(ctx, query,
		trade.ID, trade.Strategy, string(trade.Pair), string(trade.Venue), string(trade.Side),
		decimal.NewFromFloat(trade.Size),
		decimal.NewFromFloat(trade.LimitPrice),
		decimal.NewFromFloat(fill.ExecutedPrice),
		decimal.NewFromFloat(fill.FeesPaid),
		fill.Reference,
		gross, net,
		fill.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: record fill %s: %w", trade.ID, err)
	}
	return nil
}

// UpsertPosition inserts pos or replaces the mutable fields of an existing
// row with the same ID.
func (j *Journal) UpsertPosition(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, trade_id, strategy, pair, venue, side,
			entry_price, size, quantity, fees_paid, stop_loss, take_profit,
			status, opened_at, closed_at, exit_price, realized_pnl, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status       = EXCLUDED.status,
			closed_at    = EXCLUDED.closed_at,
			exit_price   = EXCLUDED.exit_price,
			realized_pnl = EXCLUDED.realized_pnl,
			stop_loss    = EXCLUDED.stop_loss,
			take_profit  = EXCLUDED.take_profit,
			updated_at   = NOW()`

	r := fromPosition(pos)
	_, err := j.pool.Exec(ctx, query,
		r.ID, r.TradeID, r.Strategy, r.Pair, r.Venue, r.Side,
		r.EntryPrice, r.Size, r.Quantity, r.FeesPaid, r.StopLoss, r.TakeProfit,
		r.Status, r.OpenedAt, r.ClosedAt, r.ExitPrice, r.RealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", pos.ID, err)
	}
	return nil
}

// ListPositions returns positions with the given status, newest first. An
// empty status lists every position.
func (j *Journal) ListPositions(ctx context.Context, status domain.PositionStatus, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT id, trade_id, strategy, pair, venue, side,
		entry_price, size, quantity, fees_paid, stop_loss, take_profit,
		status, opened_at, closed_at, exit_price, realized_pnl
		FROM positions WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if status != "" {
		query += " AND status = " + arg(string(status))
	}
	if opts.Since != nil {
		query += " AND opened_at >= " + arg(*opts.Since)
	}
	query += " ORDER BY opened_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + arg(opts.Offset)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[positionRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}

	out := make([]domain.Position, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toPosition())
	}
	return out, nil
}

// positionRow mirrors the positions table column order.
type positionRow struct {
	ID          string
	TradeID     string
	Strategy    string
	Pair        string
	Venue       string
	Side        string
	EntryPrice  decimal.Decimal
	Size        decimal.Decimal
	Quantity    decimal.Decimal
	FeesPaid    decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfit  decimal.Decimal
	Status      string
	OpenedAt    time.Time
	ClosedAt    *time.Time
	ExitPrice   decimal.NullDecimal
	RealizedPnL decimal.Decimal
}

func fromPosition(p domain.Position) positionRow {
	r := positionRow{
		ID:          p.ID,
		TradeID:     p.TradeID,
		Strategy:    p.Strategy,
		Pair:        string(p.Pair),
		Venue:       string(p.Venue),
		Side:        string(p.Side),
		EntryPrice:  decimal.NewFromFloat(p.EntryPrice),
		Size:        decimal.NewFromFloat(p.Size),
		Quantity:    decimal.NewFromFloat(p.Quantity),
		FeesPaid:    decimal.NewFromFloat(p.FeesPaid),
		StopLoss:    decimal.NewFromFloat(p.StopLoss),
		TakeProfit:  decimal.NewFromFloat(p.TakeProfit),
		Status:      string(p.Status),
		OpenedAt:    p.OpenedAt,
		ClosedAt:    p.ClosedAt,
		RealizedPnL: decimal.NewFromFloat(p.RealizedPnL),
	}
	if p.ExitPrice != nil {
		r.ExitPrice = decimal.NewNullDecimal(decimal.NewFromFloat(*p.ExitPrice))
	}
	return r
}

func (r positionRow) toPosition() domain.Position {
	p := domain.Position{
		ID:          r.ID,
		TradeID:     r.TradeID,
		Strategy:    r.Strategy,
		Pair:        domain.Pair(r.Pair),
		Venue:       domain.Venue(r.Venue),
		Side:        domain.Side(r.Side),
		EntryPrice:  r.EntryPrice.InexactFloat64(),
		Size:        r.Size.InexactFloat64(),
		Quantity:    r.Quantity.InexactFloat64(),
		FeesPaid:    r.FeesPaid.InexactFloat64(),
		StopLoss:    r.StopLoss.InexactFloat64(),
		TakeProfit:  r.TakeProfit.InexactFloat64(),
		Status:      domain.PositionStatus(r.Status),
		OpenedAt:    r.OpenedAt,
		ClosedAt:    r.ClosedAt,
		RealizedPnL: r.RealizedPnL.InexactFloat64(),
	}
	if r.ExitPrice.Valid {
		v := r.ExitPrice.Decimal.InexactFloat64()
		p.ExitPrice = &v
	}
	return p
}

// Compile-time interface check.
var _ domain.Journal = (*Journal)(nil)
