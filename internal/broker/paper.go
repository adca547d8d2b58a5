// Package broker simulates order fills and closes against the ledger store.
// Fills are instantaneous at the quoted bid/ask; slippage, if any, is baked
// into the quotes by the caller.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"scalpbot/internal/alert"
	"scalpbot/internal/ledger"
	"scalpbot/internal/models"
	"scalpbot/internal/repository"
)

var (
	ErrInvalidDirection = errors.New("direction must be BUY or SELL")

	// ErrDailyHalted gates order placement for the rest of a halted day.
	ErrDailyHalted = errors.New("daily loss halt active")
)

type Paper struct {
	Repo     repository.Repository
	Fallback *ledger.FallbackLog
	Alerts   *alert.Service
	Logger   *zap.Logger
}

type Order struct {
	Pair      string
	Strategy  string
	Direction models.Direction
	Units     int64
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	SLPrice   decimal.Decimal
	TPPrice   decimal.Decimal
	Meta      datatypes.JSON
}

type Bar struct {
	High decimal.Decimal
	Low  decimal.Decimal
}

type Closed struct {
	Pair      string             `json:"pair"`
	Result    models.TradeResult `json:"result"`
	ExitPrice decimal.Decimal    `json:"exit_price"`
	PnLPips   decimal.Decimal    `json:"pnl_pips"`
	PnLQuote  decimal.Decimal    `json:"pnl_quote"`
}

// PipSize returns 0.01 for JPY-quoted pairs and 0.0001 otherwise.
func PipSize(pair string) decimal.Decimal {
	if strings.HasSuffix(strings.ToUpper(pair), "JPY") {
		return decimal.New(1, -2)
	}
	return decimal.New(1, -4)
}

func (b *Paper) HasOpenPosition(ctx context.Context, pair string) (bool, error) {
	pos, err := b.Repo.GetOpenPosition(ctx, pair)
	if err != nil {
		return false, err
	}
	return pos != nil, nil
}

// PlaceMarketOrder fills BUY at ask and SELL at bid, writing the open trade
// and position in one ledger transaction. Placement is refused while the
// current UTC day is halted.
func (b *Paper) PlaceMarketOrder(ctx context.Context, order Order) (*models.Trade, error) {
	if order.Direction != models.DirectionBuy && order.Direction != models.DirectionSell {
		return nil, ErrInvalidDirection
	}

	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stat, err := b.Repo.GetDailyStat(ctx, day)
	if err == nil && stat != nil && stat.Halted {
		return nil, fmt.Errorf("%w: %s", ErrDailyHalted, day.Format("2006-01-02"))
	}

	entry := order.Ask
	if order.Direction == models.DirectionSell {
		entry = order.Bid
	}

	trade := &models.Trade{
		TimeOpen:   now,
		Pair:       order.Pair,
		Strategy:   order.Strategy,
		Direction:  order.Direction,
		Units:      order.Units,
		EntryPrice: entry,
		SLPrice:    order.SLPrice,
		TPPrice:    order.TPPrice,
		Meta:       order.Meta,
	}
	position := &models.Position{
		Pair:       order.Pair,
		Strategy:   order.Strategy,
		Direction:  order.Direction,
		Units:      order.Units,
		EntryPrice: entry,
		SLPrice:    order.SLPrice,
		TPPrice:    order.TPPrice,
		TimeOpen:   now,
		IsOpen:     true,
	}
	if err := b.Repo.OpenPosition(ctx, trade, position); err != nil {
		// Availability over consistency: the row goes to the fallback log
		// rather than being dropped.
		if fbErr := b.Fallback.AppendTrade(trade); fbErr != nil && b.Logger != nil {
			b.Logger.Error("trade fallback append failed", zap.Error(fbErr))
		}
		if b.Logger != nil {
			b.Logger.Warn("open position write degraded to fallback log",
				zap.String("pair", order.Pair), zap.Error(err))
		}
	}
	b.Alerts.Send(alert.EventTradeOpen, map[string]any{
		"pair":        order.Pair,
		"strategy":    order.Strategy,
		"direction":   string(order.Direction),
		"units":       order.Units,
		"entry_price": entry,
		"sl_price":    order.SLPrice,
		"tp_price":    order.TPPrice,
		"time_utc":    now.Format(time.RFC3339),
	})
	return trade, nil
}

// UpdatePositionsFromBar reconciles one candle against the pair's open
// position. SL is checked before TP so a bar spanning both levels resolves to
// the worst case for the trader.
func (b *Paper) UpdatePositionsFromBar(ctx context.Context, pair string, bar Bar, ts time.Time) ([]Closed, error) {
	position, err := b.Repo.GetOpenPosition(ctx, pair)
	if err != nil || position == nil {
		return nil, err
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if position.Direction == models.DirectionBuy {
		if bar.Low.LessThanOrEqual(position.SLPrice) {
			closed, err := b.closePosition(ctx, position, position.SLPrice, models.TradeResultSL, ts, map[string]any{"reason": "sl_hit"})
			return wrapClosed(closed), err
		}
		if bar.High.GreaterThanOrEqual(position.TPPrice) {
			closed, err := b.closePosition(ctx, position, position.TPPrice, models.TradeResultTP, ts, map[string]any{"reason": "tp_hit"})
			return wrapClosed(closed), err
		}
		return nil, nil
	}

	if bar.High.GreaterThanOrEqual(position.SLPrice) {
		closed, err := b.closePosition(ctx, position, position.SLPrice, models.TradeResultSL, ts, map[string]any{"reason": "sl_hit"})
		return wrapClosed(closed), err
	}
	if bar.Low.LessThanOrEqual(position.TPPrice) {
		closed, err := b.closePosition(ctx, position, position.TPPrice, models.TradeResultTP, ts, map[string]any{"reason": "tp_hit"})
		return wrapClosed(closed), err
	}
	return nil, nil
}

// ClosePositionAtEntry is the manual flat close: exit at the position's own
// entry price with zero PnL.
func (b *Paper) ClosePositionAtEntry(ctx context.Context, pair string, meta map[string]any) (*Closed, error) {
	position, err := b.Repo.GetOpenPosition(ctx, pair)
	if err != nil || position == nil {
		return nil, err
	}
	return b.closePosition(ctx, position, position.EntryPrice, models.TradeResultManualClose, time.Now().UTC(), meta)
}

// CloseAllPositions is the kill switch. Exit prices may be overridden per
// pair; pairs without an override close flat at their entry price.
func (b *Paper) CloseAllPositions(ctx context.Context, exitPrices map[string]decimal.Decimal, reason models.TradeResult) ([]Closed, error) {
	positions, err := b.Repo.ListOpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	ts := time.Now().UTC()
	closed := make([]Closed, 0, len(positions))
	for i := range positions {
		position := positions[i]
		exit, ok := exitPrices[position.Pair]
		if !ok {
			exit = position.EntryPrice
		}
		c, err := b.closePosition(ctx, &position, exit, reason, ts, map[string]any{"reason": strings.ToLower(string(reason))})
		if err != nil {
			return closed, err
		}
		if c != nil {
			closed = append(closed, *c)
		}
	}
	return closed, nil
}

func (b *Paper) closePosition(ctx context.Context, position *models.Position, exit decimal.Decimal, result models.TradeResult, ts time.Time, meta map[string]any) (*Closed, error) {
	pip := PipSize(position.Pair)

	pnlPips := exit.Sub(position.EntryPrice).Div(pip)
	if position.Direction == models.DirectionSell {
		pnlPips = pnlPips.Neg()
	}
	pnlQuote := pnlPips.Mul(pip).Mul(decimal.NewFromInt(position.Units))

	tc := repository.TradeClose{
		ExitPrice: exit,
		Result:    result,
		PnLPips:   pnlPips,
		PnLQuote:  pnlQuote,
		Time:      ts,
		Meta:      marshalMeta(meta),
	}
	trade, err := b.Repo.CloseOpenTrade(ctx, position.Pair, tc)
	if err != nil {
		fallback := closedTradeRow(position, tc)
		if fbErr := b.Fallback.AppendTrade(fallback); fbErr != nil && b.Logger != nil {
			b.Logger.Error("trade fallback append failed", zap.Error(fbErr))
		}
		if b.Logger != nil {
			b.Logger.Warn("close position write degraded to fallback log",
				zap.String("pair", position.Pair), zap.Error(err))
		}
	} else if trade == nil {
		return nil, nil
	}
	return &Closed{
		Pair:      position.Pair,
		Result:    result,
		ExitPrice: exit,
		PnLPips:   pnlPips,
		PnLQuote:  pnlQuote,
	}, nil
}

func closedTradeRow(position *models.Position, tc repository.TradeClose) *models.Trade {
	result := tc.Result
	exit := tc.ExitPrice
	pips := tc.PnLPips
	quote := tc.PnLQuote
	ts := tc.Time
	return &models.Trade{
		TimeOpen:   position.TimeOpen,
		TimeClose:  &ts,
		Pair:       position.Pair,
		Strategy:   position.Strategy,
		Direction:  position.Direction,
		Units:      position.Units,
		EntryPrice: position.EntryPrice,
		ExitPrice:  &exit,
		SLPrice:    position.SLPrice,
		TPPrice:    position.TPPrice,
		Result:     &result,
		PnLPips:    &pips,
		PnLQuote:   &quote,
		Meta:       tc.Meta,
	}
}

func wrapClosed(c *Closed) []Closed {
	if c == nil {
		return nil
	}
	return []Closed{*c}
}

func marshalMeta(meta map[string]any) datatypes.JSON {
	if meta == nil {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
