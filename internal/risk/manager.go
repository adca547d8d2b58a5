// Package risk maintains the daily stats row and enforces the daily loss
// halt. EvaluateDay rebuilds the row from closed trades so restarts and
// missed cycles cannot desync the drawdown figure.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"scalpbot/internal/alert"
	"scalpbot/internal/broker"
	"scalpbot/internal/models"
	"scalpbot/internal/repository"
)

type Config struct {
	StartBalance decimal.Decimal
	// MaxDailyLossPct halts the day when drawdown reaches this fraction of
	// the day's start balance, e.g. 0.05 for five percent.
	MaxDailyLossPct decimal.Decimal
	Mode            string
}

type Manager struct {
	Repo   repository.Repository
	Broker *broker.Paper
	Alerts *alert.Service
	Logger *zap.Logger
	Config Config
}

// EvaluateDay recomputes the UTC day's realized PnL, persists the stats row
// and, on a breach of the loss limit, halts the day and closes every open
// paper position. A day already halted stays halted.
func (m *Manager) EvaluateDay(ctx context.Context, now time.Time) (*models.DailyStat, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := day.Add(24 * time.Hour)

	pnl, err := m.Repo.SumClosedPnLBetween(ctx, day, next)
	if err != nil {
		return nil, fmt.Errorf("sum closed pnl: %w", err)
	}

	existing, err := m.Repo.GetDailyStat(ctx, day)
	if err != nil {
		return nil, err
	}

	start := m.Config.StartBalance
	halted := false
	if existing != nil {
		start = existing.StartBalance
		halted = existing.Halted
	}

	drawdown := decimal.Zero
	if pnl.IsNegative() {
		drawdown = pnl.Neg()
	}
	limit := start.Mul(m.Config.MaxDailyLossPct)
	breached := !halted && limit.IsPositive() && drawdown.GreaterThanOrEqual(limit)
	if breached {
		halted = true
	}

	stat := &models.DailyStat{
		Date:           day,
		StartBalance:   start,
		CurrentBalance: start.Add(pnl),
		RealizedPnL:    pnl,
		Halted:         halted,
	}
	if err := m.Repo.UpsertDailyStat(ctx, stat); err != nil {
		return nil, fmt.Errorf("upsert daily stat: %w", err)
	}

	if breached {
		if m.Logger != nil {
			m.Logger.Warn("daily loss halt triggered",
				zap.String("date", day.Format("2006-01-02")),
				zap.String("drawdown", drawdown.String()),
				zap.String("limit", limit.String()),
			)
		}
		if _, err := m.Broker.CloseAllPositions(ctx, nil, models.TradeResultDailyLossHalt); err != nil {
			// The halt flag is already durable; position closing is retried
			// implicitly on the next evaluation tick.
			if m.Logger != nil {
				m.Logger.Error("close all on daily halt failed", zap.Error(err))
			}
		}
		m.Alerts.Send(alert.EventDailyHalt, map[string]any{
			"date":      day.Format("2006-01-02"),
			"drawdown":  drawdown.String(),
			"threshold": limit.String(),
			"mode":      m.Config.Mode,
		})
	}

	return stat, nil
}

// Halted reports whether the given UTC day carries an active loss halt.
func (m *Manager) Halted(ctx context.Context, now time.Time) (bool, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stat, err := m.Repo.GetDailyStat(ctx, day)
	if err != nil {
		return false, err
	}
	return stat != nil && stat.Halted, nil
}
