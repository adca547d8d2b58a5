package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scalpbot/internal/models"
	"scalpbot/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- commands ---------------------------------------------------------------

func (s *Store) InsertCommandTx(ctx context.Context, tx *gorm.DB, cmd *models.Command) error {
	if tx == nil || cmd == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(cmd).Error
}

func (s *Store) GetCommandByID(ctx context.Context, id uint64) (*models.Command, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Command
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetCommandByIdempotencyKey(ctx context.Context, key string) (*models.Command, error) {
	if s == nil || s.db == nil || strings.TrimSpace(key) == "" {
		return nil, nil
	}
	var item models.Command
	err := s.db.WithContext(ctx).First(&item, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) NextPendingCommand(ctx context.Context) (*models.Command, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Command
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusPending).
		Order("created_at asc").
		Order("id asc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkCommandRunningTx is the claim: a conditional PENDING -> RUNNING update.
// The returned row count is the whole correctness story — zero means another
// worker won the race and the caller must not treat the command as claimed.
func (s *Store) MarkCommandRunningTx(ctx context.Context, tx *gorm.DB, id uint64, workerID string, now time.Time) (int64, error) {
	if tx == nil {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.Command{}).
		Where("id = ?", id).
		Where("status = ?", models.StatusPending).
		Updates(map[string]any{
			"status":     models.StatusRunning,
			"started_at": now,
			"handled_by": workerID,
		})
	return res.RowsAffected, res.Error
}

// FinishCommandTx writes a terminal status conditionally on the row still
// being RUNNING, so terminal states can never be overwritten.
func (s *Store) FinishCommandTx(ctx context.Context, tx *gorm.DB, id uint64, status models.CommandStatus, result datatypes.JSON, now time.Time) (int64, error) {
	if tx == nil {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.Command{}).
		Where("id = ?", id).
		Where("status = ?", models.StatusRunning).
		Updates(map[string]any{
			"status":      status,
			"finished_at": now,
			"result":      result,
		})
	return res.RowsAffected, res.Error
}

func (s *Store) ListRunningStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Command, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Command
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusRunning).
		Where("started_at IS NOT NULL").
		Where("started_at < ?", cutoff).
		Order("started_at asc").
		Find(&items).Error
	return items, err
}

func (s *Store) ListRecentCommands(ctx context.Context, limit int) ([]models.Command, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Command
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Order("id desc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error
	return items, err
}

// --- audit ------------------------------------------------------------------

func (s *Store) InsertAuditEntryTx(ctx context.Context, tx *gorm.DB, entry *models.AuditLogEntry) error {
	if tx == nil || entry == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (s *Store) ListAuditByCommandID(ctx context.Context, commandID uint64) ([]models.AuditLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.AuditLogEntry
	err := s.db.WithContext(ctx).
		Where("command_id = ?", commandID).
		Order("id asc").
		Find(&items).Error
	return items, err
}

// --- ledger -----------------------------------------------------------------

func (s *Store) OpenPosition(ctx context.Context, trade *models.Trade, position *models.Position) error {
	if s == nil || s.db == nil || trade == nil || position == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			return err
		}
		// One open position per pair, as an upsert: a second fill for the
		// same pair replaces the row rather than erroring. Callers gate on
		// GetOpenPosition before filling.
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "pair"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"strategy",
				"direction",
				"units",
				"entry_price",
				"sl_price",
				"tp_price",
				"time_open",
				"is_open",
			}),
		}).Create(position).Error
	})
}

func (s *Store) CloseOpenTrade(ctx context.Context, pair string, tc repository.TradeClose) (*models.Trade, error) {
	if s == nil || s.db == nil || strings.TrimSpace(pair) == "" {
		return nil, nil
	}
	var closed *models.Trade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trade models.Trade
		err := tx.
			Where("pair = ?", pair).
			Where("time_close IS NULL").
			Order("id desc").
			First(&trade).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		updates := map[string]any{
			"time_close": tc.Time,
			"exit_price": tc.ExitPrice,
			"result":     tc.Result,
			"pnl_pips":   tc.PnLPips,
			"pnl_quote":  tc.PnLQuote,
		}
		if len(tc.Meta) > 0 {
			updates["meta"] = tc.Meta
		}
		if err := tx.Model(&models.Trade{}).Where("id = ?", trade.ID).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("pair = ?", pair).Delete(&models.Position{}).Error; err != nil {
			return err
		}
		trade.TimeClose = &tc.Time
		trade.ExitPrice = &tc.ExitPrice
		result := tc.Result
		trade.Result = &result
		pips := tc.PnLPips
		quote := tc.PnLQuote
		trade.PnLPips = &pips
		trade.PnLQuote = &quote
		if len(tc.Meta) > 0 {
			trade.Meta = tc.Meta
		}
		closed = &trade
		return nil
	})
	return closed, err
}

func (s *Store) GetOpenPosition(ctx context.Context, pair string) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).
		Where("pair = ?", pair).
		Where("is_open = ?", true).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	err := s.db.WithContext(ctx).
		Where("is_open = ?", true).
		Order("time_open asc").
		Find(&items).Error
	return items, err
}

func tradesQuery(db *gorm.DB, params repository.ListTradesParams) *gorm.DB {
	query := db.Model(&models.Trade{})
	if params.Pair != nil && strings.TrimSpace(*params.Pair) != "" {
		query = query.Where("pair = ?", strings.TrimSpace(*params.Pair))
	}
	if params.Strategy != nil && strings.TrimSpace(*params.Strategy) != "" {
		query = query.Where("strategy = ?", strings.TrimSpace(*params.Strategy))
	}
	if params.Result != nil && strings.TrimSpace(*params.Result) != "" {
		query = query.Where("result = ?", strings.TrimSpace(*params.Result))
	}
	if params.OpenOnly {
		query = query.Where("time_close IS NULL")
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("time_open >= ?", *params.Since)
	}
	return query
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Trade
	err := tradesQuery(s.db.WithContext(ctx), params).
		Order("id desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	return items, err
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := tradesQuery(s.db.WithContext(ctx), params).Count(&total).Error
	return total, err
}

func (s *Store) SumClosedPnLBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var sum decimal.NullDecimal
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("SUM(pnl_quote)").
		Where("time_close IS NOT NULL").
		Where("time_close >= ?", from).
		Where("time_close < ?", to).
		Scan(&sum).Error
	if err != nil || !sum.Valid {
		return decimal.Zero, err
	}
	return sum.Decimal, nil
}

// --- daily stats ------------------------------------------------------------

func (s *Store) UpsertDailyStat(ctx context.Context, item *models.DailyStat) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"start_balance",
			"current_balance",
			"realized_pnl",
			"halted",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetDailyStat(ctx context.Context, date time.Time) (*models.DailyStat, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.DailyStat
	err := s.db.WithContext(ctx).First(&item, "date = ?", date).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- heartbeat --------------------------------------------------------------

func (s *Store) InsertBotStatus(ctx context.Context, item *models.BotStatus) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) LatestBotStatus(ctx context.Context) (*models.BotStatus, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.BotStatus
	err := s.db.WithContext(ctx).Order("id desc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- helpers ----------------------------------------------------------------

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
