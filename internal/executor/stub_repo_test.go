package executor

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"scalpbot/internal/models"
	"scalpbot/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository
// covering everything one executor cycle touches: commands, audit entries,
// the position/trade ledger and heartbeat rows.
type stubRepo struct {
	mu     sync.Mutex
	nextID uint64

	commands  map[uint64]*models.Command
	audits    []models.AuditLogEntry
	trades    []*models.Trade
	positions map[string]*models.Position
	statuses  []*models.BotStatus
	stats     map[string]*models.DailyStat
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		commands:  map[uint64]*models.Command{},
		positions: map[string]*models.Position{},
		stats:     map[string]*models.DailyStat{},
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) InsertCommandTx(ctx context.Context, tx *gorm.DB, cmd *models.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cmd.ID = s.nextID
	clone := *cmd
	s.commands[cmd.ID] = &clone
	return nil
}

func (s *stubRepo) GetCommandByID(ctx context.Context, id uint64) (*models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return nil, nil
	}
	clone := *cmd
	return &clone, nil
}

func (s *stubRepo) GetCommandByIdempotencyKey(ctx context.Context, key string) (*models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cmd := range s.commands {
		if cmd.IdempotencyKey != nil && *cmd.IdempotencyKey == key {
			clone := *cmd
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) NextPendingCommand(ctx context.Context) (*models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *models.Command
	for _, cmd := range s.commands {
		if cmd.Status != models.StatusPending {
			continue
		}
		if oldest == nil || cmd.ID < oldest.ID {
			oldest = cmd
		}
	}
	if oldest == nil {
		return nil, nil
	}
	clone := *oldest
	return &clone, nil
}

func (s *stubRepo) MarkCommandRunningTx(ctx context.Context, tx *gorm.DB, id uint64, workerID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok || cmd.Status != models.StatusPending {
		return 0, nil
	}
	cmd.Status = models.StatusRunning
	cmd.HandledBy = workerID
	started := now
	cmd.StartedAt = &started
	return 1, nil
}

func (s *stubRepo) FinishCommandTx(ctx context.Context, tx *gorm.DB, id uint64, status models.CommandStatus, result datatypes.JSON, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok || cmd.Status != models.StatusRunning {
		return 0, nil
	}
	cmd.Status = status
	finished := now
	cmd.FinishedAt = &finished
	cmd.Result = result
	return 1, nil
}

func (s *stubRepo) ListRunningStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Command
	for _, cmd := range s.commands {
		if cmd.Status == models.StatusRunning && cmd.StartedAt != nil && cmd.StartedAt.Before(cutoff) {
			out = append(out, *cmd)
		}
	}
	return out, nil
}

func (s *stubRepo) ListRecentCommands(ctx context.Context, limit int) ([]models.Command, error) {
	return nil, nil
}

func (s *stubRepo) InsertAuditEntryTx(ctx context.Context, tx *gorm.DB, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *entry)
	return nil
}

func (s *stubRepo) ListAuditByCommandID(ctx context.Context, commandID uint64) ([]models.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditLogEntry
	for _, entry := range s.audits {
		if entry.CommandID != nil && *entry.CommandID == commandID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *stubRepo) OpenPosition(ctx context.Context, trade *models.Trade, position *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	trade.ID = s.nextID
	tradeClone := *trade
	s.trades = append(s.trades, &tradeClone)
	posClone := *position
	s.positions[position.Pair] = &posClone
	return nil
}

func (s *stubRepo) CloseOpenTrade(ctx context.Context, pair string, tc repository.TradeClose) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open *models.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].Pair == pair && s.trades[i].TimeClose == nil {
			open = s.trades[i]
			break
		}
	}
	if open == nil {
		return nil, nil
	}
	ts := tc.Time
	exit := tc.ExitPrice
	result := tc.Result
	pips := tc.PnLPips
	quote := tc.PnLQuote
	open.TimeClose = &ts
	open.ExitPrice = &exit
	open.Result = &result
	open.PnLPips = &pips
	open.PnLQuote = &quote
	delete(s.positions, pair)
	clone := *open
	return &clone, nil
}

func (s *stubRepo) GetOpenPosition(ctx context.Context, pair string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[pair]
	if !ok {
		return nil, nil
	}
	clone := *pos
	return &clone, nil
}

func (s *stubRepo) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Position
	for _, pos := range s.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (s *stubRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	return nil, nil
}

func (s *stubRepo) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) SumClosedPnLBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubRepo) UpsertDailyStat(ctx context.Context, item *models.DailyStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *item
	s.stats[item.Date.Format("2006-01-02")] = &clone
	return nil
}

func (s *stubRepo) GetDailyStat(ctx context.Context, date time.Time) (*models.DailyStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.stats[date.Format("2006-01-02")]
	if !ok {
		return nil, nil
	}
	clone := *stat
	return &clone, nil
}

func (s *stubRepo) InsertBotStatus(ctx context.Context, item *models.BotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *item
	s.statuses = append(s.statuses, &clone)
	return nil
}

func (s *stubRepo) LatestBotStatus(ctx context.Context) (*models.BotStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return nil, nil
	}
	clone := *s.statuses[len(s.statuses)-1]
	return &clone, nil
}

func (s *stubRepo) auditActions(commandID uint64) []models.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditAction
	for _, entry := range s.audits {
		if entry.CommandID != nil && *entry.CommandID == commandID {
			out = append(out, entry.Action)
		}
	}
	return out
}
