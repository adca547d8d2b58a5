package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"scalpbot/internal/models"
)

type ListTradesParams struct {
	Pair     *string
	Strategy *string
	Result   *string
	OpenOnly bool
	Since    *time.Time
	Limit    int
	Offset   int
}

// TradeClose carries every close-side field of a trade; they are written
// together in one update so a trade is never half-closed.
type TradeClose struct {
	ExitPrice decimal.Decimal
	Result    models.TradeResult
	PnLPips   decimal.Decimal
	PnLQuote  decimal.Decimal
	Time      time.Time
	Meta      datatypes.JSON
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Command queue primitives. The Tx variants compose with InTx so audit
	// entries commit atomically with the command-row write they describe.
	InsertCommandTx(ctx context.Context, tx *gorm.DB, cmd *models.Command) error
	GetCommandByID(ctx context.Context, id uint64) (*models.Command, error)
	GetCommandByIdempotencyKey(ctx context.Context, key string) (*models.Command, error)
	NextPendingCommand(ctx context.Context) (*models.Command, error)
	MarkCommandRunningTx(ctx context.Context, tx *gorm.DB, id uint64, workerID string, now time.Time) (int64, error)
	FinishCommandTx(ctx context.Context, tx *gorm.DB, id uint64, status models.CommandStatus, result datatypes.JSON, now time.Time) (int64, error)
	ListRunningStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Command, error)
	ListRecentCommands(ctx context.Context, limit int) ([]models.Command, error)

	InsertAuditEntryTx(ctx context.Context, tx *gorm.DB, entry *models.AuditLogEntry) error
	ListAuditByCommandID(ctx context.Context, commandID uint64) ([]models.AuditLogEntry, error)

	// Ledger.
	OpenPosition(ctx context.Context, trade *models.Trade, position *models.Position) error
	CloseOpenTrade(ctx context.Context, pair string, close TradeClose) (*models.Trade, error)
	GetOpenPosition(ctx context.Context, pair string) (*models.Position, error)
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)
	SumClosedPnLBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)

	UpsertDailyStat(ctx context.Context, item *models.DailyStat) error
	GetDailyStat(ctx context.Context, date time.Time) (*models.DailyStat, error)

	// Heartbeat.
	InsertBotStatus(ctx context.Context, item *models.BotStatus) error
	LatestBotStatus(ctx context.Context) (*models.BotStatus, error)
}
