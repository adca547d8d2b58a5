package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TradeResult string

const (
	TradeResultTP            TradeResult = "TP"
	TradeResultSL            TradeResult = "SL"
	TradeResultManualClose   TradeResult = "MANUAL_CLOSE"
	TradeResultKillSwitch    TradeResult = "KILL_SWITCH"
	TradeResultDailyLossHalt TradeResult = "DAILY_LOSS_HALT"
	TradeResultTimeout       TradeResult = "TIMEOUT"
)

// Trade is the historical ledger row: one per opened position, closed exactly
// once. The close-side fields are written together in a single update.
type Trade struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TimeOpen  time.Time  `gorm:"type:timestamptz;not null;index" json:"time_open"`
	TimeClose *time.Time `gorm:"type:timestamptz;index" json:"time_close,omitempty"`

	Pair      string    `gorm:"type:varchar(20);not null;index" json:"pair"`
	Strategy  string    `gorm:"type:varchar(50);not null;index" json:"strategy"`
	Direction Direction `gorm:"type:varchar(10);not null" json:"direction"`
	Units     int64     `gorm:"not null" json:"units"`

	EntryPrice decimal.Decimal  `gorm:"type:numeric(20,10);not null" json:"entry_price"`
	ExitPrice  *decimal.Decimal `gorm:"type:numeric(20,10)" json:"exit_price,omitempty"`
	SLPrice    decimal.Decimal  `gorm:"column:sl_price;type:numeric(20,10);not null" json:"sl_price"`
	TPPrice    decimal.Decimal  `gorm:"column:tp_price;type:numeric(20,10);not null" json:"tp_price"`

	Result   *TradeResult     `gorm:"type:varchar(20);index" json:"result,omitempty"`
	PnLPips  *decimal.Decimal `gorm:"column:pnl_pips;type:numeric(20,4)" json:"pnl_pips,omitempty"`
	PnLQuote *decimal.Decimal `gorm:"column:pnl_quote;type:numeric(30,10)" json:"pnl_quote,omitempty"`

	Meta datatypes.JSON `gorm:"type:jsonb" json:"meta,omitempty"`
}

func (Trade) TableName() string {
	return "trades"
}
