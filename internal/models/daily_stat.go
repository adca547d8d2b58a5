package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyStat is one row per UTC calendar day, upserted as trades close. Once
// halted flips to true it stays true for the rest of that day and gates
// further order placement.
type DailyStat struct {
	ID   uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Date time.Time `gorm:"type:date;not null;uniqueIndex" json:"date"`

	StartBalance   decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"start_balance"`
	CurrentBalance decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"current_balance"`
	RealizedPnL    decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0" json:"realized_pnl"`
	Halted         bool            `gorm:"not null;default:false" json:"halted"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (DailyStat) TableName() string {
	return "daily_stats"
}
