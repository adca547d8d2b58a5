package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Position holds at most one open row per pair; rows are created on fill and
// deleted on close, never partially updated in between.
type Position struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Pair     string `gorm:"type:varchar(20);not null;uniqueIndex" json:"pair"`
	Strategy string `gorm:"type:varchar(50);not null" json:"strategy"`

	Direction Direction `gorm:"type:varchar(10);not null" json:"direction"`
	Units     int64     `gorm:"not null" json:"units"`

	EntryPrice decimal.Decimal `gorm:"type:numeric(20,10);not null" json:"entry_price"`
	SLPrice    decimal.Decimal `gorm:"column:sl_price;type:numeric(20,10);not null" json:"sl_price"`
	TPPrice    decimal.Decimal `gorm:"column:tp_price;type:numeric(20,10);not null" json:"tp_price"`

	TimeOpen time.Time `gorm:"type:timestamptz;not null" json:"time_open"`
	IsOpen   bool      `gorm:"not null;default:true;index" json:"is_open"`
}

func (Position) TableName() string {
	return "positions"
}
