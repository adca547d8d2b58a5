package models

import (
	"time"

	"gorm.io/datatypes"
)

// BotStatus is the heartbeat table. The newest row doubles as the durable
// paused-pairs snapshot: workers rebuild their in-memory set from it at the
// start of every cycle instead of trusting prior in-process state.
type BotStatus struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	TS          time.Time      `gorm:"type:timestamptz;not null;index" json:"ts"`
	Mode        string         `gorm:"type:varchar(20);not null" json:"mode"`
	Version     string         `gorm:"type:varchar(40)" json:"version,omitempty"`
	UptimeSec   int64          `gorm:"not null;default:0" json:"uptime_sec"`
	LastCycleAt *time.Time     `gorm:"type:timestamptz" json:"last_cycle_at,omitempty"`
	PausedPairs datatypes.JSON `gorm:"type:jsonb" json:"paused_pairs,omitempty"`
	Meta        datatypes.JSON `gorm:"type:jsonb" json:"meta,omitempty"`
}

func (BotStatus) TableName() string {
	return "bot_status"
}
