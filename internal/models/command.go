package models

import (
	"time"

	"gorm.io/datatypes"
)

type CommandType string

const (
	CommandPausePair    CommandType = "PAUSE_PAIR"
	CommandResumePair   CommandType = "RESUME_PAIR"
	CommandPauseAll     CommandType = "PAUSE_ALL"
	CommandResumeAll    CommandType = "RESUME_ALL"
	CommandClosePair    CommandType = "CLOSE_PAIR"
	CommandCloseAll     CommandType = "CLOSE_ALL"
	CommandReloadParams CommandType = "RELOAD_PARAMS"
)

// AllowedCommandTypes is the boundary allow-list; anything else is rejected
// before it reaches the queue.
func AllowedCommandTypes() map[CommandType]struct{} {
	return map[CommandType]struct{}{
		CommandPausePair:    {},
		CommandResumePair:   {},
		CommandPauseAll:     {},
		CommandResumeAll:    {},
		CommandClosePair:    {},
		CommandCloseAll:     {},
		CommandReloadParams: {},
	}
}

type CommandStatus string

const (
	StatusPending   CommandStatus = "PENDING"
	StatusRunning   CommandStatus = "RUNNING"
	StatusSucceeded CommandStatus = "SUCCEEDED"
	StatusFailed    CommandStatus = "FAILED"
	StatusSkipped   CommandStatus = "SKIPPED"
)

func (s CommandStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Command is one unit of control-plane work. Status moves one-way:
// PENDING -> RUNNING -> {SUCCEEDED, FAILED, SKIPPED}.
type Command struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;index:idx_commands_status_created,priority:2" json:"created_at"`

	Actor string      `gorm:"type:varchar(120);not null" json:"actor"`
	Type  CommandType `gorm:"type:varchar(30);not null" json:"type"`

	Payload datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`

	// Unique among non-null values only; retried enqueues with the same key
	// resolve to the same row.
	IdempotencyKey *string `gorm:"type:varchar(120);uniqueIndex:uniq_commands_idempotency_key,where:idempotency_key IS NOT NULL" json:"idempotency_key,omitempty"`

	Status     CommandStatus  `gorm:"type:varchar(20);not null;index:idx_commands_status_created,priority:1" json:"status"`
	StartedAt  *time.Time     `gorm:"type:timestamptz" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"type:timestamptz" json:"finished_at,omitempty"`
	Result     datatypes.JSON `gorm:"type:jsonb" json:"result,omitempty"`
	HandledBy  string         `gorm:"type:varchar(120)" json:"handled_by,omitempty"`
}

func (Command) TableName() string {
	return "commands"
}
