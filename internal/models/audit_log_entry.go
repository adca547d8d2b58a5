package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditCommandEnqueued         AuditAction = "COMMAND_ENQUEUED"
	AuditCommandClaimed          AuditAction = "COMMAND_CLAIMED"
	AuditCommandExecutionStarted AuditAction = "COMMAND_EXECUTION_STARTED"
	AuditCommandCompleted        AuditAction = "COMMAND_COMPLETED"
	AuditPositionClosed          AuditAction = "POSITION_CLOSED"
	AuditPositionCloseSkipped    AuditAction = "POSITION_CLOSE_SKIPPED"
	AuditLiveCloseSkipped        AuditAction = "LIVE_CLOSE_SKIPPED"
	AuditBrokerCloseCalled       AuditAction = "BROKER_CLOSE_CALLED"
	AuditCloseAllSummary         AuditAction = "CLOSE_ALL_SUMMARY"
	AuditSettingsUpdated         AuditAction = "SETTINGS_UPDATED"
)

// AuditLogEntry is append-only; rows are never updated or deleted. Every
// state change on a command or a position appends at least one entry.
type AuditLogEntry struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	TS        time.Time      `gorm:"type:timestamptz;not null;index" json:"ts"`
	Actor     string         `gorm:"type:varchar(120);not null" json:"actor"`
	Action    AuditAction    `gorm:"type:varchar(40);not null" json:"action"`
	CommandID *uint64        `gorm:"index" json:"command_id,omitempty"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log"
}
