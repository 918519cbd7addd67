package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ActivityLog is one persisted event of a batch run.
type ActivityLog struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	RunID     string            `gorm:"column:run_id;size:32;not null;index:ix_activity_logs_run" json:"run_id"`
	Level     Level             `gorm:"type:varchar(8);not null" json:"level"`
	Stage     string            `gorm:"type:varchar(32);not null" json:"stage"`
	Term      string            `gorm:"type:text" json:"term,omitempty"`
	Message   string            `gorm:"type:text;not null" json:"message"`
	ErrorKind string            `gorm:"column:error_kind;type:varchar(32)" json:"error_kind,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index:ix_activity_logs_run" json:"created_at"`
}

func (ActivityLog) TableName() string { return "activity_logs" }
