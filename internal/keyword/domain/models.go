package domain

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Keyword is a discovery term waiting for, or done with, a batch run.
type Keyword struct {
	ID            int64      `json:"id,string" gorm:"primaryKey"`
	Term          string     `json:"term" gorm:"type:text;not null"`
	Status        Status     `json:"status" gorm:"type:varchar(16);not null;index:ix_keywords_status"`
	ResultCount   int        `json:"result_count" gorm:"column:result_count;not null;default:0"`
	FailureReason string     `json:"failure_reason,omitempty" gorm:"column:failure_reason;type:text"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"not null"`
}

func (Keyword) TableName() string { return "keywords" }
