package model

import "time"

const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskRetrying  = "retrying"
	TaskCompleted = "completed"
	TaskSkipped   = "skipped"
	TaskFailed    = "failed"
)

// DerivativeTask tracks one thumbnail generation attempt for a file.
type DerivativeTask struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	FileID  uint64 `gorm:"column:file_id;index;not null" json:"file_id"`
	OwnerID uint64 `gorm:"column:owner_id;index;not null" json:"owner_id"`

	MimeType string `gorm:"column:mime_type;size:255;not null" json:"mime_type"`

	Status      string     `gorm:"column:status;type:varchar(32);index;not null" json:"status"`
	ErrorMsg    string     `gorm:"column:error_msg;type:text" json:"error_msg"`
	RetryCount  int        `gorm:"column:retry_count;default:0" json:"retry_count"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at" json:"next_retry_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	FinishedAt  *time.Time `gorm:"column:finished_at" json:"finished_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (DerivativeTask) TableName() string {
	return "derivative_task"
}
