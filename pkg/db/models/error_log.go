package models

import (
	"time"

	"github.com/google/uuid"
)

// ErrorLog is the operational log the alerts engine reads. Rows are written
// by the webhook and sweep error paths; volume in the trailing 24 hours is
// compared against a rolling baseline to detect elevated error rates.
type ErrorLog struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	Source  string    `gorm:"column:source;not null;index"`
	Code    string    `gorm:"column:code"`
	Message string    `gorm:"column:message;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}
