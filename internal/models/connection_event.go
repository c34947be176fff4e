package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Connection event statuses
const (
	EventConnected = "connected"
	EventFailed    = "failed"
)

// ConnectionEvent records the outcome of one connect attempt
type ConnectionEvent struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	ProfileID     string    `gorm:"index;column:profile_id" json:"profile_id"`
	ProfileName   string    `gorm:"column:profile_name" json:"profile_name"`
	Status        string    `gorm:"not null" json:"status"`                    // connected, failed
	ErrorKind     string    `gorm:"column:error_kind" json:"error_kind"`       // unreachable, auth_rejected, ...
	Error         string    `gorm:"type:text" json:"error,omitempty"`
	ServerVersion string    `gorm:"column:server_version" json:"server_version,omitempty"`
	DurationMs    int64     `gorm:"column:duration_ms" json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (e *ConnectionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (ConnectionEvent) TableName() string {
	return "connection_events"
}
