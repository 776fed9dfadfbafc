package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent is the receipt of one inbound delivery, kept for audit and replay.
type WebhookEvent struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DeliveryID    string         `gorm:"column:delivery_id"`
	EventID       *string        `gorm:"column:event_id"`
	EventType     string         `gorm:"column:event_type;not null"`
	CorrelationID *string        `gorm:"column:correlation_id"`
	Processed     bool           `gorm:"column:processed;not null;default:false"`
	Payload       datatypes.JSON `gorm:"column:payload;type:jsonb"`
	Response      datatypes.JSON `gorm:"column:response;type:jsonb"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt   *time.Time     `gorm:"column:processed_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
