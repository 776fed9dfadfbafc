package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/card-connector/pkg/enums"
)

// CardOperation records one attempt to process one upstream delivery.
// IdempotencyKey is unique; its presence alone marks the delivery as seen.
type CardOperation struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CardID          uuid.UUID             `gorm:"column:card_id;type:uuid;not null" json:"card_id"`
	OperationType   enums.OperationType   `gorm:"column:operation_type;not null" json:"operation_type"`
	Source          enums.OperationSource `gorm:"column:source;type:operation_source_enum;not null" json:"source"`
	Status          enums.OperationStatus `gorm:"column:status;type:operation_status_enum;not null;default:'PENDING'" json:"status"`
	UpstreamEvent   string                `gorm:"column:upstream_event;not null" json:"upstream_event"`
	UpstreamEventID *string               `gorm:"column:upstream_event_id" json:"upstream_event_id,omitempty"`
	IdempotencyKey  string                `gorm:"column:idempotency_key;not null;uniqueIndex:card_operations_idempotency_key_key" json:"idempotency_key"`
	ResultCode      *string               `gorm:"column:result_code" json:"result_code,omitempty"`
	CorrelationID   *string               `gorm:"column:correlation_id" json:"correlation_id,omitempty"`
	RawPayload      datatypes.JSON        `gorm:"column:raw_payload;type:jsonb" json:"raw_payload,omitempty"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CardOperation) TableName() string { return "card_operations" }

func (o *CardOperation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = enums.OperationStatusPending
	}
	return nil
}
