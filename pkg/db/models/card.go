package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/card-connector/pkg/enums"
)

// Card is the local view of one upstream card identity.
type Card struct {
	ID                 uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UpstreamCardID     int64                      `gorm:"column:upstream_card_id;not null;uniqueIndex:cards_upstream_card_id_key" json:"upstream_card_id"`
	PanAlias           *string                    `gorm:"column:pan_alias;uniqueIndex:cards_pan_alias_key" json:"pan_alias,omitempty"`
	ProcessorReference *string                    `gorm:"column:processor_reference" json:"processor_reference,omitempty"`
	StatusUpstream     enums.UpstreamCardStatus   `gorm:"column:status_upstream;type:card_upstream_status_enum;not null;default:'PENDING'" json:"status_upstream"`
	StatusProcessor    *enums.ProcessorCardStatus `gorm:"column:status_processor;type:card_processor_status_enum" json:"status_processor,omitempty"`
	CreatedAt          time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Card) TableName() string { return "cards" }

func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.StatusUpstream == "" {
		c.StatusUpstream = enums.UpstreamCardStatusPending
	}
	return nil
}
