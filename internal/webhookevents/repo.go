// Package webhookevents stores the audit trail of inbound deliveries. Every
// delivery is recorded, duplicates included.
package webhookevents

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/angelmondragon/card-connector/internal/repo"
	"github.com/angelmondragon/card-connector/pkg/db/models"
	pkgerrors "github.com/angelmondragon/card-connector/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Record(ctx context.Context, event *models.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID, response any) error
	Get(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error)
	ListByDelivery(ctx context.Context, deliveryID string) ([]models.WebhookEvent, error)
}

type repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) Record(ctx context.Context, event *models.WebhookEvent) error {
	if event.EventType == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event type is required")
	}
	if err := r.DB(ctx).Create(event).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	return nil
}

// MarkProcessed flags the receipt as handled and stores the response body sent back.
func (r *repository) MarkProcessed(ctx context.Context, id uuid.UUID, response any) error {
	body, err := json.Marshal(response)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode webhook response")
	}
	now := r.Now()
	res := r.DB(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed":    true,
			"processed_at": now,
			"response":     datatypes.JSON(body),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark webhook event processed")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found")
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.DB(ctx).Where("id = ?", id).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook event")
	}
	return &event, nil
}

// ListByDelivery returns every receipt of one delivery id, oldest first.
func (r *repository) ListByDelivery(ctx context.Context, deliveryID string) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	if err := r.DB(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list webhook events")
	}
	return events, nil
}
