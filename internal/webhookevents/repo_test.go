package webhookevents

import (
	"context"
	"testing"

	"github.com/angelmondragon/card-connector/pkg/db/dbtest"
	"github.com/angelmondragon/card-connector/pkg/db/models"
	pkgerrors "github.com/angelmondragon/card-connector/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestRecordAndMarkProcessed(t *testing.T) {
	ctx := context.Background()
	r := NewRepository(dbtest.Open(t).DB())

	corr := "corr-1"
	receipt := &models.WebhookEvent{
		DeliveryID:    "delivery-1",
		EventType:     "card.status.blocked",
		CorrelationID: &corr,
		Payload:       datatypes.JSON(`{"event":"card.status.blocked"}`),
	}
	require.NoError(t, r.Record(ctx, receipt))
	require.NotEqual(t, uuid.Nil, receipt.ID)

	second := &models.WebhookEvent{DeliveryID: "delivery-1", EventType: "card.status.blocked"}
	require.NoError(t, r.Record(ctx, second), "duplicate deliveries are still audited")

	require.NoError(t, r.MarkProcessed(ctx, receipt.ID, map[string]any{"ok": true}))

	got, err := r.Get(ctx, receipt.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	require.NotNil(t, got.ProcessedAt)
	assert.JSONEq(t, `{"ok":true}`, string(got.Response))
	require.NotNil(t, got.CorrelationID)
	assert.Equal(t, "corr-1", *got.CorrelationID)

	all, err := r.ListByDelivery(ctx, "delivery-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRecordValidationAndMissing(t *testing.T) {
	ctx := context.Background()
	r := NewRepository(dbtest.Open(t).DB())

	err := r.Record(ctx, &models.WebhookEvent{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	err = r.MarkProcessed(ctx, uuid.New(), nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
