package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/card-connector/api/middleware"
	"github.com/angelmondragon/card-connector/api/responses"
	"github.com/angelmondragon/card-connector/api/validators"
	"github.com/angelmondragon/card-connector/internal/cardsync"
	"github.com/angelmondragon/card-connector/pkg/db/models"
	pkgerrors "github.com/angelmondragon/card-connector/pkg/errors"
	"github.com/angelmondragon/card-connector/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const maxWebhookBodyBytes = 1 << 20

// CardEventProcessor runs one normalized card event through the sync engine.
type CardEventProcessor interface {
	Process(ctx context.Context, event cardsync.Event) (cardsync.Outcome, error)
}

// ReceiptStore keeps the audit trail of inbound deliveries.
type ReceiptStore interface {
	Record(ctx context.Context, event *models.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID, response any) error
}

// flexibleID accepts both JSON numbers and strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*f = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

func (f flexibleID) int64() (int64, bool) {
	id, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type cardWebhookEnvelope struct {
	ID        flexibleID       `json:"id"`
	WebhookID string           `json:"webhookId" validate:"max=255"`
	Type      string           `json:"type" validate:"required_without=Event,max=128"`
	Event     string           `json:"event" validate:"required_without=Type,max=128"`
	Data      *cardWebhookData `json:"data"`
}

type cardWebhookData struct {
	CardID          flexibleID     `json:"cardId"`
	PanAlias        string         `json:"panAlias"`
	Status          string         `json:"status"`
	CardType        string         `json:"cardType"`
	AccountID       flexibleID     `json:"accountId"`
	Metadata        map[string]any `json:"metadata"`
	OperationID     flexibleID     `json:"operationId"`
	OperationType   string         `json:"operationType"`
	OperationState  string         `json:"operationState"`
	OperationNature string         `json:"operationNature"`
	Parameters      map[string]any `json:"parameters"`
}

type webhookAck struct {
	OK      bool              `json:"ok"`
	Event   string            `json:"event"`
	Outcome *cardsync.Outcome `json:"outcome,omitempty"`
	Message string            `json:"message,omitempty"`
}

func (e cardWebhookEnvelope) eventName() string {
	if name := strings.TrimSpace(e.Event); name != "" {
		return name
	}
	return strings.TrimSpace(e.Type)
}

func (e cardWebhookEnvelope) idempotencyKey() string {
	if key := strings.TrimSpace(e.WebhookID); key != "" {
		return key
	}
	return string(e.ID)
}

// cardID prefers data.cardId and falls back to a numeric top-level id.
func (e cardWebhookEnvelope) cardID() (int64, bool) {
	if e.Data != nil {
		if id, ok := e.Data.CardID.int64(); ok {
			return id, true
		}
	}
	return e.ID.int64()
}

func (e cardWebhookEnvelope) toEvent(cardID int64, raw []byte, correlationID string) cardsync.Event {
	event := cardsync.Event{
		Name:            e.eventName(),
		IdempotencyKey:  e.idempotencyKey(),
		UpstreamEventID: string(e.ID),
		CardID:          cardID,
		RawPayload:      raw,
		CorrelationID:   correlationID,
	}
	if e.Data != nil {
		event.PanAlias = strings.TrimSpace(e.Data.PanAlias)
		event.Operation = cardsync.ManagementOperation{
			ID:         string(e.Data.OperationID),
			Type:       strings.TrimSpace(e.Data.OperationType),
			State:      strings.TrimSpace(e.Data.OperationState),
			Nature:     strings.TrimSpace(e.Data.OperationNature),
			Parameters: e.Data.Parameters,
		}
	}
	return event
}

// UpstreamCardWebhook receives card lifecycle events from the card issuing platform.
func UpstreamCardWebhook(svc CardEventProcessor, receipts ReceiptStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card sync service unavailable"))
			return
		}
		if receipts == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook receipt store unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		var envelope cardWebhookEnvelope
		if err := validators.DecodeJSONPayload(payload, &envelope); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		name := envelope.eventName()
		correlationID := middleware.CorrelationIDFromContext(ctx)
		if logg != nil {
			ctx = logg.WithEvent(ctx, name)
		}

		receipt := &models.WebhookEvent{
			DeliveryID:    envelope.idempotencyKey(),
			EventID:       optionalString(string(envelope.ID)),
			EventType:     name,
			CorrelationID: optionalString(correlationID),
			Payload:       datatypes.JSON(payload),
		}
		if err := receipts.Record(ctx, receipt); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		cardID, ok := envelope.cardID()
		if !ok {
			ack := webhookAck{OK: true, Event: name, Message: "card id missing; event not handled"}
			ack.Outcome = &cardsync.Outcome{Event: name, Handled: false, Message: ack.Message}
			if logg != nil {
				logg.Warn(ctx, "webhook.card_id_missing")
			}
			markProcessed(ctx, receipts, receipt, ack, logg)
			responses.WriteSuccess(w, ack)
			return
		}
		if logg != nil {
			ctx = logg.WithCardID(ctx, cardID)
		}

		outcome, err := svc.Process(ctx, envelope.toEvent(cardID, payload, correlationID))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ack := webhookAck{OK: true, Event: name, Outcome: &outcome}
		markProcessed(ctx, receipts, receipt, ack, logg)
		responses.WriteSuccess(w, ack)
	}
}

// markProcessed failures do not fail the delivery; the engine already committed.
func markProcessed(ctx context.Context, receipts ReceiptStore, receipt *models.WebhookEvent, ack webhookAck, logg *logger.Logger) {
	if err := receipts.MarkProcessed(ctx, receipt.ID, ack); err != nil && logg != nil {
		logg.Error(ctx, "webhook.mark_processed_failed", err)
	}
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
