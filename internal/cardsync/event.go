package cardsync

import (
	"strings"

	"github.com/angelmondragon/card-connector/internal/cardevents"
	"github.com/angelmondragon/card-connector/pkg/enums"
	"github.com/google/uuid"
)

// Event is one upstream card event as handed over by the transport layer.
type Event struct {
	Name            string
	IdempotencyKey  string
	UpstreamEventID string
	CardID          int64
	PanAlias        string
	Operation       ManagementOperation
	RawPayload      []byte
	CorrelationID   string
}

// ManagementOperation carries the fields of a management operation result.
type ManagementOperation struct {
	ID         string
	Type       string
	State      string
	Nature     string
	Parameters map[string]any
}

// Outcome is the structured result of processing one event.
type Outcome struct {
	CardID    int64               `json:"cardId"`
	Event     string              `json:"event"`
	Category  cardevents.Category `json:"category"`
	Handled   bool                `json:"handled"`
	Duplicate bool                `json:"idempotent,omitempty"`
	Message   string              `json:"message,omitempty"`

	OperationID     *uuid.UUID            `json:"operationId,omitempty"`
	OperationStatus enums.OperationStatus `json:"operationStatus,omitempty"`

	ProcessorSuccess    *bool  `json:"processorSuccess,omitempty"`
	ProcessorStatusCode string `json:"processorStatus,omitempty"`
	Status              string `json:"status,omitempty"`
	Reported            *bool  `json:"reported,omitempty"`

	UpstreamOperationID string `json:"upstreamOperationId,omitempty"`
	OperationType       string `json:"operationType,omitempty"`
	OperationState      string `json:"operationState,omitempty"`
}

func (e Event) alias() string {
	return strings.TrimSpace(e.PanAlias)
}

func boolPtr(v bool) *bool {
	return &v
}

func stringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
