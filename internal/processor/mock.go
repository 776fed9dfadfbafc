package processor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/angelmondragon/card-connector/pkg/logger"
	"github.com/angelmondragon/card-connector/pkg/metrics"
)

const (
	mockExpiryDate = "12/2028"
	mockTimestamp  = "2024-01-01T00:00:00Z"
)

var mockCardNumbers = map[int64]string{
	12345: "4532123456789012",
	12346: "4532123456789013",
	12347: "4532123456789014",
	12348: "4532123456789015",
	12349: "4532123456789016",
	12350: "4532123456789017",
	12351: "4532123456789018",
	12352: "4532123456789019",
}

// MockCardNumber returns the deterministic card number the mock processor
// issues for a card.
func MockCardNumber(cardID int64) string {
	if number, ok := mockCardNumbers[cardID]; ok {
		return number
	}
	return fmt.Sprintf("4532%012d", cardID)
}

// MockGateway answers every action with a canned success for local runs.
type MockGateway struct {
	logg    *logger.Logger
	metrics *metrics.SyncMetrics
}

// NewMockGateway builds the canned processor used when the real one is disabled.
func NewMockGateway(logg *logger.Logger, m *metrics.SyncMetrics) *MockGateway {
	if logg == nil {
		logg = logger.Nop()
	}
	return &MockGateway{logg: logg, metrics: m}
}

func (g *MockGateway) Activate(ctx context.Context, cardID int64, panAlias string) Result {
	return g.respond(ctx, ActionActivate, cardID, panAlias)
}

func (g *MockGateway) Block(ctx context.Context, cardID int64, panAlias string) Result {
	return g.respond(ctx, ActionBlock, cardID, panAlias)
}

func (g *MockGateway) Unblock(ctx context.Context, cardID int64, panAlias string) Result {
	return g.respond(ctx, ActionUnblock, cardID, panAlias)
}

func (g *MockGateway) Oppose(ctx context.Context, cardID int64, panAlias string) Result {
	return g.respond(ctx, ActionOppose, cardID, panAlias)
}

func (g *MockGateway) respond(ctx context.Context, action Action, cardID int64, panAlias string) Result {
	result := MockResult(action, cardID, panAlias)
	ctx = g.logg.WithFields(ctx, map[string]any{
		"card_id":        cardID,
		"action":         string(action),
		"card_reference": CardReference(cardID, panAlias),
		"status":         result.StatusCode,
	})
	g.logg.Info(ctx, "mock processor call")
	g.metrics.ObserveProcessorCall(string(action), result.Success, 0)
	return result
}

// MockResult builds the canned response for an action.
func MockResult(action Action, cardID int64, panAlias string) Result {
	details := map[string]any{
		"cardReference": CardReference(cardID, panAlias),
		"niCardId":      "NI-" + strconv.FormatInt(cardID, 10),
		"timestamp":     mockTimestamp,
	}

	var status, message string
	switch action {
	case ActionActivate:
		number := MockCardNumber(cardID)
		status, message = "ACTIVE", "Card activated successfully"
		details["visaCardNumber"] = number
		details["panNumber"] = number
		details["expiryDate"] = mockExpiryDate
	case ActionBlock:
		status, message = "BLOCKED", "Card blocked successfully"
	case ActionUnblock:
		status, message = "ACTIVE", "Card unblocked successfully"
	case ActionOppose:
		status, message = "OPPOSED", "Card opposed successfully"
	default:
		return failure(fmt.Sprintf("unknown operation: %s", action))
	}
	details["message"] = message

	return Result{Success: true, StatusCode: status, Details: details}
}
