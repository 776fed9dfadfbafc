// Package processor talks to the card processor that executes card actions.
package processor

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusError is the status code reported for transport and protocol failures.
const StatusError = "error"

// Action names the processor endpoint invoked for a card.
type Action string

const (
	ActionActivate Action = "activate"
	ActionBlock    Action = "block"
	ActionUnblock  Action = "unblock"
	ActionOppose   Action = "oppose"
)

func (a Action) String() string {
	return string(a)
}

// Result is the normalized processor response. Failures are data, never errors.
type Result struct {
	Success    bool           `json:"success"`
	StatusCode string         `json:"status"`
	Details    map[string]any `json:"details,omitempty"`
}

func failure(msg string) Result {
	return Result{
		Success:    false,
		StatusCode: StatusError,
		Details:    map[string]any{"error": msg},
	}
}

var referenceKeys = []string{"visaCardNumber", "panNumber", "cardNumber"}

// Reference returns the first non-empty card number found in the details.
func (r Result) Reference() string {
	return Reference(r.Details)
}

// Reference extracts the processor card number from response details.
func Reference(details map[string]any) string {
	for _, key := range referenceKeys {
		if value := stringValue(details, key); value != "" {
			return value
		}
	}
	return ""
}

// DetailString returns a trimmed string view of a details entry.
func DetailString(details map[string]any, key string) string {
	return stringValue(details, key)
}

func stringValue(details map[string]any, key string) string {
	if details == nil {
		return ""
	}
	raw, ok := details[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// CardReference is the identifier the processor knows a card by.
func CardReference(cardID int64, panAlias string) string {
	if alias := strings.TrimSpace(panAlias); alias != "" {
		return alias
	}
	return strconv.FormatInt(cardID, 10)
}
