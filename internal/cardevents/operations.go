package cardevents

import (
	"strings"

	"github.com/angelmondragon/card-connector/pkg/enums"
)

// Reported operation types and states carried by management operation results.
const (
	ReportedCardCreation = "CARD_CREATION"
	ReportedAccepted     = "ACCEPTED"
)

var reportedOperationTypes = map[string]enums.OperationType{
	"CARD_CREATION":        enums.OperationTypeCreation,
	"CARD_SUPPRESSION":     enums.OperationTypeSuppression,
	"CARD_FEATURES_UPDATE": enums.OperationTypeFeaturesUpdate,
	"CARD_ACTIVATION":      enums.OperationTypeActivation,
	"CARD_BLOCKING":        enums.OperationTypeBlocking,
	"CARD_UNBLOCKING":      enums.OperationTypeUnblocking,
	"CARD_OPPOSITION":      enums.OperationTypeOpposition,
}

var reportedStates = map[string]enums.OperationStatus{
	"ACCEPTED":    enums.OperationStatusSuccess,
	"SETTLED":     enums.OperationStatusSuccess,
	"REFUSED":     enums.OperationStatusError,
	"ERR_SETTLED": enums.OperationStatusError,
}

// MapReportedOperationType converts an upstream operation type into the ledger's
// operation type. Unmapped values pass through lower-cased; empty becomes unknown.
func MapReportedOperationType(reported string) enums.OperationType {
	if mapped, ok := reportedOperationTypes[reported]; ok {
		return mapped
	}
	lowered := strings.ToLower(strings.TrimSpace(reported))
	if lowered == "" {
		return enums.OperationTypeUnknown
	}
	return enums.OperationType(lowered)
}

// MapOperationState converts an upstream operation state into a ledger status.
// Absent or unrecognized states stay PENDING.
func MapOperationState(state string) enums.OperationStatus {
	if mapped, ok := reportedStates[state]; ok {
		return mapped
	}
	return enums.OperationStatusPending
}

// PromotesToActive reports whether an operation result activates the card upstream.
func PromotesToActive(reportedType, state string) bool {
	return reportedType == ReportedCardCreation && state == ReportedAccepted
}
