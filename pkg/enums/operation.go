package enums

import (
	"fmt"
	"strings"
)

// OperationType is stored as free text: unmapped upstream operation types pass through lower-cased.
type OperationType string

const (
	OperationTypeActivation     OperationType = "card_activation"
	OperationTypeBlocking       OperationType = "card_blocking"
	OperationTypeUnblocking     OperationType = "card_unblocking"
	OperationTypeOpposition     OperationType = "card_opposition"
	OperationTypeCreation       OperationType = "card_creation"
	OperationTypeSuppression    OperationType = "card_suppression"
	OperationTypeFeaturesUpdate OperationType = "card_features_update"
	OperationTypeStatusUpdate   OperationType = "status_update"
	OperationTypeUnknown        OperationType = "unknown"
)

var canonicalOperationTypes = []OperationType{
	OperationTypeActivation,
	OperationTypeBlocking,
	OperationTypeUnblocking,
	OperationTypeOpposition,
	OperationTypeCreation,
	OperationTypeSuppression,
	OperationTypeFeaturesUpdate,
	OperationTypeStatusUpdate,
}

func (t OperationType) String() string {
	return string(t)
}

// IsCanonical reports whether the type is one of the named operation types.
func (t OperationType) IsCanonical() bool {
	for _, candidate := range canonicalOperationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// OperationSource maps to the operation_source_enum enum in Postgres.
type OperationSource string

const (
	OperationSourceUpstream  OperationSource = "UPSTREAM"
	OperationSourceProcessor OperationSource = "PROCESSOR"
	OperationSourceInternal  OperationSource = "INTERNAL"
)

var validOperationSources = []OperationSource{
	OperationSourceUpstream,
	OperationSourceProcessor,
	OperationSourceInternal,
}

// IsValid reports whether the value matches the canonical operation source enum.
func (s OperationSource) IsValid() bool {
	for _, candidate := range validOperationSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOperationSource converts raw input into OperationSource.
func ParseOperationSource(value string) (OperationSource, error) {
	for _, candidate := range validOperationSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation source %q", value)
}

// OperationStatus maps to the operation_status_enum enum in Postgres.
type OperationStatus string

const (
	OperationStatusPending OperationStatus = "PENDING"
	OperationStatusSuccess OperationStatus = "SUCCESS"
	OperationStatusError   OperationStatus = "ERROR"
)

var validOperationStatuses = []OperationStatus{
	OperationStatusPending,
	OperationStatusSuccess,
	OperationStatusError,
}

func (s OperationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical operation status enum.
func (s OperationStatus) IsValid() bool {
	for _, candidate := range validOperationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusSuccess || s == OperationStatusError
}

// ParseOperationStatus converts raw input into OperationStatus.
func ParseOperationStatus(value string) (OperationStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validOperationStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation status %q", value)
}
