package enums

import (
	"fmt"
	"strings"
)

// UpstreamCardStatus maps to the card_upstream_status_enum enum in Postgres.
type UpstreamCardStatus string

const (
	UpstreamCardStatusPending UpstreamCardStatus = "PENDING"
	UpstreamCardStatusActive  UpstreamCardStatus = "ACTIVE"
	UpstreamCardStatusBlocked UpstreamCardStatus = "BLOCKED"
	UpstreamCardStatusExpired UpstreamCardStatus = "EXPIRED"
	UpstreamCardStatusOpposed UpstreamCardStatus = "OPPOSED"
	UpstreamCardStatusRemoved UpstreamCardStatus = "REMOVED"
	UpstreamCardStatusUnknown UpstreamCardStatus = "UNKNOWN"
)

var validUpstreamCardStatuses = []UpstreamCardStatus{
	UpstreamCardStatusPending,
	UpstreamCardStatusActive,
	UpstreamCardStatusBlocked,
	UpstreamCardStatusExpired,
	UpstreamCardStatusOpposed,
	UpstreamCardStatusRemoved,
	UpstreamCardStatusUnknown,
}

func (s UpstreamCardStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical upstream status enum.
func (s UpstreamCardStatus) IsValid() bool {
	for _, candidate := range validUpstreamCardStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseUpstreamCardStatus converts raw input into UpstreamCardStatus.
// UNBLOCKED is accepted and normalized to ACTIVE.
func ParseUpstreamCardStatus(value string) (UpstreamCardStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if normalized == "UNBLOCKED" {
		return UpstreamCardStatusActive, nil
	}
	for _, candidate := range validUpstreamCardStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upstream card status %q", value)
}

// ProcessorCardStatus maps to the card_processor_status_enum enum in Postgres.
type ProcessorCardStatus string

const (
	ProcessorCardStatusActive  ProcessorCardStatus = "ACTIVE"
	ProcessorCardStatusBlocked ProcessorCardStatus = "BLOCKED"
	ProcessorCardStatusOpposed ProcessorCardStatus = "OPPOSED"
)

var validProcessorCardStatuses = []ProcessorCardStatus{
	ProcessorCardStatusActive,
	ProcessorCardStatusBlocked,
	ProcessorCardStatusOpposed,
}

func (s ProcessorCardStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical processor status enum.
func (s ProcessorCardStatus) IsValid() bool {
	for _, candidate := range validProcessorCardStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseProcessorCardStatus converts raw input into ProcessorCardStatus.
func ParseProcessorCardStatus(value string) (ProcessorCardStatus, error) {
	for _, candidate := range validProcessorCardStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid processor card status %q", value)
}
