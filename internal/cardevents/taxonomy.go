// Package cardevents classifies upstream card event identifiers into a closed
// set of categories. Classification never fails: anything outside the set is
// CategoryUnknown.
package cardevents

import (
	"strings"

	"github.com/angelmondragon/card-connector/internal/processor"
	"github.com/angelmondragon/card-connector/pkg/enums"
)

// Category is the kind of work an event obligates.
type Category string

const (
	CategoryUnknown         Category = "unknown"
	CategoryActionRequest   Category = "action_request"
	CategoryStatusUpdate    Category = "status_update"
	CategoryCreation        Category = "creation"
	CategoryOperationResult Category = "operation_result"
)

func (c Category) String() string {
	return string(c)
}

type actionSpec struct {
	action        processor.Action
	operationType enums.OperationType
	target        enums.ProcessorCardStatus
}

var actionsBySuffix = map[string]actionSpec{
	"activation_requested": {processor.ActionActivate, enums.OperationTypeActivation, enums.ProcessorCardStatusActive},
	"block_requested":      {processor.ActionBlock, enums.OperationTypeBlocking, enums.ProcessorCardStatusBlocked},
	"unblock_requested":    {processor.ActionUnblock, enums.OperationTypeUnblocking, enums.ProcessorCardStatusActive},
	"opposed_requested":    {processor.ActionOppose, enums.OperationTypeOpposition, enums.ProcessorCardStatusOpposed},
}

var statusBySuffix = map[string]enums.UpstreamCardStatus{
	"activated": enums.UpstreamCardStatusActive,
	"blocked":   enums.UpstreamCardStatusBlocked,
	"unblocked": enums.UpstreamCardStatusActive,
	"pending":   enums.UpstreamCardStatusPending,
	"expired":   enums.UpstreamCardStatusExpired,
	"opposed":   enums.UpstreamCardStatusOpposed,
	"removed":   enums.UpstreamCardStatusRemoved,
}

const (
	creationSuffix      = "new"
	managementOperation = "management_operation"
	identifierSeparator = "."
)

var operationResultSuffixes = map[string]struct{}{
	"accepted":    {},
	"refused":     {},
	"settled":     {},
	"err_settled": {},
}

// Classification is the typed result of classifying one event identifier.
// Only the fields relevant to Category are populated.
type Classification struct {
	Event    string
	Category Category

	Action        processor.Action
	OperationType enums.OperationType
	TargetStatus  enums.ProcessorCardStatus

	UpstreamStatus enums.UpstreamCardStatus
}

// Handled reports whether the event maps to any work at all.
func (c Classification) Handled() bool {
	return c.Category != CategoryUnknown
}

// Classify resolves an event identifier such as "card.status.block_requested".
// Matching is on the trailing dot-delimited segment, and on the trailing two
// segments for management operation results.
func Classify(event string) Classification {
	out := Classification{Event: event, Category: CategoryUnknown}

	segments := strings.Split(strings.ToLower(strings.TrimSpace(event)), identifierSeparator)
	suffix := segments[len(segments)-1]
	if suffix == "" {
		return out
	}

	if len(segments) >= 2 && segments[len(segments)-2] == managementOperation {
		if _, ok := operationResultSuffixes[suffix]; ok {
			out.Category = CategoryOperationResult
		}
		return out
	}

	if spec, ok := actionsBySuffix[suffix]; ok {
		out.Category = CategoryActionRequest
		out.Action = spec.action
		out.OperationType = spec.operationType
		out.TargetStatus = spec.target
		return out
	}

	if status, ok := statusBySuffix[suffix]; ok {
		out.Category = CategoryStatusUpdate
		out.OperationType = enums.OperationTypeStatusUpdate
		out.UpstreamStatus = status
		return out
	}

	if suffix == creationSuffix {
		out.Category = CategoryCreation
		out.OperationType = enums.OperationTypeCreation
		return out
	}

	return out
}
