package cardevents

import (
	"testing"

	"github.com/angelmondragon/card-connector/internal/processor"
	"github.com/angelmondragon/card-connector/pkg/enums"
)

func TestClassifyActionRequests(t *testing.T) {
	cases := []struct {
		event  string
		action processor.Action
		opType enums.OperationType
		target enums.ProcessorCardStatus
	}{
		{"card.status.activation_requested", processor.ActionActivate, enums.OperationTypeActivation, enums.ProcessorCardStatusActive},
		{"card.status.block_requested", processor.ActionBlock, enums.OperationTypeBlocking, enums.ProcessorCardStatusBlocked},
		{"card.status.unblock_requested", processor.ActionUnblock, enums.OperationTypeUnblocking, enums.ProcessorCardStatusActive},
		{"card.status.opposed_requested", processor.ActionOppose, enums.OperationTypeOpposition, enums.ProcessorCardStatusOpposed},
	}
	for _, tc := range cases {
		got := Classify(tc.event)
		if got.Category != CategoryActionRequest {
			t.Fatalf("%s: expected action request, got %s", tc.event, got.Category)
		}
		if got.Action != tc.action || got.OperationType != tc.opType || got.TargetStatus != tc.target {
			t.Fatalf("%s: unexpected classification %+v", tc.event, got)
		}
	}
}

func TestClassifyStatusUpdatesCoverMappingTable(t *testing.T) {
	want := map[string]enums.UpstreamCardStatus{
		"card.status.activated": enums.UpstreamCardStatusActive,
		"card.status.blocked":   enums.UpstreamCardStatusBlocked,
		"card.status.unblocked": enums.UpstreamCardStatusActive,
		"card.status.pending":   enums.UpstreamCardStatusPending,
		"card.status.expired":   enums.UpstreamCardStatusExpired,
		"card.status.opposed":   enums.UpstreamCardStatusOpposed,
		"card.status.removed":   enums.UpstreamCardStatusRemoved,
	}
	for event, status := range want {
		got := Classify(event)
		if got.Category != CategoryStatusUpdate {
			t.Fatalf("%s: expected status update, got %s", event, got.Category)
		}
		if got.UpstreamStatus != status {
			t.Fatalf("%s: expected %s, got %s", event, status, got.UpstreamStatus)
		}
		if got.OperationType != enums.OperationTypeStatusUpdate {
			t.Fatalf("%s: expected status_update op type, got %s", event, got.OperationType)
		}
	}
}

func TestClassifyCreationAndOperationResults(t *testing.T) {
	if got := Classify("card.new"); got.Category != CategoryCreation || got.OperationType != enums.OperationTypeCreation {
		t.Fatalf("unexpected creation classification %+v", got)
	}
	for _, suffix := range []string{"accepted", "refused", "settled", "err_settled"} {
		got := Classify("card.management_operation." + suffix)
		if got.Category != CategoryOperationResult {
			t.Fatalf("%s: unexpected classification %+v", suffix, got)
		}
	}
}

func TestClassifyUnknownNeverFails(t *testing.T) {
	for _, event := range []string{
		"",
		"card",
		"card.status.",
		"card.status.frozen",
		"card.management_operation.cancelled",
		"card.management_operation.activated",
		"card.renewed",
		"account.status.activation",
	} {
		got := Classify(event)
		if got.Handled() {
			t.Fatalf("%q: expected unhandled, got %+v", event, got)
		}
		if got.Event != event {
			t.Fatalf("%q: event identifier not preserved", event)
		}
	}
}

func TestClassifyMatchesOnSegmentBoundary(t *testing.T) {
	if got := Classify("card.status.preblocked"); got.Handled() {
		t.Fatalf("suffix must match a whole segment, got %+v", got)
	}
	if got := Classify("CARD.STATUS.BLOCKED"); got.Category != CategoryStatusUpdate {
		t.Fatalf("classification is case-insensitive, got %+v", got)
	}
	if got := Classify("blocked"); got.Category != CategoryStatusUpdate {
		t.Fatalf("bare identifier should classify, got %+v", got)
	}
}

func TestMapReportedOperationType(t *testing.T) {
	cases := map[string]enums.OperationType{
		"CARD_CREATION":        enums.OperationTypeCreation,
		"CARD_SUPPRESSION":     enums.OperationTypeSuppression,
		"CARD_FEATURES_UPDATE": enums.OperationTypeFeaturesUpdate,
		"CARD_OPPOSITION":      enums.OperationTypeOpposition,
		"CARD_RENEWAL":         enums.OperationType("card_renewal"),
		"":                     enums.OperationTypeUnknown,
	}
	for in, want := range cases {
		if got := MapReportedOperationType(in); got != want {
			t.Fatalf("%q: expected %s, got %s", in, want, got)
		}
	}
}

func TestMapOperationState(t *testing.T) {
	cases := map[string]enums.OperationStatus{
		"ACCEPTED":    enums.OperationStatusSuccess,
		"SETTLED":     enums.OperationStatusSuccess,
		"REFUSED":     enums.OperationStatusError,
		"ERR_SETTLED": enums.OperationStatusError,
		"":            enums.OperationStatusPending,
		"IN_PROGRESS": enums.OperationStatusPending,
	}
	for in, want := range cases {
		if got := MapOperationState(in); got != want {
			t.Fatalf("%q: expected %s, got %s", in, want, got)
		}
	}
	if !PromotesToActive("CARD_CREATION", "ACCEPTED") {
		t.Fatal("creation acceptance promotes the card")
	}
	if PromotesToActive("CARD_CREATION", "SETTLED") || PromotesToActive("CARD_BLOCKING", "ACCEPTED") {
		t.Fatal("only creation acceptance promotes the card")
	}
}
