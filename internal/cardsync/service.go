// Package cardsync applies upstream card events to the local card registry
// and operation ledger, drives the processor and reports outcomes upstream.
package cardsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/card-connector/internal/cardevents"
	"github.com/angelmondragon/card-connector/internal/cards"
	"github.com/angelmondragon/card-connector/internal/operations"
	"github.com/angelmondragon/card-connector/internal/processor"
	"github.com/angelmondragon/card-connector/internal/upstream"
	"github.com/angelmondragon/card-connector/pkg/db/models"
	"github.com/angelmondragon/card-connector/pkg/enums"
	pkgerrors "github.com/angelmondragon/card-connector/pkg/errors"
	"github.com/angelmondragon/card-connector/pkg/logger"
	"github.com/angelmondragon/card-connector/pkg/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeDuplicate = "duplicate"
	outcomeUnhandled = "unhandled"
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomePending   = "pending"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway executes card actions on the processor.
type Gateway interface {
	Activate(ctx context.Context, cardID int64, panAlias string) processor.Result
	Block(ctx context.Context, cardID int64, panAlias string) processor.Result
	Unblock(ctx context.Context, cardID int64, panAlias string) processor.Result
	Oppose(ctx context.Context, cardID int64, panAlias string) processor.Result
}

// Reporter sends operation outcomes upstream.
type Reporter interface {
	Report(ctx context.Context, report upstream.Report) error
}

// ServiceParams configure the synchronization service.
type ServiceParams struct {
	Tx         txRunner
	Cards      cards.Repository
	Operations operations.Repository
	Gateway    Gateway
	Reporter   Reporter
	Metrics    *metrics.SyncMetrics
	Logger     *logger.Logger
}

// Service processes upstream card events.
type Service struct {
	tx       txRunner
	cards    cards.Repository
	ops      operations.Repository
	gateway  Gateway
	reporter Reporter
	metrics  *metrics.SyncMetrics
	logg     *logger.Logger
}

// NewService builds the synchronization service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Cards == nil {
		return nil, fmt.Errorf("card repository required")
	}
	if params.Operations == nil {
		return nil, fmt.Errorf("operation repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("processor gateway required")
	}
	if params.Reporter == nil {
		return nil, fmt.Errorf("upstream reporter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		tx:       params.Tx,
		cards:    params.Cards,
		ops:      params.Operations,
		gateway:  params.Gateway,
		reporter: params.Reporter,
		metrics:  params.Metrics,
		logg:     logg,
	}, nil
}

// ledgerEntry is what the registration step leaves behind for dispatch.
type ledgerEntry struct {
	card      *models.Card
	operation *models.CardOperation
}

// Process applies one event. Duplicate deliveries and unrecognized events are
// normal outcomes; only storage faults are returned as errors.
func (s *Service) Process(ctx context.Context, event Event) (Outcome, error) {
	if strings.TrimSpace(event.IdempotencyKey) == "" {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if event.CardID <= 0 {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "card id is required")
	}

	class := cardevents.Classify(event.Name)
	ctx = s.logg.WithCardID(ctx, event.CardID)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"upstream_event":  event.Name,
		"category":        class.Category.String(),
		"idempotency_key": event.IdempotencyKey,
	})
	if event.CorrelationID != "" {
		ctx = s.logg.WithCorrelationID(ctx, event.CorrelationID)
	}

	outcome := Outcome{
		CardID:   event.CardID,
		Event:    event.Name,
		Category: class.Category,
		Handled:  class.Handled(),
	}

	if !class.Handled() {
		s.logg.Warn(ctx, "card event not handled")
		outcome.Message = fmt.Sprintf("event %s not handled", event.Name)
		s.metrics.IncEvent(class.Category.String(), outcomeUnhandled)
		return outcome, nil
	}

	existing, err := s.ops.FindByIdempotencyKey(ctx, event.IdempotencyKey)
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil {
		return s.duplicate(ctx, outcome, existing), nil
	}

	var (
		entry  ledgerEntry
		result Outcome
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.register(ctx, tx, event, class)
		if err != nil {
			return err
		}
		result, err = s.applyLocal(ctx, s.cards.WithTx(tx), s.ops.WithTx(tx), entry, event, class, outcome)
		return err
	})
	if errors.Is(err, operations.ErrDuplicate) {
		existing, err = s.ops.FindByIdempotencyKey(ctx, event.IdempotencyKey)
		if err != nil {
			s.logg.Error(ctx, "load duplicate operation failed", err)
			return Outcome{}, err
		}
		return s.duplicate(ctx, outcome, existing), nil
	}
	if err != nil {
		s.logg.Error(ctx, "card event processing failed", err)
		return Outcome{}, err
	}

	// The ledger entry is committed; the rest must run to a terminal state
	// even if the caller goes away. Gateway and reporter carry their own timeouts.
	ctx = context.WithoutCancel(ctx)

	switch class.Category {
	case cardevents.CategoryActionRequest:
		return s.dispatchAction(ctx, entry, event, class, result)
	case cardevents.CategoryCreation:
		result.Reported = boolPtr(s.report(ctx, upstream.Report{
			CardID:        event.CardID,
			OperationType: string(enums.OperationTypeCreation),
			Outcome:       upstream.OutcomeAccept,
			PanAlias:      s.processorAlias(entry.card, event),
		}))
	}

	s.metrics.IncEvent(class.Category.String(), metricOutcome(result.OperationStatus))
	s.logg.Info(ctx, "card event processed")
	return result, nil
}

func (s *Service) duplicate(ctx context.Context, outcome Outcome, existing *models.CardOperation) Outcome {
	outcome.Duplicate = true
	outcome.Message = "event already processed"
	if existing != nil {
		id := existing.ID
		outcome.OperationID = &id
		outcome.OperationStatus = existing.Status
	}
	s.logg.Info(ctx, "card event already processed")
	s.metrics.IncEvent(outcome.Category.String(), outcomeDuplicate)
	return outcome
}

// register resolves the card and inserts the PENDING ledger entry. The insert
// is the idempotency gate: a unique conflict surfaces as ErrDuplicate.
func (s *Service) register(ctx context.Context, tx *gorm.DB, event Event, class cardevents.Classification) (ledgerEntry, error) {
	cardsTx := s.cards.WithTx(tx)
	card, created, err := cardsTx.GetOrCreate(ctx, event.CardID)
	if err != nil {
		return ledgerEntry{}, err
	}
	if created {
		s.logg.Info(ctx, "card registered")
	}

	if alias := event.alias(); alias != "" && card.PanAlias == nil {
		// A savepoint keeps a rejected alias from aborting the outer transaction.
		var assigned bool
		err := tx.Transaction(func(nested *gorm.DB) error {
			var err error
			assigned, err = s.cards.WithTx(nested).AssignPanAlias(ctx, card.ID, alias)
			return err
		})
		switch {
		case pkgerrors.HasCode(err, pkgerrors.CodeConflict):
			s.logg.Warn(s.logg.WithField(ctx, "pan_alias", alias), "pan alias already held by another card")
		case err != nil:
			return ledgerEntry{}, err
		case assigned:
			card.PanAlias = &alias
		}
	}

	op := &models.CardOperation{
		CardID:          card.ID,
		OperationType:   operationTypeFor(event, class),
		Source:          enums.OperationSourceUpstream,
		Status:          enums.OperationStatusPending,
		UpstreamEvent:   event.Name,
		UpstreamEventID: stringPtr(event.UpstreamEventID),
		IdempotencyKey:  event.IdempotencyKey,
		CorrelationID:   stringPtr(event.CorrelationID),
	}
	if len(event.RawPayload) > 0 {
		op.RawPayload = datatypes.JSON(event.RawPayload)
	}
	if err := s.ops.WithTx(tx).Create(ctx, op); err != nil {
		return ledgerEntry{}, err
	}
	return ledgerEntry{card: card, operation: op}, nil
}

func operationTypeFor(event Event, class cardevents.Classification) enums.OperationType {
	if class.Category == cardevents.CategoryOperationResult {
		return cardevents.MapReportedOperationType(event.Operation.Type)
	}
	return class.OperationType
}

// applyLocal performs the storage-only part of each category inside the
// registration transaction.
func (s *Service) applyLocal(ctx context.Context, cardsTx cards.Repository, opsTx operations.Repository, entry ledgerEntry, event Event, class cardevents.Classification, outcome Outcome) (Outcome, error) {
	opID := entry.operation.ID
	outcome.OperationID = &opID
	outcome.OperationStatus = enums.OperationStatusPending

	switch class.Category {
	case cardevents.CategoryStatusUpdate:
		if err := cardsTx.UpdateUpstreamStatus(ctx, entry.card.ID, class.UpstreamStatus); err != nil {
			return outcome, err
		}
		if err := opsTx.Complete(ctx, opID, enums.OperationStatusSuccess, ""); err != nil {
			return outcome, err
		}
		entry.card.StatusUpstream = class.UpstreamStatus
		outcome.OperationStatus = enums.OperationStatusSuccess
		outcome.Status = string(class.UpstreamStatus)
		outcome.Message = "status updated"

	case cardevents.CategoryCreation:
		if err := cardsTx.UpdateUpstreamStatus(ctx, entry.card.ID, enums.UpstreamCardStatusPending); err != nil {
			return outcome, err
		}
		if err := opsTx.Complete(ctx, opID, enums.OperationStatusSuccess, ""); err != nil {
			return outcome, err
		}
		entry.card.StatusUpstream = enums.UpstreamCardStatusPending
		outcome.OperationStatus = enums.OperationStatusSuccess
		outcome.Status = string(enums.UpstreamCardStatusPending)
		outcome.Message = "card created"

	case cardevents.CategoryOperationResult:
		state := strings.ToUpper(strings.TrimSpace(event.Operation.State))
		status := cardevents.MapOperationState(state)
		if status.IsTerminal() {
			if err := opsTx.Complete(ctx, opID, status, state); err != nil {
				return outcome, err
			}
		} else if err := opsTx.AnnotateResult(ctx, opID, state); err != nil {
			return outcome, err
		}
		outcome.OperationStatus = status

		reportedType := strings.ToUpper(strings.TrimSpace(event.Operation.Type))
		if cardevents.PromotesToActive(reportedType, state) {
			if err := cardsTx.UpdateUpstreamStatus(ctx, entry.card.ID, enums.UpstreamCardStatusActive); err != nil {
				return outcome, err
			}
			entry.card.StatusUpstream = enums.UpstreamCardStatusActive
			outcome.Status = string(enums.UpstreamCardStatusActive)
		}
		outcome.UpstreamOperationID = event.Operation.ID
		outcome.OperationType = event.Operation.Type
		outcome.OperationState = event.Operation.State
		if state != "" {
			outcome.Message = "management operation " + state
		} else {
			outcome.Message = "management operation processed"
		}
	}
	return outcome, nil
}

// dispatchAction calls the processor outside any transaction, persists the
// result and reports it upstream. Processor failures are data; only storage
// faults are returned.
func (s *Service) dispatchAction(ctx context.Context, entry ledgerEntry, event Event, class cardevents.Classification, outcome Outcome) (Outcome, error) {
	alias := s.processorAlias(entry.card, event)
	ctx = s.logg.WithField(ctx, "action", class.Action.String())

	result := s.callProcessor(ctx, class.Action, event.CardID, alias)
	reference := result.Reference()
	opID := entry.operation.ID

	status := enums.OperationStatusError
	if result.Success {
		status = enums.OperationStatusSuccess
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if result.Success {
			if err := s.cards.WithTx(tx).RecordProcessorResult(ctx, entry.card.ID, class.TargetStatus, reference); err != nil {
				return err
			}
		}
		return s.ops.WithTx(tx).Complete(ctx, opID, status, result.StatusCode)
	})
	if err != nil {
		s.logg.Error(ctx, "persist processor result failed", err)
		return Outcome{}, err
	}

	outcome.OperationStatus = status
	outcome.ProcessorSuccess = boolPtr(result.Success)
	outcome.ProcessorStatusCode = result.StatusCode
	report := upstream.Report{
		CardID:             event.CardID,
		OperationType:      string(class.OperationType),
		Outcome:            upstream.OutcomeError,
		PanAlias:           alias,
		ProcessorReference: reference,
		ProcessorDetails:   result.Details,
	}
	if result.Success {
		outcome.Status = string(class.TargetStatus)
		outcome.Message = "processor call succeeded"
		report.Outcome = upstream.OutcomeAccept
	} else {
		outcome.Message = "processor call failed"
		s.logg.Warn(s.logg.WithField(ctx, "processor_status", result.StatusCode), "processor rejected card action")
	}
	outcome.Reported = boolPtr(s.report(ctx, report))

	s.metrics.IncEvent(class.Category.String(), metricOutcome(status))
	s.logg.Info(ctx, "card action processed")
	return outcome, nil
}

func (s *Service) callProcessor(ctx context.Context, action processor.Action, cardID int64, alias string) processor.Result {
	switch action {
	case processor.ActionActivate:
		return s.gateway.Activate(ctx, cardID, alias)
	case processor.ActionBlock:
		return s.gateway.Block(ctx, cardID, alias)
	case processor.ActionUnblock:
		return s.gateway.Unblock(ctx, cardID, alias)
	case processor.ActionOppose:
		return s.gateway.Oppose(ctx, cardID, alias)
	default:
		return processor.Result{
			Success:    false,
			StatusCode: processor.StatusError,
			Details:    map[string]any{"error": fmt.Sprintf("unsupported action %q", action)},
		}
	}
}

// report sends one outcome upstream. Failures are logged and swallowed since
// the ledger already holds the terminal state.
func (s *Service) report(ctx context.Context, report upstream.Report) bool {
	if err := s.reporter.Report(ctx, report); err != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"operation_type": report.OperationType,
			"outcome":        string(report.Outcome),
		})
		s.logg.Error(ctx, "upstream report failed", err)
		return false
	}
	return true
}

// processorAlias prefers the stored alias and falls back to the event's.
func (s *Service) processorAlias(card *models.Card, event Event) string {
	if card != nil && card.PanAlias != nil && strings.TrimSpace(*card.PanAlias) != "" {
		return *card.PanAlias
	}
	return event.alias()
}

func metricOutcome(status enums.OperationStatus) string {
	switch status {
	case enums.OperationStatusSuccess:
		return outcomeSuccess
	case enums.OperationStatusError:
		return outcomeFailure
	default:
		return outcomePending
	}
}
