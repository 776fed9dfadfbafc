package operations

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/card-connector/internal/repo"
	"github.com/angelmondragon/card-connector/pkg/db"
	"github.com/angelmondragon/card-connector/pkg/db/models"
	"github.com/angelmondragon/card-connector/pkg/enums"
	pkgerrors "github.com/angelmondragon/card-connector/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDuplicate is returned by Create when an operation already holds the
// idempotency key.
var ErrDuplicate = errors.New("operation already recorded for idempotency key")

// Repository is the operation ledger. Rows are inserted PENDING, moved once to
// a terminal status and never deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByIdempotencyKey(ctx context.Context, key string) (*models.CardOperation, error)
	Create(ctx context.Context, op *models.CardOperation) error
	Complete(ctx context.Context, id uuid.UUID, status enums.OperationStatus, resultCode string) error
	AnnotateResult(ctx context.Context, id uuid.UUID, resultCode string) error
	Get(ctx context.Context, id uuid.UUID) (*models.CardOperation, error)
	ListByCard(ctx context.Context, cardID uuid.UUID, limit int) ([]models.CardOperation, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns an operation ledger bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// FindByIdempotencyKey returns nil, nil when no operation holds the key.
func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.CardOperation, error) {
	var op models.CardOperation
	err := r.DB(ctx).Where("idempotency_key = ?", key).Take(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup operation by idempotency key")
	}
	return &op, nil
}

func (r *repository) Create(ctx context.Context, op *models.CardOperation) error {
	if strings.TrimSpace(op.IdempotencyKey) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if op.CardID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "card id is required")
	}
	if !op.Source.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid operation source").
			WithDetails(map[string]any{"source": op.Source})
	}
	if op.Status == "" {
		op.Status = enums.OperationStatusPending
	}

	if err := r.DB(ctx).Create(op).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrDuplicate
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create operation")
	}
	return nil
}

// Complete moves a PENDING operation to a terminal status. Completing an
// operation that is already terminal is a CodeStateConflict error.
func (r *repository) Complete(ctx context.Context, id uuid.UUID, status enums.OperationStatus, resultCode string) error {
	if !status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation status must be terminal").
			WithDetails(map[string]any{"status": status})
	}

	fields := map[string]any{"status": status}
	if resultCode != "" {
		fields["result_code"] = resultCode
	}
	res := r.DB(ctx).
		Model(&models.CardOperation{}).
		Where("id = ? AND status = ?", id, enums.OperationStatusPending).
		Updates(fields)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "complete operation")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "operation already terminal").
		WithDetails(map[string]any{"operation_id": id, "status": current.Status})
}

// AnnotateResult records a result code on an operation that stays PENDING.
func (r *repository) AnnotateResult(ctx context.Context, id uuid.UUID, resultCode string) error {
	if resultCode == "" {
		return nil
	}
	res := r.DB(ctx).
		Model(&models.CardOperation{}).
		Where("id = ? AND status = ?", id, enums.OperationStatusPending).
		Update("result_code", resultCode)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "annotate operation")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "operation is not pending").
			WithDetails(map[string]any{"operation_id": id})
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.CardOperation, error) {
	var op models.CardOperation
	err := r.DB(ctx).Where("id = ?", id).Take(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "operation not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load operation")
	}
	return &op, nil
}

// ListByCard returns the card's operations, newest first. A non-positive limit returns all.
func (r *repository) ListByCard(ctx context.Context, cardID uuid.UUID, limit int) ([]models.CardOperation, error) {
	query := r.DB(ctx).Where("card_id = ?", cardID).Order("created_at DESC").Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var ops []models.CardOperation
	if err := query.Find(&ops).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list operations")
	}
	return ops, nil
}
