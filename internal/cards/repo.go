package cards

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
	"gorm.io/gorm/clause"
)

// Repository is the card registry. Cards are keyed by the upstream card id and
// are never deleted here.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetOrCreate(ctx context.Context, upstreamCardID int64) (*models.Card, bool, error)
	FindByUpstreamID(ctx context.Context, upstreamCardID int64) (*models.Card, error)
	AssignPanAlias(ctx context.Context, cardID uuid.UUID, alias string) (bool, error)
	UpdateUpstreamStatus(ctx context.Context, cardID uuid.UUID, status enums.UpstreamCardStatus) error
	RecordProcessorResult(ctx context.Context, cardID uuid.UUID, status enums.ProcessorCardStatus, reference string) error
}

type repository struct {
	repo.Base
}

// NewRepository returns a card registry bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(conn)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// GetOrCreate returns the card for upstreamCardID, inserting it when missing.
// Concurrent callers converge on one row: the insert is a no-op on conflict
// and the existing row is read back. created reports whether this call inserted it.
func (r *repository) GetOrCreate(ctx context.Context, upstreamCardID int64) (*models.Card, bool, error) {
	card := &models.Card{
		UpstreamCardID: upstreamCardID,
		StatusUpstream: enums.UpstreamCardStatusPending,
	}
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "upstream_card_id"}},
			DoNothing: true,
		}).
		Create(card)
	if res.Error != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "create card")
	}
	if res.RowsAffected == 1 {
		return card, true, nil
	}

	existing, err := r.FindByUpstreamID(ctx, upstreamCardID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *repository) FindByUpstreamID(ctx context.Context, upstreamCardID int64) (*models.Card, error) {
	var card models.Card
	err := r.DB(ctx).Where("upstream_card_id = ?", upstreamCardID).First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "card not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load card")
	}
	return &card, nil
}

// AssignPanAlias sets the alias only if the card has none yet. It reports
// whether the alias was written. An alias already held by another card is a
// CodeConflict error.
func (r *repository) AssignPanAlias(ctx context.Context, cardID uuid.UUID, alias string) (bool, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return false, nil
	}
	res := r.DB(ctx).
		Model(&models.Card{}).
		Where("id = ? AND pan_alias IS NULL", cardID).
		Updates(map[string]any{
			"pan_alias":  alias,
			"updated_at": r.Now(),
		})
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "") {
			return false, pkgerrors.Wrap(pkgerrors.CodeConflict, res.Error, "pan alias already assigned to another card").
				WithDetails(map[string]any{"pan_alias": alias})
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "assign pan alias")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateUpstreamStatus(ctx context.Context, cardID uuid.UUID, status enums.UpstreamCardStatus) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid upstream status").
			WithDetails(map[string]any{"status": status})
	}
	return r.update(ctx, cardID, map[string]any{"status_upstream": status})
}

// RecordProcessorResult stores the processor-side status and, when non-empty,
// the processor reference.
func (r *repository) RecordProcessorResult(ctx context.Context, cardID uuid.UUID, status enums.ProcessorCardStatus, reference string) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid processor status").
			WithDetails(map[string]any{"status": status})
	}
	fields := map[string]any{"status_processor": status}
	if reference = strings.TrimSpace(reference); reference != "" {
		fields["processor_reference"] = reference
	}
	return r.update(ctx, cardID, fields)
}

func (r *repository) update(ctx context.Context, cardID uuid.UUID, fields map[string]any) error {
	fields["updated_at"] = r.Now()
	res := r.DB(ctx).Model(&models.Card{}).Where("id = ?", cardID).Updates(fields)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update card")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "card not found")
	}
	return nil
}
