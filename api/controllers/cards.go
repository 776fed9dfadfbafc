package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/card-connector/api/responses"
	"github.com/angelmondragon/card-connector/pkg/db/models"
	pkgerrors "github.com/angelmondragon/card-connector/pkg/errors"
	"github.com/angelmondragon/card-connector/pkg/logger"
)

const cardOperationsLimit = 50

type cardLookup interface {
	FindByUpstreamID(ctx context.Context, upstreamCardID int64) (*models.Card, error)
}

type operationLister interface {
	ListByCard(ctx context.Context, cardID uuid.UUID, limit int) ([]models.CardOperation, error)
}

type cardDetail struct {
	models.Card
	Operations []models.CardOperation `json:"operations"`
}

// CardDetail returns one card with its most recent operations, newest first.
func CardDetail(cards cardLookup, ops operationLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		upstreamID, err := strconv.ParseInt(chi.URLParam(r, "upstreamCardId"), 10, 64)
		if err != nil || upstreamID <= 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid card id"))
			return
		}

		card, err := cards.FindByUpstreamID(ctx, upstreamID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		history, err := ops.ListByCard(ctx, card.ID, cardOperationsLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if history == nil {
			history = []models.CardOperation{}
		}

		responses.WriteSuccess(w, cardDetail{Card: *card, Operations: history})
	}
}
