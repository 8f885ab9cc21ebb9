package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tenderflow-backend/api/responses"
	"github.com/angelmondragon/tenderflow-backend/api/validators"
	"github.com/angelmondragon/tenderflow-backend/internal/awards"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
)

// AwardService is satisfied by *awards.Coordinator.
type AwardService interface {
	Award(ctx context.Context, input awards.Input) (*models.PurchaseOrder, error)
	PurchaseOrderForTender(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*models.PurchaseOrder, error)
}

type awardRequest struct {
	SubmissionID string `json:"submission_id" validate:"required,uuid"`
}

// AwardTender selects the winning offer and returns the purchase order.
func AwardTender(svc AwardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "award service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload awardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		submissionID, err := uuid.Parse(payload.SubmissionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid submission id"))
			return
		}

		ctx := logg.WithTenderID(r.Context(), tenderID.String())
		po, err := svc.Award(ctx, awards.Input{
			TenderID:     tenderID,
			SubmissionID: submissionID,
			Actor:        actor,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPurchaseOrderResponse(po))
	}
}

func GetPurchaseOrder(svc AwardService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "award service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		po, err := svc.PurchaseOrderForTender(r.Context(), tenderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPurchaseOrderResponse(po))
	}
}
