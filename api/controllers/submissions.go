package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/api/responses"
	"github.com/angelmondragon/tenderflow-backend/api/validators"
	"github.com/angelmondragon/tenderflow-backend/internal/submissions"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

const maxNotesLength = 2000

type submitOfferRequest struct {
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	Currency        enums.Currency        `json:"currency" validate:"omitempty,currency"`
	LinePrices      types.LinePrices      `json:"line_prices" validate:"omitempty,max=200,dive"`
	CriterionScores types.CriterionScores `json:"criterion_scores"`
	ComplianceScore *float64              `json:"compliance_score" validate:"omitempty,gte=0,lte=100"`
	Notes           *string               `json:"notes" validate:"omitempty,max=2000"`
}

// SubmitOffer records the calling supplier's sealed offer.
func SubmitOffer(svc submissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "submissions service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload submitOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		submission, err := svc.Submit(r.Context(), submissions.SubmitInput{
			Actor:           actor,
			TenderID:        tenderID,
			TotalAmount:     payload.TotalAmount,
			Currency:        payload.Currency,
			LinePrices:      payload.LinePrices,
			CriterionScores: payload.CriterionScores,
			ComplianceScore: payload.ComplianceScore,
			Notes:           sanitizePtr(payload.Notes, maxNotesLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSubmissionResponse(submission))
	}
}

// ListSubmissions shows a supplier their own offer and the owning buyer
// every offer once they are unsealed.
func ListSubmissions(svc submissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "submissions service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListForTender(r.Context(), tenderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]submissionResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newSubmissionResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func WithdrawOffer(svc submissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "submissions service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		submissionID, err := validators.ParseUUIDParam(r, "submissionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		submission, err := svc.Withdraw(r.Context(), submissions.WithdrawInput{
			Actor:        actor,
			TenderID:     tenderID,
			SubmissionID: submissionID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubmissionResponse(submission))
	}
}
