package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/api/middleware"
	"github.com/angelmondragon/tenderflow-backend/api/responses"
	"github.com/angelmondragon/tenderflow-backend/api/validators"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/pagination"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 5000
	maxReasonLength      = 1000
)

type createTenderRequest struct {
	Title              string           `json:"title" validate:"required,max=200"`
	Description        *string          `json:"description" validate:"omitempty,max=5000"`
	Currency           enums.Currency   `json:"currency" validate:"omitempty,currency"`
	BudgetMin          *decimal.Decimal `json:"budget_min"`
	BudgetMax          *decimal.Decimal `json:"budget_max"`
	SubmissionDeadline *time.Time       `json:"submission_deadline" validate:"required"`
	DecryptionDate     *time.Time       `json:"decryption_date"`
	InquiryStart       *time.Time       `json:"inquiry_start"`
	InquiryEnd         *time.Time       `json:"inquiry_end"`
	Criteria           types.Criteria   `json:"criteria" validate:"omitempty,max=20,dive"`
	LineItems          types.LineItems  `json:"line_items" validate:"omitempty,max=200,dive"`
	IsPublic           *bool            `json:"is_public"`
}

type updateTenderRequest struct {
	Title              *string          `json:"title" validate:"omitempty,min=1,max=200"`
	Description        *string          `json:"description" validate:"omitempty,max=5000"`
	Currency           *enums.Currency  `json:"currency" validate:"omitempty,currency"`
	BudgetMin          *decimal.Decimal `json:"budget_min"`
	BudgetMax          *decimal.Decimal `json:"budget_max"`
	SubmissionDeadline *time.Time       `json:"submission_deadline"`
	DecryptionDate     *time.Time       `json:"decryption_date"`
	InquiryStart       *time.Time       `json:"inquiry_start"`
	InquiryEnd         *time.Time       `json:"inquiry_end"`
	Criteria           *types.Criteria  `json:"criteria" validate:"omitempty,max=20,dive"`
	LineItems          *types.LineItems `json:"line_items" validate:"omitempty,max=200,dive"`
	IsPublic           *bool            `json:"is_public"`
}

type cancelTenderRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=1000"`
}

// CreateTender opens a new draft owned by the calling buyer.
func CreateTender(svc tenders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenders service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createTenderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tender, err := svc.Create(r.Context(), tenders.CreateInput{
			Actor:              actor,
			Title:              validators.SanitizeString(payload.Title, maxTitleLength),
			Description:        sanitizePtr(payload.Description, maxDescriptionLength),
			Currency:           enums.Currency(strings.ToUpper(string(payload.Currency))),
			BudgetMin:          payload.BudgetMin,
			BudgetMax:          payload.BudgetMax,
			SubmissionDeadline: *payload.SubmissionDeadline,
			DecryptionDate:     payload.DecryptionDate,
			InquiryStart:       payload.InquiryStart,
			InquiryEnd:         payload.InquiryEnd,
			Criteria:           payload.Criteria,
			LineItems:          payload.LineItems,
			IsPublic:           payload.IsPublic,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTenderResponse(tender))
	}
}

// ListTenders pages through published tenders, or the buyer's own with mine=true.
func ListTenders(svc tenders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenders service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mine, err := validators.ParseQueryBool(r, "mine")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := tenders.ListParams{
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
			Mine: mine,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseTenderStatus(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}

		list, err := svc.List(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTenderListResponse(list))
	}
}

func GetTender(svc tenders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenders service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tender, err := svc.Get(r.Context(), tenderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTenderResponse(tender))
	}
}

// UpdateTender patches a draft. Absent fields are left untouched.
func UpdateTender(svc tenders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenders service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateTenderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := tenders.UpdateInput{
			Actor:              actor,
			TenderID:           tenderID,
			Title:              sanitizePtr(payload.Title, maxTitleLength),
			Description:        sanitizePtr(payload.Description, maxDescriptionLength),
			BudgetMin:          payload.BudgetMin,
			BudgetMax:          payload.BudgetMax,
			SubmissionDeadline: payload.SubmissionDeadline,
			DecryptionDate:     payload.DecryptionDate,
			InquiryStart:       payload.InquiryStart,
			InquiryEnd:         payload.InquiryEnd,
			Criteria:           payload.Criteria,
			LineItems:          payload.LineItems,
			IsPublic:           payload.IsPublic,
		}
		if payload.Currency != nil {
			currency := enums.Currency(strings.ToUpper(string(*payload.Currency)))
			input.Currency = &currency
		}

		tender, err := svc.Update(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTenderResponse(tender))
	}
}

func PublishTender(svc tenders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenders service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tender, err := svc.Publish(logg.WithTenderID(r.Context(), tenderID.String()), tenderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTenderResponse(tender))
	}
}

// CancelTender accepts an optional body carrying the cancellation reason.
func CancelTender(svc tenders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenders service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelTenderRequest
		if hasBody(r) {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		tender, err := svc.Cancel(logg.WithTenderID(r.Context(), tenderID.String()), tenders.CancelInput{
			Actor:    actor,
			TenderID: tenderID,
			Reason:   sanitizePtr(payload.Reason, maxReasonLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTenderResponse(tender))
	}
}

func requireActor(r *http.Request) (tenders.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return tenders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return actor, nil
}

func actorAndTender(r *http.Request) (tenders.Actor, uuid.UUID, error) {
	actor, err := requireActor(r)
	if err != nil {
		return tenders.Actor{}, uuid.Nil, err
	}
	tenderID, err := validators.ParseUUIDParam(r, "tenderId")
	if err != nil {
		return tenders.Actor{}, uuid.Nil, err
	}
	return actor, tenderID, nil
}

func sanitizePtr(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	v := validators.SanitizeString(*value, maxLen)
	return &v
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}
