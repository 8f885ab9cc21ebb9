package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/internal/reports"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

type tenderResponse struct {
	ID                 uuid.UUID          `json:"id"`
	Number             string             `json:"number"`
	BuyerID            uuid.UUID          `json:"buyer_id"`
	Title              string             `json:"title"`
	Description        *string            `json:"description,omitempty"`
	Status             enums.TenderStatus `json:"status"`
	Currency           enums.Currency     `json:"currency"`
	BudgetMin          *decimal.Decimal   `json:"budget_min,omitempty"`
	BudgetMax          *decimal.Decimal   `json:"budget_max,omitempty"`
	SubmissionDeadline time.Time          `json:"submission_deadline"`
	DecryptionDate     *time.Time         `json:"decryption_date,omitempty"`
	InquiryStart       *time.Time         `json:"inquiry_start,omitempty"`
	InquiryEnd         *time.Time         `json:"inquiry_end,omitempty"`
	Criteria           types.Criteria     `json:"criteria"`
	LineItems          types.LineItems    `json:"line_items"`
	IsPublic           bool               `json:"is_public"`
	PublishedAt        *time.Time         `json:"published_at,omitempty"`
	ClosedAt           *time.Time         `json:"closed_at,omitempty"`
	AwardedAt          *time.Time         `json:"awarded_at,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason       *string            `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func newTenderResponse(t *models.Tender) tenderResponse {
	return tenderResponse{
		ID:                 t.ID,
		Number:             t.Number,
		BuyerID:            t.BuyerID,
		Title:              t.Title,
		Description:        t.Description,
		Status:             t.Status,
		Currency:           t.Currency,
		BudgetMin:          decimalPtr(t.BudgetMin),
		BudgetMax:          decimalPtr(t.BudgetMax),
		SubmissionDeadline: t.SubmissionDeadline,
		DecryptionDate:     t.DecryptionDate,
		InquiryStart:       t.InquiryStart,
		InquiryEnd:         t.InquiryEnd,
		Criteria:           t.Criteria,
		LineItems:          t.LineItems,
		IsPublic:           t.IsPublic,
		PublishedAt:        t.PublishedAt,
		ClosedAt:           t.ClosedAt,
		AwardedAt:          t.AwardedAt,
		CancelledAt:        t.CancelledAt,
		CancelReason:       t.CancelReason,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

type tenderListResponse struct {
	Tenders    []tenderResponse `json:"tenders"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

func newTenderListResponse(list *tenders.TenderList) tenderListResponse {
	out := tenderListResponse{Tenders: []tenderResponse{}}
	if list == nil {
		return out
	}
	for i := range list.Tenders {
		out.Tenders = append(out.Tenders, newTenderResponse(&list.Tenders[i]))
	}
	out.NextCursor = list.NextCursor
	return out
}

type submissionResponse struct {
	ID              uuid.UUID              `json:"id"`
	TenderID        uuid.UUID              `json:"tender_id"`
	SupplierID      uuid.UUID              `json:"supplier_id"`
	TotalAmount     decimal.Decimal        `json:"total_amount"`
	Currency        enums.Currency         `json:"currency"`
	LinePrices      types.LinePrices       `json:"line_prices,omitempty"`
	CriterionScores types.CriterionScores  `json:"criterion_scores,omitempty"`
	ComplianceScore *float64               `json:"compliance_score,omitempty"`
	Status          enums.SubmissionStatus `json:"status"`
	SubmittedAt     time.Time              `json:"submitted_at"`
	EvaluationScore *float64               `json:"evaluation_score,omitempty"`
	IsWinner        bool                   `json:"is_winner"`
	WithdrawnAt     *time.Time             `json:"withdrawn_at,omitempty"`
	Notes           *string                `json:"notes,omitempty"`
}

func newSubmissionResponse(s *models.Submission) submissionResponse {
	return submissionResponse{
		ID:              s.ID,
		TenderID:        s.TenderID,
		SupplierID:      s.SupplierID,
		TotalAmount:     s.TotalAmount,
		Currency:        s.Currency,
		LinePrices:      s.LinePrices,
		CriterionScores: s.CriterionScores,
		ComplianceScore: s.ComplianceScore,
		Status:          s.Status,
		SubmittedAt:     s.SubmittedAt,
		EvaluationScore: s.EvaluationScore,
		IsWinner:        s.IsWinner,
		WithdrawnAt:     s.WithdrawnAt,
		Notes:           s.Notes,
	}
}

type openingReportResponse struct {
	ID            uuid.UUID                 `json:"id"`
	TenderID      uuid.UUID                 `json:"tender_id"`
	OpenedBy      uuid.UUID                 `json:"opened_by"`
	ReceivedCount int                       `json:"received_count"`
	ValidCount    int                       `json:"valid_count"`
	InvalidCount  int                       `json:"invalid_count"`
	Status        enums.OpeningReportStatus `json:"status"`
	Sealed        bool                      `json:"sealed"`
	Submissions   types.ReportSnapshot      `json:"submissions,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

func newOpeningReportResponse(view *reports.View) openingReportResponse {
	r := view.Report
	return openingReportResponse{
		ID:            r.ID,
		TenderID:      r.TenderID,
		OpenedBy:      r.OpenedBy,
		ReceivedCount: r.ReceivedCount,
		ValidCount:    r.ValidCount,
		InvalidCount:  r.InvalidCount,
		Status:        r.Status,
		Sealed:        view.Sealed,
		Submissions:   r.Snapshot,
		CreatedAt:     r.CreatedAt,
	}
}

type purchaseOrderResponse struct {
	ID           uuid.UUID                 `json:"id"`
	Number       string                    `json:"number"`
	TenderID     uuid.UUID                 `json:"tender_id"`
	SubmissionID uuid.UUID                 `json:"submission_id"`
	SupplierID   uuid.UUID                 `json:"supplier_id"`
	BuyerID      uuid.UUID                 `json:"buyer_id"`
	TotalAmount  decimal.Decimal           `json:"total_amount"`
	Currency     enums.Currency            `json:"currency"`
	Status       enums.PurchaseOrderStatus `json:"status"`
	LineItems    types.POLines             `json:"line_items"`
	Terms        types.POTerms             `json:"terms"`
	CreatedAt    time.Time                 `json:"created_at"`
}

func newPurchaseOrderResponse(po *models.PurchaseOrder) purchaseOrderResponse {
	return purchaseOrderResponse{
		ID:           po.ID,
		Number:       po.Number,
		TenderID:     po.TenderID,
		SubmissionID: po.SubmissionID,
		SupplierID:   po.SupplierID,
		BuyerID:      po.BuyerID,
		TotalAmount:  po.TotalAmount,
		Currency:     po.Currency,
		Status:       po.Status,
		LineItems:    po.LineItems,
		Terms:        po.Terms,
		CreatedAt:    po.CreatedAt,
	}
}

type auditEntryResponse struct {
	ID             uuid.UUID           `json:"id"`
	ActorID        uuid.UUID           `json:"actor_id"`
	Action         enums.AuditAction   `json:"action"`
	PreviousStatus *enums.TenderStatus `json:"previous_status,omitempty"`
	NewStatus      enums.TenderStatus  `json:"new_status"`
	Metadata       types.JSONMap       `json:"metadata,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

func newAuditEntryResponses(entries []models.AuditEntry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:             e.ID,
			ActorID:        e.ActorID,
			Action:         e.Action,
			PreviousStatus: e.PreviousStatus,
			NewStatus:      e.NewStatus,
			Metadata:       e.Metadata,
			OccurredAt:     e.OccurredAt,
		})
	}
	return out
}

func decimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}
