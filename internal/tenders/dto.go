package tenders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/pagination"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// Actor is the authenticated caller of a tender operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// IsBuyer reports whether the actor acts as a buyer.
func (a Actor) IsBuyer() bool { return a.Role == enums.ActorRoleBuyer }

// IsSupplier reports whether the actor acts as a supplier.
func (a Actor) IsSupplier() bool { return a.Role == enums.ActorRoleSupplier }

// Owns reports whether the actor is the buyer that owns the tender.
func (a Actor) Owns(t *models.Tender) bool {
	return t != nil && a.IsBuyer() && a.UserID == t.BuyerID
}

// CreateInput carries the fields of a new draft tender.
type CreateInput struct {
	Actor              Actor
	Title              string
	Description        *string
	Currency           enums.Currency
	BudgetMin          *decimal.Decimal
	BudgetMax          *decimal.Decimal
	SubmissionDeadline time.Time
	DecryptionDate     *time.Time
	InquiryStart       *time.Time
	InquiryEnd         *time.Time
	Criteria           types.Criteria
	LineItems          types.LineItems
	IsPublic           *bool
}

// UpdateInput patches a draft. Nil fields are left unchanged.
type UpdateInput struct {
	Actor              Actor
	TenderID           uuid.UUID
	Title              *string
	Description        *string
	Currency           *enums.Currency
	BudgetMin          *decimal.Decimal
	BudgetMax          *decimal.Decimal
	SubmissionDeadline *time.Time
	DecryptionDate     *time.Time
	InquiryStart       *time.Time
	InquiryEnd         *time.Time
	Criteria           *types.Criteria
	LineItems          *types.LineItems
	IsPublic           *bool
}

// CancelInput asks to cancel a non-terminal tender.
type CancelInput struct {
	Actor    Actor
	TenderID uuid.UUID
	Reason   *string
}

// ListParams filters a tender listing.
type ListParams struct {
	pagination.Params
	Status *enums.TenderStatus
	// Mine restricts a buyer's listing to tenders they own, drafts included.
	Mine bool
}

// ListFilter is the repository view of ListParams.
type ListFilter struct {
	BuyerID *uuid.UUID
	Status  *enums.TenderStatus
}

// TenderList is one page of tenders.
type TenderList struct {
	Tenders    []models.Tender `json:"tenders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}
