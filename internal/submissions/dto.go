package submissions

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// SubmitInput is a supplier's offer.
type SubmitInput struct {
	Actor           tenders.Actor
	TenderID        uuid.UUID
	TotalAmount     decimal.Decimal
	Currency        enums.Currency
	LinePrices      types.LinePrices
	CriterionScores types.CriterionScores
	ComplianceScore *float64
	Notes           *string
}

// WithdrawInput pulls an offer back before the deadline.
type WithdrawInput struct {
	Actor        tenders.Actor
	TenderID     uuid.UUID
	SubmissionID uuid.UUID
}
