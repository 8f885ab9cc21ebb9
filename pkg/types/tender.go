package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
)

// Criterion is one weighted evaluation criterion of a tender.
type Criterion struct {
	Name   string              `json:"name" validate:"required,max=120"`
	Weight float64             `json:"weight" validate:"gte=0,lte=100"`
	Kind   enums.CriterionKind `json:"kind,omitempty" validate:"omitempty,oneof=price score"`
}

// EffectiveKind resolves the normalization kind. A criterion literally named
// "price" is treated as a price criterion unless stated otherwise.
func (c Criterion) EffectiveKind() enums.CriterionKind {
	if c.Kind != "" {
		return c.Kind
	}
	if strings.EqualFold(strings.TrimSpace(c.Name), "price") {
		return enums.CriterionKindPrice
	}
	return enums.CriterionKindScore
}

// Criteria is stored as a JSON array on the tender row.
type Criteria []Criterion

// TotalWeight sums every criterion weight.
func (c Criteria) TotalWeight() float64 {
	var total float64
	for _, criterion := range c {
		total += criterion.Weight
	}
	return total
}

// LineItem is a lot the buyer asks suppliers to price.
type LineItem struct {
	Code        string          `json:"code" validate:"required,max=64"`
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit" validate:"required,max=32"`
}

// LineItems is stored as a JSON array on the tender row.
type LineItems []LineItem

// Find returns the item with the given code.
func (l LineItems) Find(code string) (LineItem, bool) {
	for _, item := range l {
		if item.Code == code {
			return item, true
		}
	}
	return LineItem{}, false
}

// LinePrice is a supplier's unit price for one tender line item.
type LinePrice struct {
	ItemCode  string          `json:"item_code" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LinePrices is stored as a JSON array on the submission row.
type LinePrices []LinePrice

// Clone returns an independent copy.
func (l LinePrices) Clone() LinePrices {
	if l == nil {
		return nil
	}
	out := make(LinePrices, len(l))
	copy(out, l)
	return out
}

// CriterionScores maps a criterion name to the raw score a submission earned.
type CriterionScores map[string]float64

// Clone returns an independent copy.
func (c CriterionScores) Clone() CriterionScores {
	if c == nil {
		return nil
	}
	out := make(CriterionScores, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Lookup finds a score by criterion name, ignoring case.
func (c CriterionScores) Lookup(name string) (float64, bool) {
	if v, ok := c[name]; ok {
		return v, true
	}
	for k, v := range c {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return 0, false
}

// SubmissionSnapshot is the frozen view of one submission taken when a
// tender closes.
type SubmissionSnapshot struct {
	SubmissionID    uuid.UUID              `json:"submission_id"`
	SupplierID      uuid.UUID              `json:"supplier_id"`
	TotalAmount     decimal.Decimal        `json:"total_amount"`
	Currency        enums.Currency         `json:"currency"`
	SubmittedAt     time.Time              `json:"submitted_at"`
	Status          enums.SubmissionStatus `json:"status"`
	Valid           bool                   `json:"valid"`
	LinePrices      LinePrices             `json:"line_prices,omitempty"`
	CriterionScores CriterionScores        `json:"criterion_scores,omitempty"`
	ComplianceScore *float64               `json:"compliance_score,omitempty"`
}

// ReportSnapshot is stored as a JSON array on the opening report row.
type ReportSnapshot []SubmissionSnapshot

// POLine is one snapshotted line of a purchase order.
type POLine struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// POLines is stored as a JSON array on the purchase order row.
type POLines []POLine

// POTerms freezes the tender terms a purchase order was awarded under.
type POTerms struct {
	TenderNumber       string         `json:"tender_number"`
	Title              string         `json:"title"`
	Currency           enums.Currency `json:"currency"`
	Criteria           Criteria       `json:"criteria,omitempty"`
	SubmissionDeadline time.Time      `json:"submission_deadline"`
	DecryptionDate     *time.Time     `json:"decryption_date,omitempty"`
}

// JSONMap is a free-form JSON object column.
type JSONMap map[string]any
