// Package analysis derives offer rankings from an opening report snapshot.
// Everything here is a pure function of its inputs.
package analysis

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

const (
	scorePrecision = 1e4
	scoreDecimals  = 4
)

var hundred = decimal.NewFromInt(100)

// DefaultCriteria ranks on price alone when a tender defines no criteria.
var DefaultCriteria = types.Criteria{{Name: "Price", Weight: 100, Kind: enums.CriterionKindPrice}}

type Report struct {
	Criteria          types.Criteria   `json:"criteria"`
	LowestPrice       *PricePick       `json:"lowest_price,omitempty"`
	HighestCompliance *CompliancePick  `json:"highest_compliance,omitempty"`
	Ranking           []RankedOffer    `json:"ranking"`
	LineItems         []LineComparison `json:"line_items"`
}

type PricePick struct {
	SubmissionID uuid.UUID       `json:"submission_id"`
	SupplierID   uuid.UUID       `json:"supplier_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

type CompliancePick struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	SupplierID   uuid.UUID `json:"supplier_id"`
	Score        float64   `json:"score"`
}

// RankedOffer is one valid offer with its best-value score.
type RankedOffer struct {
	Rank         int               `json:"rank"`
	SubmissionID uuid.UUID         `json:"submission_id"`
	SupplierID   uuid.UUID         `json:"supplier_id"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	Score        float64           `json:"score"`
	Breakdown    []CriterionResult `json:"breakdown"`
}

type CriterionResult struct {
	Name       string              `json:"name"`
	Kind       enums.CriterionKind `json:"kind"`
	Weight     float64             `json:"weight"`
	Raw        float64             `json:"raw"`
	Normalized float64             `json:"normalized"`
	Weighted   float64             `json:"weighted"`
}

// LineComparison lists every quote received for one tender line item,
// cheapest first.
type LineComparison struct {
	ItemCode    string          `json:"item_code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Quotes      []LineQuote     `json:"quotes"`
}

type LineQuote struct {
	SubmissionID uuid.UUID       `json:"submission_id"`
	SupplierID   uuid.UUID       `json:"supplier_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
	Lowest       bool            `json:"lowest"`
}

// Analyze ranks the valid offers of snapshot against criteria and compares
// unit prices per line item. Ties go to the earliest submission.
func Analyze(snapshot types.ReportSnapshot, criteria types.Criteria, items types.LineItems) Report {
	if len(criteria) == 0 {
		criteria = DefaultCriteria
	}
	offers := validOffers(snapshot)

	report := Report{
		Criteria:  append(types.Criteria(nil), criteria...),
		Ranking:   rank(offers, criteria),
		LineItems: compareLines(offers, items),
	}
	report.LowestPrice = lowestPrice(offers)
	report.HighestCompliance = highestCompliance(offers)
	return report
}

// validOffers copies the competing entries in a canonical order so the
// caller's ordering never influences the result.
func validOffers(snapshot types.ReportSnapshot) []types.SubmissionSnapshot {
	out := make([]types.SubmissionSnapshot, 0, len(snapshot))
	for _, entry := range snapshot {
		if entry.Valid {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return earlier(out[i], out[j]) })
	return out
}

func earlier(a, b types.SubmissionSnapshot) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.SubmissionID.String() < b.SubmissionID.String()
}

func rank(offers []types.SubmissionSnapshot, criteria types.Criteria) []RankedOffer {
	var minPrice decimal.Decimal
	for _, o := range offers {
		if o.TotalAmount.IsPositive() && (minPrice.IsZero() || o.TotalAmount.LessThan(minPrice)) {
			minPrice = o.TotalAmount
		}
	}
	maxScores := make([]float64, len(criteria))
	for i, c := range criteria {
		if c.EffectiveKind() != enums.CriterionKindScore {
			continue
		}
		for _, o := range offers {
			if v, ok := o.CriterionScores.Lookup(c.Name); ok && v > maxScores[i] {
				maxScores[i] = v
			}
		}
	}

	ranked := make([]RankedOffer, 0, len(offers))
	for _, o := range offers {
		entry := RankedOffer{
			SubmissionID: o.SubmissionID,
			SupplierID:   o.SupplierID,
			TotalAmount:  o.TotalAmount,
			SubmittedAt:  o.SubmittedAt,
			Breakdown:    make([]CriterionResult, 0, len(criteria)),
		}
		var total float64
		for i, c := range criteria {
			result := CriterionResult{Name: c.Name, Kind: c.EffectiveKind(), Weight: c.Weight}
			if result.Kind == enums.CriterionKindPrice {
				result.Raw = o.TotalAmount.InexactFloat64()
				result.Normalized = normalizePrice(o.TotalAmount, minPrice)
			} else {
				result.Raw, _ = o.CriterionScores.Lookup(c.Name)
				result.Normalized = round(normalizeScore(result.Raw, maxScores[i]))
			}
			result.Weighted = round(c.Weight / 100 * result.Normalized)
			total += result.Weighted
			entry.Breakdown = append(entry.Breakdown, result)
		}
		entry.Score = round(total)
		ranked = append(ranked, entry)
	}

	// offers is already in submission order, so a stable sort on score keeps
	// the earliest offer ahead on ties.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// normalizePrice scores the cheapest positive offer 100 and the rest
// proportionally. Only the rounded result leaves decimal arithmetic.
func normalizePrice(price, minPrice decimal.Decimal) float64 {
	if !price.IsPositive() || minPrice.IsZero() {
		return 100
	}
	return minPrice.Div(price).Mul(hundred).Round(scoreDecimals).InexactFloat64()
}

func normalizeScore(raw, max float64) float64 {
	if max <= 0 || raw <= 0 {
		return 0
	}
	return raw / max * 100
}

func round(v float64) float64 {
	return math.Round(v*scorePrecision) / scorePrecision
}

func lowestPrice(offers []types.SubmissionSnapshot) *PricePick {
	var pick *PricePick
	for _, o := range offers {
		if pick == nil || o.TotalAmount.LessThan(pick.TotalAmount) {
			pick = &PricePick{SubmissionID: o.SubmissionID, SupplierID: o.SupplierID, TotalAmount: o.TotalAmount}
		}
	}
	return pick
}

func highestCompliance(offers []types.SubmissionSnapshot) *CompliancePick {
	var pick *CompliancePick
	for _, o := range offers {
		if o.ComplianceScore == nil {
			continue
		}
		if pick == nil || *o.ComplianceScore > pick.Score {
			pick = &CompliancePick{SubmissionID: o.SubmissionID, SupplierID: o.SupplierID, Score: *o.ComplianceScore}
		}
	}
	return pick
}

func compareLines(offers []types.SubmissionSnapshot, items types.LineItems) []LineComparison {
	out := make([]LineComparison, 0, len(items))
	for _, item := range items {
		cmp := LineComparison{
			ItemCode:    item.Code,
			Description: item.Description,
			Quantity:    item.Quantity,
			Quotes:      []LineQuote{},
		}
		for _, o := range offers {
			price, ok := unitPrice(o.LinePrices, item.Code)
			if !ok {
				continue
			}
			cmp.Quotes = append(cmp.Quotes, LineQuote{
				SubmissionID: o.SubmissionID,
				SupplierID:   o.SupplierID,
				UnitPrice:    price,
				LineTotal:    price.Mul(item.Quantity),
			})
		}
		sort.SliceStable(cmp.Quotes, func(i, j int) bool { return cmp.Quotes[i].UnitPrice.LessThan(cmp.Quotes[j].UnitPrice) })
		if len(cmp.Quotes) > 0 {
			cmp.Quotes[0].Lowest = true
		}
		out = append(out, cmp)
	}
	return out
}

func unitPrice(prices types.LinePrices, code string) (decimal.Decimal, bool) {
	for _, p := range prices {
		if strings.EqualFold(p.ItemCode, code) {
			return p.UnitPrice, true
		}
	}
	return decimal.Decimal{}, false
}
