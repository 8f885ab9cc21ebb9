package tenders

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// WeightEpsilon is the tolerance allowed when criteria weights are summed.
const WeightEpsilon = 0.001

// Violation rule identifiers.
const (
	RuleRequired       = "required"
	RuleRange          = "range"
	RuleUnique         = "unique"
	RuleInvalid        = "invalid"
	RuleWeightSum      = "weight_sum"
	RuleAfterDeadline  = "after_deadline"
	RuleBeforeDeadline = "before_deadline"
	RuleOrder          = "order"
	RuleFuture         = "future"
)

// Violation is one failed rule.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Violations collects every failed rule of a validation pass.
type Violations []Violation

func (v *Violations) add(field, rule, message string) {
	*v = append(*v, Violation{Field: field, Rule: rule, Message: message})
}

// Has reports whether any violation carries the given rule.
func (v Violations) Has(rule string) bool {
	for _, violation := range v {
		if violation.Rule == rule {
			return true
		}
	}
	return false
}

// Err converts the list into a validation error, or nil when empty.
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "tender validation failed").WithDetails(v)
}

// Schedule groups the dates a tender is judged on.
type Schedule struct {
	SubmissionDeadline time.Time
	DecryptionDate     *time.Time
	InquiryStart       *time.Time
	InquiryEnd         *time.Time
}

// ScheduleOf extracts the schedule of a tender.
func ScheduleOf(t models.Tender) Schedule {
	return Schedule{
		SubmissionDeadline: t.SubmissionDeadline,
		DecryptionDate:     t.DecryptionDate,
		InquiryStart:       t.InquiryStart,
		InquiryEnd:         t.InquiryEnd,
	}
}

// ValidateCriteria checks weights, names and kinds. An empty list is valid.
func ValidateCriteria(criteria types.Criteria) Violations {
	var out Violations
	if len(criteria) == 0 {
		return out
	}

	seen := make(map[string]int, len(criteria))
	for i, criterion := range criteria {
		field := fmt.Sprintf("criteria[%d]", i)
		name := strings.TrimSpace(criterion.Name)
		if name == "" {
			out.add(field+".name", RuleRequired, "criterion name is required")
		} else {
			key := strings.ToLower(name)
			if first, ok := seen[key]; ok {
				out.add(field+".name", RuleUnique, fmt.Sprintf("criterion %q duplicates criteria[%d]", name, first))
			} else {
				seen[key] = i
			}
		}
		if criterion.Weight < 0 || criterion.Weight > 100 || math.IsNaN(criterion.Weight) {
			out.add(field+".weight", RuleRange, fmt.Sprintf("criterion weight must be between 0 and 100, got %s", formatWeight(criterion.Weight)))
		}
		if criterion.Kind != "" && !criterion.Kind.IsValid() {
			out.add(field+".kind", RuleInvalid, fmt.Sprintf("unknown criterion kind %q", criterion.Kind))
		}
	}

	sum := criteria.TotalWeight()
	if math.Abs(sum-100) > WeightEpsilon {
		out.add("criteria", RuleWeightSum, fmt.Sprintf("criteria weights must sum to 100, got %s", formatWeight(sum)))
	}
	return out
}

// ValidateSchedule checks date ordering.
func ValidateSchedule(s Schedule) Violations {
	var out Violations
	if s.SubmissionDeadline.IsZero() {
		out.add("submission_deadline", RuleRequired, "submission deadline is required")
		return out
	}
	if s.DecryptionDate != nil && !s.DecryptionDate.After(s.SubmissionDeadline) {
		out.add("decryption_date", RuleAfterDeadline, "decryption date must be strictly after the submission deadline")
	}

	switch {
	case s.InquiryStart == nil && s.InquiryEnd == nil:
	case s.InquiryStart == nil:
		out.add("inquiry_start", RuleRequired, "inquiry window start is required when an end is set")
	case s.InquiryEnd == nil:
		out.add("inquiry_end", RuleRequired, "inquiry window end is required when a start is set")
	default:
		if s.InquiryStart.After(*s.InquiryEnd) {
			out.add("inquiry_start", RuleOrder, "inquiry window start must not be after its end")
		}
		if !s.InquiryEnd.Before(s.SubmissionDeadline) {
			out.add("inquiry_end", RuleBeforeDeadline, "inquiry window must end before the submission deadline")
		}
	}
	return out
}

// ValidateForPublish runs every rule a draft must satisfy before it opens.
func ValidateForPublish(t models.Tender, now time.Time) Violations {
	var out Violations
	if strings.TrimSpace(t.Title) == "" {
		out.add("title", RuleRequired, "title is required")
	}
	if !t.Currency.IsValid() {
		out.add("currency", RuleInvalid, fmt.Sprintf("unsupported currency %q", t.Currency))
	}
	if !t.SubmissionDeadline.IsZero() && !t.SubmissionDeadline.After(now) {
		out.add("submission_deadline", RuleFuture, "submission deadline must be in the future")
	}
	if t.BudgetMin.Valid && t.BudgetMin.Decimal.IsNegative() {
		out.add("budget_min", RuleRange, "budget minimum must not be negative")
	}
	if t.BudgetMin.Valid && t.BudgetMax.Valid && t.BudgetMin.Decimal.GreaterThan(t.BudgetMax.Decimal) {
		out.add("budget_max", RuleOrder, "budget maximum must not be below the minimum")
	}
	out = append(out, validateLineItems(t.LineItems)...)
	out = append(out, ValidateCriteria(t.Criteria)...)
	out = append(out, ValidateSchedule(ScheduleOf(t))...)
	return out
}

// ValidateForAward re-checks the rules that must still hold when a tender is awarded.
func ValidateForAward(t models.Tender) Violations {
	out := ValidateCriteria(t.Criteria)
	return append(out, ValidateSchedule(ScheduleOf(t))...)
}

func validateLineItems(items types.LineItems) Violations {
	var out Violations
	if len(items) == 0 {
		out.add("line_items", RuleRequired, "at least one line item is required")
		return out
	}
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		field := fmt.Sprintf("line_items[%d]", i)
		code := strings.TrimSpace(item.Code)
		if code == "" {
			out.add(field+".code", RuleRequired, "line item code is required")
		} else if _, dup := seen[code]; dup {
			out.add(field+".code", RuleUnique, fmt.Sprintf("line item code %q is duplicated", code))
		} else {
			seen[code] = struct{}{}
		}
		if !item.Quantity.IsPositive() {
			out.add(field+".quantity", RuleRange, "line item quantity must be positive")
		}
	}
	return out
}

func formatWeight(v float64) string {
	rounded := math.Round(v*1000) / 1000
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
