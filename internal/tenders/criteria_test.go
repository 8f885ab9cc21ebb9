package tenders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

func TestValidateCriteriaAcceptsHundred(t *testing.T) {
	criteria := types.Criteria{
		{Name: "Technical", Weight: 40},
		{Name: "Price", Weight: 30},
		{Name: "Delivery", Weight: 15},
		{Name: "Warranty", Weight: 15},
	}
	require.Empty(t, ValidateCriteria(criteria))
}

func TestValidateCriteriaReportsCurrentSum(t *testing.T) {
	criteria := types.Criteria{
		{Name: "Technical", Weight: 40},
		{Name: "Price", Weight: 30},
		{Name: "Delivery", Weight: 25},
	}
	violations := ValidateCriteria(criteria)
	require.Len(t, violations, 1)
	assert.Equal(t, RuleWeightSum, violations[0].Rule)
	assert.Equal(t, "criteria weights must sum to 100, got 95", violations[0].Message)
}

func TestValidateCriteriaToleratesEpsilon(t *testing.T) {
	criteria := types.Criteria{
		{Name: "A", Weight: 33.3333},
		{Name: "B", Weight: 33.3333},
		{Name: "C", Weight: 33.3334},
	}
	require.Empty(t, ValidateCriteria(criteria))

	off := types.Criteria{{Name: "A", Weight: 99.5}}
	violations := ValidateCriteria(off)
	require.Len(t, violations, 1)
	assert.Equal(t, "criteria weights must sum to 100, got 99.5", violations[0].Message)
}

func TestValidateCriteriaAccumulatesEveryViolation(t *testing.T) {
	criteria := types.Criteria{
		{Name: "Price", Weight: -5},
		{Name: "price", Weight: 120},
		{Name: " ", Weight: 10, Kind: "vibes"},
	}
	violations := ValidateCriteria(criteria)

	assert.True(t, violations.Has(RuleRange))
	assert.True(t, violations.Has(RuleUnique))
	assert.True(t, violations.Has(RuleRequired))
	assert.True(t, violations.Has(RuleInvalid))
	assert.True(t, violations.Has(RuleWeightSum))
	assert.Len(t, violations, 6)
}

func TestValidateCriteriaEmptyIsValid(t *testing.T) {
	require.Empty(t, ValidateCriteria(nil))
}

func TestValidateScheduleDecryptionBeforeDeadline(t *testing.T) {
	deadline := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	decryption := time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)

	violations := ValidateSchedule(Schedule{SubmissionDeadline: deadline, DecryptionDate: &decryption})
	require.Len(t, violations, 1)
	assert.Equal(t, "decryption_date", violations[0].Field)
	assert.Equal(t, "decryption date must be strictly after the submission deadline", violations[0].Message)
}

func TestValidateScheduleDecryptionEqualToDeadline(t *testing.T) {
	deadline := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	equal := deadline

	violations := ValidateSchedule(Schedule{SubmissionDeadline: deadline, DecryptionDate: &equal})
	require.True(t, violations.Has(RuleAfterDeadline))

	later := deadline.Add(time.Second)
	require.Empty(t, ValidateSchedule(Schedule{SubmissionDeadline: deadline, DecryptionDate: &later}))
}

func TestValidateScheduleInquiryWindow(t *testing.T) {
	deadline := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	start := deadline.Add(-48 * time.Hour)
	end := deadline.Add(-24 * time.Hour)
	require.Empty(t, ValidateSchedule(Schedule{SubmissionDeadline: deadline, InquiryStart: &start, InquiryEnd: &end}))

	reversedStart := end
	reversedEnd := start
	violations := ValidateSchedule(Schedule{SubmissionDeadline: deadline, InquiryStart: &reversedStart, InquiryEnd: &reversedEnd})
	assert.True(t, violations.Has(RuleOrder))

	lateEnd := deadline
	violations = ValidateSchedule(Schedule{SubmissionDeadline: deadline, InquiryStart: &start, InquiryEnd: &lateEnd})
	assert.True(t, violations.Has(RuleBeforeDeadline))

	violations = ValidateSchedule(Schedule{SubmissionDeadline: deadline, InquiryStart: &start})
	assert.True(t, violations.Has(RuleRequired))
}

func TestValidateForPublishCollectsAll(t *testing.T) {
	now := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	decryption := deadline.Add(-time.Hour)

	tender := models.Tender{
		Currency:           enums.CurrencyUSD,
		SubmissionDeadline: deadline,
		DecryptionDate:     &decryption,
		BudgetMin:          decimal.NewNullDecimal(decimal.NewFromInt(500)),
		BudgetMax:          decimal.NewNullDecimal(decimal.NewFromInt(100)),
		Criteria:           types.Criteria{{Name: "Price", Weight: 50}},
	}
	violations := ValidateForPublish(tender, now)

	fields := make([]string, 0, len(violations))
	for _, v := range violations {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		"title",
		"submission_deadline",
		"budget_max",
		"line_items",
		"criteria",
		"decryption_date",
	}, fields)

	err := violations.Err()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(Violations)
	require.True(t, ok)
	assert.Len(t, details, len(violations))
}

func TestValidateForPublishRejectsBadLineItems(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tender := models.Tender{
		Title:              "Chairs",
		Currency:           enums.CurrencyEUR,
		SubmissionDeadline: now.Add(24 * time.Hour),
		LineItems: types.LineItems{
			{Code: "A", Quantity: decimal.NewFromInt(1)},
			{Code: "A", Quantity: decimal.Zero},
		},
	}
	violations := ValidateForPublish(tender, now)
	assert.True(t, violations.Has(RuleUnique))
	assert.True(t, violations.Has(RuleRange))
	assert.Nil(t, Violations{}.Err())
}
