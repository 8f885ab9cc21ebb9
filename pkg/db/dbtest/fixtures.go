package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// Epoch is the reference instant fixtures are built around.
var Epoch = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

// TenderFixture inserts a published tender with two line items and a price
// heavy criteria set. mutate runs before the insert.
func TenderFixture(t testing.TB, conn *gorm.DB, mutate func(*models.Tender)) models.Tender {
	t.Helper()

	published := Epoch.Add(-72 * time.Hour)
	tender := models.Tender{
		ID:                 uuid.New(),
		Number:             "TND-2025-" + uuid.NewString()[:6],
		BuyerID:            uuid.New(),
		Title:              "Office furniture",
		Status:             enums.TenderStatusPublished,
		Currency:           enums.CurrencyUSD,
		SubmissionDeadline: Epoch,
		Criteria: types.Criteria{
			{Name: "Price", Weight: 60, Kind: enums.CriterionKindPrice},
			{Name: "Technical", Weight: 40, Kind: enums.CriterionKindScore},
		},
		LineItems: types.LineItems{
			{Code: "DESK", Description: "Standing desk", Quantity: decimal.NewFromInt(10), Unit: "unit"},
			{Code: "CHAIR", Description: "Task chair", Quantity: decimal.NewFromInt(20), Unit: "unit"},
		},
		IsPublic:    true,
		PublishedAt: &published,
		CreatedAt:   published,
		UpdatedAt:   published,
	}
	if mutate != nil {
		mutate(&tender)
	}
	if err := conn.Create(&tender).Error; err != nil {
		t.Fatalf("insert tender fixture: %v", err)
	}
	return tender
}

// SubmissionFixture inserts a submitted offer for the tender.
func SubmissionFixture(t testing.TB, conn *gorm.DB, tenderID uuid.UUID, amount int64, submittedAt time.Time, mutate func(*models.Submission)) models.Submission {
	t.Helper()

	submission := models.Submission{
		ID:          uuid.New(),
		TenderID:    tenderID,
		SupplierID:  uuid.New(),
		TotalAmount: decimal.NewFromInt(amount),
		Currency:    enums.CurrencyUSD,
		Status:      enums.SubmissionStatusSubmitted,
		SubmittedAt: submittedAt.UTC(),
		CreatedAt:   submittedAt.UTC(),
		UpdatedAt:   submittedAt.UTC(),
	}
	if mutate != nil {
		mutate(&submission)
	}
	if err := conn.Create(&submission).Error; err != nil {
		t.Fatalf("insert submission fixture: %v", err)
	}
	return submission
}
