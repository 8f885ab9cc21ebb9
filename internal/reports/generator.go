package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// Input is what a report is generated from.
type Input struct {
	TenderID    uuid.UUID
	OpenedBy    uuid.UUID
	Submissions []models.Submission
}

// Tally counts and snapshots submissions.
type Tally struct {
	Received int
	Valid    int
	Invalid  int
	Snapshot types.ReportSnapshot
}

// TallySubmissions is the pure part of report generation. The snapshot holds
// copies so later edits to the submissions never reach it.
func TallySubmissions(submissions []models.Submission) Tally {
	tally := Tally{
		Received: len(submissions),
		Snapshot: make(types.ReportSnapshot, 0, len(submissions)),
	}
	for _, sub := range submissions {
		valid := sub.Status.IsValidOffer()
		if valid {
			tally.Valid++
		} else {
			tally.Invalid++
		}
		var compliance *float64
		if sub.ComplianceScore != nil {
			v := *sub.ComplianceScore
			compliance = &v
		}
		tally.Snapshot = append(tally.Snapshot, types.SubmissionSnapshot{
			SubmissionID:    sub.ID,
			SupplierID:      sub.SupplierID,
			TotalAmount:     sub.TotalAmount,
			Currency:        sub.Currency,
			SubmittedAt:     sub.SubmittedAt.UTC(),
			Status:          sub.Status,
			Valid:           valid,
			LinePrices:      sub.LinePrices.Clone(),
			CriterionScores: sub.CriterionScores.Clone(),
			ComplianceScore: compliance,
		})
	}
	return tally
}

// Generator writes the single opening report of a tender.
type Generator struct {
	repo Repository
	now  func() time.Time
}

// NewGenerator builds a generator. A nil clock uses time.Now.
func NewGenerator(repo Repository, now func() time.Time) (*Generator, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{repo: repo, now: now}, nil
}

// Generate creates the report inside tx, or returns the one already stored
// for the tender. created is false when an existing report was returned.
func (g *Generator) Generate(ctx context.Context, tx *gorm.DB, input Input) (report *models.OpeningReport, created bool, err error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "report generation requires a transaction")
	}
	if input.TenderID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "tender id required")
	}
	if input.OpenedBy == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "opener id required")
	}
	for _, sub := range input.Submissions {
		if sub.TenderID != input.TenderID {
			return nil, false, pkgerrors.Newf(pkgerrors.CodeConflict, "submission %s does not belong to tender %s", sub.ID, input.TenderID)
		}
	}

	repo := g.repo.WithTx(tx)
	existing, err := repo.FindByTenderID(ctx, input.TenderID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opening report")
	}

	tally := TallySubmissions(input.Submissions)
	report = &models.OpeningReport{
		ID:            uuid.New(),
		TenderID:      input.TenderID,
		OpenedBy:      input.OpenedBy,
		ReceivedCount: tally.Received,
		ValidCount:    tally.Valid,
		InvalidCount:  tally.Invalid,
		Snapshot:      tally.Snapshot,
		Status:        enums.OpeningReportStatusFinal,
		CreatedAt:     g.now().UTC(),
	}
	inserted, err := repo.CreateIfAbsent(ctx, report)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert opening report")
	}
	if inserted {
		return report, true, nil
	}

	// Lost a race with another closer; theirs is the report of record.
	existing, err = repo.FindByTenderID(ctx, input.TenderID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload opening report")
	}
	return existing, false, nil
}

// Find returns the stored report of a tender.
func (g *Generator) Find(ctx context.Context, tenderID uuid.UUID) (*models.OpeningReport, error) {
	report, err := g.repo.FindByTenderID(ctx, tenderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "opening report not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opening report")
	}
	return report, nil
}
