package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
)

type tenderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tender, error)
}

type reportFinder interface {
	Find(ctx context.Context, tenderID uuid.UUID) (*models.OpeningReport, error)
}

// Service loads the inputs of Analyze and enforces who may see the result.
type Service interface {
	ForTender(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*Report, error)
}

type service struct {
	tenders tenderReader
	reports reportFinder
	now     func() time.Time
}

func NewService(tenders tenderReader, reports reportFinder, now func() time.Time) (Service, error) {
	if tenders == nil {
		return nil, fmt.Errorf("tender reader required")
	}
	if reports == nil {
		return nil, fmt.Errorf("report finder required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{tenders: tenders, reports: reports, now: now}, nil
}

func (s *service) ForTender(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*Report, error) {
	tender, err := s.tenders.FindByID(ctx, tenderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tender not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tender")
	}
	if !actor.Owns(tender) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owning buyer can analyze offers")
	}
	if tender.Status != enums.TenderStatusClosed && tender.Status != enums.TenderStatusAwarded {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "analysis is not available for a tender in status %s", tender.Status)
	}
	if tender.IsSealed(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "offers are sealed until the decryption date")
	}

	report, err := s.reports.Find(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	result := Analyze(report.Snapshot, tender.Criteria, tender.LineItems)
	return &result, nil
}
