package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
)

type tenderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tender, error)
}

// View is an opening report as shown to the buyer. While offers are sealed
// only the counts are exposed.
type View struct {
	Report *models.OpeningReport `json:"report"`
	Sealed bool                  `json:"sealed"`
}

// Service serves opening reports to the owning buyer.
type Service interface {
	ForTender(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*View, error)
}

type service struct {
	tenders   tenderReader
	generator *Generator
	now       func() time.Time
}

func NewService(tenders tenderReader, generator *Generator, now func() time.Time) (Service, error) {
	if tenders == nil {
		return nil, fmt.Errorf("tender reader required")
	}
	if generator == nil {
		return nil, fmt.Errorf("report generator required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{tenders: tenders, generator: generator, now: now}, nil
}

func (s *service) ForTender(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*View, error) {
	tender, err := s.tenders.FindByID(ctx, tenderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tender not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tender")
	}
	if !actor.Owns(tender) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owning buyer can read the opening report")
	}

	report, err := s.generator.Find(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	if tender.IsSealed(s.now()) {
		redacted := *report
		redacted.Snapshot = nil
		return &View{Report: &redacted, Sealed: true}, nil
	}
	return &View{Report: report}, nil
}
