package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
)

// Repository reads stored audit entries.
type Repository interface {
	ListByTender(ctx context.Context, tenderID uuid.UUID) ([]models.AuditEntry, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListByTender(ctx context.Context, tenderID uuid.UUID) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.WithContext(ctx).
		Where("tender_id = ?", tenderID).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

type tenderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tender, error)
}

// Service exposes a tender's audit trail to its buyer.
type Service interface {
	History(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) ([]models.AuditEntry, error)
}

type service struct {
	repo    Repository
	tenders tenderReader
}

func NewService(repo Repository, tenderRepo tenderReader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if tenderRepo == nil {
		return nil, fmt.Errorf("tenders repository required")
	}
	return &service{repo: repo, tenders: tenderRepo}, nil
}

func (s *service) History(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) ([]models.AuditEntry, error) {
	tender, err := s.tenders.FindByID(ctx, tenderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tender not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tender")
	}
	if !actor.Owns(tender) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owning buyer can read the audit trail")
	}
	entries, err := s.repo.ListByTender(ctx, tenderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit entries")
	}
	return entries, nil
}
