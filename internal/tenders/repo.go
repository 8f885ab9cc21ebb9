package tenders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/pagination"
)

// Repository persists tenders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, tender *models.Tender) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tender, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Tender, error)
	UpdateDraft(ctx context.Context, tender *models.Tender, columns []string) error
	NumberExists(ctx context.Context, number string) (bool, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*TenderList, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Tender, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a tenders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, tender *models.Tender) error {
	if tender.ID == uuid.Nil {
		tender.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(tender).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tender, error) {
	var tender models.Tender
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tender).Error; err != nil {
		return nil, err
	}
	return &tender, nil
}

// FindByIDForUpdate row-locks the tender on postgres. Other dialects fall back
// to a plain read; the status CAS still guards the write.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Tender, error) {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var tender models.Tender
	if err := query.First(&tender).Error; err != nil {
		return nil, err
	}
	return &tender, nil
}

// UpdateDraft writes the selected columns only while the tender is still a
// draft. Returns gorm.ErrRecordNotFound when no draft row matched.
func (r *repository) UpdateDraft(ctx context.Context, tender *models.Tender, columns []string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Tender{}).
		Where("id = ? AND status = ?", tender.ID, enums.TenderStatusDraft).
		Select(columns).
		Updates(tender)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) NumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Tender{}).Where("number = ?", number).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) (*TenderList, error) {
	query := r.db.WithContext(ctx).Model(&models.Tender{})

	if filter.BuyerID != nil {
		query = query.Where("buyer_id = ?", *filter.BuyerID)
	} else {
		query = query.Where("is_public = ? AND status IN ?", true, []enums.TenderStatus{
			enums.TenderStatusPublished,
			enums.TenderStatusClosed,
			enums.TenderStatusAwarded,
		})
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	var rows []models.Tender
	if err := pagination.Apply(query, cursor).
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	rows, nextCursor := pagination.Trim(rows, params.Limit, func(t models.Tender) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return &TenderList{Tenders: rows, NextCursor: nextCursor}, nil
}

// ListOverdue returns published tenders whose deadline has passed, oldest
// deadline first.
func (r *repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Tender, error) {
	var rows []models.Tender
	err := r.db.WithContext(ctx).
		Where("status = ? AND submission_deadline <= ?", enums.TenderStatusPublished, now.UTC()).
		Order("submission_deadline ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
