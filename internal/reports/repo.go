package reports

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
)

// Repository persists opening reports. There is no update path.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// CreateIfAbsent inserts the report unless one exists for its tender and
	// reports whether a row was written.
	CreateIfAbsent(ctx context.Context, report *models.OpeningReport) (bool, error)
	FindByTenderID(ctx context.Context, tenderID uuid.UUID) (*models.OpeningReport, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an opening report repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateIfAbsent(ctx context.Context, report *models.OpeningReport) (bool, error) {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tender_id"}}, DoNothing: true}).
		Create(report)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByTenderID(ctx context.Context, tenderID uuid.UUID) (*models.OpeningReport, error) {
	var report models.OpeningReport
	if err := r.db.WithContext(ctx).Where("tender_id = ?", tenderID).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}
