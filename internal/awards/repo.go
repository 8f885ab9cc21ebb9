package awards

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
)

// Repository persists purchase orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.PurchaseOrder) error
	NumberExists(ctx context.Context, number string) (bool, error)
	FindByTenderID(ctx context.Context, tenderID uuid.UUID) (*models.PurchaseOrder, error)
	CountByTender(ctx context.Context, tenderID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a purchase order repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.PurchaseOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) NumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PurchaseOrder{}).Where("number = ?", number).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) FindByTenderID(ctx context.Context, tenderID uuid.UUID) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	if err := r.db.WithContext(ctx).Where("tender_id = ?", tenderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CountByTender(ctx context.Context, tenderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PurchaseOrder{}).Where("tender_id = ?", tenderID).Count(&count).Error
	return count, err
}
