package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// PurchaseOrder is the binding document produced by an award.
type PurchaseOrder struct {
	ID           uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number       string                    `gorm:"column:number;not null;uniqueIndex:ux_purchase_orders_number"`
	TenderID     uuid.UUID                 `gorm:"column:tender_id;type:uuid;not null;uniqueIndex:ux_purchase_orders_tender"`
	SubmissionID uuid.UUID                 `gorm:"column:submission_id;type:uuid;not null"`
	SupplierID   uuid.UUID                 `gorm:"column:supplier_id;type:uuid;not null"`
	BuyerID      uuid.UUID                 `gorm:"column:buyer_id;type:uuid;not null"`
	TotalAmount  decimal.Decimal           `gorm:"column:total_amount;type:numeric(14,2);not null"`
	Currency     enums.Currency            `gorm:"column:currency;type:text;not null"`
	Status       enums.PurchaseOrderStatus `gorm:"column:status;type:purchase_order_status;not null;default:'pending'"`
	LineItems    types.POLines             `gorm:"column:line_items;type:jsonb;serializer:json"`
	Terms        types.POTerms             `gorm:"column:terms;type:jsonb;serializer:json"`
	CreatedAt    time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
