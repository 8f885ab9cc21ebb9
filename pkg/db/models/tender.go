package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// Tender is a sealed-bid procurement request owned by a buyer.
type Tender struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number             string              `gorm:"column:number;not null;uniqueIndex"`
	BuyerID            uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	Title              string              `gorm:"column:title;not null"`
	Description        *string             `gorm:"column:description"`
	Status             enums.TenderStatus  `gorm:"column:status;type:tender_status;not null;default:'draft'"`
	Currency           enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	BudgetMin          decimal.NullDecimal `gorm:"column:budget_min;type:numeric(14,2)"`
	BudgetMax          decimal.NullDecimal `gorm:"column:budget_max;type:numeric(14,2)"`
	SubmissionDeadline time.Time           `gorm:"column:submission_deadline;not null"`
	DecryptionDate     *time.Time          `gorm:"column:decryption_date"`
	InquiryStart       *time.Time          `gorm:"column:inquiry_start"`
	InquiryEnd         *time.Time          `gorm:"column:inquiry_end"`
	Criteria           types.Criteria      `gorm:"column:criteria;type:jsonb;serializer:json"`
	LineItems          types.LineItems     `gorm:"column:line_items;type:jsonb;serializer:json"`
	IsPublic           bool                `gorm:"column:is_public;not null"`
	PublishedAt        *time.Time          `gorm:"column:published_at"`
	ClosedAt           *time.Time          `gorm:"column:closed_at"`
	AwardedAt          *time.Time          `gorm:"column:awarded_at"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	CancelReason       *string             `gorm:"column:cancel_reason"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsSealed reports whether offers must stay hidden at the given instant.
// Offers open at the decryption date when one is set, at the deadline otherwise.
func (t Tender) IsSealed(now time.Time) bool {
	if t.DecryptionDate != nil {
		return now.Before(*t.DecryptionDate)
	}
	return now.Before(t.SubmissionDeadline)
}
