package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// Submission is a supplier's priced offer against a tender.
type Submission struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenderID        uuid.UUID              `gorm:"column:tender_id;type:uuid;not null;uniqueIndex:ux_submissions_tender_supplier"`
	SupplierID      uuid.UUID              `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_submissions_tender_supplier"`
	TotalAmount     decimal.Decimal        `gorm:"column:total_amount;type:numeric(14,2);not null"`
	Currency        enums.Currency         `gorm:"column:currency;type:text;not null"`
	LinePrices      types.LinePrices       `gorm:"column:line_prices;type:jsonb;serializer:json"`
	CriterionScores types.CriterionScores  `gorm:"column:criterion_scores;type:jsonb;serializer:json"`
	ComplianceScore *float64               `gorm:"column:compliance_score"`
	Status          enums.SubmissionStatus `gorm:"column:status;type:submission_status;not null;default:'submitted'"`
	SubmittedAt     time.Time              `gorm:"column:submitted_at;not null"`
	EvaluationScore *float64               `gorm:"column:evaluation_score"`
	IsWinner        bool                   `gorm:"column:is_winner;not null;default:false"`
	WithdrawnAt     *time.Time             `gorm:"column:withdrawn_at"`
	Notes           *string                `gorm:"column:notes"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
