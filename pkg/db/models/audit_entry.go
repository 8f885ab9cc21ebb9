package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// AuditEntry is one append-only record of a tender lifecycle event.
type AuditEntry struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenderID       uuid.UUID           `gorm:"column:tender_id;type:uuid;not null;index:ix_audit_entries_tender_occurred,priority:1"`
	ActorID        uuid.UUID           `gorm:"column:actor_id;type:uuid;not null"`
	Action         enums.AuditAction   `gorm:"column:action;type:audit_action;not null"`
	PreviousStatus *enums.TenderStatus `gorm:"column:previous_status;type:tender_status"`
	NewStatus      enums.TenderStatus  `gorm:"column:new_status;type:tender_status;not null"`
	Metadata       types.JSONMap       `gorm:"column:metadata;type:jsonb;serializer:json"`
	OccurredAt     time.Time           `gorm:"column:occurred_at;not null;index:ix_audit_entries_tender_occurred,priority:2"`
}
