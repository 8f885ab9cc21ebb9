package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// OpeningReport is the immutable tally of submissions taken when a tender closes.
type OpeningReport struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenderID      uuid.UUID                 `gorm:"column:tender_id;type:uuid;not null;uniqueIndex:ux_opening_reports_tender"`
	OpenedBy      uuid.UUID                 `gorm:"column:opened_by;type:uuid;not null"`
	ReceivedCount int                       `gorm:"column:received_count;not null"`
	ValidCount    int                       `gorm:"column:valid_count;not null"`
	InvalidCount  int                       `gorm:"column:invalid_count;not null"`
	Snapshot      types.ReportSnapshot      `gorm:"column:snapshot;type:jsonb;serializer:json;not null"`
	Status        enums.OpeningReportStatus `gorm:"column:status;type:text;not null;default:'final'"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
