package tenders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
)

// Event drives a tender from one status to the next.
type Event string

const (
	EventPublish Event = "publish"
	EventClose   Event = "close"
	EventAward   Event = "award"
	EventCancel  Event = "cancel"
)

type transition struct {
	from        []enums.TenderStatus
	to          enums.TenderStatus
	stampColumn string
	action      enums.AuditAction
}

// Each event has exactly one target; a status missing from from is rejected.
var transitions = map[Event]transition{
	EventPublish: {
		from:        []enums.TenderStatus{enums.TenderStatusDraft},
		to:          enums.TenderStatusPublished,
		stampColumn: "published_at",
		action:      enums.AuditActionPublished,
	},
	EventClose: {
		from:        []enums.TenderStatus{enums.TenderStatusPublished},
		to:          enums.TenderStatusClosed,
		stampColumn: "closed_at",
		action:      enums.AuditActionClosed,
	},
	EventAward: {
		from:        []enums.TenderStatus{enums.TenderStatusClosed},
		to:          enums.TenderStatusAwarded,
		stampColumn: "awarded_at",
		action:      enums.AuditActionAwarded,
	},
	EventCancel: {
		from: []enums.TenderStatus{
			enums.TenderStatusDraft,
			enums.TenderStatusPublished,
			enums.TenderStatusClosed,
		},
		to:          enums.TenderStatusCancelled,
		stampColumn: "cancelled_at",
		action:      enums.AuditActionCancelled,
	},
}

// ErrConcurrentTransition is returned when the status moved between read and write.
var ErrConcurrentTransition = pkgerrors.New(pkgerrors.CodeConflict, "tender status changed concurrently")

// Next resolves the status event leads to from current.
func Next(current enums.TenderStatus, event Event) (enums.TenderStatus, error) {
	tr, ok := transitions[event]
	if !ok {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown lifecycle event %q", event)
	}
	for _, from := range tr.from {
		if from == current {
			return tr.to, nil
		}
	}
	if current == tr.to {
		return "", pkgerrors.Newf(pkgerrors.CodeConflict, "tender already %s", current)
	}
	return "", pkgerrors.Newf(pkgerrors.CodeConflict, "cannot %s a tender in status %s", event, current)
}

// ActionFor maps an event to the audit action it records.
func ActionFor(event Event) enums.AuditAction {
	return transitions[event].action
}

// Transition persists event for tender as a compare-and-set on its current
// status. On success the tender is updated in place and the previous status
// is returned. Extra columns are written in the same statement.
func Transition(ctx context.Context, tx *gorm.DB, tender *models.Tender, event Event, at time.Time, extra map[string]any) (enums.TenderStatus, error) {
	if tx == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "transition requires a transaction")
	}
	if tender == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "tender required")
	}
	previous := tender.Status
	next, err := Next(previous, event)
	if err != nil {
		return "", err
	}

	at = at.UTC()
	tr := transitions[event]
	updates := map[string]any{
		"status":       next,
		"updated_at":   at,
		tr.stampColumn: at,
	}
	for column, value := range extra {
		updates[column] = value
	}

	res := tx.WithContext(ctx).
		Model(&models.Tender{}).
		Where("id = ? AND status = ?", tender.ID, previous).
		Updates(updates)
	if res.Error != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update tender status")
	}
	if res.RowsAffected == 0 {
		return "", ErrConcurrentTransition
	}

	tender.Status = next
	tender.UpdatedAt = at
	stamp := at
	switch event {
	case EventPublish:
		tender.PublishedAt = &stamp
	case EventClose:
		tender.ClosedAt = &stamp
	case EventAward:
		tender.AwardedAt = &stamp
	case EventCancel:
		tender.CancelledAt = &stamp
	}
	return previous, nil
}
