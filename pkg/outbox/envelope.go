package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// ActorRef identifies who caused the event. Scheduler sweeps use the
// configured system actor.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload. EventID
// equals the outbox row id.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Audit      *AuditTrace     `json:"audit,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// AuditTrace is the audit entry committed with the event. The entry id is the
// event id, so a copy rebuilt from the outbox collides with the buffered one.
type AuditTrace struct {
	Action         enums.AuditAction   `json:"action"`
	PreviousStatus *enums.TenderStatus `json:"previousStatus,omitempty"`
	NewStatus      enums.TenderStatus  `json:"newStatus"`
	Metadata       map[string]any      `json:"metadata,omitempty"`
}

// TraceOf copies the state change of entry into a trace.
func TraceOf(entry models.AuditEntry) *AuditTrace {
	return &AuditTrace{
		Action:         entry.Action,
		PreviousStatus: entry.PreviousStatus,
		NewStatus:      entry.NewStatus,
		Metadata:       entry.Metadata,
	}
}

// AuditEntry rebuilds the entry committed with event. ok is false when the
// event carries no trace.
func (e PayloadEnvelope) AuditEntry(event models.OutboxEvent) (models.AuditEntry, bool) {
	if e.Audit == nil {
		return models.AuditEntry{}, false
	}
	entry := models.AuditEntry{
		ID:             event.ID,
		TenderID:       event.AggregateID,
		Action:         e.Audit.Action,
		PreviousStatus: e.Audit.PreviousStatus,
		NewStatus:      e.Audit.NewStatus,
		OccurredAt:     e.OccurredAt.UTC(),
	}
	if e.Actor != nil {
		entry.ActorID = e.Actor.UserID
	}
	if len(e.Audit.Metadata) > 0 {
		entry.Metadata = types.JSONMap(e.Audit.Metadata)
	}
	return entry, true
}

// DecodeEnvelope parses a stored payload and rejects versions this build
// cannot read.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version < 1 || envelope.Version > CurrentVersion {
		return envelope, fmt.Errorf("unsupported envelope version %d", envelope.Version)
	}
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		return envelope, fmt.Errorf("invalid envelope event id %q", envelope.EventID)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return envelope, errors.New("envelope data missing")
	}
	envelope.Data = data
	return envelope, nil
}
