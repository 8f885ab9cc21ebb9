package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox/payloads"
)

// CurrentVersion is the envelope version written by Emit when none is set.
const CurrentVersion = 1

// DomainEvent is a tender state change to be relayed once its transaction
// commits. ID is generated when empty.
type DomainEvent struct {
	ID            uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Audit         *AuditTrace
	Version       int
	OccurredAt    time.Time
}

// WithAudit attaches entry to the event. The event takes the entry id.
func (e DomainEvent) WithAudit(entry models.AuditEntry) DomainEvent {
	e.ID = entry.ID
	e.Audit = TraceOf(entry)
	return e
}

// Emitter is the surface domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo  *Repository
	logg  *logger.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
}

// Emit inserts the event on tx, so the row commits or rolls back together
// with the caller's state change.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := checkEvent(event); err != nil {
		return err
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if event.Version == 0 {
		event.Version = CurrentVersion
	}

	eventID := event.ID
	if eventID == uuid.Nil {
		eventID = s.newID()
	}
	envelope, err := json.Marshal(PayloadEnvelope{
		Version:    event.Version,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Audit:      event.Audit,
		Data:       data,
	})
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       envelope,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":   eventID.String(),
			"event_type": event.EventType,
			"tender_id":  event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

func checkEvent(event DomainEvent) error {
	if !event.EventType.IsValid() {
		return fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return fmt.Errorf("unknown aggregate type %q", event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return errors.New("aggregate id required")
	}
	if event.Audit != nil && event.Actor == nil {
		return errors.New("audited event requires an actor")
	}
	// The relay keys ordering on the aggregate; a payload for another tender
	// would be published out of order.
	if scoped, ok := event.Data.(payloads.TenderScoped); ok && scoped.TenderKey() != event.AggregateID {
		return fmt.Errorf("%s payload tender %s does not match aggregate %s", event.EventType, scoped.TenderKey(), event.AggregateID)
	}
	return nil
}
