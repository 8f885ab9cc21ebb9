package registry

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox/payloads"
)

// EventDescriptor binds an event type to its topic and payload shape.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() payloads.TenderScoped
}

// ResolvedEvent is an outbox row decoded and checked against its descriptor.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    payloads.TenderScoped
}

// EventRegistry knows every tender lifecycle event the relay may publish.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps err so the relay dead-letters instead of retrying.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) NonRetryableError {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// NewEventRegistry routes all tender events to the configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := cfg.TenderEventsTopic
	if topic == "" {
		return nil, fmt.Errorf("tender events topic is required")
	}

	factories := map[enums.OutboxEventType]func() payloads.TenderScoped{
		enums.EventTenderCreated:   func() payloads.TenderScoped { return &payloads.TenderCreatedEvent{} },
		enums.EventTenderUpdated:   func() payloads.TenderScoped { return &payloads.TenderUpdatedEvent{} },
		enums.EventTenderPublished: func() payloads.TenderScoped { return &payloads.TenderPublishedEvent{} },
		enums.EventTenderClosed:    func() payloads.TenderScoped { return &payloads.TenderClosedEvent{} },
		enums.EventTenderAwarded:   func() payloads.TenderScoped { return &payloads.TenderAwardedEvent{} },
		enums.EventTenderCancelled: func() payloads.TenderScoped { return &payloads.TenderCancelledEvent{} },
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(factories))}
	for eventType, factory := range factories {
		reg.entries[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: enums.AggregateTender,
			Topic:         topic,
			newPayload:    factory,
		}
	}
	return reg, nil
}

// Topics lists the distinct topics events are routed to.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

// Resolve decodes the row's envelope and payload. Every failure here is
// permanent: the row is malformed and retrying cannot fix it.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, nonRetryable("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, nonRetryable("%s: %w", event.EventType, err)
	}

	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	// Consumers order by tender, so the payload must belong to the row's key.
	if id := payload.TenderKey(); id != event.AggregateID {
		return nil, nonRetryable("%s payload tender %s does not match aggregate %s", event.EventType, id, event.AggregateID)
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
