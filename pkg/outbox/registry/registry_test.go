package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	tenderID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.TenderClosedEvent{
		TenderID:      tenderID,
		Number:        "TND-2026-000001",
		ReceivedCount: 2,
		ValidCount:    2,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventTenderClosed,
		AggregateType: enums.AggregateTender,
		AggregateID:   tenderID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "tender-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.TenderClosedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.TenderID != tenderID || payload.ReceivedCount != 2 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata missing: %+v", resolved.Envelope)
	}
}

func TestEventRegistryCoversEveryTenderEvent(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventTenderCreated,
		enums.EventTenderUpdated,
		enums.EventTenderPublished,
		enums.EventTenderClosed,
		enums.EventTenderAwarded,
		enums.EventTenderCancelled,
	} {
		desc, ok := reg.entries[eventType]
		if !ok {
			t.Fatalf("event %s not registered", eventType)
		}
		if desc.AggregateType != enums.AggregateTender {
			t.Fatalf("event %s has aggregate %s", eventType, desc.AggregateType)
		}
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("tender_reopened"),
		AggregateType: enums.AggregateTender,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	assertNonRetryable(t, err)
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventTenderAwarded,
		AggregateType: enums.AggregatePurchaseOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	_, err := reg.Resolve(event)
	assertNonRetryable(t, err)
}

func TestEventRegistryResolveMissingPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventTenderPublished,
		AggregateType: enums.AggregateTender,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`null`)),
	}

	_, err := reg.Resolve(event)
	assertNonRetryable(t, err)
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatal("expected error without topic")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{TenderEventsTopic: "tender-topic"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func assertNonRetryable(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %T", err)
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func mustEnvelope(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	}
	return mustMarshal(t, env)
}

func TestEventRegistryResolveRejectsForeignTender(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventTenderCancelled,
		AggregateType: enums.AggregateTender,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, mustMarshal(t, payloads.TenderCancelledEvent{TenderID: uuid.New()})),
	}

	_, err := reg.Resolve(event)
	assertNonRetryable(t, err)
}

func TestEventRegistryResolveRejectsNewerEnvelope(t *testing.T) {
	reg := newTestEventRegistry(t)
	tenderID := uuid.New()

	env := outbox.PayloadEnvelope{
		Version:    outbox.CurrentVersion + 1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       mustMarshal(t, payloads.TenderClosedEvent{TenderID: tenderID}),
	}
	event := models.OutboxEvent{
		EventType:     enums.EventTenderClosed,
		AggregateType: enums.AggregateTender,
		AggregateID:   tenderID,
		Payload:       mustMarshal(t, env),
	}

	_, err := reg.Resolve(event)
	assertNonRetryable(t, err)
}

func TestEventRegistryTopics(t *testing.T) {
	topics := newTestEventRegistry(t).Topics()
	if len(topics) != 1 || topics[0] != "tender-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}
