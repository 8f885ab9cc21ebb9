package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	svc := outbox.NewService(repo, logger.Nop())
	tenderID := uuid.New()
	actor := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventTenderPublished,
			AggregateType: enums.AggregateTender,
			AggregateID:   tenderID,
			Actor:         &outbox.ActorRef{UserID: actor, Role: "buyer"},
			Data:          payloads.TenderPublishedEvent{TenderID: tenderID, Number: "TND-2026-000001"},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListForAggregate(context.Background(), tenderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventTenderPublished, rows[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, outbox.CurrentVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor, envelope.Actor.UserID)

	var data payloads.TenderPublishedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "TND-2026-000001", data.Number)
}

func TestEmitCarriesAuditEntryUnderItsID(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	svc := outbox.NewService(repo, logger.Nop())
	tenderID := uuid.New()
	previous := enums.TenderStatusDraft
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	entry := models.AuditEntry{
		ID:             uuid.New(),
		TenderID:       tenderID,
		ActorID:        uuid.New(),
		Action:         enums.AuditActionPublished,
		PreviousStatus: &previous,
		NewStatus:      enums.TenderStatusPublished,
		OccurredAt:     at,
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventTenderPublished,
			AggregateType: enums.AggregateTender,
			AggregateID:   tenderID,
			Actor:         &outbox.ActorRef{UserID: entry.ActorID, Role: "buyer"},
			OccurredAt:    at,
			Data:          payloads.TenderPublishedEvent{TenderID: tenderID},
		}.WithAudit(entry))
	})
	require.NoError(t, err)

	rows, err := repo.ListForAggregate(context.Background(), tenderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, entry.ID, rows[0].ID)

	envelope, err := outbox.DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, entry.ID.String(), envelope.EventID)
	rebuilt, ok := envelope.AuditEntry(rows[0])
	require.True(t, ok)
	assert.Equal(t, entry.ID, rebuilt.ID)
	assert.Equal(t, tenderID, rebuilt.TenderID)
	assert.Equal(t, entry.ActorID, rebuilt.ActorID)
	assert.Equal(t, enums.AuditActionPublished, rebuilt.Action)
	require.NotNil(t, rebuilt.PreviousStatus)
	assert.Equal(t, enums.TenderStatusDraft, *rebuilt.PreviousStatus)
	assert.Equal(t, enums.TenderStatusPublished, rebuilt.NewStatus)
	assert.True(t, at.Equal(rebuilt.OccurredAt))
}

func TestEmitRejectsAuditWithoutActor(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), nil)
	tenderID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventTenderClosed,
			AggregateType: enums.AggregateTender,
			AggregateID:   tenderID,
			Data:          payloads.TenderClosedEvent{TenderID: tenderID},
		}.WithAudit(models.AuditEntry{ID: uuid.New(), TenderID: tenderID, Action: enums.AuditActionClosed}))
	})
	require.Error(t, err)
}

func TestEnvelopeWithoutAuditTrace(t *testing.T) {
	envelope := outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), Data: json.RawMessage(`{}`)}
	_, ok := envelope.AuditEntry(models.OutboxEvent{ID: uuid.New()})
	assert.False(t, ok)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	svc := outbox.NewService(repo, nil)
	tenderID := uuid.New()

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventTenderClosed,
			AggregateType: enums.AggregateTender,
			AggregateID:   tenderID,
			Data:          payloads.TenderClosedEvent{TenderID: tenderID},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListForAggregate(context.Background(), tenderID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := outbox.NewService(outbox.NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, outbox.DomainEvent{EventType: enums.EventTenderClosed})
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := insertEvent(t, conn, time.Now().UTC(), 0, nil)
	insertEvent(t, conn, old, 5, nil)
	insertEvent(t, conn, old, 0, &old)

	var fetched []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	require.Len(t, fetched, 1)
	assert.Equal(t, fresh, fetched[0].ID)

	require.NoError(t, repo.MarkFailedTx(conn, fresh, errors.New("unavailable")))
	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "id = ?", fresh).Error)
	assert.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "unavailable", *row.LastError)

	require.NoError(t, repo.MarkPublishedTx(conn, fresh))
	require.NoError(t, conn.First(&row, "id = ?", fresh).Error)
	assert.NotNil(t, row.PublishedAt)

	deleted, err := repo.DeletePublishedBefore(ctx, conn, time.Now().UTC().Add(-24*time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh, remaining[0].ID)
}

func TestDLQRepository(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewDLQRepository(conn)
	eventID := uuid.New()
	msg := strings.Repeat("x", 2000)

	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventTenderAwarded,
		AggregateType: enums.AggregateTender,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		FailedAt:      time.Now().UTC(),
	}))

	found, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, 1024)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func insertEvent(t *testing.T, conn *gorm.DB, createdAt time.Time, attempts int, publishedAt *time.Time) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTenderClosed,
		AggregateType: enums.AggregateTender,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     createdAt,
		AttemptCount:  attempts,
		PublishedAt:   publishedAt,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row.ID
}

func TestEmitRejectsPayloadForAnotherTender(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventTenderCancelled,
			AggregateType: enums.AggregateTender,
			AggregateID:   uuid.New(),
			Data:          payloads.TenderCancelledEvent{TenderID: uuid.New()},
		})
	})
	require.Error(t, err)
}

func TestDLQRepositoryRejectsUnknownReason(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewDLQRepository(conn)

	err := repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventTenderClosed,
		AggregateType: enums.AggregateTender,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQErrorReason("gave_up"),
	})
	require.Error(t, err)
}
