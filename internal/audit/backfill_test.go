package audit

import (
	"context"
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
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

// commitClose writes a closed event carrying entry, as the sweep does, and
// backdates the row to createdAt.
func commitClose(t *testing.T, conn *gorm.DB, tender models.Tender, entry models.AuditEntry, createdAt time.Time) {
	t.Helper()
	svc := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventTenderClosed,
			AggregateType: enums.AggregateTender,
			AggregateID:   tender.ID,
			Actor:         &outbox.ActorRef{UserID: entry.ActorID, Role: enums.ActorRoleSystem.String()},
			OccurredAt:    entry.OccurredAt,
			Data: payloads.TenderClosedEvent{
				TenderID: tender.ID,
				Number:   tender.Number,
				BuyerID:  tender.BuyerID,
				ClosedAt: entry.OccurredAt,
			},
		}.WithAudit(entry))
	})
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", entry.ID).Update("created_at", createdAt).Error)
}

func closedEntry(tender models.Tender, at time.Time) models.AuditEntry {
	previous := enums.TenderStatusPublished
	return models.AuditEntry{
		ID:             uuid.New(),
		TenderID:       tender.ID,
		ActorID:        uuid.New(),
		Action:         enums.AuditActionClosed,
		PreviousStatus: &previous,
		NewStatus:      enums.TenderStatusClosed,
		Metadata:       types.JSONMap{"valid_count": float64(2)},
		OccurredAt:     at,
	}
}

func newBackfiller(t *testing.T, conn *gorm.DB, now time.Time) *Backfiller {
	t.Helper()
	b, err := NewBackfiller(conn, logger.Nop(), BackfillOptions{
		Grace:    5 * time.Minute,
		Lookback: 24 * time.Hour,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return b
}

func TestBackfillRestoresEntryLostBeforeFlush(t *testing.T) {
	conn := dbtest.Open(t)
	tender := dbtest.TenderFixture(t, conn, nil)
	lost := closedEntry(tender, dbtest.Epoch)

	// the recorder buffered the entry and the process died before Flush
	rec, err := NewRecorder(conn, logger.Nop(), Options{})
	require.NoError(t, err)
	commitClose(t, conn, tender, lost, dbtest.Epoch)
	rec.Record(context.Background(), lost)
	assert.EqualValues(t, 0, countEntries(t, conn))

	restored, err := newBackfiller(t, conn, dbtest.Epoch.Add(10*time.Minute)).Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	var stored models.AuditEntry
	require.NoError(t, conn.First(&stored, "id = ?", lost.ID).Error)
	assert.Equal(t, tender.ID, stored.TenderID)
	assert.Equal(t, lost.ActorID, stored.ActorID)
	assert.Equal(t, enums.AuditActionClosed, stored.Action)
	require.NotNil(t, stored.PreviousStatus)
	assert.Equal(t, enums.TenderStatusPublished, *stored.PreviousStatus)
	assert.Equal(t, enums.TenderStatusClosed, stored.NewStatus)
	assert.EqualValues(t, 2, stored.Metadata["valid_count"])
	assert.True(t, stored.OccurredAt.Equal(dbtest.Epoch))

	// a late flush of the same buffered entry cannot duplicate it
	require.NoError(t, rec.Flush(context.Background()))
	assert.EqualValues(t, 1, countEntries(t, conn))
}

func TestBackfillIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	tender := dbtest.TenderFixture(t, conn, nil)
	commitClose(t, conn, tender, closedEntry(tender, dbtest.Epoch), dbtest.Epoch)
	b := newBackfiller(t, conn, dbtest.Epoch.Add(time.Hour))

	first, err := b.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := b.Backfill(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second)
	assert.EqualValues(t, 1, countEntries(t, conn))
}

func TestBackfillLeavesRecentEventsToTheRecorder(t *testing.T) {
	conn := dbtest.Open(t)
	tender := dbtest.TenderFixture(t, conn, nil)
	now := dbtest.Epoch.Add(time.Hour)
	commitClose(t, conn, tender, closedEntry(tender, now), now.Add(-time.Minute))

	restored, err := newBackfiller(t, conn, now).Backfill(context.Background())
	require.NoError(t, err)
	assert.Zero(t, restored)
	assert.EqualValues(t, 0, countEntries(t, conn))
}

func TestBackfillSkipsEntriesAlreadyFlushed(t *testing.T) {
	conn := dbtest.Open(t)
	tender := dbtest.TenderFixture(t, conn, nil)
	flushed := closedEntry(tender, dbtest.Epoch)
	commitClose(t, conn, tender, flushed, dbtest.Epoch)

	rec, err := NewRecorder(conn, logger.Nop(), Options{})
	require.NoError(t, err)
	rec.Record(context.Background(), flushed)
	require.NoError(t, rec.Flush(context.Background()))

	restored, err := newBackfiller(t, conn, dbtest.Epoch.Add(time.Hour)).Backfill(context.Background())
	require.NoError(t, err)
	assert.Zero(t, restored)
	assert.EqualValues(t, 1, countEntries(t, conn))
}

func TestBackfillIgnoresRolledBackTransitions(t *testing.T) {
	conn := dbtest.Open(t)
	tender := dbtest.TenderFixture(t, conn, nil)
	entry := closedEntry(tender, dbtest.Epoch)
	svc := outbox.NewService(outbox.NewRepository(conn), logger.Nop())

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventTenderClosed,
			AggregateType: enums.AggregateTender,
			AggregateID:   tender.ID,
			Actor:         &outbox.ActorRef{UserID: entry.ActorID},
			OccurredAt:    entry.OccurredAt,
			Data:          payloads.TenderClosedEvent{TenderID: tender.ID},
		}.WithAudit(entry)); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	restored, err := newBackfiller(t, conn, time.Now().Add(time.Hour)).Backfill(context.Background())
	require.NoError(t, err)
	assert.Zero(t, restored)
	assert.EqualValues(t, 0, countEntries(t, conn))
}
