package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/metrics"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
)

const (
	defaultBackfillGrace    = 5 * time.Minute
	defaultBackfillLookback = 72 * time.Hour
	defaultBackfillBatch    = 200
)

// BackfillOptions tunes the outbox scan.
type BackfillOptions struct {
	// Grace leaves recent events to the buffered recorder.
	Grace    time.Duration
	Lookback time.Duration
	Batch    int
	Metrics  *metrics.AuditMetrics
	Now      func() time.Time
}

// Backfiller restores audit entries that were committed with their outbox
// event but never reached audit_entries, e.g. after a crash between commit
// and flush.
type Backfiller struct {
	db       *gorm.DB
	logg     *logger.Logger
	metrics  *metrics.AuditMetrics
	grace    time.Duration
	lookback time.Duration
	batch    int
	now      func() time.Time
}

func NewBackfiller(db *gorm.DB, logg *logger.Logger, opts BackfillOptions) (*Backfiller, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	b := &Backfiller{
		db:       db,
		logg:     logg,
		metrics:  opts.Metrics,
		grace:    opts.Grace,
		lookback: opts.Lookback,
		batch:    opts.Batch,
		now:      opts.Now,
	}
	if b.grace <= 0 {
		b.grace = defaultBackfillGrace
	}
	if b.lookback <= b.grace {
		b.lookback = max(defaultBackfillLookback, 2*b.grace)
	}
	if b.batch <= 0 {
		b.batch = defaultBackfillBatch
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// Backfill inserts the entries of tender events older than the grace period
// that have no audit row under the event id. It returns how many were restored.
func (b *Backfiller) Backfill(ctx context.Context) (int, error) {
	now := b.now().UTC()
	var events []models.OutboxEvent
	err := b.db.WithContext(ctx).
		Where("aggregate_type = ?", enums.AggregateTender).
		Where("created_at <= ? AND created_at >= ?", now.Add(-b.grace), now.Add(-b.lookback)).
		Where("NOT EXISTS (SELECT 1 FROM audit_entries a WHERE a.id = outbox_events.id)").
		Order("created_at ASC").
		Order("id ASC").
		Limit(b.batch).
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("scan outbox for missing audit entries: %w", err)
	}

	entries := make([]models.AuditEntry, 0, len(events))
	for _, event := range events {
		envelope, err := outbox.DecodeEnvelope(event.Payload)
		if err != nil {
			b.logg.Warn(b.logg.WithField(ctx, "event_id", event.ID.String()), "outbox event unreadable, audit entry not restored")
			continue
		}
		entry, ok := envelope.AuditEntry(event)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	res := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&entries)
	if res.Error != nil {
		return 0, fmt.Errorf("restore audit entries: %w", res.Error)
	}
	restored := int(res.RowsAffected)
	if restored > 0 {
		b.metrics.AddBackfilled(restored)
		b.logg.Warn(b.logg.WithField(ctx, "restored", restored), "audit entries restored from outbox")
	}
	return restored, nil
}
