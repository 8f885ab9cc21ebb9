package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/internal/reports"
	"github.com/angelmondragon/tenderflow-backend/internal/submissions"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (r *recordingAudit) Record(_ context.Context, entry models.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// flakyGenerator fails for one tender and delegates for the rest.
type flakyGenerator struct {
	next   reportGenerator
	failOn uuid.UUID
}

func (f flakyGenerator) Generate(ctx context.Context, tx *gorm.DB, input reports.Input) (*models.OpeningReport, bool, error) {
	if input.TenderID == f.failOn {
		return nil, false, errors.New("statement timeout")
	}
	return f.next.Generate(ctx, tx, input)
}

type sweepHarness struct {
	conn  *gorm.DB
	job   *AutoCloseJob
	audit *recordingAudit
	now   time.Time
}

func newSweepHarness(t *testing.T, mutate func(*AutoCloseJobParams)) *sweepHarness {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	now := dbtest.Epoch.Add(time.Minute)
	gen, err := reports.NewGenerator(reports.NewRepository(conn), func() time.Time { return now })
	require.NoError(t, err)
	audit := &recordingAudit{}
	params := AutoCloseJobParams{
		Logger:      logger.Nop(),
		DB:          client,
		Tenders:     tenders.NewRepository(conn),
		Submissions: submissions.NewRepository(conn),
		Reports:     gen,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Audit:       audit,
		SystemActor: uuid.MustParse(config.DefaultSystemActor),
		Now:         func() time.Time { return now },
	}
	if mutate != nil {
		mutate(&params)
	}
	job, err := NewAutoCloseJob(params)
	require.NoError(t, err)
	return &sweepHarness{conn: conn, job: job, audit: audit, now: now}
}

func (h *sweepHarness) status(t *testing.T, id uuid.UUID) enums.TenderStatus {
	t.Helper()
	var tender models.Tender
	require.NoError(t, h.conn.First(&tender, "id = ?", id).Error)
	return tender.Status
}

func (h *sweepHarness) reportCount(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(&models.OpeningReport{}).Where("tender_id = ?", id).Count(&n).Error)
	return n
}

func TestSweepClosesOverdueTenderWithReport(t *testing.T) {
	h := newSweepHarness(t, nil)
	tender := dbtest.TenderFixture(t, h.conn, nil)
	dbtest.SubmissionFixture(t, h.conn, tender.ID, 1000, dbtest.Epoch.Add(-2*time.Hour), nil)
	dbtest.SubmissionFixture(t, h.conn, tender.ID, 1200, dbtest.Epoch.Add(-time.Hour), nil)

	result, err := h.job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Closed: 1}, result)
	assert.Equal(t, enums.TenderStatusClosed, h.status(t, tender.ID))

	var report models.OpeningReport
	require.NoError(t, h.conn.First(&report, "tender_id = ?", tender.ID).Error)
	assert.Equal(t, 2, report.ReceivedCount)
	assert.Equal(t, 2, report.ValidCount)
	assert.Equal(t, 0, report.InvalidCount)
	assert.Len(t, report.Snapshot, 2)

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_id = ?", tender.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventTenderClosed, events[0].EventType)

	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, enums.AuditActionClosed, h.audit.entries[0].Action)
	assert.Equal(t, enums.TenderStatusPublished, *h.audit.entries[0].PreviousStatus)

	actor := uuid.MustParse(config.DefaultSystemActor)
	assert.Equal(t, actor, report.OpenedBy)
	assert.Equal(t, actor, h.audit.entries[0].ActorID)

	assert.Equal(t, h.audit.entries[0].ID, events[0].ID)
	envelope, err := outbox.DecodeEnvelope(events[0].Payload)
	require.NoError(t, err)
	traced, ok := envelope.AuditEntry(events[0])
	require.True(t, ok)
	assert.Equal(t, actor, traced.ActorID)
	assert.Equal(t, enums.AuditActionClosed, traced.Action)
	assert.Equal(t, enums.TenderStatusClosed, traced.NewStatus)
}

func TestNewAutoCloseJobRequiresSystemActor(t *testing.T) {
	client := dbtest.Client(t)
	conn := client.DB()
	gen, err := reports.NewGenerator(reports.NewRepository(conn), nil)
	require.NoError(t, err)

	_, err = NewAutoCloseJob(AutoCloseJobParams{
		Logger:      logger.Nop(),
		DB:          client,
		Tenders:     tenders.NewRepository(conn),
		Submissions: submissions.NewRepository(conn),
		Reports:     gen,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Audit:       &recordingAudit{},
		SystemActor: uuid.Nil,
	})
	require.Error(t, err)
}

func TestSweepTwiceIsIdempotent(t *testing.T) {
	h := newSweepHarness(t, nil)
	tender := dbtest.TenderFixture(t, h.conn, nil)
	dbtest.SubmissionFixture(t, h.conn, tender.ID, 1000, dbtest.Epoch.Add(-time.Hour), nil)

	_, err := h.job.Sweep(context.Background())
	require.NoError(t, err)
	second, err := h.job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, second)

	closed, err := h.job.closeOne(context.Background(), tender.ID, h.now)
	require.NoError(t, err)
	assert.False(t, closed)

	assert.EqualValues(t, 1, h.reportCount(t, tender.ID))
	assert.Len(t, h.audit.entries, 1)
	var events int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", tender.ID).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestSweepSkipsTendersNotYetDue(t *testing.T) {
	h := newSweepHarness(t, nil)
	future := dbtest.TenderFixture(t, h.conn, func(tn *models.Tender) {
		tn.SubmissionDeadline = dbtest.Epoch.Add(time.Hour)
	})
	draft := dbtest.TenderFixture(t, h.conn, func(tn *models.Tender) {
		tn.Status = enums.TenderStatusDraft
		tn.PublishedAt = nil
	})

	result, err := h.job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
	assert.Equal(t, enums.TenderStatusPublished, h.status(t, future.ID))
	assert.Equal(t, enums.TenderStatusDraft, h.status(t, draft.ID))
}

func TestSweepContinuesPastFailingTender(t *testing.T) {
	h := newSweepHarness(t, nil)
	failing := dbtest.TenderFixture(t, h.conn, func(tn *models.Tender) {
		tn.SubmissionDeadline = dbtest.Epoch.Add(-time.Hour)
	})
	healthy := dbtest.TenderFixture(t, h.conn, nil)
	generator := h.job.reports
	h.job.reports = flakyGenerator{next: generator, failOn: failing.ID}

	result, err := h.job.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, SweepResult{Closed: 1, Failed: 1}, result)
	assert.Equal(t, enums.TenderStatusPublished, h.status(t, failing.ID))
	assert.Equal(t, enums.TenderStatusClosed, h.status(t, healthy.ID))
	assert.EqualValues(t, 0, h.reportCount(t, failing.ID))

	h.job.reports = generator
	retry, err := h.job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Closed: 1}, retry)
	assert.Equal(t, enums.TenderStatusClosed, h.status(t, failing.ID))
}

func TestSweepCapsBatchOldestFirst(t *testing.T) {
	h := newSweepHarness(t, func(p *AutoCloseJobParams) { p.BatchSize = 2 })
	oldest := dbtest.TenderFixture(t, h.conn, func(tn *models.Tender) {
		tn.SubmissionDeadline = dbtest.Epoch.Add(-3 * time.Hour)
	})
	middle := dbtest.TenderFixture(t, h.conn, func(tn *models.Tender) {
		tn.SubmissionDeadline = dbtest.Epoch.Add(-2 * time.Hour)
	})
	newest := dbtest.TenderFixture(t, h.conn, nil)

	result, err := h.job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Closed)
	assert.Equal(t, enums.TenderStatusClosed, h.status(t, oldest.ID))
	assert.Equal(t, enums.TenderStatusClosed, h.status(t, middle.ID))
	assert.Equal(t, enums.TenderStatusPublished, h.status(t, newest.ID))
}

func TestSweepCountsWithdrawnAsInvalid(t *testing.T) {
	h := newSweepHarness(t, nil)
	tender := dbtest.TenderFixture(t, h.conn, nil)
	dbtest.SubmissionFixture(t, h.conn, tender.ID, 1000, dbtest.Epoch.Add(-2*time.Hour), nil)
	dbtest.SubmissionFixture(t, h.conn, tender.ID, 900, dbtest.Epoch.Add(-time.Hour), func(s *models.Submission) {
		s.Status = enums.SubmissionStatusWithdrawn
	})

	_, err := h.job.Sweep(context.Background())
	require.NoError(t, err)

	var report models.OpeningReport
	require.NoError(t, h.conn.First(&report, "tender_id = ?", tender.ID).Error)
	assert.Equal(t, 2, report.ReceivedCount)
	assert.Equal(t, 1, report.ValidCount)
	assert.Equal(t, 1, report.InvalidCount)
}
