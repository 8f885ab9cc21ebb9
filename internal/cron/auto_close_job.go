package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/internal/reports"
	"github.com/angelmondragon/tenderflow-backend/internal/submissions"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/metrics"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

const (
	defaultAutoCloseBatch = 100
	defaultOpTimeout      = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reportGenerator interface {
	Generate(ctx context.Context, tx *gorm.DB, input reports.Input) (*models.OpeningReport, bool, error)
}

// AutoCloseJobParams configures the deadline sweep.
type AutoCloseJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Tenders     tenders.Repository
	Submissions submissions.Repository
	Reports     reportGenerator
	Outbox      outboxEmitter
	Audit       tenders.AuditRecorder
	Metrics     *metrics.SweepMetrics
	BatchSize   int
	OpTimeout   time.Duration
	SystemActor uuid.UUID
	Now         func() time.Time
}

// SweepResult counts what one sweep did with each overdue tender.
type SweepResult struct {
	Closed  int
	Skipped int
	Failed  int
}

// AutoCloseJob closes published tenders whose submission deadline passed.
type AutoCloseJob struct {
	logg        *logger.Logger
	db          txRunner
	tenders     tenders.Repository
	submissions submissions.Repository
	reports     reportGenerator
	outbox      outboxEmitter
	audit       tenders.AuditRecorder
	metrics     *metrics.SweepMetrics
	batch       int
	opTimeout   time.Duration
	actor       uuid.UUID
	now         func() time.Time
}

func NewAutoCloseJob(params AutoCloseJobParams) (*AutoCloseJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Tenders == nil {
		return nil, fmt.Errorf("tenders repository required")
	}
	if params.Submissions == nil {
		return nil, fmt.Errorf("submissions repository required")
	}
	if params.Reports == nil {
		return nil, fmt.Errorf("report generator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.SystemActor == uuid.Nil {
		return nil, fmt.Errorf("system actor required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAutoCloseBatch
	}
	timeout := params.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &AutoCloseJob{
		logg:        params.Logger,
		db:          params.DB,
		tenders:     params.Tenders,
		submissions: params.Submissions,
		reports:     params.Reports,
		outbox:      params.Outbox,
		audit:       params.Audit,
		metrics:     params.Metrics,
		batch:       batch,
		opTimeout:   timeout,
		actor:       params.SystemActor,
		now:         now,
	}, nil
}

func (j *AutoCloseJob) Name() string { return "tender-auto-close" }

func (j *AutoCloseJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep processes one batch of overdue tenders. A failing tender never stops
// the batch; it stays published and is picked up again by a later sweep.
func (j *AutoCloseJob) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := j.now().UTC()

	listCtx, cancel := context.WithTimeout(ctx, j.opTimeout)
	due, err := j.tenders.ListOverdue(listCtx, now, j.batch)
	cancel()
	if err != nil {
		return result, fmt.Errorf("list overdue tenders: %w", err)
	}

	var errs []error
	for _, tender := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		tenderCtx := j.logg.WithTenderID(ctx, tender.ID.String())
		closed, err := j.closeOne(tenderCtx, tender.ID, now)
		switch {
		case err == nil && closed:
			result.Closed++
			j.metrics.ObserveLag(now.Sub(tender.SubmissionDeadline).Seconds())
		case err == nil, pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			result.Skipped++
		default:
			result.Failed++
			j.logg.Error(j.logg.WithFields(tenderCtx, pkgerrors.LogFields(err)), "auto-close failed", err)
			errs = append(errs, fmt.Errorf("close tender %s: %w", tender.ID, err))
		}
	}

	j.metrics.Add(metrics.SweepOutcomeClosed, result.Closed)
	j.metrics.Add(metrics.SweepOutcomeSkipped, result.Skipped)
	j.metrics.Add(metrics.SweepOutcomeFailed, result.Failed)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(due),
		"closed":     result.Closed,
		"skipped":    result.Skipped,
		"failed":     result.Failed,
	})
	j.logg.Info(logCtx, "auto-close sweep complete")
	return result, multierr.Combine(errs...)
}

// closeOne reports false without error when the tender no longer needs
// closing, e.g. because an overlapping sweep got there first.
func (j *AutoCloseJob) closeOne(ctx context.Context, tenderID uuid.UUID, now time.Time) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, j.opTimeout)
	defer cancel()

	var (
		closed bool
		entry  models.AuditEntry
	)
	err := j.db.WithTx(opCtx, func(tx *gorm.DB) error {
		tender, err := j.tenders.WithTx(tx).FindByIDForUpdate(opCtx, tenderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if tender.Status != enums.TenderStatusPublished || now.Before(tender.SubmissionDeadline) {
			return nil
		}

		subs, err := j.submissions.WithTx(tx).ListByTender(opCtx, tender.ID, enums.CountableSubmissionStatuses)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		report, _, err := j.reports.Generate(opCtx, tx, reports.Input{
			TenderID:    tender.ID,
			OpenedBy:    j.actor,
			Submissions: subs,
		})
		if err != nil {
			return err
		}
		previous, err := tenders.Transition(opCtx, tx, tender, tenders.EventClose, now, nil)
		if err != nil {
			return err
		}
		closed = true

		entry = models.AuditEntry{
			ID:             uuid.New(),
			TenderID:       tender.ID,
			ActorID:        j.actor,
			Action:         tenders.ActionFor(tenders.EventClose),
			PreviousStatus: &previous,
			NewStatus:      enums.TenderStatusClosed,
			Metadata: types.JSONMap{
				"opening_report_id": report.ID.String(),
				"received_count":    report.ReceivedCount,
				"valid_count":       report.ValidCount,
				"invalid_count":     report.InvalidCount,
			},
			OccurredAt: now,
		}

		return j.outbox.Emit(opCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventTenderClosed,
			AggregateType: enums.AggregateTender,
			AggregateID:   tender.ID,
			Actor:         &outbox.ActorRef{UserID: j.actor, Role: enums.ActorRoleSystem.String()},
			OccurredAt:    now,
			Data: payloads.TenderClosedEvent{
				TenderID:        tender.ID,
				Number:          tender.Number,
				BuyerID:         tender.BuyerID,
				OpeningReportID: report.ID,
				ReceivedCount:   report.ReceivedCount,
				ValidCount:      report.ValidCount,
				ClosedAt:        now,
			},
		}.WithAudit(entry))
	})
	if err != nil || !closed {
		return false, err
	}

	j.audit.Record(ctx, entry)
	return true, nil
}
