package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
)

type auditBackfiller interface {
	Backfill(ctx context.Context) (int, error)
}

// NewAuditBackfillJob restores audit entries lost between commit and flush.
func NewAuditBackfillJob(logg *logger.Logger, backfiller auditBackfiller) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if backfiller == nil {
		return nil, fmt.Errorf("audit backfiller required")
	}
	return &auditBackfillJob{logg: logg, backfiller: backfiller}, nil
}

type auditBackfillJob struct {
	logg       *logger.Logger
	backfiller auditBackfiller
}

func (j *auditBackfillJob) Name() string { return "audit-backfill" }

func (j *auditBackfillJob) Run(ctx context.Context) error {
	restored, err := j.backfiller.Backfill(ctx)
	if err != nil {
		return fmt.Errorf("audit backfill: %w", err)
	}
	j.logg.Debug(j.logg.WithField(ctx, "restored", restored), "audit backfill complete")
	return nil
}
