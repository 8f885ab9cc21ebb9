package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
)

// queryLogger routes gorm's slow query and failure reports into the service
// logger. Not-found lookups are expected and stay silent.
type queryLogger struct {
	logg *logger.Logger
	slow time.Duration
	now  func() time.Time
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, now: time.Now}
}

func (l *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *queryLogger) Info(ctx context.Context, msg string, _ ...any) { l.logg.Debug(ctx, msg) }

func (l *queryLogger) Warn(ctx context.Context, msg string, _ ...any) { l.logg.Warn(ctx, msg) }

func (l *queryLogger) Error(ctx context.Context, msg string, _ ...any) {
	l.logg.Error(ctx, msg, errors.New(msg))
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := l.now().Sub(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, context.Canceled)
	slow := l.slow > 0 && elapsed > l.slow
	if !failed && !slow {
		return
	}

	query, rows := fc()
	ctx = l.logg.WithFields(ctx, map[string]any{
		"sql":        query,
		"rows":       rows,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	if failed {
		// Callers classify and report the error; this only adds the query.
		l.logg.Warn(l.logg.WithField(ctx, "error", err.Error()), "db query failed")
		return
	}
	l.logg.Warn(ctx, "db slow query")
}
