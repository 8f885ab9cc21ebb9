// Package audit buffers tender lifecycle entries and writes them in batches
// to the append-only audit_entries table.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/metrics"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 2 * time.Second
	defaultMaxAttempts   = 5
	shutdownFlushTimeout = 5 * time.Second
)

// AlertFunc is invoked when a batch keeps failing to persist.
type AlertFunc func(ctx context.Context, pending int, err error)

// Options tunes the recorder.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxAttempts   int
	Metrics       *metrics.AuditMetrics
	Alert         AlertFunc
}

// Recorder is safe for concurrent use by any number of emitters.
type Recorder struct {
	db      *gorm.DB
	logg    *logger.Logger
	metrics *metrics.AuditMetrics
	alert   AlertFunc

	batchSize     int
	flushInterval time.Duration
	maxAttempts   int

	mu       sync.Mutex
	pending  []models.AuditEntry
	failures int

	flushMu sync.Mutex
	wake    chan struct{}
}

func NewRecorder(db *gorm.DB, logg *logger.Logger, opts Options) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	r := &Recorder{
		db:            db,
		logg:          logg,
		metrics:       opts.Metrics,
		alert:         opts.Alert,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		maxAttempts:   opts.MaxAttempts,
		wake:          make(chan struct{}, 1),
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.flushInterval <= 0 {
		r.flushInterval = defaultFlushInterval
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	return r, nil
}

// Record queues an entry. It never blocks on storage.
func (r *Recorder) Record(ctx context.Context, entry models.AuditEntry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	entry.OccurredAt = entry.OccurredAt.UTC()

	r.mu.Lock()
	r.pending = append(r.pending, entry)
	n := len(r.pending)
	r.mu.Unlock()

	r.metrics.SetPending(n)
	if n >= r.batchSize {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// Pending reports how many entries wait for the next flush.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes every buffered entry in one insert. Entries already stored
// under the same id are ignored so a retried batch cannot duplicate rows.
// On failure the batch goes back to the head of the buffer.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&batch).Error
	if err != nil {
		r.requeue(ctx, batch, err)
		return err
	}

	r.mu.Lock()
	r.failures = 0
	n := len(r.pending)
	r.mu.Unlock()

	r.metrics.AddFlushed(len(batch))
	r.metrics.SetPending(n)
	return nil
}

func (r *Recorder) requeue(ctx context.Context, batch []models.AuditEntry, err error) {
	r.mu.Lock()
	r.pending = append(batch, r.pending...)
	r.failures++
	failures := r.failures
	n := len(r.pending)
	r.mu.Unlock()

	r.metrics.IncFailure()
	r.metrics.SetPending(n)

	ctx = r.logg.WithFields(ctx, map[string]any{"pending": n, "attempt": failures})
	if failures%r.maxAttempts != 0 {
		r.logg.Warn(ctx, "audit flush failed, batch re-queued")
		return
	}
	r.metrics.IncPersistentFailure()
	r.logg.Error(ctx, "audit flush keeps failing", err)
	if r.alert != nil {
		r.alert(ctx, n, err)
	}
}

// Run flushes on the interval and whenever the buffer reaches the batch
// size. A final flush runs once ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			err := r.Flush(flushCtx)
			cancel()
			if err != nil {
				r.logg.Error(context.Background(), "final audit flush failed", err)
			}
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
		// failures are logged and re-queued inside Flush
		_ = r.Flush(ctx)
	}
}
