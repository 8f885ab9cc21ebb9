package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/pkg/config"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/metrics"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher publishes one message and lets a paused ordering key resume.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Resume(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type RelayParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          txClient
	PubSub      topicClient
	Outbox      outboxStore
	DeadLetters deadLetterStore
	Registry    eventResolver
	Metrics     *metrics.OutboxMetrics
	// Publishers overrides how topic publishers are built; tests use it.
	Publishers func(topic string) topicPublisher
	Now        func() time.Time
}

// Relay moves committed tender events from outbox_events to Pub/Sub.
// Events of one tender keep their commit order: they share an ordering key
// and a failed event holds back the rest of that tender's batch.
type Relay struct {
	logg        *logger.Logger
	db          txClient
	pubsub      topicClient
	outbox      outboxStore
	deadLetters deadLetterStore
	registry    eventResolver
	metrics     *metrics.OutboxMetrics
	publishers  map[string]topicPublisher
	newPub      func(topic string) topicPublisher
	now         func() time.Time
	jitter      *rand.Rand

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

// batchStats summarizes one pass over the outbox.
type batchStats struct {
	fetched      int
	published    int
	retried      int
	deadLettered int
	held         int
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	pollMs := positiveOr(params.Config.Outbox.PollIntervalMS, defaultPollMs)
	r := &Relay{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		outbox:       params.Outbox,
		deadLetters:  params.DeadLetters,
		registry:     params.Registry,
		metrics:      params.Metrics,
		publishers:   map[string]topicPublisher{},
		newPub:       params.Publishers,
		now:          params.Now,
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
		batchSize:    positiveOr(params.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(params.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newPub == nil {
		r.newPub = r.orderedPublisher
	}
	return r, nil
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// Run polls until ctx is canceled. Empty polls and batch errors back off.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := r.relayBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case stats.fetched > 0:
			r.logg.Info(r.logg.WithFields(ctx, stats.fields()), "outbox batch relayed")
			wait = r.pollInterval
			if stats.held == 0 && stats.retried == 0 {
				continue
			}
		default:
			r.logg.Debug(ctx, "outbox empty")
			wait = r.pollInterval
		}

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *Relay) relayBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		events, err := r.outbox.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		stats.fetched = len(events)

		blocked := map[uuid.UUID]struct{}{}
		for _, event := range events {
			if _, ok := blocked[event.AggregateID]; ok {
				stats.held++
				continue
			}
			outcome, err := r.relayEvent(ctx, tx, event)
			if err != nil {
				return err
			}
			switch outcome {
			case metrics.OutboxOutcomePublished:
				stats.published++
			case metrics.OutboxOutcomeRetried:
				stats.retried++
				blocked[event.AggregateID] = struct{}{}
			case metrics.OutboxOutcomeDeadLettered:
				stats.deadLettered++
			}
		}
		return nil
	})
	return stats, err
}

// relayEvent publishes one row and records the outcome in the same transaction.
func (r *Relay) relayEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (string, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    string(event.EventType),
		"tender_id":     event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	err = r.publish(ctx, event, resolved)
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		if markErr := r.outbox.MarkPublishedTx(tx, event.ID); markErr != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		r.metrics.Inc(string(event.EventType), metrics.OutboxOutcomePublished)
		return metrics.OutboxOutcomePublished, nil
	case errors.As(err, &nonRetryable):
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	case event.FinalAttempt(r.maxAttempts):
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", err))
	}

	r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox publish failed, will retry")
	if markErr := r.outbox.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return "", fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	r.metrics.Inc(string(event.EventType), metrics.OutboxOutcomeRetried)
	return metrics.OutboxOutcomeRetried, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) (string, error) {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"error_reason": string(reason),
		"error":        cause.Error(),
	}), "outbox event dead-lettered")

	entry := event.DeadLetter(reason, cause, r.now())
	if err := r.deadLetters.InsertTx(tx, entry); err != nil {
		return "", fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.outbox.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return "", fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	r.metrics.Inc(string(event.EventType), metrics.OutboxOutcomeDeadLettered)
	return metrics.OutboxOutcomeDeadLettered, nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	orderingKey := event.AggregateID.String()
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderingKey,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   orderingKey,
			"schema_version": fmt.Sprintf("%d", resolved.Envelope.Version),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		pub.Resume(orderingKey)
		return err
	}
	return nil
}

func (r *Relay) publisherFor(topic string) topicPublisher {
	if pub, ok := r.publishers[topic]; ok {
		return pub
	}
	pub := r.newPub(topic)
	if pub != nil {
		r.publishers[topic] = pub
	}
	return pub
}

func (r *Relay) orderedPublisher(topic string) topicPublisher {
	p := r.pubsub.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return &gcpPublisher{Publisher: p}
}

// Stop flushes and stops every publisher handle the relay opened.
func (r *Relay) Stop() {
	for _, pub := range r.publishers {
		if gp, ok := pub.(*gcpPublisher); ok {
			gp.Publisher.Stop()
		}
	}
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	d += time.Duration(r.jitter.Int63n(int64(jitterWindow)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s batchStats) fields() map[string]any {
	return map[string]any{
		"fetched":       s.fetched,
		"published":     s.published,
		"retried":       s.retried,
		"dead_lettered": s.deadLettered,
		"held":          s.held,
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

func (p *gcpPublisher) Resume(orderingKey string) {
	p.Publisher.ResumePublish(orderingKey)
}
