package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	apperrors "github.com/allisson/admissions/internal/errors"
	"github.com/allisson/admissions/internal/metrics"
	"github.com/allisson/admissions/internal/outbox/domain"
)

const tracerName = "github.com/allisson/admissions/internal/outbox"

// Dispatch outcomes recorded in metrics.
const (
	outcomePublished         = "published"
	outcomeFailed            = "failed"
	outcomeStateUpdateFailed = "state_update_failed"
	outcomeReleased          = "released"
)

// Dispatcher leases outbox events, hands them to the publisher, and records the outcome.
// Workers coordinate only through the lease statement, so any number of dispatchers may
// run against the same table.
type Dispatcher struct {
	config    Config
	repo      OutboxEventRepository
	publisher Publisher
	backoff   Backoff
	limiter   *rate.Limiter
	metrics   metrics.OutboxMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
	paused    atomic.Bool
}

// NewDispatcher creates a Dispatcher. limiter and outboxMetrics may be nil.
func NewDispatcher(
	config Config,
	repo OutboxEventRepository,
	publisher Publisher,
	limiter *rate.Limiter,
	outboxMetrics metrics.OutboxMetrics,
	logger *slog.Logger,
) *Dispatcher {
	if outboxMetrics == nil {
		outboxMetrics = metrics.NewNoOpOutboxMetrics()
	}
	return &Dispatcher{
		config:    config,
		repo:      repo,
		publisher: publisher,
		backoff:   NewBackoff(config.RetryBaseDelay, config.RetryMaxDelay),
		limiter:   limiter,
		metrics:   outboxMetrics,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Pause stops the poll and retry cadences until Resume is called.
func (d *Dispatcher) Pause() {
	if d.paused.CompareAndSwap(false, true) && d.logger != nil {
		d.logger.Info("outbox dispatcher paused")
	}
}

// Resume re-enables the poll and retry cadences.
func (d *Dispatcher) Resume() {
	if d.paused.CompareAndSwap(true, false) && d.logger != nil {
		d.logger.Info("outbox dispatcher resumed")
	}
}

func (d *Dispatcher) Paused() bool {
	return d.paused.Load()
}

// DispatchReady delivers fresh events: a CRITICAL batch first, then a batch of every
// other priority.
func (d *Dispatcher) DispatchReady(ctx context.Context) (*domain.DispatchResult, error) {
	result := &domain.DispatchResult{}
	if d.skipWhenPaused("poll") {
		return result, nil
	}

	critical, err := d.lease(ctx, domain.LeaseFilter{
		Priorities: []domain.Priority{domain.PriorityCritical},
		Retries:    domain.RetriesFresh,
	}, d.config.CriticalBatchSize)
	if err != nil {
		return result, err
	}
	result.Add(d.dispatchBatch(ctx, critical))

	rest, err := d.lease(ctx, domain.LeaseFilter{
		Priorities: domain.NonCriticalPriorities(),
		Retries:    domain.RetriesFresh,
	}, d.config.BatchSize)
	if err != nil {
		return result, err
	}
	result.Add(d.dispatchBatch(ctx, rest))

	return result, nil
}

// DispatchRetries delivers events that already failed at least once and are due again.
func (d *Dispatcher) DispatchRetries(ctx context.Context) (*domain.DispatchResult, error) {
	result := &domain.DispatchResult{}
	if d.skipWhenPaused("retry") {
		return result, nil
	}

	events, err := d.lease(ctx, domain.LeaseFilter{Retries: domain.RetriesOnly}, d.config.RetryBatchSize)
	if err != nil {
		return result, err
	}
	result.Add(d.dispatchBatch(ctx, events))

	return result, nil
}

// ProcessPending runs one pass over every eligible event regardless of the pause flag.
func (d *Dispatcher) ProcessPending(ctx context.Context, limit int) (*domain.DispatchResult, error) {
	if limit <= 0 {
		limit = d.config.BatchSize
	}

	result := &domain.DispatchResult{}
	events, err := d.lease(ctx, domain.LeaseFilter{Retries: domain.RetriesAny}, limit)
	if err != nil {
		return result, err
	}
	result.Add(d.dispatchBatch(ctx, events))

	if d.logger != nil {
		d.logger.Info("outbox pending events processed",
			slog.Int("leased", result.Leased),
			slog.Int("published", result.Published),
			slog.Int("failed", result.Failed),
			slog.Int("released", result.Released),
			slog.Int("state_update_failed", result.StateUpdateFailed),
		)
	}

	return result, nil
}

// Reprocess forces delivery of a single event. Processed events are returned unchanged.
// Terminally failed events require AllowTerminalReprocess. Returns ErrEventLeased while
// another worker holds the event.
func (d *Dispatcher) Reprocess(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	event, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if event.Processed {
		return event, nil
	}

	if event.Processing {
		return nil, domain.ErrEventLeased
	}

	if event.IsTerminallyFailed() && !d.config.AllowTerminalReprocess {
		return nil, domain.ErrReprocessNotAllowed
	}

	leaseCtx, cancel := d.withLeaseTimeout(ctx)
	leased, err := d.repo.LeaseByID(leaseCtx, id, d.now())
	cancel()
	if err != nil {
		// The row was read above, so losing the lease race means another worker took it.
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil, domain.ErrEventLeased
		}
		return nil, err
	}

	result := d.dispatchBatch(ctx, []*domain.OutboxEvent{leased})

	if d.logger != nil {
		d.logger.Info("outbox event reprocessed",
			slog.String("event_id", id.String()),
			slog.Bool("published", result.Published == 1),
		)
	}

	return d.repo.GetByID(ctx, id)
}

// ReclaimStaleLeases releases leases older than MaxLeaseAge.
func (d *Dispatcher) ReclaimStaleLeases(ctx context.Context) (int64, error) {
	reclaimed, err := d.repo.ReclaimStaleLeases(ctx, d.config.MaxLeaseAge, d.now())
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to reclaim stale leases")
	}

	if reclaimed > 0 && d.logger != nil {
		d.logger.Warn("outbox stale leases reclaimed", slog.Int64("count", reclaimed))
	}

	return reclaimed, nil
}

// Purge deletes terminal events past their configured retention.
func (d *Dispatcher) Purge(ctx context.Context) (*domain.PurgeResult, error) {
	result, err := d.repo.PurgeOlderThan(ctx, d.config.ProcessedRetention, d.config.FailedRetention, d.now())
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to purge outbox events")
	}

	if d.logger != nil && (result.Processed > 0 || result.Failed > 0) {
		d.logger.Info("outbox events purged",
			slog.Int64("processed", result.Processed),
			slog.Int64("failed", result.Failed),
		)
	}

	return &result, nil
}

func (d *Dispatcher) skipWhenPaused(cadence string) bool {
	if !d.Paused() {
		return false
	}
	if d.logger != nil {
		d.logger.Debug("outbox dispatcher paused, skipping cadence", slog.String("cadence", cadence))
	}
	return true
}

func (d *Dispatcher) lease(ctx context.Context, filter domain.LeaseFilter, limit int) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	leaseCtx, cancel := d.withLeaseTimeout(ctx)
	defer cancel()

	events, err := d.repo.LeaseBatch(leaseCtx, filter, limit, d.now())
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lease outbox events")
	}
	return events, nil
}

// delivery is the outcome of handling one leased event.
type delivery int

const (
	deliveryPublished delivery = iota
	deliveryFailed
	// The publish outcome is known but could not be recorded.
	deliveryPublishedUnrecorded
	deliveryFailedUnrecorded
	// Another worker or a reclaim took the row before the outcome was recorded.
	deliveryLeaseLost
	// The lease was too close to going stale and the event was handed back unpublished.
	deliveryReleased
	deliveryUnreleased
)

// dispatchBatch publishes events one by one. A failing event never stops the batch.
func (d *Dispatcher) dispatchBatch(ctx context.Context, events []*domain.OutboxEvent) domain.DispatchResult {
	result := domain.DispatchResult{Leased: len(events)}

	for _, event := range events {
		switch d.dispatchOne(ctx, event) {
		case deliveryPublished:
			result.Published++
		case deliveryFailed:
			result.Failed++
		case deliveryPublishedUnrecorded:
			result.Published++
			result.StateUpdateFailed++
		case deliveryFailedUnrecorded:
			result.Failed++
			result.StateUpdateFailed++
		case deliveryLeaseLost, deliveryUnreleased:
			result.StateUpdateFailed++
		case deliveryReleased:
			result.Released++
		}
	}

	return result
}

func (d *Dispatcher) dispatchOne(ctx context.Context, event *domain.OutboxEvent) delivery {
	ctx, span := d.tracer.Start(ctx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("outbox.event_id", event.ID.String()),
			attribute.String("outbox.event_type", event.FullType()),
			attribute.String("outbox.aggregate_type", event.AggregateType),
			attribute.String("outbox.priority", event.Priority.String()),
			attribute.Int("outbox.retry_count", event.RetryCount),
		),
	)
	defer span.End()

	err := d.waitForLimiter(ctx)

	// State updates must run even when ctx is canceled so the lease is released.
	stateCtx, cancel := d.withLeaseTimeout(context.WithoutCancel(ctx))
	defer cancel()

	if err == nil && d.leaseExpiring(event) {
		span.SetStatus(codes.Error, "lease expiring")
		return d.release(stateCtx, event)
	}

	if err == nil {
		err = d.publish(ctx, event)
	}

	now := d.now()
	leaseToken := event.LeaseTokenValue()

	if err == nil {
		span.SetStatus(codes.Ok, "")
		if markErr := d.repo.MarkProcessed(stateCtx, event.ID, leaseToken, now); markErr != nil {
			d.metrics.RecordDispatch(ctx, outcomeStateUpdateFailed, event.Priority.String(), "")
			if errors.Is(markErr, domain.ErrLeaseLost) {
				d.logLeaseLost("outbox lease lost before the delivery was recorded", event)
				return deliveryLeaseLost
			}
			d.logError("failed to mark outbox event processed", event, markErr)
			return deliveryPublishedUnrecorded
		}
		d.metrics.RecordDispatch(ctx, outcomePublished, event.Priority.String(), "")
		if d.logger != nil {
			d.logger.Debug("outbox event published",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.FullType()),
				slog.String("priority", event.Priority.String()),
			)
		}
		return deliveryPublished
	}

	te := domain.AsTransportError(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, te.Message)
	d.metrics.RecordDispatch(ctx, outcomeFailed, event.Priority.String(), te.Kind)

	nextAttemptAt := now.Add(d.backoff.Delay(event.RetryCount))
	failure := domain.DeliveryFailure{Kind: te.Kind, Message: te.Message}
	if markErr := d.repo.MarkFailed(stateCtx, event.ID, leaseToken, failure, now, nextAttemptAt); markErr != nil {
		d.metrics.RecordDispatch(ctx, outcomeStateUpdateFailed, event.Priority.String(), te.Kind)
		if errors.Is(markErr, domain.ErrLeaseLost) {
			d.logLeaseLost("outbox lease lost before the failure was recorded", event)
			return deliveryLeaseLost
		}
		d.logError("failed to mark outbox event failed", event, markErr)
		return deliveryFailedUnrecorded
	}

	if d.logger != nil {
		attrs := []any{
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.FullType()),
			slog.String("priority", event.Priority.String()),
			slog.Int("retry_count", event.RetryCount+1),
			slog.String("error_kind", te.Kind),
			slog.String("error", te.Message),
		}
		if event.RetryCount+1 >= event.MaxRetries {
			d.logger.Error("outbox event terminally failed", attrs...)
		} else {
			d.logger.Warn("outbox event publish failed",
				append(attrs, slog.Time("next_attempt_at", nextAttemptAt))...)
		}
	}

	return deliveryFailed
}

// leaseExpiring reports whether a publish starting now could outlive the lease.
func (d *Dispatcher) leaseExpiring(event *domain.OutboxEvent) bool {
	if d.config.MaxLeaseAge <= 0 {
		return false
	}
	deadline, ok := event.LeaseDeadline(d.config.MaxLeaseAge)
	if !ok {
		return false
	}
	return !d.now().Before(deadline.Add(-d.config.PublishTimeout))
}

func (d *Dispatcher) release(ctx context.Context, event *domain.OutboxEvent) delivery {
	if err := d.repo.ReleaseLease(ctx, event.ID, event.LeaseTokenValue()); err != nil {
		d.metrics.RecordDispatch(ctx, outcomeStateUpdateFailed, event.Priority.String(), "")
		if errors.Is(err, domain.ErrLeaseLost) {
			d.logLeaseLost("outbox lease lost before it was released", event)
			return deliveryLeaseLost
		}
		d.logError("failed to release outbox event lease", event, err)
		return deliveryUnreleased
	}

	d.metrics.RecordDispatch(ctx, outcomeReleased, event.Priority.String(), "")
	if d.logger != nil {
		d.logger.Warn("outbox lease too old to publish, event released",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.FullType()),
		)
	}
	return deliveryReleased
}

func (d *Dispatcher) waitForLimiter(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return domain.NewTransportError(domain.ErrorKindCanceled, err)
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, event *domain.OutboxEvent) error {
	publishCtx := ctx
	if d.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, d.config.PublishTimeout)
		defer cancel()
	}

	return d.publisher.Publish(publishCtx, event)
}

func (d *Dispatcher) withLeaseTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.LeaseTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.config.LeaseTimeout)
}

func (d *Dispatcher) logLeaseLost(msg string, event *domain.OutboxEvent) {
	if d.logger == nil {
		return
	}
	d.logger.Warn(msg,
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.FullType()),
	)
}

func (d *Dispatcher) logError(msg string, event *domain.OutboxEvent, err error) {
	if d.logger == nil {
		return
	}
	d.logger.Error(msg,
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.FullType()),
		slog.Any("error", err),
	)
}
