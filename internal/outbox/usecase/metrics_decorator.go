package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/metrics"
	"github.com/allisson/admissions/internal/outbox/domain"
)

// outboxUseCaseWithMetrics decorates UseCase with metrics instrumentation.
type outboxUseCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewOutboxUseCaseWithMetrics wraps a UseCase with metrics recording.
func NewOutboxUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &outboxUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (o *outboxUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "outbox", operation, status)
	o.metrics.RecordDuration(ctx, "outbox", operation, time.Since(start), status)
}

// ProcessPending records metrics for forced dispatch passes.
func (o *outboxUseCaseWithMetrics) ProcessPending(ctx context.Context, limit int) (*domain.DispatchResult, error) {
	start := time.Now()
	result, err := o.next.ProcessPending(ctx, limit)
	o.record(ctx, "outbox_process_pending", start, err)
	return result, err
}

// Reprocess records metrics for single event reprocessing.
func (o *outboxUseCaseWithMetrics) Reprocess(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	start := time.Now()
	event, err := o.next.Reprocess(ctx, id)
	o.record(ctx, "outbox_reprocess", start, err)
	return event, err
}

func (o *outboxUseCaseWithMetrics) Pause() {
	o.next.Pause()
}

func (o *outboxUseCaseWithMetrics) Resume() {
	o.next.Resume()
}

func (o *outboxUseCaseWithMetrics) Paused() bool {
	return o.next.Paused()
}

// Health records metrics for health snapshots.
func (o *outboxUseCaseWithMetrics) Health(ctx context.Context) (*domain.HealthSnapshot, error) {
	start := time.Now()
	snapshot, err := o.next.Health(ctx)
	o.record(ctx, "outbox_health", start, err)
	return snapshot, err
}

func (o *outboxUseCaseWithMetrics) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	return o.next.Get(ctx, id)
}

func (o *outboxUseCaseWithMetrics) List(
	ctx context.Context,
	state domain.EventState,
	offset, limit int,
) ([]*domain.OutboxEvent, error) {
	return o.next.List(ctx, state, offset, limit)
}

// Purge records metrics for retention purges.
func (o *outboxUseCaseWithMetrics) Purge(ctx context.Context) (*domain.PurgeResult, error) {
	start := time.Now()
	result, err := o.next.Purge(ctx)
	o.record(ctx, "outbox_purge", start, err)
	return result, err
}
