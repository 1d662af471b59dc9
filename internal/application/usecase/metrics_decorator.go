package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/application/domain"
	"github.com/allisson/admissions/internal/metrics"
)

// applicationUseCaseWithMetrics decorates UseCase with metrics instrumentation.
type applicationUseCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewApplicationUseCaseWithMetrics wraps a UseCase with metrics recording.
func NewApplicationUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &applicationUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (a *applicationUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	a.metrics.RecordOperation(ctx, "applications", operation, status)
	a.metrics.RecordDuration(ctx, "applications", operation, time.Since(start), status)
}

// Create records metrics for application creation.
func (a *applicationUseCaseWithMetrics) Create(
	ctx context.Context,
	input *domain.CreateApplicationInput,
) (*domain.Application, error) {
	start := time.Now()
	app, err := a.next.Create(ctx, input)
	a.record(ctx, "application_create", start, err)
	return app, err
}

// Get records metrics for application lookups.
func (a *applicationUseCaseWithMetrics) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	start := time.Now()
	app, err := a.next.Get(ctx, id)
	a.record(ctx, "application_get", start, err)
	return app, err
}

// Transition records metrics for state transitions.
func (a *applicationUseCaseWithMetrics) Transition(
	ctx context.Context,
	input *domain.TransitionInput,
) (*domain.Application, error) {
	start := time.Now()
	app, err := a.next.Transition(ctx, input)
	a.record(ctx, "application_transition", start, err)
	return app, err
}

// ListTransitions records metrics for history reads.
func (a *applicationUseCaseWithMetrics) ListTransitions(
	ctx context.Context,
	id uuid.UUID,
	offset, limit int,
) ([]*domain.TransitionLog, error) {
	start := time.Now()
	logs, err := a.next.ListTransitions(ctx, id, offset, limit)
	a.record(ctx, "application_history", start, err)
	return logs, err
}

func (a *applicationUseCaseWithMetrics) Rules() []domain.Rule {
	return a.next.Rules()
}
