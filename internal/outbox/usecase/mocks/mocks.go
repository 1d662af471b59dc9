// Package mocks provides mock implementations of the outbox use case dependencies for testing.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/admissions/internal/outbox/domain"
)

// MockOutboxEventRepository is a mock implementation of OutboxEventRepository.
type MockOutboxEventRepository struct {
	mock.Mock
}

func (m *MockOutboxEventRepository) Append(
	ctx context.Context,
	event *domain.OutboxEvent,
) (*domain.OutboxEvent, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) AppendScheduled(
	ctx context.Context,
	event *domain.OutboxEvent,
	notBefore time.Time,
) (*domain.OutboxEvent, error) {
	args := m.Called(ctx, event, notBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) LeaseBatch(
	ctx context.Context,
	filter domain.LeaseFilter,
	limit int,
	now time.Time,
) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, filter, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) LeaseByID(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (*domain.OutboxEvent, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) MarkProcessed(
	ctx context.Context,
	id uuid.UUID,
	leaseToken string,
	now time.Time,
) error {
	args := m.Called(ctx, id, leaseToken, now)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	leaseToken string,
	failure domain.DeliveryFailure,
	now time.Time,
	nextAttemptAt time.Time,
) error {
	args := m.Called(ctx, id, leaseToken, failure, now, nextAttemptAt)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) ReleaseLease(ctx context.Context, id uuid.UUID, leaseToken string) error {
	args := m.Called(ctx, id, leaseToken)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) ReclaimStaleLeases(
	ctx context.Context,
	maxLeaseAge time.Duration,
	now time.Time,
) (int64, error) {
	args := m.Called(ctx, maxLeaseAge, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxEventRepository) PurgeOlderThan(
	ctx context.Context,
	processedRetention, failedRetention time.Duration,
	now time.Time,
) (domain.PurgeResult, error) {
	args := m.Called(ctx, processedRetention, failedRetention, now)
	return args.Get(0).(domain.PurgeResult), args.Error(1)
}

func (m *MockOutboxEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) List(
	ctx context.Context,
	state domain.EventState,
	offset, limit int,
) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, state, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) Stats(ctx context.Context, staleBefore time.Time) (domain.OutboxStats, error) {
	args := m.Called(ctx, staleBefore)
	return args.Get(0).(domain.OutboxStats), args.Error(1)
}

// MockPublisher is a mock implementation of Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockUseCase is a mock implementation of the outbox UseCase.
type MockUseCase struct {
	mock.Mock
}

func (m *MockUseCase) ProcessPending(ctx context.Context, limit int) (*domain.DispatchResult, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DispatchResult), args.Error(1)
}

func (m *MockUseCase) Reprocess(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxEvent), args.Error(1)
}

func (m *MockUseCase) Pause() {
	m.Called()
}

func (m *MockUseCase) Resume() {
	m.Called()
}

func (m *MockUseCase) Paused() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockUseCase) Health(ctx context.Context) (*domain.HealthSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HealthSnapshot), args.Error(1)
}

func (m *MockUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxEvent), args.Error(1)
}

func (m *MockUseCase) List(
	ctx context.Context,
	state domain.EventState,
	offset, limit int,
) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, state, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

func (m *MockUseCase) Purge(ctx context.Context) (*domain.PurgeResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PurgeResult), args.Error(1)
}
