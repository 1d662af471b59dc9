// Package mocks provides mock implementations of the application use case dependencies for testing.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/admissions/internal/application/domain"
	outboxDomain "github.com/allisson/admissions/internal/outbox/domain"
)

// MockTxManager is a mock implementation of database.TxManager. Unless an error is
// configured, it runs the callback with the given context.
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

// MockApplicationRepository is a mock implementation of ApplicationRepository.
type MockApplicationRepository struct {
	mock.Mock
}

func (m *MockApplicationRepository) Create(ctx context.Context, app *domain.Application) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockApplicationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *MockApplicationRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.Status,
	expectedVersion int64,
	updatedAt time.Time,
) error {
	args := m.Called(ctx, id, status, expectedVersion, updatedAt)
	return args.Error(0)
}

// MockTransitionLogRepository is a mock implementation of TransitionLogRepository.
type MockTransitionLogRepository struct {
	mock.Mock
}

func (m *MockTransitionLogRepository) Create(ctx context.Context, log *domain.TransitionLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockTransitionLogRepository) GetByIdempotencyKey(
	ctx context.Context,
	key string,
) (*domain.TransitionLog, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransitionLog), args.Error(1)
}

func (m *MockTransitionLogRepository) ListByApplication(
	ctx context.Context,
	applicationID uuid.UUID,
	offset, limit int,
) ([]*domain.TransitionLog, error) {
	args := m.Called(ctx, applicationID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TransitionLog), args.Error(1)
}

// MockOutboxWriter is a mock implementation of OutboxWriter.
type MockOutboxWriter struct {
	mock.Mock
}

func (m *MockOutboxWriter) Append(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
) (*outboxDomain.OutboxEvent, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outboxDomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxWriter) AppendScheduled(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
	notBefore time.Time,
) (*outboxDomain.OutboxEvent, error) {
	args := m.Called(ctx, event, notBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outboxDomain.OutboxEvent), args.Error(1)
}

// MockUseCase is a mock implementation of the application UseCase.
type MockUseCase struct {
	mock.Mock
}

func (m *MockUseCase) Create(
	ctx context.Context,
	input *domain.CreateApplicationInput,
) (*domain.Application, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *MockUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *MockUseCase) Transition(
	ctx context.Context,
	input *domain.TransitionInput,
) (*domain.Application, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *MockUseCase) ListTransitions(
	ctx context.Context,
	id uuid.UUID,
	offset, limit int,
) ([]*domain.TransitionLog, error) {
	args := m.Called(ctx, id, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TransitionLog), args.Error(1)
}

func (m *MockUseCase) Rules() []domain.Rule {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Rule)
}
