// Package usecase implements the audited application state machine: creation, the
// transition engine, and the follow-up events each state change queues in the outbox.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/application/domain"
	outboxDomain "github.com/allisson/admissions/internal/outbox/domain"
)

// ApplicationRepository defines persistence operations for applications.
// Implementations must support transaction-aware operations via context propagation.
type ApplicationRepository interface {
	Create(ctx context.Context, app *domain.Application) error
	// Get returns ErrApplicationNotFound if the application does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	// UpdateStatus is a compare-and-swap on the version column. It returns
	// ErrConcurrentModification when no row matched expectedVersion.
	UpdateStatus(
		ctx context.Context,
		id uuid.UUID,
		status domain.Status,
		expectedVersion int64,
		updatedAt time.Time,
	) error
}

// TransitionLogRepository defines persistence operations for the transition audit trail.
type TransitionLogRepository interface {
	// Create returns ErrIdempotencyKeyConflict when the idempotency key is already taken.
	Create(ctx context.Context, log *domain.TransitionLog) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.TransitionLog, error)
	ListByApplication(
		ctx context.Context,
		applicationID uuid.UUID,
		offset, limit int,
	) ([]*domain.TransitionLog, error)
}

// OutboxWriter appends events inside the caller's transaction.
type OutboxWriter interface {
	Append(ctx context.Context, event *outboxDomain.OutboxEvent) (*outboxDomain.OutboxEvent, error)
	AppendScheduled(
		ctx context.Context,
		event *outboxDomain.OutboxEvent,
		notBefore time.Time,
	) (*outboxDomain.OutboxEvent, error)
}

// TransitionUseCase moves applications between statuses.
type TransitionUseCase interface {
	// Transition validates the request against the policy and atomically persists the new
	// status, the audit log, and the outbox events. Requests repeating a known idempotency
	// key return the current application without writing.
	Transition(ctx context.Context, input *domain.TransitionInput) (*domain.Application, error)
}

// UseCase defines the application operations exposed over HTTP.
type UseCase interface {
	TransitionUseCase

	Create(ctx context.Context, input *domain.CreateApplicationInput) (*domain.Application, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	// ListTransitions returns the audit history of an application, oldest first.
	ListTransitions(ctx context.Context, id uuid.UUID, offset, limit int) ([]*domain.TransitionLog, error)
	// Rules returns the transition table in effect.
	Rules() []domain.Rule
}
