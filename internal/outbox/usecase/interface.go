// Package usecase implements outbox delivery: the dispatcher, its scheduler, the health
// monitor, and the operator facade used by HTTP and the CLI.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/outbox/domain"
)

// OutboxEventRepository defines persistence operations for outbox events.
// Implementations must support transaction-aware operations via context propagation.
type OutboxEventRepository interface {
	// Append stores an event. A duplicate idempotency key returns the existing row unchanged.
	Append(ctx context.Context, event *domain.OutboxEvent) (*domain.OutboxEvent, error)

	// AppendScheduled is Append with the not-before time set to notBefore.
	AppendScheduled(ctx context.Context, event *domain.OutboxEvent, notBefore time.Time) (*domain.OutboxEvent, error)

	// LeaseBatch atomically marks up to limit eligible events as processing and returns them
	// ordered by priority descending, then creation time ascending.
	LeaseBatch(
		ctx context.Context,
		filter domain.LeaseFilter,
		limit int,
		now time.Time,
	) ([]*domain.OutboxEvent, error)

	// LeaseByID leases a single event regardless of its schedule and retry budget.
	// Returns ErrEventNotFound if the event is missing, processed, or already leased.
	LeaseByID(ctx context.Context, id uuid.UUID, now time.Time) (*domain.OutboxEvent, error)

	// MarkProcessed records delivery for the holder of leaseToken. Repeated calls by the same
	// holder succeed. Returns ErrLeaseLost when another lease or a reclaim took the row.
	MarkProcessed(ctx context.Context, id uuid.UUID, leaseToken string, now time.Time) error

	// MarkFailed records a failed attempt and releases the lease held by leaseToken.
	// Returns ErrLeaseLost when another lease or a reclaim took the row.
	MarkFailed(
		ctx context.Context,
		id uuid.UUID,
		leaseToken string,
		failure domain.DeliveryFailure,
		now time.Time,
		nextAttemptAt time.Time,
	) error

	// ReleaseLease gives the row back without counting an attempt.
	ReleaseLease(ctx context.Context, id uuid.UUID, leaseToken string) error

	ReclaimStaleLeases(ctx context.Context, maxLeaseAge time.Duration, now time.Time) (int64, error)

	// PurgeOlderThan deletes processed and terminally failed events past their retention.
	// A zero retention keeps the matching rows forever.
	PurgeOlderThan(
		ctx context.Context,
		processedRetention, failedRetention time.Duration,
		now time.Time,
	) (domain.PurgeResult, error)

	// GetByID retrieves an event. Returns ErrEventNotFound if not found.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error)

	List(ctx context.Context, state domain.EventState, offset, limit int) ([]*domain.OutboxEvent, error)

	Stats(ctx context.Context, staleBefore time.Time) (domain.OutboxStats, error)
}

// Publisher delivers one event to the transport. Failures are *domain.TransportError.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// UseCase defines the operator actions on the outbox.
type UseCase interface {
	// ProcessPending runs one synchronous dispatch pass over every eligible event,
	// ignoring the pause flag. A non-positive limit uses the configured batch size.
	ProcessPending(ctx context.Context, limit int) (*domain.DispatchResult, error)

	// Reprocess forces delivery of one event and returns the refreshed row.
	Reprocess(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error)

	Pause()
	Resume()
	Paused() bool

	// Health returns a read-only health snapshot without corrective action.
	Health(ctx context.Context) (*domain.HealthSnapshot, error)

	Get(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error)
	List(ctx context.Context, state domain.EventState, offset, limit int) ([]*domain.OutboxEvent, error)

	// Purge deletes terminal events past their configured retention.
	Purge(ctx context.Context) (*domain.PurgeResult, error)
}
