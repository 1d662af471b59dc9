package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/outbox/domain"
)

// outboxUseCase is the operator facade over the dispatcher, the health monitor, and the store.
type outboxUseCase struct {
	dispatcher *Dispatcher
	monitor    *HealthMonitor
	repo       OutboxEventRepository
}

// NewOutboxUseCase creates the operator facade.
func NewOutboxUseCase(dispatcher *Dispatcher, monitor *HealthMonitor, repo OutboxEventRepository) UseCase {
	return &outboxUseCase{
		dispatcher: dispatcher,
		monitor:    monitor,
		repo:       repo,
	}
}

func (o *outboxUseCase) ProcessPending(ctx context.Context, limit int) (*domain.DispatchResult, error) {
	return o.dispatcher.ProcessPending(ctx, limit)
}

func (o *outboxUseCase) Reprocess(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	return o.dispatcher.Reprocess(ctx, id)
}

func (o *outboxUseCase) Pause() {
	o.dispatcher.Pause()
}

func (o *outboxUseCase) Resume() {
	o.dispatcher.Resume()
}

func (o *outboxUseCase) Paused() bool {
	return o.dispatcher.Paused()
}

func (o *outboxUseCase) Health(ctx context.Context) (*domain.HealthSnapshot, error) {
	return o.monitor.Snapshot(ctx)
}

func (o *outboxUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	return o.repo.GetByID(ctx, id)
}

func (o *outboxUseCase) List(
	ctx context.Context,
	state domain.EventState,
	offset, limit int,
) ([]*domain.OutboxEvent, error) {
	return o.repo.List(ctx, state, offset, limit)
}

func (o *outboxUseCase) Purge(ctx context.Context) (*domain.PurgeResult, error) {
	return o.dispatcher.Purge(ctx)
}
