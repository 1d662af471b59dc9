package usecase

import (
	"context"
	"time"

	apperrors "github.com/allisson/admissions/internal/errors"
	"github.com/allisson/admissions/internal/outbox/domain"
)

// Writer appends events to the outbox, filling in configured defaults. It runs inside the
// caller's transaction when one is present on ctx.
type Writer struct {
	repo           OutboxEventRepository
	defaultChannel string
	maxRetries     int
}

// NewWriter creates a Writer. A non-positive maxRetries uses domain.DefaultMaxRetries.
func NewWriter(repo OutboxEventRepository, defaultChannel string, maxRetries int) *Writer {
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	return &Writer{
		repo:           repo,
		defaultChannel: defaultChannel,
		maxRetries:     maxRetries,
	}
}

// Append stores event for immediate delivery.
func (w *Writer) Append(ctx context.Context, event *domain.OutboxEvent) (*domain.OutboxEvent, error) {
	if err := w.prepare(event); err != nil {
		return nil, err
	}
	return w.repo.Append(ctx, event)
}

// AppendScheduled stores event for delivery no earlier than notBefore.
func (w *Writer) AppendScheduled(
	ctx context.Context,
	event *domain.OutboxEvent,
	notBefore time.Time,
) (*domain.OutboxEvent, error) {
	if err := w.prepare(event); err != nil {
		return nil, err
	}
	return w.repo.AppendScheduled(ctx, event, notBefore.UTC())
}

func (w *Writer) prepare(event *domain.OutboxEvent) error {
	if event.AggregateType == "" || event.AggregateID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "outbox event requires an aggregate")
	}
	if event.EventType == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "outbox event requires an event type")
	}
	if !event.Priority.Valid() {
		return apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid outbox priority %d", int(event.Priority))
	}

	if event.EventVersion == "" {
		event.EventVersion = domain.DefaultEventVersion
	}
	if event.Channel == "" {
		event.Channel = w.defaultChannel
	}
	// Events built by NewOutboxEvent carry the package default, which the configured budget replaces.
	if event.MaxRetries <= 0 || event.MaxRetries == domain.DefaultMaxRetries {
		event.MaxRetries = w.maxRetries
	}
	if event.Headers == nil {
		event.Headers = map[string]string{}
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	return nil
}
