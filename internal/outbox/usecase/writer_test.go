package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/admissions/internal/errors"
	"github.com/allisson/admissions/internal/outbox/domain"
	"github.com/allisson/admissions/internal/outbox/usecase/mocks"
)

func TestWriter_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_AppliesDefaults", func(t *testing.T) {
		repo := &mocks.MockOutboxEventRepository{}
		w := NewWriter(repo, "admissions.events", 8)

		event := domain.NewOutboxEvent("Application", "a-1", "StateChanged", nil)
		event.Headers = nil

		repo.On("Append", ctx, event).Return(event, nil).Once()

		stored, err := w.Append(ctx, event)

		require.NoError(t, err)
		assert.Equal(t, "admissions.events", stored.Channel)
		assert.Equal(t, 8, stored.MaxRetries)
		assert.NotNil(t, stored.Headers)
		assert.NotNil(t, stored.Payload)
		repo.AssertExpectations(t)
	})

	t.Run("Success_KeepsExplicitValues", func(t *testing.T) {
		repo := &mocks.MockOutboxEventRepository{}
		w := NewWriter(repo, "admissions.events", 8)

		event := domain.NewOutboxEvent("Application", "a-1", "DecisionNotified", map[string]any{})
		event.Channel = "notifications"
		event.MaxRetries = 2
		event.EventVersion = "v2"

		repo.On("Append", ctx, event).Return(event, nil).Once()

		stored, err := w.Append(ctx, event)

		require.NoError(t, err)
		assert.Equal(t, "notifications", stored.Channel)
		assert.Equal(t, 2, stored.MaxRetries)
		assert.Equal(t, "v2", stored.EventVersion)
	})

	t.Run("Error_Validation", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(e *domain.OutboxEvent)
		}{
			{"missing aggregate type", func(e *domain.OutboxEvent) { e.AggregateType = "" }},
			{"missing aggregate id", func(e *domain.OutboxEvent) { e.AggregateID = "" }},
			{"missing event type", func(e *domain.OutboxEvent) { e.EventType = "" }},
			{"invalid priority", func(e *domain.OutboxEvent) { e.Priority = domain.Priority(7) }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				repo := &mocks.MockOutboxEventRepository{}
				w := NewWriter(repo, "c", 0)

				event := domain.NewOutboxEvent("Application", "a-1", "StateChanged", nil)
				tt.mutate(event)

				_, err := w.Append(ctx, event)

				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
			})
		}
	})
}

func TestWriter_AppendScheduled(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.MockOutboxEventRepository{}
	w := NewWriter(repo, "admissions.events", 0)

	notBefore := time.Date(2025, 2, 1, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	event := domain.NewOutboxEvent("Application", "a-1", "DocumentsReminder", nil)

	repo.On("AppendScheduled", ctx, event, notBefore.UTC()).Return(event, nil).Once()

	_, err := w.AppendScheduled(ctx, event, notBefore)

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultMaxRetries, event.MaxRetries)
	repo.AssertExpectations(t)
}
