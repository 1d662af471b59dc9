package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/allisson/admissions/internal/outbox/domain"
	outboxMocks "github.com/allisson/admissions/internal/outbox/usecase/mocks"
)

func TestRunOutboxHealth(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("healthy-text", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("Health", ctx).Return(&domain.HealthSnapshot{
			OutboxStats: domain.OutboxStats{Pending: 3},
			Healthy:     true,
		}, nil)

		var out bytes.Buffer
		err := RunOutboxHealth(ctx, mockUseCase, logger, &out, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Pending:            3")
		require.Contains(t, out.String(), "Status: HEALTHY")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("unhealthy-json", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("Health", ctx).Return(&domain.HealthSnapshot{
			OutboxStats: domain.OutboxStats{StaleLeases: 2},
			Reasons:     []string{"stale leases present"},
		}, nil)

		var out bytes.Buffer
		err := RunOutboxHealth(ctx, mockUseCase, logger, &out, "json")

		require.Error(t, err)
		require.Contains(t, err.Error(), "outbox is unhealthy: stale leases present")
		require.Contains(t, out.String(), `"healthy": false`)
		require.Contains(t, out.String(), `"staleLeases": 2`)
	})

	t.Run("use-case-error", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("Health", ctx).Return(nil, errors.New("database down"))

		err := RunOutboxHealth(ctx, mockUseCase, logger, &bytes.Buffer{}, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to check outbox health")
	})

	t.Run("invalid-format", func(t *testing.T) {
		err := RunOutboxHealth(ctx, &outboxMocks.MockUseCase{}, logger, &bytes.Buffer{}, "yaml")

		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid format")
	})
}

func TestRunOutboxProcess(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	result := &domain.DispatchResult{Leased: 4, Published: 3, Failed: 1}

	t.Run("text-output", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("ProcessPending", ctx, 10).Return(result, nil)

		var out bytes.Buffer
		err := RunOutboxProcess(ctx, mockUseCase, logger, &out, 10, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "4 leased, 3 published, 1 failed")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("json-output", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("ProcessPending", ctx, 0).Return(result, nil)

		var out bytes.Buffer
		err := RunOutboxProcess(ctx, mockUseCase, logger, &out, 0, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"published": 3`)
	})

	t.Run("negative-limit", func(t *testing.T) {
		err := RunOutboxProcess(ctx, &outboxMocks.MockUseCase{}, logger, &bytes.Buffer{}, -1, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "limit must not be negative")
	})
}

func TestRunOutboxReprocess(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eventID := uuid.Must(uuid.NewV7())
	lastError := "connection refused"
	event := &domain.OutboxEvent{
		ID:           eventID,
		EventType:    "StateChanged",
		EventVersion: "v1",
		RetryCount:   2,
		MaxRetries:   5,
		LastError:    &lastError,
		Payload:      map[string]any{},
	}

	t.Run("text-output", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("Reprocess", ctx, eventID).Return(event, nil)

		var out bytes.Buffer
		err := RunOutboxReprocess(ctx, mockUseCase, logger, &out, eventID.String(), "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "StateChanged.v1")
		require.Contains(t, out.String(), "State:    pending")
		require.Contains(t, out.String(), "Retries:  2/5")
		require.Contains(t, out.String(), "connection refused")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("json-output", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("Reprocess", ctx, eventID).Return(event, nil)

		var out bytes.Buffer
		err := RunOutboxReprocess(ctx, mockUseCase, logger, &out, eventID.String(), "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"id": "`+eventID.String()+`"`)
		require.Contains(t, out.String(), `"state": "pending"`)
	})

	t.Run("invalid-id", func(t *testing.T) {
		err := RunOutboxReprocess(ctx, &outboxMocks.MockUseCase{}, logger, &bytes.Buffer{}, "not-a-uuid", "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid event id")
	})

	t.Run("use-case-error", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("Reprocess", ctx, eventID).Return(nil, domain.ErrEventNotFound)

		err := RunOutboxReprocess(ctx, mockUseCase, logger, &bytes.Buffer{}, eventID.String(), "text")

		require.ErrorIs(t, err, domain.ErrEventNotFound)
	})
}

func TestRunOutboxPurge(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	result := &domain.PurgeResult{Processed: 12, Failed: 1}

	t.Run("text-output", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("Purge", ctx).Return(result, nil)

		var out bytes.Buffer
		err := RunOutboxPurge(ctx, mockUseCase, logger, &out, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Successfully purged 12 processed and 1 failed outbox event(s)")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("json-output", func(t *testing.T) {
		mockUseCase := &outboxMocks.MockUseCase{}
		mockUseCase.On("Purge", ctx).Return(result, nil)

		var out bytes.Buffer
		err := RunOutboxPurge(ctx, mockUseCase, logger, &out, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"processed": 12`)
		require.Contains(t, out.String(), `"failed": 1`)
	})
}
