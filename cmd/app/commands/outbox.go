package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/allisson/admissions/internal/outbox/domain"
	"github.com/allisson/admissions/internal/outbox/http/dto"
	outboxUseCase "github.com/allisson/admissions/internal/outbox/usecase"
)

// RunOutboxHealth prints a read-only outbox health snapshot. It returns an error when the
// outbox is unhealthy so the exit code can drive alerting.
func RunOutboxHealth(
	ctx context.Context,
	useCase outboxUseCase.UseCase,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	snapshot, err := useCase.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check outbox health: %w", err)
	}

	if format == FormatJSON {
		if err := writeJSON(writer, dto.MapHealthToResponse(snapshot)); err != nil {
			return err
		}
	} else {
		outputHealthText(writer, snapshot)
	}

	logger.Info("outbox health checked",
		slog.Bool("healthy", snapshot.Healthy),
		slog.Int64("pending", snapshot.Pending),
		slog.Int64("leased", snapshot.Leased),
		slog.Int64("terminally_failed", snapshot.TerminallyFailed),
	)

	if !snapshot.Healthy {
		return fmt.Errorf("outbox is unhealthy: %s", strings.Join(snapshot.Reasons, "; "))
	}
	return nil
}

func outputHealthText(writer io.Writer, snapshot *domain.HealthSnapshot) {
	_, _ = fmt.Fprintf(writer, "Outbox Health\n")
	_, _ = fmt.Fprintf(writer, "=============\n\n")
	_, _ = fmt.Fprintf(writer, "Pending:            %d\n", snapshot.Pending)
	_, _ = fmt.Fprintf(writer, "Critical pending:   %d\n", snapshot.CriticalPending)
	_, _ = fmt.Fprintf(writer, "Leased:             %d\n", snapshot.Leased)
	_, _ = fmt.Fprintf(writer, "Stale leases:       %d\n", snapshot.StaleLeases)
	_, _ = fmt.Fprintf(writer, "Terminally failed:  %d\n", snapshot.TerminallyFailed)
	_, _ = fmt.Fprintf(writer, "Paused:             %t\n\n", snapshot.Paused)

	if snapshot.Healthy {
		_, _ = fmt.Fprintf(writer, "Status: HEALTHY\n")
		return
	}

	_, _ = fmt.Fprintf(writer, "Status: UNHEALTHY\n")
	for _, reason := range snapshot.Reasons {
		_, _ = fmt.Fprintf(writer, "  - %s\n", reason)
	}
}

// RunOutboxProcess runs one synchronous dispatch pass, ignoring the pause flag.
// A non-positive limit uses the configured batch size.
func RunOutboxProcess(
	ctx context.Context,
	useCase outboxUseCase.UseCase,
	logger *slog.Logger,
	writer io.Writer,
	limit int,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if limit < 0 {
		return fmt.Errorf("limit must not be negative, got: %d", limit)
	}

	logger.Info("processing pending outbox events", slog.Int("limit", limit))

	result, err := useCase.ProcessPending(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to process outbox events: %w", err)
	}

	if format == FormatJSON {
		if err := writeJSON(writer, dto.MapDispatchResultToResponse(result)); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer,
			"Processed outbox: %d leased, %d published, %d failed, %d released, %d state update failure(s)\n",
			result.Leased,
			result.Published,
			result.Failed,
			result.Released,
			result.StateUpdateFailed,
		)
	}

	logger.Info("outbox processing completed",
		slog.Int("leased", result.Leased),
		slog.Int("published", result.Published),
		slog.Int("failed", result.Failed),
	)
	return nil
}

// RunOutboxReprocess forces delivery of one event and prints the refreshed row.
func RunOutboxReprocess(
	ctx context.Context,
	useCase outboxUseCase.UseCase,
	logger *slog.Logger,
	writer io.Writer,
	id string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	eventID, err := parseEventID(id)
	if err != nil {
		return err
	}

	logger.Info("reprocessing outbox event", slog.String("event_id", eventID.String()))

	event, err := useCase.Reprocess(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to reprocess outbox event: %w", err)
	}

	if format == FormatJSON {
		return writeJSON(writer, dto.MapEventToResponse(event))
	}

	_, _ = fmt.Fprintf(writer, "Event:    %s\n", event.ID)
	_, _ = fmt.Fprintf(writer, "Type:     %s.%s\n", event.EventType, event.EventVersion)
	_, _ = fmt.Fprintf(writer, "State:    %s\n", event.State())
	_, _ = fmt.Fprintf(writer, "Retries:  %d/%d\n", event.RetryCount, event.MaxRetries)
	if event.LastError != nil {
		_, _ = fmt.Fprintf(writer, "Error:    %s\n", *event.LastError)
	}
	return nil
}

// RunOutboxPurge deletes terminal events past their configured retention.
func RunOutboxPurge(
	ctx context.Context,
	useCase outboxUseCase.UseCase,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	result, err := useCase.Purge(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge outbox events: %w", err)
	}

	if format == FormatJSON {
		if err := writeJSON(writer, map[string]int64{
			"processed": result.Processed,
			"failed":    result.Failed,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer,
			"Successfully purged %d processed and %d failed outbox event(s)\n",
			result.Processed,
			result.Failed,
		)
	}

	logger.Info("outbox purge completed",
		slog.Int64("processed", result.Processed),
		slog.Int64("failed", result.Failed),
	)
	return nil
}
