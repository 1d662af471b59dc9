// Package postgresql implements outbox event persistence for PostgreSQL databases.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/admissions/internal/database"
	apperrors "github.com/allisson/admissions/internal/errors"
	"github.com/allisson/admissions/internal/outbox/domain"
	"github.com/allisson/admissions/internal/outbox/repository"
)

// PostgreSQLOutboxEventRepository implements the outbox store for PostgreSQL.
type PostgreSQLOutboxEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxEventRepository creates a new PostgreSQL outbox event repository.
func NewPostgreSQLOutboxEventRepository(db *sql.DB) *PostgreSQLOutboxEventRepository {
	return &PostgreSQLOutboxEventRepository{db: db}
}

// Append inserts event. A duplicate idempotency key returns the stored row instead.
// The conflict is absorbed by the statement, so a surrounding transaction stays usable.
func (p *PostgreSQLOutboxEventRepository) Append(
	ctx context.Context,
	event *domain.OutboxEvent,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, p.db)

	payload, headers, err := repository.EncodePayload(event)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO outbox_events (id, aggregate_type, aggregate_id, correlation_id, causation_id,
			  event_type, event_version, payload, channel, routing_key, headers, processed, processing,
			  retry_count, max_retries, scheduled_at, priority, idempotency_key, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, FALSE, $12, $13, $14, $15, $16, $17)
			  ON CONFLICT (idempotency_key) DO NOTHING`

	result, err := querier.ExecContext(
		ctx,
		query,
		event.ID,
		event.AggregateType,
		event.AggregateID,
		event.CorrelationID,
		event.CausationID,
		event.EventType,
		event.EventVersion,
		payload,
		event.Channel,
		event.RoutingKey,
		headers,
		event.RetryCount,
		event.MaxRetries,
		event.ScheduledAt,
		int(event.Priority),
		event.IdempotencyKey,
		event.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to append outbox event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 && event.IdempotencyKey != nil {
		return p.getByIdempotencyKey(ctx, *event.IdempotencyKey)
	}

	return event, nil
}

// AppendScheduled inserts event with a not-before delivery time.
func (p *PostgreSQLOutboxEventRepository) AppendScheduled(
	ctx context.Context,
	event *domain.OutboxEvent,
	notBefore time.Time,
) (*domain.OutboxEvent, error) {
	event.ScheduledAt = notBefore.UTC()
	return p.Append(ctx, event)
}

// LeaseBatch flips up to limit eligible rows to processing. Rows locked by a concurrent
// lease are skipped, so concurrent callers receive disjoint sets.
func (p *PostgreSQLOutboxEventRepository) LeaseBatch(
	ctx context.Context,
	filter domain.LeaseFilter,
	limit int,
	now time.Time,
) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		return []*domain.OutboxEvent{}, nil
	}

	querier := database.GetTx(ctx, p.db)

	args := []any{now, repository.NewLeaseToken()}
	where := "processed = FALSE AND processing = FALSE AND scheduled_at <= $1 AND retry_count < max_retries"
	if len(filter.Priorities) > 0 {
		priorities := make([]int64, len(filter.Priorities))
		for i, priority := range filter.Priorities {
			priorities[i] = int64(priority)
		}
		args = append(args, pq.Array(priorities))
		where += fmt.Sprintf(" AND priority = ANY($%d)", len(args))
	}
	where += repository.RetryCondition(filter.Retries)
	args = append(args, limit)

	//nolint:gosec // predicate is built from constants only
	query := `UPDATE outbox_events SET processing = TRUE, leased_at = $1, lease_token = $2
			  WHERE id IN (
			      SELECT id FROM outbox_events
			      WHERE ` + where + `
			      ORDER BY priority DESC, created_at ASC
			      LIMIT ` + fmt.Sprintf("$%d", len(args)) + `
			      FOR UPDATE SKIP LOCKED
			  )
			  RETURNING ` + repository.Columns

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lease outbox events")
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	domain.SortForDispatch(events)
	return events, nil
}

// LeaseByID leases a single unprocessed, unleased row regardless of its schedule and retry budget.
func (p *PostgreSQLOutboxEventRepository) LeaseByID(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outbox_events SET processing = TRUE, leased_at = $1, lease_token = $2
			  WHERE id = $3 AND processed = FALSE AND processing = FALSE
			  RETURNING ` + repository.Columns

	event, err := scanEvent(querier.QueryRowContext(ctx, query, now, repository.NewLeaseToken(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to lease outbox event")
	}
	return event, nil
}

// MarkProcessed records a successful delivery by the lease holder. The lease token is kept on
// the row so a repeated call by the same holder succeeds and keeps the first processed_at.
// Returns ErrLeaseLost when leaseToken no longer holds the row.
func (p *PostgreSQLOutboxEventRepository) MarkProcessed(
	ctx context.Context,
	id uuid.UUID,
	leaseToken string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outbox_events
			  SET processed = TRUE, processing = FALSE, leased_at = NULL,
			      processed_at = COALESCE(processed_at, $1)
			  WHERE id = $2 AND lease_token = $3 AND (processing = TRUE OR processed = TRUE)`

	result, err := querier.ExecContext(ctx, query, now, id, leaseToken)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox event processed")
	}
	return expectLeaseHeld(result)
}

// MarkFailed records a failed delivery attempt and releases the lease held by leaseToken.
// Returns ErrLeaseLost when leaseToken no longer holds the row.
func (p *PostgreSQLOutboxEventRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	leaseToken string,
	failure domain.DeliveryFailure,
	now time.Time,
	nextAttemptAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outbox_events
			  SET retry_count = retry_count + 1, processing = FALSE, leased_at = NULL, lease_token = NULL,
			      last_retry_at = $1, last_error_kind = $2, last_error = $3, scheduled_at = $4
			  WHERE id = $5 AND processed = FALSE AND processing = TRUE AND lease_token = $6`

	result, err := querier.ExecContext(
		ctx, query, now, failure.Kind, failure.Message, nextAttemptAt, id, leaseToken,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox event failed")
	}
	return expectLeaseHeld(result)
}

// ReleaseLease gives the row back without counting an attempt.
// Returns ErrLeaseLost when leaseToken no longer holds the row.
func (p *PostgreSQLOutboxEventRepository) ReleaseLease(ctx context.Context, id uuid.UUID, leaseToken string) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outbox_events SET processing = FALSE, leased_at = NULL, lease_token = NULL
			  WHERE id = $1 AND processed = FALSE AND processing = TRUE AND lease_token = $2`

	result, err := querier.ExecContext(ctx, query, id, leaseToken)
	if err != nil {
		return apperrors.Wrap(err, "failed to release outbox event lease")
	}
	return expectLeaseHeld(result)
}

// ReclaimStaleLeases releases leases taken before now minus maxLeaseAge.
func (p *PostgreSQLOutboxEventRepository) ReclaimStaleLeases(
	ctx context.Context,
	maxLeaseAge time.Duration,
	now time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE outbox_events SET processing = FALSE, leased_at = NULL, lease_token = NULL
			  WHERE processing = TRUE AND leased_at < $1`

	result, err := querier.ExecContext(ctx, query, now.Add(-maxLeaseAge))
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to reclaim stale leases")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get rows affected")
	}
	return affected, nil
}

// PurgeOlderThan deletes terminal rows past their retention. A zero retention keeps rows forever.
func (p *PostgreSQLOutboxEventRepository) PurgeOlderThan(
	ctx context.Context,
	processedRetention time.Duration,
	failedRetention time.Duration,
	now time.Time,
) (domain.PurgeResult, error) {
	querier := database.GetTx(ctx, p.db)
	var result domain.PurgeResult

	if processedRetention > 0 {
		res, err := querier.ExecContext(
			ctx,
			`DELETE FROM outbox_events WHERE processed = TRUE AND processed_at < $1`,
			now.Add(-processedRetention),
		)
		if err != nil {
			return result, apperrors.Wrap(err, "failed to purge processed outbox events")
		}
		if result.Processed, err = res.RowsAffected(); err != nil {
			return result, apperrors.Wrap(err, "failed to get rows affected")
		}
	}

	if failedRetention > 0 {
		res, err := querier.ExecContext(
			ctx,
			`DELETE FROM outbox_events
			 WHERE processed = FALSE AND processing = FALSE AND retry_count >= max_retries
			   AND COALESCE(last_retry_at, created_at) < $1`,
			now.Add(-failedRetention),
		)
		if err != nil {
			return result, apperrors.Wrap(err, "failed to purge failed outbox events")
		}
		if result.Failed, err = res.RowsAffected(); err != nil {
			return result, apperrors.Wrap(err, "failed to get rows affected")
		}
	}

	return result, nil
}

// GetByID retrieves an outbox event by its ID.
func (p *PostgreSQLOutboxEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + repository.Columns + ` FROM outbox_events WHERE id = $1`

	event, err := scanEvent(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox event")
	}
	return event, nil
}

// List returns events in state, newest first. The empty state lists every event.
func (p *PostgreSQLOutboxEventRepository) List(
	ctx context.Context,
	state domain.EventState,
	offset, limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, p.db)

	//nolint:gosec // predicate is built from constants only
	query := `SELECT ` + repository.Columns + ` FROM outbox_events
			  WHERE ` + repository.StateCondition(state, "TRUE", "FALSE") + `
			  ORDER BY created_at DESC, id DESC
			  LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list outbox events")
	}
	return scanEvents(rows)
}

// Stats counts rows per delivery state. Leases taken before staleBefore count as stale.
func (p *PostgreSQLOutboxEventRepository) Stats(
	ctx context.Context,
	staleBefore time.Time,
) (domain.OutboxStats, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT
			      COUNT(*) FILTER (WHERE processed = FALSE AND processing = FALSE AND retry_count < max_retries),
			      COUNT(*) FILTER (WHERE processing = TRUE),
			      COUNT(*) FILTER (WHERE processed = FALSE AND processing = FALSE AND retry_count >= max_retries),
			      COUNT(*) FILTER (WHERE processing = TRUE AND leased_at < $1),
			      COUNT(*) FILTER (WHERE processed = FALSE AND processing = FALSE AND retry_count < max_retries AND priority = $2)
			  FROM outbox_events`

	var stats domain.OutboxStats
	err := querier.QueryRowContext(ctx, query, staleBefore, int(domain.PriorityCritical)).Scan(
		&stats.Pending,
		&stats.Leased,
		&stats.TerminallyFailed,
		&stats.StaleLeases,
		&stats.CriticalPending,
	)
	if err != nil {
		return stats, apperrors.Wrap(err, "failed to get outbox stats")
	}
	return stats, nil
}

func (p *PostgreSQLOutboxEventRepository) getByIdempotencyKey(
	ctx context.Context,
	key string,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + repository.Columns + ` FROM outbox_events WHERE idempotency_key = $1`

	event, err := scanEvent(querier.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox event by idempotency key")
	}
	return event, nil
}

func expectLeaseHeld(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.OutboxEvent, error) {
	var event domain.OutboxEvent
	var payload, headers []byte
	var priority int

	err := row.Scan(
		&event.ID,
		&event.AggregateType,
		&event.AggregateID,
		&event.CorrelationID,
		&event.CausationID,
		&event.EventType,
		&event.EventVersion,
		&payload,
		&event.Channel,
		&event.RoutingKey,
		&headers,
		&event.Processed,
		&event.Processing,
		&event.RetryCount,
		&event.MaxRetries,
		&event.ScheduledAt,
		&event.LeasedAt,
		&event.LeaseToken,
		&event.LastRetryAt,
		&event.LastErrorKind,
		&event.LastError,
		&priority,
		&event.IdempotencyKey,
		&event.CreatedAt,
		&event.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := repository.DecodePayload(&event, payload, headers); err != nil {
		return nil, err
	}
	event.Priority = domain.Priority(priority)

	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]*domain.OutboxEvent, error) {
	defer func() {
		_ = rows.Close()
	}()

	events := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox event")
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox events")
	}

	return events, nil
}
