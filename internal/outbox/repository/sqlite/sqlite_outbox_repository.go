// Package sqlite implements outbox event persistence for SQLite databases.
//
// Timestamps are stored as INTEGER unix milliseconds and booleans as 0/1.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/database"
	apperrors "github.com/allisson/admissions/internal/errors"
	"github.com/allisson/admissions/internal/outbox/domain"
	"github.com/allisson/admissions/internal/outbox/repository"
)

// SQLiteOutboxEventRepository implements the outbox store for SQLite.
type SQLiteOutboxEventRepository struct {
	db *sql.DB
}

// NewSQLiteOutboxEventRepository creates a new SQLite outbox event repository.
func NewSQLiteOutboxEventRepository(db *sql.DB) *SQLiteOutboxEventRepository {
	return &SQLiteOutboxEventRepository{db: db}
}

// Append inserts event. A duplicate idempotency key returns the stored row instead.
func (s *SQLiteOutboxEventRepository) Append(
	ctx context.Context,
	event *domain.OutboxEvent,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, s.db)

	payload, headers, err := repository.EncodePayload(event)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO outbox_events (id, aggregate_type, aggregate_id, correlation_id, causation_id,
			  event_type, event_version, payload, channel, routing_key, headers, processed, processing,
			  retry_count, max_retries, scheduled_at, priority, idempotency_key, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT (idempotency_key) DO NOTHING`

	result, err := querier.ExecContext(
		ctx,
		query,
		event.ID.String(),
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
		toMillis(event.ScheduledAt),
		int(event.Priority),
		event.IdempotencyKey,
		toMillis(event.CreatedAt),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to append outbox event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 && event.IdempotencyKey != nil {
		return s.getByIdempotencyKey(ctx, *event.IdempotencyKey)
	}

	return event, nil
}

// AppendScheduled inserts event with a not-before delivery time.
func (s *SQLiteOutboxEventRepository) AppendScheduled(
	ctx context.Context,
	event *domain.OutboxEvent,
	notBefore time.Time,
) (*domain.OutboxEvent, error) {
	event.ScheduledAt = notBefore.UTC()
	return s.Append(ctx, event)
}

// LeaseBatch flips up to limit eligible rows to processing in a single statement.
func (s *SQLiteOutboxEventRepository) LeaseBatch(
	ctx context.Context,
	filter domain.LeaseFilter,
	limit int,
	now time.Time,
) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		return []*domain.OutboxEvent{}, nil
	}

	querier := database.GetTx(ctx, s.db)

	nowMillis := toMillis(now)
	args := []any{nowMillis, repository.NewLeaseToken(), nowMillis}
	where := "processed = 0 AND processing = 0 AND scheduled_at <= ? AND retry_count < max_retries"
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			placeholders[i] = "?"
			args = append(args, int(p))
		}
		where += " AND priority IN (" + strings.Join(placeholders, ", ") + ")"
	}
	where += repository.RetryCondition(filter.Retries)
	args = append(args, limit)

	//nolint:gosec // predicate is built from constants only
	query := `UPDATE outbox_events SET processing = 1, leased_at = ?, lease_token = ?
			  WHERE id IN (
			      SELECT id FROM outbox_events
			      WHERE ` + where + `
			      ORDER BY priority DESC, created_at ASC
			      LIMIT ?
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
func (s *SQLiteOutboxEventRepository) LeaseByID(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, s.db)

	query := `UPDATE outbox_events SET processing = 1, leased_at = ?, lease_token = ?
			  WHERE id = ? AND processed = 0 AND processing = 0
			  RETURNING ` + repository.Columns

	row := querier.QueryRowContext(ctx, query, toMillis(now), repository.NewLeaseToken(), id.String())
	event, err := scanEvent(row)
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
func (s *SQLiteOutboxEventRepository) MarkProcessed(
	ctx context.Context,
	id uuid.UUID,
	leaseToken string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, s.db)

	query := `UPDATE outbox_events
			  SET processed = 1, processing = 0, leased_at = NULL,
			      processed_at = COALESCE(processed_at, ?)
			  WHERE id = ? AND lease_token = ? AND (processing = 1 OR processed = 1)`

	result, err := querier.ExecContext(ctx, query, toMillis(now), id.String(), leaseToken)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox event processed")
	}
	return expectLeaseHeld(result)
}

// MarkFailed records a failed delivery attempt and releases the lease held by leaseToken.
// Returns ErrLeaseLost when leaseToken no longer holds the row.
func (s *SQLiteOutboxEventRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	leaseToken string,
	failure domain.DeliveryFailure,
	now time.Time,
	nextAttemptAt time.Time,
) error {
	querier := database.GetTx(ctx, s.db)

	query := `UPDATE outbox_events
			  SET retry_count = retry_count + 1, processing = 0, leased_at = NULL, lease_token = NULL,
			      last_retry_at = ?, last_error_kind = ?, last_error = ?, scheduled_at = ?
			  WHERE id = ? AND processed = 0 AND processing = 1 AND lease_token = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		toMillis(now),
		failure.Kind,
		failure.Message,
		toMillis(nextAttemptAt),
		id.String(),
		leaseToken,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox event failed")
	}
	return expectLeaseHeld(result)
}

// ReleaseLease gives the row back without counting an attempt.
// Returns ErrLeaseLost when leaseToken no longer holds the row.
func (s *SQLiteOutboxEventRepository) ReleaseLease(ctx context.Context, id uuid.UUID, leaseToken string) error {
	querier := database.GetTx(ctx, s.db)

	query := `UPDATE outbox_events SET processing = 0, leased_at = NULL, lease_token = NULL
			  WHERE id = ? AND processed = 0 AND processing = 1 AND lease_token = ?`

	result, err := querier.ExecContext(ctx, query, id.String(), leaseToken)
	if err != nil {
		return apperrors.Wrap(err, "failed to release outbox event lease")
	}
	return expectLeaseHeld(result)
}

// ReclaimStaleLeases releases leases taken before now minus maxLeaseAge.
func (s *SQLiteOutboxEventRepository) ReclaimStaleLeases(
	ctx context.Context,
	maxLeaseAge time.Duration,
	now time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, s.db)

	query := `UPDATE outbox_events SET processing = 0, leased_at = NULL, lease_token = NULL
			  WHERE processing = 1 AND leased_at < ?`

	result, err := querier.ExecContext(ctx, query, toMillis(now.Add(-maxLeaseAge)))
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
func (s *SQLiteOutboxEventRepository) PurgeOlderThan(
	ctx context.Context,
	processedRetention time.Duration,
	failedRetention time.Duration,
	now time.Time,
) (domain.PurgeResult, error) {
	querier := database.GetTx(ctx, s.db)
	var result domain.PurgeResult

	if processedRetention > 0 {
		res, err := querier.ExecContext(
			ctx,
			`DELETE FROM outbox_events WHERE processed = 1 AND processed_at < ?`,
			toMillis(now.Add(-processedRetention)),
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
			 WHERE processed = 0 AND processing = 0 AND retry_count >= max_retries
			   AND COALESCE(last_retry_at, created_at) < ?`,
			toMillis(now.Add(-failedRetention)),
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
func (s *SQLiteOutboxEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + repository.Columns + ` FROM outbox_events WHERE id = ?`

	event, err := scanEvent(querier.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox event")
	}
	return event, nil
}

// List returns events in state, newest first. The empty state lists every event.
func (s *SQLiteOutboxEventRepository) List(
	ctx context.Context,
	state domain.EventState,
	offset, limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, s.db)

	//nolint:gosec // predicate is built from constants only
	query := `SELECT ` + repository.Columns + ` FROM outbox_events
			  WHERE ` + repository.StateCondition(state, "1", "0") + `
			  ORDER BY created_at DESC, id DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list outbox events")
	}
	return scanEvents(rows)
}

// Stats counts rows per delivery state. Leases taken before staleBefore count as stale.
func (s *SQLiteOutboxEventRepository) Stats(ctx context.Context, staleBefore time.Time) (domain.OutboxStats, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT
			      COALESCE(SUM(CASE WHEN processed = 0 AND processing = 0 AND retry_count < max_retries THEN 1 ELSE 0 END), 0),
			      COALESCE(SUM(CASE WHEN processing = 1 THEN 1 ELSE 0 END), 0),
			      COALESCE(SUM(CASE WHEN processed = 0 AND processing = 0 AND retry_count >= max_retries THEN 1 ELSE 0 END), 0),
			      COALESCE(SUM(CASE WHEN processing = 1 AND leased_at < ? THEN 1 ELSE 0 END), 0),
			      COALESCE(SUM(CASE WHEN processed = 0 AND processing = 0 AND retry_count < max_retries AND priority = ? THEN 1 ELSE 0 END), 0)
			  FROM outbox_events`

	var stats domain.OutboxStats
	err := querier.QueryRowContext(ctx, query, toMillis(staleBefore), int(domain.PriorityCritical)).Scan(
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

func (s *SQLiteOutboxEventRepository) getByIdempotencyKey(
	ctx context.Context,
	key string,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + repository.Columns + ` FROM outbox_events WHERE idempotency_key = ?`

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
	var id, payload, headers string
	var scheduledAt, createdAt int64
	var leasedAt, lastRetryAt, processedAt sql.NullInt64
	var priority int

	err := row.Scan(
		&id,
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
		&scheduledAt,
		&leasedAt,
		&event.LeaseToken,
		&lastRetryAt,
		&event.LastErrorKind,
		&event.LastError,
		&priority,
		&event.IdempotencyKey,
		&createdAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	if event.ID, err = uuid.Parse(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse outbox event id")
	}
	if err := repository.DecodePayload(&event, []byte(payload), []byte(headers)); err != nil {
		return nil, err
	}

	event.Priority = domain.Priority(priority)
	event.ScheduledAt = fromMillis(scheduledAt)
	event.CreatedAt = fromMillis(createdAt)
	event.LeasedAt = fromNullMillis(leasedAt)
	event.LastRetryAt = fromNullMillis(lastRetryAt)
	event.ProcessedAt = fromNullMillis(processedAt)

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

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
