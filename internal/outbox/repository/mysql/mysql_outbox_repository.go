// Package mysql implements outbox event persistence for MySQL databases.
//
// UUIDs are stored as BINARY(16). MySQL has no UPDATE ... RETURNING, so leases tag the
// rows with a per-call token and read them back by that token.
package mysql

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

// MySQLOutboxEventRepository implements the outbox store for MySQL.
type MySQLOutboxEventRepository struct {
	db *sql.DB
}

// NewMySQLOutboxEventRepository creates a new MySQL outbox event repository.
func NewMySQLOutboxEventRepository(db *sql.DB) *MySQLOutboxEventRepository {
	return &MySQLOutboxEventRepository{db: db}
}

// Append inserts event. A duplicate idempotency key returns the stored row instead.
func (m *MySQLOutboxEventRepository) Append(
	ctx context.Context,
	event *domain.OutboxEvent,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := event.ID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	payload, headers, err := repository.EncodePayload(event)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO outbox_events (id, aggregate_type, aggregate_id, correlation_id, causation_id,
			  event_type, event_version, payload, channel, routing_key, headers, processed, processing,
			  retry_count, max_retries, scheduled_at, priority, idempotency_key, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, FALSE, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE id = id`

	result, err := querier.ExecContext(
		ctx,
		query,
		id,
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
		return m.getOne(ctx, `idempotency_key = ?`, *event.IdempotencyKey)
	}

	return event, nil
}

// AppendScheduled inserts event with a not-before delivery time.
func (m *MySQLOutboxEventRepository) AppendScheduled(
	ctx context.Context,
	event *domain.OutboxEvent,
	notBefore time.Time,
) (*domain.OutboxEvent, error) {
	event.ScheduledAt = notBefore.UTC()
	return m.Append(ctx, event)
}

// LeaseBatch flips up to limit eligible rows to processing with one conditional UPDATE,
// then reads the leased rows back by lease token.
func (m *MySQLOutboxEventRepository) LeaseBatch(
	ctx context.Context,
	filter domain.LeaseFilter,
	limit int,
	now time.Time,
) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		return []*domain.OutboxEvent{}, nil
	}

	querier := database.GetTx(ctx, m.db)

	token := repository.NewLeaseToken()
	args := []any{now, token, now}
	where := "processed = FALSE AND processing = FALSE AND scheduled_at <= ? AND retry_count < max_retries"
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
	query := `UPDATE outbox_events SET processing = TRUE, leased_at = ?, lease_token = ?
			  WHERE ` + where + `
			  ORDER BY priority DESC, created_at ASC
			  LIMIT ?`

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lease outbox events")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return []*domain.OutboxEvent{}, nil
	}

	rows, err := querier.QueryContext(
		ctx,
		`SELECT `+repository.Columns+` FROM outbox_events WHERE lease_token = ? AND processing = TRUE`,
		token,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read leased outbox events")
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	domain.SortForDispatch(events)
	return events, nil
}

// LeaseByID leases a single unprocessed, unleased row regardless of its schedule and retry budget.
func (m *MySQLOutboxEventRepository) LeaseByID(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	token := repository.NewLeaseToken()
	result, err := querier.ExecContext(
		ctx,
		`UPDATE outbox_events SET processing = TRUE, leased_at = ?, lease_token = ?
		 WHERE id = ? AND processed = FALSE AND processing = FALSE`,
		now,
		token,
		rawID,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lease outbox event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return nil, domain.ErrEventNotFound
	}

	return m.getOne(ctx, `lease_token = ?`, token)
}

// MarkProcessed records a successful delivery by the lease holder. The lease token is kept on
// the row so a repeated call by the same holder succeeds and keeps the first processed_at.
// Returns ErrLeaseLost when leaseToken no longer holds the row.
func (m *MySQLOutboxEventRepository) MarkProcessed(
	ctx context.Context,
	id uuid.UUID,
	leaseToken string,
	now time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	query := `UPDATE outbox_events
			  SET processed = TRUE, processing = FALSE, leased_at = NULL,
			      processed_at = COALESCE(processed_at, ?)
			  WHERE id = ? AND lease_token = ? AND (processing = TRUE OR processed = TRUE)`

	result, err := querier.ExecContext(ctx, query, now, rawID, leaseToken)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox event processed")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected > 0 {
		return nil
	}

	// MySQL reports changed rows, so a repeated call by the same holder affects nothing.
	var count int
	err = querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE id = ? AND lease_token = ? AND processed = TRUE`,
		rawID,
		leaseToken,
	).Scan(&count)
	if err != nil {
		return apperrors.Wrap(err, "failed to check outbox event lease")
	}
	if count == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// MarkFailed records a failed delivery attempt and releases the lease held by leaseToken.
// Returns ErrLeaseLost when leaseToken no longer holds the row.
func (m *MySQLOutboxEventRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	leaseToken string,
	failure domain.DeliveryFailure,
	now time.Time,
	nextAttemptAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	query := `UPDATE outbox_events
			  SET retry_count = retry_count + 1, processing = FALSE, leased_at = NULL, lease_token = NULL,
			      last_retry_at = ?, last_error_kind = ?, last_error = ?, scheduled_at = ?
			  WHERE id = ? AND processed = FALSE AND processing = TRUE AND lease_token = ?`

	result, err := querier.ExecContext(
		ctx, query, now, failure.Kind, failure.Message, nextAttemptAt, rawID, leaseToken,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox event failed")
	}
	return expectLeaseHeld(result)
}

// ReleaseLease gives the row back without counting an attempt.
// Returns ErrLeaseLost when leaseToken no longer holds the row.
func (m *MySQLOutboxEventRepository) ReleaseLease(ctx context.Context, id uuid.UUID, leaseToken string) error {
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	query := `UPDATE outbox_events SET processing = FALSE, leased_at = NULL, lease_token = NULL
			  WHERE id = ? AND processed = FALSE AND processing = TRUE AND lease_token = ?`

	result, err := querier.ExecContext(ctx, query, rawID, leaseToken)
	if err != nil {
		return apperrors.Wrap(err, "failed to release outbox event lease")
	}
	return expectLeaseHeld(result)
}

// ReclaimStaleLeases releases leases taken before now minus maxLeaseAge.
func (m *MySQLOutboxEventRepository) ReclaimStaleLeases(
	ctx context.Context,
	maxLeaseAge time.Duration,
	now time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE outbox_events SET processing = FALSE, leased_at = NULL, lease_token = NULL
			  WHERE processing = TRUE AND leased_at < ?`

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
func (m *MySQLOutboxEventRepository) PurgeOlderThan(
	ctx context.Context,
	processedRetention time.Duration,
	failedRetention time.Duration,
	now time.Time,
) (domain.PurgeResult, error) {
	querier := database.GetTx(ctx, m.db)
	var result domain.PurgeResult

	if processedRetention > 0 {
		res, err := querier.ExecContext(
			ctx,
			`DELETE FROM outbox_events WHERE processed = TRUE AND processed_at < ?`,
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
			   AND COALESCE(last_retry_at, created_at) < ?`,
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
func (m *MySQLOutboxEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	rawID, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal outbox event id")
	}
	return m.getOne(ctx, `id = ?`, rawID)
}

// List returns events in state, newest first. The empty state lists every event.
func (m *MySQLOutboxEventRepository) List(
	ctx context.Context,
	state domain.EventState,
	offset, limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, m.db)

	//nolint:gosec // predicate is built from constants only
	query := `SELECT ` + repository.Columns + ` FROM outbox_events
			  WHERE ` + repository.StateCondition(state, "TRUE", "FALSE") + `
			  ORDER BY created_at DESC, id DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list outbox events")
	}
	return scanEvents(rows)
}

// Stats counts rows per delivery state. Leases taken before staleBefore count as stale.
func (m *MySQLOutboxEventRepository) Stats(ctx context.Context, staleBefore time.Time) (domain.OutboxStats, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT
			      COALESCE(SUM(processed = FALSE AND processing = FALSE AND retry_count < max_retries), 0),
			      COALESCE(SUM(processing = TRUE), 0),
			      COALESCE(SUM(processed = FALSE AND processing = FALSE AND retry_count >= max_retries), 0),
			      COALESCE(SUM(processing = TRUE AND leased_at < ?), 0),
			      COALESCE(SUM(processed = FALSE AND processing = FALSE AND retry_count < max_retries AND priority = ?), 0)
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

func (m *MySQLOutboxEventRepository) getOne(ctx context.Context, predicate string, arg any) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + repository.Columns + ` FROM outbox_events WHERE ` + predicate

	event, err := scanEvent(querier.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox event")
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
	var id, payload, headers []byte
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

	if err := event.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal outbox event id")
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
