package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/application/domain"
	"github.com/allisson/admissions/internal/application/repository"
	"github.com/allisson/admissions/internal/database"
	apperrors "github.com/allisson/admissions/internal/errors"
)

// SQLiteTransitionLogRepository implements transition log persistence for SQLite.
type SQLiteTransitionLogRepository struct {
	db *sql.DB
}

// NewSQLiteTransitionLogRepository creates a new SQLite transition log repository.
func NewSQLiteTransitionLogRepository(db *sql.DB) *SQLiteTransitionLogRepository {
	return &SQLiteTransitionLogRepository{db: db}
}

// Create inserts an audit record. A reused idempotency key returns ErrIdempotencyKeyConflict.
func (s *SQLiteTransitionLogRepository) Create(ctx context.Context, log *domain.TransitionLog) error {
	querier := database.GetTx(ctx, s.db)

	data, err := repository.EncodeData(log.Data)
	if err != nil {
		return err
	}
	ipAddress, userAgent := repository.ProvenanceArgs(log.Provenance)

	query := `INSERT INTO transition_logs (id, application_id, from_status, to_status, reason_code,
			  actor_id, actor_role, comment, idempotency_key, data, ip_address, user_agent, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		log.ID.String(),
		log.ApplicationID.String(),
		string(log.FromStatus),
		string(log.ToStatus),
		string(log.ReasonCode),
		log.ActorID,
		string(log.ActorRole),
		log.Comment,
		log.IdempotencyKey,
		data,
		ipAddress,
		userAgent,
		toMillis(log.CreatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrIdempotencyKeyConflict
		}
		return apperrors.Wrap(err, "failed to create transition log")
	}
	return nil
}

// GetByIdempotencyKey returns the log recorded with key, or ErrTransitionLogNotFound.
func (s *SQLiteTransitionLogRepository) GetByIdempotencyKey(
	ctx context.Context,
	key string,
) (*domain.TransitionLog, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + repository.TransitionLogColumns + ` FROM transition_logs WHERE idempotency_key = ?`

	log, err := scanTransitionLog(querier.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransitionLogNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get transition log")
	}
	return log, nil
}

// ListByApplication returns the audit history of an application, oldest first.
func (s *SQLiteTransitionLogRepository) ListByApplication(
	ctx context.Context,
	applicationID uuid.UUID,
	offset, limit int,
) ([]*domain.TransitionLog, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + repository.TransitionLogColumns + ` FROM transition_logs
			  WHERE application_id = ?
			  ORDER BY created_at ASC, id ASC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, applicationID.String(), limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list transition logs")
	}
	defer func() {
		_ = rows.Close()
	}()

	logs := make([]*domain.TransitionLog, 0)
	for rows.Next() {
		log, err := scanTransitionLog(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan transition log")
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate transition logs")
	}

	return logs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransitionLog(row rowScanner) (*domain.TransitionLog, error) {
	var log domain.TransitionLog
	var id, applicationID, fromStatus, toStatus, reasonCode, actorRole string
	var data, ipAddress, userAgent sql.NullString
	var createdAt int64

	err := row.Scan(
		&id,
		&applicationID,
		&fromStatus,
		&toStatus,
		&reasonCode,
		&log.ActorID,
		&actorRole,
		&log.Comment,
		&log.IdempotencyKey,
		&data,
		&ipAddress,
		&userAgent,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if log.ID, err = uuid.Parse(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse transition log id")
	}
	if log.ApplicationID, err = uuid.Parse(applicationID); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse application id")
	}
	if log.Data, err = repository.DecodeData([]byte(data.String)); err != nil {
		return nil, err
	}
	log.FromStatus = domain.Status(fromStatus)
	log.ToStatus = domain.Status(toStatus)
	log.ReasonCode = domain.ReasonCode(reasonCode)
	log.ActorRole = domain.Role(actorRole)
	log.Provenance = repository.ScanProvenance(ipAddress, userAgent)
	log.CreatedAt = fromMillis(createdAt)

	return &log, nil
}
