package mysql

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

// MySQLTransitionLogRepository implements transition log persistence for MySQL.
type MySQLTransitionLogRepository struct {
	db *sql.DB
}

// NewMySQLTransitionLogRepository creates a new MySQL transition log repository.
func NewMySQLTransitionLogRepository(db *sql.DB) *MySQLTransitionLogRepository {
	return &MySQLTransitionLogRepository{db: db}
}

// Create inserts an audit record. A reused idempotency key returns ErrIdempotencyKeyConflict.
func (m *MySQLTransitionLogRepository) Create(ctx context.Context, log *domain.TransitionLog) error {
	querier := database.GetTx(ctx, m.db)

	id, err := log.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal transition log id")
	}
	applicationID, err := log.ApplicationID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal application id")
	}
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
		id,
		applicationID,
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
		log.CreatedAt,
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
func (m *MySQLTransitionLogRepository) GetByIdempotencyKey(
	ctx context.Context,
	key string,
) (*domain.TransitionLog, error) {
	querier := database.GetTx(ctx, m.db)

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
func (m *MySQLTransitionLogRepository) ListByApplication(
	ctx context.Context,
	applicationID uuid.UUID,
	offset, limit int,
) ([]*domain.TransitionLog, error) {
	querier := database.GetTx(ctx, m.db)

	rawID, err := applicationID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal application id")
	}

	query := `SELECT ` + repository.TransitionLogColumns + ` FROM transition_logs
			  WHERE application_id = ?
			  ORDER BY created_at ASC, id ASC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, rawID, limit, offset)
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
	var id, applicationID, data []byte
	var fromStatus, toStatus, reasonCode, actorRole string
	var ipAddress, userAgent sql.NullString

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
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := log.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal transition log id")
	}
	if err := log.ApplicationID.UnmarshalBinary(applicationID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal application id")
	}
	if log.Data, err = repository.DecodeData(data); err != nil {
		return nil, err
	}
	log.FromStatus = domain.Status(fromStatus)
	log.ToStatus = domain.Status(toStatus)
	log.ReasonCode = domain.ReasonCode(reasonCode)
	log.ActorRole = domain.Role(actorRole)
	log.Provenance = repository.ScanProvenance(ipAddress, userAgent)

	return &log, nil
}
