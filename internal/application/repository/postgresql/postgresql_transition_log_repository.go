package postgresql

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

// PostgreSQLTransitionLogRepository implements transition log persistence for PostgreSQL.
type PostgreSQLTransitionLogRepository struct {
	db *sql.DB
}

// NewPostgreSQLTransitionLogRepository creates a new PostgreSQL transition log repository.
func NewPostgreSQLTransitionLogRepository(db *sql.DB) *PostgreSQLTransitionLogRepository {
	return &PostgreSQLTransitionLogRepository{db: db}
}

// Create inserts an audit record. A reused idempotency key returns ErrIdempotencyKeyConflict.
// The violation aborts the surrounding transaction, so callers must retry from scratch.
func (p *PostgreSQLTransitionLogRepository) Create(ctx context.Context, log *domain.TransitionLog) error {
	querier := database.GetTx(ctx, p.db)

	data, err := repository.EncodeData(log.Data)
	if err != nil {
		return err
	}
	ipAddress, userAgent := repository.ProvenanceArgs(log.Provenance)

	query := `INSERT INTO transition_logs (id, application_id, from_status, to_status, reason_code,
			  actor_id, actor_role, comment, idempotency_key, data, ip_address, user_agent, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = querier.ExecContext(
		ctx,
		query,
		log.ID,
		log.ApplicationID,
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
func (p *PostgreSQLTransitionLogRepository) GetByIdempotencyKey(
	ctx context.Context,
	key string,
) (*domain.TransitionLog, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + repository.TransitionLogColumns + ` FROM transition_logs WHERE idempotency_key = $1`

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
func (p *PostgreSQLTransitionLogRepository) ListByApplication(
	ctx context.Context,
	applicationID uuid.UUID,
	offset, limit int,
) ([]*domain.TransitionLog, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + repository.TransitionLogColumns + ` FROM transition_logs
			  WHERE application_id = $1
			  ORDER BY created_at ASC, id ASC
			  LIMIT $2 OFFSET $3`

	rows, err := querier.QueryContext(ctx, query, applicationID, limit, offset)
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
	var fromStatus, toStatus, reasonCode, actorRole string
	var data []byte
	var ipAddress, userAgent sql.NullString

	err := row.Scan(
		&log.ID,
		&log.ApplicationID,
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
