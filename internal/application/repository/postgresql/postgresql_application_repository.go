// Package postgresql implements application and transition log persistence for PostgreSQL databases.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/application/domain"
	"github.com/allisson/admissions/internal/application/repository"
	"github.com/allisson/admissions/internal/database"
	apperrors "github.com/allisson/admissions/internal/errors"
)

// PostgreSQLApplicationRepository implements application persistence for PostgreSQL.
type PostgreSQLApplicationRepository struct {
	db *sql.DB
}

// NewPostgreSQLApplicationRepository creates a new PostgreSQL application repository.
func NewPostgreSQLApplicationRepository(db *sql.DB) *PostgreSQLApplicationRepository {
	return &PostgreSQLApplicationRepository{db: db}
}

// Create inserts a new application.
func (p *PostgreSQLApplicationRepository) Create(ctx context.Context, app *domain.Application) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO applications (id, applicant_name, status, version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := querier.ExecContext(
		ctx,
		query,
		app.ID,
		app.ApplicantName,
		string(app.Status),
		app.Version,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create application")
	}
	return nil
}

// Get retrieves an application by ID. Returns ErrApplicationNotFound if not found.
func (p *PostgreSQLApplicationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + repository.ApplicationColumns + ` FROM applications WHERE id = $1`

	var app domain.Application
	var status string

	err := querier.QueryRowContext(ctx, query, id).Scan(
		&app.ID,
		&app.ApplicantName,
		&status,
		&app.Version,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrApplicationNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get application")
	}
	app.Status = domain.Status(status)

	return &app, nil
}

// UpdateStatus moves the application to status if it is still at expectedVersion, bumping
// the version. Returns ErrConcurrentModification when the version no longer matches.
func (p *PostgreSQLApplicationRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.Status,
	expectedVersion int64,
	updatedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE applications SET status = $1, version = version + 1, updated_at = $2
			  WHERE id = $3 AND version = $4`

	result, err := querier.ExecContext(ctx, query, string(status), updatedAt, id, expectedVersion)
	if err != nil {
		return apperrors.Wrap(err, "failed to update application status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}
