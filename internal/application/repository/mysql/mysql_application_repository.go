// Package mysql implements application and transition log persistence for MySQL databases.
//
// UUIDs are stored as BINARY(16).
package mysql

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

// MySQLApplicationRepository implements application persistence for MySQL.
type MySQLApplicationRepository struct {
	db *sql.DB
}

// NewMySQLApplicationRepository creates a new MySQL application repository.
func NewMySQLApplicationRepository(db *sql.DB) *MySQLApplicationRepository {
	return &MySQLApplicationRepository{db: db}
}

// Create inserts a new application.
func (m *MySQLApplicationRepository) Create(ctx context.Context, app *domain.Application) error {
	querier := database.GetTx(ctx, m.db)

	id, err := app.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal application id")
	}

	query := `INSERT INTO applications (id, applicant_name, status, version, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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
func (m *MySQLApplicationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal application id")
	}

	query := `SELECT ` + repository.ApplicationColumns + ` FROM applications WHERE id = ?`

	var app domain.Application
	var storedID []byte
	var status string

	err = querier.QueryRowContext(ctx, query, rawID).Scan(
		&storedID,
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

	if err := app.ID.UnmarshalBinary(storedID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal application id")
	}
	app.Status = domain.Status(status)

	return &app, nil
}

// UpdateStatus moves the application to status if it is still at expectedVersion, bumping
// the version. Returns ErrConcurrentModification when the version no longer matches.
func (m *MySQLApplicationRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.Status,
	expectedVersion int64,
	updatedAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal application id")
	}

	// RowsAffected counts changed rows here; the version bump always changes a matched row.
	query := `UPDATE applications SET status = ?, version = version + 1, updated_at = ?
			  WHERE id = ? AND version = ?`

	result, err := querier.ExecContext(ctx, query, string(status), updatedAt, rawID, expectedVersion)
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
