// Package sqlite implements application and transition log persistence for SQLite databases.
//
// UUIDs are stored as TEXT and timestamps as INTEGER unix milliseconds.
package sqlite

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

// SQLiteApplicationRepository implements application persistence for SQLite.
type SQLiteApplicationRepository struct {
	db *sql.DB
}

// NewSQLiteApplicationRepository creates a new SQLite application repository.
func NewSQLiteApplicationRepository(db *sql.DB) *SQLiteApplicationRepository {
	return &SQLiteApplicationRepository{db: db}
}

// Create inserts a new application.
func (s *SQLiteApplicationRepository) Create(ctx context.Context, app *domain.Application) error {
	querier := database.GetTx(ctx, s.db)

	query := `INSERT INTO applications (id, applicant_name, status, version, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		app.ID.String(),
		app.ApplicantName,
		string(app.Status),
		app.Version,
		toMillis(app.CreatedAt),
		toMillis(app.UpdatedAt),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create application")
	}
	return nil
}

// Get retrieves an application by ID. Returns ErrApplicationNotFound if not found.
func (s *SQLiteApplicationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT ` + repository.ApplicationColumns + ` FROM applications WHERE id = ?`

	var app domain.Application
	var rawID, status string
	var createdAt, updatedAt int64

	err := querier.QueryRowContext(ctx, query, id.String()).Scan(
		&rawID,
		&app.ApplicantName,
		&status,
		&app.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrApplicationNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get application")
	}

	app.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse application id")
	}
	app.Status = domain.Status(status)
	app.CreatedAt = fromMillis(createdAt)
	app.UpdatedAt = fromMillis(updatedAt)

	return &app, nil
}

// UpdateStatus moves the application to status if it is still at expectedVersion, bumping
// the version. Returns ErrConcurrentModification when the version no longer matches.
func (s *SQLiteApplicationRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.Status,
	expectedVersion int64,
	updatedAt time.Time,
) error {
	querier := database.GetTx(ctx, s.db)

	query := `UPDATE applications SET status = ?, version = version + 1, updated_at = ?
			  WHERE id = ? AND version = ?`

	result, err := querier.ExecContext(ctx, query, string(status), toMillis(updatedAt), id.String(), expectedVersion)
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

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
