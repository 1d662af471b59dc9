package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/admissions/internal/application/domain"
)

var transitionLogColumns = []string{
	"id", "application_id", "from_status", "to_status", "reason_code", "actor_id", "actor_role",
	"comment", "idempotency_key", "data", "ip_address", "user_agent", "created_at",
}

func newLog(key *string) *domain.TransitionLog {
	return &domain.TransitionLog{
		ID:             uuid.Must(uuid.NewV7()),
		ApplicationID:  uuid.Must(uuid.NewV7()),
		FromStatus:     domain.StatusDraft,
		ToStatus:       domain.StatusPending,
		ReasonCode:     domain.ReasonFormSubmitted,
		ActorID:        "guardian-1",
		ActorRole:      domain.RoleApoderado,
		IdempotencyKey: key,
		Data:           map[string]any{"channel": "web"},
		Provenance:     &domain.Provenance{IPAddress: "10.0.0.1", UserAgent: "curl/8"},
		CreatedAt:      time.Now().UTC(),
	}
}

func TestPostgreSQLTransitionLogRepository_Create(t *testing.T) {
	ctx := context.Background()
	key := "k1"

	t.Run("Success", func(t *testing.T) {
		db, mock := setupMock(t)
		repo := NewPostgreSQLTransitionLogRepository(db)
		log := newLog(&key)

		mock.ExpectExec(`INSERT INTO transition_logs`).
			WithArgs(
				log.ID, log.ApplicationID, "DRAFT", "PENDING", "FORM_SUBMITTED", "guardian-1", "APODERADO", "",
				&key, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), log.CreatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, log))
	})

	t.Run("UniqueViolation", func(t *testing.T) {
		db, mock := setupMock(t)
		repo := NewPostgreSQLTransitionLogRepository(db)

		mock.ExpectExec(`INSERT INTO transition_logs`).
			WillReturnError(fmt.Errorf("exec: %w", &pq.Error{Code: "23505"}))

		err := repo.Create(ctx, newLog(&key))
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyConflict)
	})

	t.Run("Error", func(t *testing.T) {
		db, mock := setupMock(t)
		repo := NewPostgreSQLTransitionLogRepository(db)

		mock.ExpectExec(`INSERT INTO transition_logs`).WillReturnError(&pq.Error{Code: "23503"})

		err := repo.Create(ctx, newLog(nil))
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrIdempotencyKeyConflict)
		assert.Contains(t, err.Error(), "failed to create transition log")
	})
}

func TestPostgreSQLTransitionLogRepository_GetByIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())
	appID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		db, mock := setupMock(t)
		repo := NewPostgreSQLTransitionLogRepository(db)

		mock.ExpectQuery(`SELECT .* FROM transition_logs WHERE idempotency_key = \$1`).
			WithArgs("k1").
			WillReturnRows(sqlmock.NewRows(transitionLogColumns).AddRow(
				id.String(), appID.String(), "DRAFT", "PENDING", "FORM_SUBMITTED", "guardian-1", "APODERADO",
				"", "k1", []byte(`{"channel":"web"}`), "10.0.0.1", "curl/8", now,
			))

		log, err := repo.GetByIdempotencyKey(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, id, log.ID)
		assert.Equal(t, appID, log.ApplicationID)
		assert.Equal(t, domain.StatusPending, log.ToStatus)
		assert.Equal(t, "web", log.Data["channel"])
		require.NotNil(t, log.Provenance)
		assert.Equal(t, "curl/8", log.Provenance.UserAgent)
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock := setupMock(t)
		repo := NewPostgreSQLTransitionLogRepository(db)

		mock.ExpectQuery(`SELECT .* FROM transition_logs`).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByIdempotencyKey(ctx, "k1")
		assert.ErrorIs(t, err, domain.ErrTransitionLogNotFound)
	})
}

func TestPostgreSQLTransitionLogRepository_ListByApplication(t *testing.T) {
	ctx := context.Background()
	appID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		db, mock := setupMock(t)
		repo := NewPostgreSQLTransitionLogRepository(db)

		rows := sqlmock.NewRows(transitionLogColumns).
			AddRow(uuid.NewString(), appID.String(), "DRAFT", "PENDING", "FORM_SUBMITTED", "g", "APODERADO",
				"", nil, nil, nil, nil, now).
			AddRow(uuid.NewString(), appID.String(), "PENDING", "UNDER_REVIEW", "REVIEW_STARTED", "c", "COORDINATOR",
				"", nil, nil, nil, nil, now.Add(time.Second))

		mock.ExpectQuery(`SELECT .* FROM transition_logs WHERE application_id = \$1 ORDER BY created_at ASC, id ASC LIMIT \$2 OFFSET \$3`).
			WithArgs(appID, 20, 0).
			WillReturnRows(rows)

		logs, err := repo.ListByApplication(ctx, appID, 0, 20)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, domain.StatusDraft, logs[0].FromStatus)
		assert.Nil(t, logs[0].Provenance)
		assert.Nil(t, logs[0].Data)
		assert.Equal(t, domain.RoleCoordinator, logs[1].ActorRole)
	})

	t.Run("Error", func(t *testing.T) {
		db, mock := setupMock(t)
		repo := NewPostgreSQLTransitionLogRepository(db)

		mock.ExpectQuery(`SELECT .* FROM transition_logs`).WillReturnError(errors.New("boom"))

		_, err := repo.ListByApplication(ctx, appID, 0, 20)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list transition logs")
	})
}
