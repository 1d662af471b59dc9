package dto_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/admissions/internal/application/domain"
	"github.com/allisson/admissions/internal/application/http/dto"
)

func TestMapApplicationToResponse(t *testing.T) {
	now := time.Now().UTC()
	app := &domain.Application{
		ID:            uuid.Must(uuid.NewV7()),
		ApplicantName: "Ana Rojas",
		Status:        domain.StatusUnderReview,
		Version:       3,
		CreatedAt:     now,
		UpdatedAt:     now.Add(time.Minute),
	}

	response := dto.MapApplicationToResponse(app)

	assert.Equal(t, app.ID.String(), response.ID)
	assert.Equal(t, "UNDER_REVIEW", response.Status)
	assert.Equal(t, int64(3), response.Version)
	assert.Equal(t, app.UpdatedAt, response.UpdatedAt)
}

func TestMapTransitionLogsToListResponse(t *testing.T) {
	key := "k1"
	logs := []*domain.TransitionLog{
		{
			ID:             uuid.Must(uuid.NewV7()),
			ApplicationID:  uuid.Must(uuid.NewV7()),
			FromStatus:     domain.StatusDraft,
			ToStatus:       domain.StatusPending,
			ReasonCode:     domain.ReasonFormSubmitted,
			ActorID:        "guardian-1",
			ActorRole:      domain.RoleApoderado,
			IdempotencyKey: &key,
			Provenance:     &domain.Provenance{IPAddress: "10.0.0.1", UserAgent: "curl/8"},
		},
		{
			ID:         uuid.Must(uuid.NewV7()),
			FromStatus: domain.StatusPending,
			ToStatus:   domain.StatusUnderReview,
		},
	}

	response := dto.MapTransitionLogsToListResponse(logs)

	require.Len(t, response.Data, 2)
	assert.Equal(t, "DRAFT", response.Data[0].FromStatus)
	assert.Equal(t, "10.0.0.1", response.Data[0].IPAddress)
	assert.Equal(t, "curl/8", response.Data[0].UserAgent)
	assert.Equal(t, &key, response.Data[0].IdempotencyKey)
	assert.Empty(t, response.Data[1].IPAddress)

	assert.NotNil(t, dto.MapTransitionLogsToListResponse(nil).Data)
}

func TestMapRulesToPolicyResponse(t *testing.T) {
	response := dto.MapRulesToPolicyResponse([]domain.Rule{{
		From:   domain.StatusDraft,
		Reason: domain.ReasonFormSubmitted,
		Roles:  []domain.Role{domain.RoleAdmin, domain.RoleApoderado},
		To:     []domain.Status{domain.StatusPending},
	}})

	require.Len(t, response.Data, 1)
	assert.Equal(t, dto.RuleResponse{
		From:   "DRAFT",
		Reason: "FORM_SUBMITTED",
		Roles:  []string{"ADMIN", "APODERADO"},
		To:     []string{"PENDING"},
	}, response.Data[0])
}
