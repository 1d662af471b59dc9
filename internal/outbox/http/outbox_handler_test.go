package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/admissions/internal/outbox/domain"
	"github.com/allisson/admissions/internal/outbox/http/dto"
	"github.com/allisson/admissions/internal/outbox/usecase/mocks"
)

func setupTestHandler(t *testing.T) (*OutboxHandler, *mocks.MockUseCase) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	mockUseCase := &mocks.MockUseCase{}
	t.Cleanup(func() { mockUseCase.AssertExpectations(t) })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewOutboxHandler(mockUseCase, logger), mockUseCase
}

func createTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func TestOutboxHandler_HealthHandler(t *testing.T) {
	t.Run("Unhealthy snapshot is still 200", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		snapshot := domain.Evaluate(
			domain.OutboxStats{StaleLeases: 2, Pending: 7},
			domain.HealthThresholds{MaxLeased: 100, MaxFailed: 50},
			time.Now().UTC(),
		)

		mockUseCase.On("Health", mock.Anything).Return(snapshot, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/outbox/health")
		handler.HealthHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.False(t, response.Healthy)
		assert.Equal(t, int64(2), response.StaleLeases)
		assert.Contains(t, response.Reasons, "stale leases present")
	})

	t.Run("Store error", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("Health", mock.Anything).Return(nil, assert.AnError).Once()

		c, w := createTestContext(http.MethodGet, "/v1/outbox/health")
		handler.HealthHandler(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestOutboxHandler_ProcessHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("ProcessPending", mock.Anything, 25).
			Return(&domain.DispatchResult{Leased: 4, Published: 2, Failed: 1, Released: 1}, nil).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/outbox/process?limit=25")
		handler.ProcessHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.DispatchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, dto.DispatchResponse{Leased: 4, Published: 2, Failed: 1, Released: 1}, response)
	})

	t.Run("Default limit", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("ProcessPending", mock.Anything, 0).Return(&domain.DispatchResult{}, nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/outbox/process")
		handler.ProcessHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Negative limit", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/outbox/process?limit=-5")
		handler.ProcessHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Non numeric limit", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/outbox/process?limit=many")
		handler.ProcessHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOutboxHandler_PauseResume(t *testing.T) {
	handler, mockUseCase := setupTestHandler(t)

	mockUseCase.On("Pause").Return().Once()
	mockUseCase.On("Paused").Return(true).Once()

	c, w := createTestContext(http.MethodPost, "/v1/outbox/pause")
	handler.PauseHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"paused":true}`, w.Body.String())

	mockUseCase.On("Resume").Return().Once()
	mockUseCase.On("Paused").Return(false).Once()

	c, w = createTestContext(http.MethodPost, "/v1/outbox/resume")
	handler.ResumeHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"paused":false}`, w.Body.String())
}

func TestOutboxHandler_ListHandler(t *testing.T) {
	t.Run("Filter by state", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		events := []*domain.OutboxEvent{{ID: uuid.Must(uuid.NewV7()), RetryCount: 5, MaxRetries: 5}}

		mockUseCase.On("List", mock.Anything, domain.EventStateFailed, 0, 20).Return(events, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/outbox/events?state=failed&limit=20")
		handler.ListHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.ListEventsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Len(t, response.Data, 1)
		assert.Equal(t, "failed", response.Data[0].State)
	})

	t.Run("Unknown state", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodGet, "/v1/outbox/events?state=stuck")
		handler.ListHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestOutboxHandler_GetHandler(t *testing.T) {
	t.Run("Not found", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		id := uuid.Must(uuid.NewV7())

		mockUseCase.On("Get", mock.Anything, id).Return(nil, domain.ErrEventNotFound).Once()

		c, w := createTestContext(http.MethodGet, "/v1/outbox/events/"+id.String())
		c.Params = gin.Params{{Key: "id", Value: id.String()}}
		handler.GetHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Invalid id", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodGet, "/v1/outbox/events/123")
		c.Params = gin.Params{{Key: "id", Value: "123"}}
		handler.GetHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestOutboxHandler_ReprocessHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		now := time.Now().UTC()
		event := &domain.OutboxEvent{ID: uuid.Must(uuid.NewV7()), Processed: true, ProcessedAt: &now, MaxRetries: 5}

		mockUseCase.On("Reprocess", mock.Anything, event.ID).Return(event, nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/outbox/events/"+event.ID.String()+"/reprocess")
		c.Params = gin.Params{{Key: "id", Value: event.ID.String()}}
		handler.ReprocessHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.EventResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "processed", response.State)
	})

	t.Run("Terminal reprocess forbidden", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		id := uuid.Must(uuid.NewV7())

		mockUseCase.On("Reprocess", mock.Anything, id).Return(nil, domain.ErrReprocessNotAllowed).Once()

		c, w := createTestContext(http.MethodPost, "/v1/outbox/events/"+id.String()+"/reprocess")
		c.Params = gin.Params{{Key: "id", Value: id.String()}}
		handler.ReprocessHandler(c)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Leased by another worker", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		id := uuid.Must(uuid.NewV7())

		mockUseCase.On("Reprocess", mock.Anything, id).Return(nil, domain.ErrEventLeased).Once()

		c, w := createTestContext(http.MethodPost, "/v1/outbox/events/"+id.String()+"/reprocess")
		c.Params = gin.Params{{Key: "id", Value: id.String()}}
		handler.ReprocessHandler(c)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
