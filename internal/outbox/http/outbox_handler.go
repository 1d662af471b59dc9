// Package http provides the operator API for the transactional outbox.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/httputil"
	"github.com/allisson/admissions/internal/outbox/http/dto"
	outboxUseCase "github.com/allisson/admissions/internal/outbox/usecase"
	customValidation "github.com/allisson/admissions/internal/validation"
)

// OutboxHandler handles operator requests for the outbox.
type OutboxHandler struct {
	useCase outboxUseCase.UseCase
	logger  *slog.Logger
}

// NewOutboxHandler creates a new outbox handler.
func NewOutboxHandler(useCase outboxUseCase.UseCase, logger *slog.Logger) *OutboxHandler {
	return &OutboxHandler{
		useCase: useCase,
		logger:  logger,
	}
}

// HealthHandler returns a read-only health snapshot.
// GET /v1/outbox/health - Returns 200 OK whether or not the outbox is healthy.
func (h *OutboxHandler) HealthHandler(c *gin.Context) {
	snapshot, err := h.useCase.Health(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapHealthToResponse(snapshot))
}

// ProcessHandler runs one synchronous dispatch pass, ignoring the pause flag.
// POST /v1/outbox/process?limit=N - Returns 200 OK with the pass summary.
func (h *OutboxHandler) ProcessHandler(c *gin.Context) {
	var query dto.ProcessQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := query.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	result, err := h.useCase.ProcessPending(c.Request.Context(), query.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapDispatchResultToResponse(result))
}

// PauseHandler stops the poll and retry cadences of this process.
// POST /v1/outbox/pause - Returns 200 OK.
func (h *OutboxHandler) PauseHandler(c *gin.Context) {
	h.useCase.Pause()
	if h.logger != nil {
		h.logger.Info("outbox dispatch paused")
	}
	c.JSON(http.StatusOK, dto.PauseResponse{Paused: h.useCase.Paused()})
}

// ResumeHandler restarts the poll and retry cadences of this process.
// POST /v1/outbox/resume - Returns 200 OK.
func (h *OutboxHandler) ResumeHandler(c *gin.Context) {
	h.useCase.Resume()
	if h.logger != nil {
		h.logger.Info("outbox dispatch resumed")
	}
	c.JSON(http.StatusOK, dto.PauseResponse{Paused: h.useCase.Paused()})
}

// ListHandler lists events for inspection.
// GET /v1/outbox/events?state=failed&offset=0&limit=50 - Returns 200 OK.
func (h *OutboxHandler) ListHandler(c *gin.Context) {
	var query dto.ListEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := query.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	page, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	events, err := h.useCase.List(c.Request.Context(), query.EventState(), page.Offset, page.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEventsToListResponse(events))
}

// GetHandler returns one event.
// GET /v1/outbox/events/:id - Returns 200 OK.
func (h *OutboxHandler) GetHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	event, err := h.useCase.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEventToResponse(event))
}

// ReprocessHandler forces delivery of one event.
// POST /v1/outbox/events/:id/reprocess - Returns 200 OK with the refreshed event.
// A terminally failed event is 403 unless terminal reprocess is allowed.
func (h *OutboxHandler) ReprocessHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	event, err := h.useCase.Reprocess(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEventToResponse(event))
}

func (h *OutboxHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c,
			fmt.Errorf("invalid event ID format: must be a valid UUID"),
			h.logger)
		return uuid.Nil, false
	}
	return id, true
}
