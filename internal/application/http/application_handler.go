// Package http provides HTTP handlers for admission applications and their audited transitions.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/application/domain"
	"github.com/allisson/admissions/internal/application/http/dto"
	applicationUseCase "github.com/allisson/admissions/internal/application/usecase"
	"github.com/allisson/admissions/internal/httputil"
	customValidation "github.com/allisson/admissions/internal/validation"
)

// IdempotencyKeyHeader carries the idempotency key when the request body omits it.
const IdempotencyKeyHeader = "Idempotency-Key"

const requestIDHeader = "X-Request-Id"

// ApplicationHandler handles HTTP requests for applications.
type ApplicationHandler struct {
	useCase applicationUseCase.UseCase
	logger  *slog.Logger
}

// NewApplicationHandler creates a new application handler.
func NewApplicationHandler(useCase applicationUseCase.UseCase, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		useCase: useCase,
		logger:  logger,
	}
}

// CreateHandler opens a DRAFT application.
// POST /v1/applications - Returns 201 Created.
func (h *ApplicationHandler) CreateHandler(c *gin.Context) {
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	app, err := h.useCase.Create(c.Request.Context(), &domain.CreateApplicationInput{
		ApplicantName: req.ApplicantName,
		ActorID:       req.ActorID,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapApplicationToResponse(app))
}

// GetHandler returns one application.
// GET /v1/applications/:id - Returns 200 OK.
func (h *ApplicationHandler) GetHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	app, err := h.useCase.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapApplicationToResponse(app))
}

// TransitionHandler runs a state transition through the engine.
// POST /v1/applications/:id/transitions - Returns 200 OK with the resulting application.
// A denied transition is 422, and contention that outlives the retries is 409.
func (h *ApplicationHandler) TransitionHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	req.ApplyIdempotencyHeader(c.GetHeader(IdempotencyKeyHeader))

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	provenance := &domain.Provenance{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	app, err := h.useCase.Transition(c.Request.Context(), req.ToInput(id, correlationID(c), provenance))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapApplicationToResponse(app))
}

// ListTransitionsHandler returns the audit history, oldest first.
// GET /v1/applications/:id/transitions?offset=0&limit=50 - Returns 200 OK.
func (h *ApplicationHandler) ListTransitionsHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	page, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	logs, err := h.useCase.ListTransitions(c.Request.Context(), id, page.Offset, page.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapTransitionLogsToListResponse(logs))
}

// PolicyHandler lists the active transition table.
// GET /v1/policy - Returns 200 OK.
func (h *ApplicationHandler) PolicyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dto.MapRulesToPolicyResponse(h.useCase.Rules()))
}

func (h *ApplicationHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c,
			fmt.Errorf("invalid application ID format: must be a valid UUID"),
			h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// correlationID returns the request id assigned by the requestid middleware, falling back
// to the raw header when the middleware is not installed.
func correlationID(c *gin.Context) *string {
	id := requestid.Get(c)
	if id == "" {
		id = c.GetHeader(requestIDHeader)
	}
	if id == "" {
		return nil
	}
	return &id
}
