// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"strings"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/admissions/internal/application/domain"
	customValidation "github.com/allisson/admissions/internal/validation"
)

// CreateApplicationRequest contains the parameters for opening a DRAFT application.
type CreateApplicationRequest struct {
	ApplicantName string `json:"applicantName"`
	ActorID       string `json:"actorId"`
}

// Validate checks if the create application request is valid.
func (r *CreateApplicationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ApplicantName,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
		validation.Field(&r.ActorID,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
	)
}

// TransitionRequest asks the engine to move an application to TargetStatus.
type TransitionRequest struct {
	TargetStatus   string         `json:"targetStatus"`
	ReasonCode     string         `json:"reasonCode"`
	ActorID        string         `json:"actorId"`
	ActorRole      string         `json:"actorRole"`
	Comment        string         `json:"comment"`
	IdempotencyKey *string        `json:"idempotencyKey,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// Validate checks if the transition request is valid.
func (r *TransitionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.TargetStatus, validation.Required, customValidation.Status),
		validation.Field(&r.ReasonCode, validation.Required, customValidation.ReasonCode),
		validation.Field(&r.ActorID,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 255),
		),
		validation.Field(&r.ActorRole, validation.Required, customValidation.Role),
		validation.Field(&r.Comment, validation.Length(0, 2000)),
		validation.Field(&r.IdempotencyKey, validation.NilOrNotEmpty, customValidation.IdempotencyKey),
	)
}

// ApplyIdempotencyHeader uses the Idempotency-Key header value when the body carries no key.
func (r *TransitionRequest) ApplyIdempotencyHeader(header string) {
	header = strings.TrimSpace(header)
	if r.IdempotencyKey == nil && header != "" {
		r.IdempotencyKey = &header
	}
}

// ToInput maps the request to an engine input. Call Validate first.
func (r *TransitionRequest) ToInput(
	applicationID uuid.UUID,
	correlationID *string,
	provenance *domain.Provenance,
) *domain.TransitionInput {
	return &domain.TransitionInput{
		ApplicationID:  applicationID,
		TargetStatus:   domain.Status(r.TargetStatus),
		ReasonCode:     domain.ReasonCode(r.ReasonCode),
		ActorID:        strings.TrimSpace(r.ActorID),
		ActorRole:      domain.Role(r.ActorRole),
		Comment:        r.Comment,
		IdempotencyKey: r.IdempotencyKey,
		Data:           r.Data,
		Provenance:     provenance,
		CorrelationID:  correlationID,
	}
}
