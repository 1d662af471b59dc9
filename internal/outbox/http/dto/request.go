package dto

import (
	validation "github.com/jellydator/validation"

	"github.com/allisson/admissions/internal/outbox/domain"
	customValidation "github.com/allisson/admissions/internal/validation"
)

// ListEventsQuery filters the event listing.
type ListEventsQuery struct {
	State string `form:"state" json:"state"`
}

// Validate checks if the listing filter is valid.
func (q *ListEventsQuery) Validate() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.State, customValidation.EventState),
	)
}

// EventState returns the parsed filter. An empty state lists every event.
func (q *ListEventsQuery) EventState() domain.EventState {
	return domain.EventState(q.State)
}

// ProcessQuery bounds a forced dispatch pass.
type ProcessQuery struct {
	Limit int `form:"limit" json:"limit"`
}

// Validate checks if the process query is valid.
func (q *ProcessQuery) Validate() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Limit, validation.Min(0), validation.Max(10000)),
	)
}
