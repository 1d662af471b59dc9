package domain

import (
	"time"

	"github.com/google/uuid"
)

// AggregateType tags outbox events about applications.
const AggregateType = "Application"

// Application is an admission application. Status changes only through the transition
// engine, and every change bumps Version.
type Application struct {
	ID            uuid.UUID
	ApplicantName string
	Status        Status
	// Version is the optimistic concurrency counter. It starts at 1.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewApplication returns a DRAFT application at version 1.
func NewApplication(applicantName string, now time.Time) *Application {
	return &Application{
		ID:            uuid.Must(uuid.NewV7()),
		ApplicantName: applicantName,
		Status:        StatusDraft,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CreateApplicationInput contains the parameters for creating an application.
type CreateApplicationInput struct {
	ApplicantName string
	ActorID       string
	CorrelationID *string
}
