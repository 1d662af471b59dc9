package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provenance records where a transition request came from.
type Provenance struct {
	IPAddress string
	UserAgent string
}

// TransitionLog is the immutable audit record of an accepted transition.
type TransitionLog struct {
	ID             uuid.UUID
	ApplicationID  uuid.UUID
	FromStatus     Status
	ToStatus       Status
	ReasonCode     ReasonCode
	ActorID        string
	ActorRole      Role
	Comment        string
	IdempotencyKey *string
	Data           map[string]any
	Provenance     *Provenance
	CreatedAt      time.Time
}

// TransitionInput contains the parameters of a transition request.
type TransitionInput struct {
	ApplicationID uuid.UUID
	TargetStatus  Status
	ReasonCode    ReasonCode
	ActorID       string
	ActorRole     Role
	Comment       string
	// IdempotencyKey makes repeated requests return the first result without writing again.
	IdempotencyKey *string
	Data           map[string]any
	Provenance     *Provenance
	CorrelationID  *string
}

// NewTransitionLog builds the audit record for moving app from its current status per input.
func NewTransitionLog(app *Application, input *TransitionInput, now time.Time) *TransitionLog {
	return &TransitionLog{
		ID:             uuid.Must(uuid.NewV7()),
		ApplicationID:  app.ID,
		FromStatus:     app.Status,
		ToStatus:       input.TargetStatus,
		ReasonCode:     input.ReasonCode,
		ActorID:        input.ActorID,
		ActorRole:      input.ActorRole,
		Comment:        input.Comment,
		IdempotencyKey: input.IdempotencyKey,
		Data:           input.Data,
		Provenance:     input.Provenance,
		CreatedAt:      now,
	}
}
