package usecase

import (
	"github.com/allisson/admissions/internal/application/domain"
	outboxDomain "github.com/allisson/admissions/internal/outbox/domain"
)

// Event types emitted for applications. All are version v1.
const (
	EventApplicationCreated   = "ApplicationCreated"
	EventStateChanged         = "StateChanged"
	EventSubmissionReceived   = "SubmissionReceived"
	EventDocumentsReminder    = "DocumentsReminder"
	EventInterviewScheduled   = "InterviewScheduled"
	EventWaitlistNotified     = "WaitlistNotified"
	EventDecisionNotified     = "DecisionNotified"
	EventApplicationCompleted = "ApplicationCompleted"
)

// RoutingKeyStateChanged routes every StateChanged event.
const RoutingKeyStateChanged = "application.state_changed"

func newApplicationEvent(
	app *domain.Application,
	eventType, routingKey string,
	priority outboxDomain.Priority,
	payload map[string]any,
) *outboxDomain.OutboxEvent {
	event := outboxDomain.NewOutboxEvent(domain.AggregateType, app.ID.String(), eventType, payload)
	event.RoutingKey = routingKey
	event.Priority = priority
	return event
}

func newStateChangedEvent(
	app *domain.Application,
	log *domain.TransitionLog,
	correlationID *string,
) *outboxDomain.OutboxEvent {
	event := newApplicationEvent(app, EventStateChanged, RoutingKeyStateChanged, outboxDomain.PriorityNormal,
		map[string]any{
			"aggregateId": app.ID.String(),
			"fromState":   string(log.FromStatus),
			"toState":     string(log.ToStatus),
			"reasonCode":  string(log.ReasonCode),
			"actorId":     log.ActorID,
		})
	key := "transition:" + log.ID.String()
	event.IdempotencyKey = &key
	event.CorrelationID = correlationID
	return event
}

func newApplicationCreatedEvent(
	app *domain.Application,
	input *domain.CreateApplicationInput,
) *outboxDomain.OutboxEvent {
	event := newApplicationEvent(app, EventApplicationCreated, "application.created", outboxDomain.PriorityNormal,
		map[string]any{
			"aggregateId":   app.ID.String(),
			"applicantName": app.ApplicantName,
			"status":        string(app.Status),
			"actorId":       input.ActorID,
		})
	key := "created:" + app.ID.String()
	event.IdempotencyKey = &key
	event.CorrelationID = input.CorrelationID
	return event
}
