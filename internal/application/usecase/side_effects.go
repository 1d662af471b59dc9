package usecase

import (
	"time"

	"github.com/allisson/admissions/internal/application/domain"
	outboxDomain "github.com/allisson/admissions/internal/outbox/domain"
)

// FollowUp is an outbox event queued in the same transaction as a state change.
type FollowUp struct {
	Event *outboxDomain.OutboxEvent
	// NotBefore delays delivery. The zero value delivers immediately.
	NotBefore time.Time
}

// EventFactory builds the follow-up for a transition that has just been recorded.
type EventFactory func(app *domain.Application, log *domain.TransitionLog, config Config) FollowUp

// sideEffects maps every status to the follow-ups queued when an application enters it.
// Every status has an entry, even when it queues nothing.
var sideEffects = map[domain.Status][]EventFactory{
	domain.StatusDraft:              nil,
	domain.StatusPending:            {notify(EventSubmissionReceived, "application.submission_received", outboxDomain.PriorityNormal)},
	domain.StatusUnderReview:        nil,
	domain.StatusDocumentsRequested: {documentsReminder},
	domain.StatusInterviewScheduled: {notify(EventInterviewScheduled, "application.interview_scheduled", outboxDomain.PriorityHigh)},
	domain.StatusWaitlisted:         {notify(EventWaitlistNotified, "application.waitlist_notified", outboxDomain.PriorityNormal)},
	domain.StatusApproved:           {notify(EventDecisionNotified, "application.decision_notified", outboxDomain.PriorityHigh)},
	domain.StatusRejected:           {notify(EventDecisionNotified, "application.decision_notified", outboxDomain.PriorityHigh)},
	domain.StatusEnrolled:           {notify(EventApplicationCompleted, "application.completed", outboxDomain.PriorityHigh)},
	domain.StatusWithdrawn:          nil,
	domain.StatusArchived:           nil,
}

// FollowUpsFor returns the factories registered for status.
func FollowUpsFor(status domain.Status) []EventFactory {
	return sideEffects[status]
}

func notify(eventType, routingKey string, priority outboxDomain.Priority) EventFactory {
	return func(app *domain.Application, log *domain.TransitionLog, _ Config) FollowUp {
		return FollowUp{Event: newFollowUpEvent(app, log, eventType, routingKey, priority)}
	}
}

func documentsReminder(app *domain.Application, log *domain.TransitionLog, config Config) FollowUp {
	return FollowUp{
		Event:     newFollowUpEvent(app, log, EventDocumentsReminder, "application.documents_reminder", outboxDomain.PriorityNormal),
		NotBefore: log.CreatedAt.Add(config.ReminderDelay),
	}
}

func newFollowUpEvent(
	app *domain.Application,
	log *domain.TransitionLog,
	eventType, routingKey string,
	priority outboxDomain.Priority,
) *outboxDomain.OutboxEvent {
	event := newApplicationEvent(app, eventType, routingKey, priority, map[string]any{
		"aggregateId":  app.ID.String(),
		"status":       string(log.ToStatus),
		"reasonCode":   string(log.ReasonCode),
		"transitionId": log.ID.String(),
	})
	key := eventType + ":" + log.ID.String()
	event.IdempotencyKey = &key
	return event
}
