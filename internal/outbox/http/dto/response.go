// Package dto provides data transfer objects for the outbox operator API.
package dto

import (
	"time"

	"github.com/allisson/admissions/internal/outbox/domain"
)

// EventResponse represents an outbox event in API responses.
type EventResponse struct {
	ID             string         `json:"id"`
	AggregateType  string         `json:"aggregateType"`
	AggregateID    string         `json:"aggregateId"`
	EventType      string         `json:"eventType"`
	EventVersion   string         `json:"eventVersion"`
	Channel        string         `json:"channel"`
	RoutingKey     string         `json:"routingKey,omitempty"`
	Priority       string         `json:"priority"`
	State          string         `json:"state"`
	RetryCount     int            `json:"retryCount"`
	MaxRetries     int            `json:"maxRetries"`
	ScheduledAt    time.Time      `json:"scheduledAt"`
	LeasedAt       *time.Time     `json:"leasedAt,omitempty"`
	LastRetryAt    *time.Time     `json:"lastRetryAt,omitempty"`
	LastErrorKind  *string        `json:"lastErrorKind,omitempty"`
	LastError      *string        `json:"lastError,omitempty"`
	CorrelationID  *string        `json:"correlationId,omitempty"`
	CausationID    *string        `json:"causationId,omitempty"`
	IdempotencyKey *string        `json:"idempotencyKey,omitempty"`
	Payload        map[string]any `json:"payload"`
	CreatedAt      time.Time      `json:"createdAt"`
	ProcessedAt    *time.Time     `json:"processedAt,omitempty"`
}

// MapEventToResponse converts a domain event to an API response.
func MapEventToResponse(event *domain.OutboxEvent) EventResponse {
	return EventResponse{
		ID:             event.ID.String(),
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		EventVersion:   event.EventVersion,
		Channel:        event.Channel,
		RoutingKey:     event.RoutingKey,
		Priority:       event.Priority.String(),
		State:          string(event.State()),
		RetryCount:     event.RetryCount,
		MaxRetries:     event.MaxRetries,
		ScheduledAt:    event.ScheduledAt,
		LeasedAt:       event.LeasedAt,
		LastRetryAt:    event.LastRetryAt,
		LastErrorKind:  event.LastErrorKind,
		LastError:      event.LastError,
		CorrelationID:  event.CorrelationID,
		CausationID:    event.CausationID,
		IdempotencyKey: event.IdempotencyKey,
		Payload:        event.Payload,
		CreatedAt:      event.CreatedAt,
		ProcessedAt:    event.ProcessedAt,
	}
}

// ListEventsResponse represents a page of outbox events.
type ListEventsResponse struct {
	Data []EventResponse `json:"data"`
}

// MapEventsToListResponse converts domain events to a list response.
func MapEventsToListResponse(events []*domain.OutboxEvent) ListEventsResponse {
	data := make([]EventResponse, 0, len(events))
	for _, event := range events {
		data = append(data, MapEventToResponse(event))
	}
	return ListEventsResponse{Data: data}
}

// HealthResponse is the outbox health snapshot.
type HealthResponse struct {
	Healthy          bool      `json:"healthy"`
	Paused           bool      `json:"paused"`
	Pending          int64     `json:"pending"`
	Leased           int64     `json:"leased"`
	TerminallyFailed int64     `json:"terminallyFailed"`
	StaleLeases      int64     `json:"staleLeases"`
	CriticalPending  int64     `json:"criticalPending"`
	Reclaimed        int64     `json:"reclaimed"`
	Reasons          []string  `json:"reasons"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// MapHealthToResponse converts a health snapshot to an API response.
func MapHealthToResponse(snapshot *domain.HealthSnapshot) HealthResponse {
	reasons := snapshot.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return HealthResponse{
		Healthy:          snapshot.Healthy,
		Paused:           snapshot.Paused,
		Pending:          snapshot.Pending,
		Leased:           snapshot.Leased,
		TerminallyFailed: snapshot.TerminallyFailed,
		StaleLeases:      snapshot.StaleLeases,
		CriticalPending:  snapshot.CriticalPending,
		Reclaimed:        snapshot.Reclaimed,
		Reasons:          reasons,
		CheckedAt:        snapshot.CheckedAt,
	}
}

// DispatchResponse summarizes a forced dispatch pass.
type DispatchResponse struct {
	Leased            int `json:"leased"`
	Published         int `json:"published"`
	Failed            int `json:"failed"`
	Released          int `json:"released"`
	StateUpdateFailed int `json:"stateUpdateFailed"`
}

// MapDispatchResultToResponse converts a dispatch result to an API response.
func MapDispatchResultToResponse(result *domain.DispatchResult) DispatchResponse {
	return DispatchResponse{
		Leased:            result.Leased,
		Published:         result.Published,
		Failed:            result.Failed,
		Released:          result.Released,
		StateUpdateFailed: result.StateUpdateFailed,
	}
}

// PauseResponse reports the dispatcher pause flag.
type PauseResponse struct {
	Paused bool `json:"paused"`
}
