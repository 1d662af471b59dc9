// Package domain defines the outbox event model and its delivery bookkeeping.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Default values applied to events that do not set them explicitly.
const (
	DefaultMaxRetries   = 5
	DefaultEventVersion = "v1"
)

// OutboxEvent is a durable record of a message that must be delivered to the transport.
// Rows are appended in the same transaction as the state change they describe and are
// delivered asynchronously by the dispatcher.
type OutboxEvent struct {
	ID uuid.UUID

	// AggregateType tags the kind of entity the event is about (e.g. "Application").
	AggregateType string
	// AggregateID identifies the entity instance. It is opaque to the outbox.
	AggregateID string
	// CorrelationID groups events that belong to the same logical request.
	CorrelationID *string
	// CausationID is the ID of the event that caused this one, if any.
	CausationID *string

	// EventType is the event name without version (e.g. "StateChanged").
	EventType string
	// EventVersion is the schema version tag (e.g. "v1").
	EventVersion string
	// Payload is the structured event body.
	Payload map[string]any

	// Channel is the transport destination (topic or exchange).
	Channel string
	// RoutingKey is the transport routing hint.
	RoutingKey string
	// Headers are custom metadata copied to the transport message.
	Headers map[string]string

	Processed  bool
	Processing bool
	RetryCount int
	MaxRetries int
	// ScheduledAt is the not-before delivery time.
	ScheduledAt time.Time
	// LeasedAt is when the current lease was taken. Nil when not leased.
	LeasedAt *time.Time
	// LeaseToken identifies the lease batch that holds the row.
	LeaseToken    *string
	LastRetryAt   *time.Time
	LastErrorKind *string
	LastError     *string
	Priority      Priority

	// IdempotencyKey deduplicates appends. Unique when present.
	IdempotencyKey *string

	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewOutboxEvent returns a NORMAL priority event with the default retry budget, ready to
// be appended now.
func NewOutboxEvent(aggregateType, aggregateID, eventType string, payload map[string]any) *OutboxEvent {
	now := time.Now().UTC()
	return &OutboxEvent{
		ID:            uuid.Must(uuid.NewV7()),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventVersion:  DefaultEventVersion,
		Payload:       payload,
		Headers:       map[string]string{},
		Priority:      PriorityNormal,
		MaxRetries:    DefaultMaxRetries,
		ScheduledAt:   now,
		CreatedAt:     now,
	}
}

// FullType returns the event type with its version tag, e.g. "StateChanged.v1".
func (e *OutboxEvent) FullType() string {
	return e.EventType + "." + e.EventVersion
}

// IsTerminallyFailed reports whether the event exhausted its retry budget without being delivered.
func (e *OutboxEvent) IsTerminallyFailed() bool {
	return !e.Processed && e.RetryCount >= e.MaxRetries
}

// LeaseDeadline returns when the current lease becomes stale and may be reclaimed.
// ok is false when the event is not leased.
func (e *OutboxEvent) LeaseDeadline(maxLeaseAge time.Duration) (deadline time.Time, ok bool) {
	if !e.Processing || e.LeasedAt == nil {
		return time.Time{}, false
	}
	return e.LeasedAt.Add(maxLeaseAge), true
}

// LeaseTokenValue returns the lease token, or the empty string when the event is not leased.
func (e *OutboxEvent) LeaseTokenValue() string {
	if e.LeaseToken == nil {
		return ""
	}
	return *e.LeaseToken
}

// State returns the delivery state used for listing and reporting.
func (e *OutboxEvent) State() EventState {
	switch {
	case e.Processed:
		return EventStateProcessed
	case e.Processing:
		return EventStateLeased
	case e.RetryCount >= e.MaxRetries:
		return EventStateFailed
	default:
		return EventStatePending
	}
}
