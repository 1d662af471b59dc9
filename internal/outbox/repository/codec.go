// Package repository holds the outbox persistence helpers shared by the dialect
// packages (postgresql, mysql, sqlite).
package repository

import (
	"encoding/json"

	"github.com/google/uuid"

	apperrors "github.com/allisson/admissions/internal/errors"
	"github.com/allisson/admissions/internal/outbox/domain"
)

// Columns is the select list shared by every dialect, in scan order.
const Columns = `id, aggregate_type, aggregate_id, correlation_id, causation_id, event_type, event_version,
	payload, channel, routing_key, headers, processed, processing, retry_count, max_retries,
	scheduled_at, leased_at, lease_token, last_retry_at, last_error_kind, last_error, priority,
	idempotency_key, created_at, processed_at`

// EncodePayload serializes the event payload and headers for storage.
func EncodePayload(event *domain.OutboxEvent) (payload string, headers string, err error) {
	p := event.Payload
	if p == nil {
		p = map[string]any{}
	}
	rawPayload, err := json.Marshal(p)
	if err != nil {
		return "", "", apperrors.Wrap(err, "failed to marshal outbox payload")
	}

	h := event.Headers
	if h == nil {
		h = map[string]string{}
	}
	rawHeaders, err := json.Marshal(h)
	if err != nil {
		return "", "", apperrors.Wrap(err, "failed to marshal outbox headers")
	}

	return string(rawPayload), string(rawHeaders), nil
}

// DecodePayload fills event.Payload and event.Headers from their stored JSON.
func DecodePayload(event *domain.OutboxEvent, payload, headers []byte) error {
	event.Payload = map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return apperrors.Wrap(err, "failed to unmarshal outbox payload")
		}
	}

	event.Headers = map[string]string{}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &event.Headers); err != nil {
			return apperrors.Wrap(err, "failed to unmarshal outbox headers")
		}
	}

	return nil
}

// NewLeaseToken returns a unique token identifying one lease call.
func NewLeaseToken() string {
	return uuid.Must(uuid.NewV7()).String()
}

// StateCondition returns the SQL predicate selecting rows in state. The empty state
// matches every row. trueLit and falseLit are the dialect's boolean literals.
func StateCondition(state domain.EventState, trueLit, falseLit string) string {
	switch state {
	case domain.EventStatePending:
		return "processed = " + falseLit + " AND processing = " + falseLit + " AND retry_count < max_retries"
	case domain.EventStateLeased:
		return "processing = " + trueLit
	case domain.EventStateProcessed:
		return "processed = " + trueLit
	case domain.EventStateFailed:
		return "processed = " + falseLit + " AND processing = " + falseLit + " AND retry_count >= max_retries"
	default:
		return "1 = 1"
	}
}

// RetryCondition returns the SQL predicate for a retry filter, or an empty string
// when the filter matches everything.
func RetryCondition(filter domain.RetryFilter) string {
	switch filter {
	case domain.RetriesFresh:
		return " AND retry_count = 0"
	case domain.RetriesOnly:
		return " AND retry_count > 0"
	default:
		return ""
	}
}
