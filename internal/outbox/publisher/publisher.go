// Package publisher delivers outbox events to a message transport.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/allisson/admissions/internal/outbox/domain"
)

// Header names added to every transport message.
const (
	HeaderEventID      = "event-id"
	HeaderEventType    = "event-type"
	HeaderEventVersion = "event-version"
	HeaderRoutingKey   = "routing-key"
)

// Publisher hands one event to the transport. Failures are returned as *domain.TransportError.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// Envelope is the wire format shared by every transport.
type Envelope struct {
	EventID       string         `json:"eventId"`
	EventType     string         `json:"eventType"`
	EventVersion  string         `json:"eventVersion"`
	AggregateType string         `json:"aggregateType"`
	AggregateID   string         `json:"aggregateId"`
	Timestamp     string         `json:"timestamp"`
	CorrelationID *string        `json:"correlationId,omitempty"`
	CausationID   *string        `json:"causationId,omitempty"`
	Data          map[string]any `json:"data"`
}

// Message is an envelope plus its routing information.
type Message struct {
	Channel    string
	RoutingKey string
	Headers    map[string]string
	Envelope   Envelope
	Body       []byte
}

// BuildEnvelope converts event into its wire envelope.
func BuildEnvelope(event *domain.OutboxEvent) Envelope {
	data := event.Payload
	if data == nil {
		data = map[string]any{}
	}

	return Envelope{
		EventID:       event.ID.String(),
		EventType:     event.EventType,
		EventVersion:  event.EventVersion,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		CorrelationID: event.CorrelationID,
		CausationID:   event.CausationID,
		Data:          data,
	}
}

// BuildMessage serializes event and resolves its channel, routing key, and headers.
// An empty event channel falls back to defaultChannel.
func BuildMessage(event *domain.OutboxEvent, defaultChannel string) (*Message, error) {
	envelope := BuildEnvelope(event)

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, domain.NewTransportError(domain.ErrorKindSerialization, err)
	}

	channel := event.Channel
	if channel == "" {
		channel = defaultChannel
	}

	headers := make(map[string]string, len(event.Headers)+3)
	for k, v := range event.Headers {
		headers[k] = v
	}
	headers[HeaderEventID] = envelope.EventID
	headers[HeaderEventType] = envelope.EventType
	headers[HeaderEventVersion] = envelope.EventVersion

	return &Message{
		Channel:    channel,
		RoutingKey: event.RoutingKey,
		Headers:    headers,
		Envelope:   envelope,
		Body:       body,
	}, nil
}
