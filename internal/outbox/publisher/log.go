package publisher

import (
	"context"
	"log/slog"

	"github.com/allisson/admissions/internal/outbox/domain"
)

// LogPublisher writes each envelope to the logger instead of a broker. It never fails
// unless the event cannot be serialized, which makes it the development transport.
type LogPublisher struct {
	defaultChannel string
	logger         *slog.Logger
}

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher(defaultChannel string, logger *slog.Logger) *LogPublisher {
	return &LogPublisher{
		defaultChannel: defaultChannel,
		logger:         logger,
	}
}

// Publish logs the event envelope.
func (p *LogPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	msg, err := BuildMessage(event, p.defaultChannel)
	if err != nil {
		return err
	}

	if p.logger != nil {
		p.logger.InfoContext(ctx, "outbox event published",
			slog.String("event_id", msg.Envelope.EventID),
			slog.String("event_type", event.FullType()),
			slog.String("channel", msg.Channel),
			slog.String("routing_key", msg.RoutingKey),
			slog.Any("envelope", msg.Envelope),
		)
	}

	return nil
}
