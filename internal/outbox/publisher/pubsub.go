package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"gocloud.dev/pubsub"

	"github.com/allisson/admissions/internal/outbox/domain"
)

type topicOpener func(ctx context.Context, url string) (*pubsub.Topic, error)

// PubSubPublisher publishes through a Go CDK pubsub driver. Each channel maps to the topic
// at urlPrefix+channel (for example "mem://" or "gcppubsub://projects/p/topics/"), opened on
// first use and kept for the lifetime of the publisher.
type PubSubPublisher struct {
	urlPrefix      string
	defaultChannel string
	logger         *slog.Logger
	openTopic      topicOpener

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubPublisher creates a new PubSubPublisher.
func NewPubSubPublisher(urlPrefix, defaultChannel string, logger *slog.Logger) *PubSubPublisher {
	return &PubSubPublisher{
		urlPrefix:      urlPrefix,
		defaultChannel: defaultChannel,
		logger:         logger,
		openTopic:      pubsub.OpenTopic,
		topics:         make(map[string]*pubsub.Topic),
	}
}

// Publish sends the envelope to the event's channel topic. Headers become message metadata.
func (p *PubSubPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	msg, err := BuildMessage(event, p.defaultChannel)
	if err != nil {
		return err
	}

	topic, err := p.topic(ctx, msg.Channel)
	if err != nil {
		return domain.NewTransportError(domain.ErrorKindTransport, err)
	}

	metadata := make(map[string]string, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		metadata[k] = v
	}
	if msg.RoutingKey != "" {
		metadata[HeaderRoutingKey] = msg.RoutingKey
	}

	if err := topic.Send(ctx, &pubsub.Message{Body: msg.Body, Metadata: metadata}); err != nil {
		return domain.NewTransportError(domain.ErrorKindTransport, err)
	}

	return nil
}

// Shutdown flushes and closes every opened topic.
func (p *PubSubPublisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for channel, topic := range p.topics {
		if err := topic.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(p.topics, channel)
	}
	return errors.Join(errs...)
}

func (p *PubSubPublisher) topic(ctx context.Context, channel string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if topic, ok := p.topics[channel]; ok {
		return topic, nil
	}

	topic, err := p.openTopic(ctx, p.urlPrefix+channel)
	if err != nil {
		return nil, err
	}
	p.topics[channel] = topic

	if p.logger != nil {
		p.logger.Debug("pubsub topic opened", slog.String("channel", channel))
	}

	return topic, nil
}
