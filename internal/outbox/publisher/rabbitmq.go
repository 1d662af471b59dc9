package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	apperrors "github.com/allisson/admissions/internal/errors"
	"github.com/allisson/admissions/internal/outbox/domain"
)

// DefaultConfirmTimeout bounds the wait for a broker ack.
const DefaultConfirmTimeout = 5 * time.Second

// Recovery backoff defaults: the first reopen is immediate, later ones wait
// min(initial * 2^(failures-1), max).
const (
	DefaultRecoveryBackoffInitial = time.Second
	DefaultRecoveryBackoffMax     = 30 * time.Second
)

var (
	// ErrConfirmTimeout indicates the broker did not confirm a publish in time.
	ErrConfirmTimeout = errors.New("confirmation timed out")
	// ErrPublishNacked indicates the broker rejected a publish.
	ErrPublishNacked = errors.New("message was nacked by the broker")
	// ErrChannelUnusable indicates an earlier confirm was lost and the channel must be replaced.
	ErrChannelUnusable = errors.New("amqp channel is unusable after a lost confirmation")
	// ErrChannelClosed indicates the confirm stream was closed by the broker.
	ErrChannelClosed = errors.New("amqp channel closed")
)

// ConfirmableChannel is the subset of *amqp.Channel the publisher needs.
type ConfirmableChannel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// ChannelProvider returns a fresh channel dedicated to one publisher. It is called to
// replace a channel that lost a confirmation or was closed by the broker.
type ChannelProvider func() (ConfirmableChannel, error)

// RabbitMQOption configures a RabbitMQPublisher.
type RabbitMQOption func(*RabbitMQPublisher)

// WithAutoRecovery reopens the channel through provider once it becomes unusable.
// Without it a lost confirmation disables the publisher until restart.
func WithAutoRecovery(provider ChannelProvider) RabbitMQOption {
	return func(p *RabbitMQPublisher) {
		p.provider = provider
	}
}

// WithRecoveryBackoff sets the delays between failed recovery attempts. Invalid values are ignored.
func WithRecoveryBackoff(initial, maxDelay time.Duration) RabbitMQOption {
	return func(p *RabbitMQPublisher) {
		if initial <= 0 || maxDelay < initial {
			return
		}
		p.backoffInitial = initial
		p.backoffMax = maxDelay
	}
}

// RabbitMQPublisher publishes persistent messages on a channel in confirm mode. The
// event channel is the exchange. Publishes are serialized so each one waits for its own ack.
type RabbitMQPublisher struct {
	defaultChannel string
	confirmTimeout time.Duration
	logger         *slog.Logger

	provider       ChannelProvider
	backoffInitial time.Duration
	backoffMax     time.Duration
	now            func() time.Time

	mu               sync.Mutex
	ch               ConfirmableChannel
	confirms         chan amqp.Confirmation
	closes           chan *amqp.Error
	unusable         bool
	recoveryFailures int
	nextRecoveryAt   time.Time
}

// NewRabbitMQPublisher puts ch into confirm mode and returns a publisher bound to it.
func NewRabbitMQPublisher(
	ch ConfirmableChannel,
	defaultChannel string,
	confirmTimeout time.Duration,
	logger *slog.Logger,
	opts ...RabbitMQOption,
) (*RabbitMQPublisher, error) {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}

	p := &RabbitMQPublisher{
		defaultChannel: defaultChannel,
		confirmTimeout: confirmTimeout,
		logger:         logger,
		backoffInitial: DefaultRecoveryBackoffInitial,
		backoffMax:     DefaultRecoveryBackoffMax,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.bind(ch); err != nil {
		return nil, err
	}
	return p, nil
}

// RabbitMQConnector owns the AMQP connection and opens channels on it, dialing again
// when the connection was lost.
type RabbitMQConnector struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewRabbitMQConnector returns a connector for url. Nothing is dialed until Channel is called.
func NewRabbitMQConnector(url string) *RabbitMQConnector {
	return &RabbitMQConnector{url: url}
}

// Channel opens a new channel. It satisfies ChannelProvider.
func (c *RabbitMQConnector) Channel() (ConfirmableChannel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to connect to rabbitmq")
		}
		c.conn = conn
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open rabbitmq channel")
	}
	return ch, nil
}

// Close closes the connection if it is open.
func (c *RabbitMQConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

// Publish sends the envelope and waits for the broker confirmation.
func (p *RabbitMQPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	msg, err := BuildMessage(event, p.defaultChannel)
	if err != nil {
		return err
	}

	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.Envelope.EventID,
		Timestamp:    event.CreatedAt.UTC(),
		Type:         event.FullType(),
		Headers:      headers,
		Body:         msg.Body,
	}
	if event.CorrelationID != nil {
		publishing.CorrelationId = *event.CorrelationID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.checkClosed()
	if p.unusable && !p.reopen() {
		return domain.NewTransportError(domain.ErrorKindTransport, ErrChannelUnusable)
	}

	if err := p.ch.PublishWithContext(ctx, msg.Channel, msg.RoutingKey, false, false, publishing); err != nil {
		return domain.NewTransportError(domain.ErrorKindTransport, err)
	}

	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			p.markUnusable("rabbitmq confirm stream closed")
			return domain.NewTransportError(domain.ErrorKindTransport, ErrChannelClosed)
		}
		if !confirm.Ack {
			return domain.NewTransportError(domain.ErrorKindNacked, ErrPublishNacked)
		}
		return nil
	case <-timer.C:
		p.markUnusable("rabbitmq confirm lost")
		return domain.NewTransportError(domain.ErrorKindTimeout, ErrConfirmTimeout)
	case <-ctx.Done():
		p.markUnusable("rabbitmq confirm abandoned")
		return domain.NewTransportError(domain.ErrorKindTimeout, ctx.Err())
	}
}

// Close closes the underlying channel.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}

// bind puts ch into confirm mode and subscribes to its confirmations and close events.
func (p *RabbitMQPublisher) bind(ch ConfirmableChannel) error {
	if err := ch.Confirm(false); err != nil {
		return apperrors.Wrap(err, "failed to enable publisher confirms")
	}
	p.ch = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.closes = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

// checkClosed marks the channel unusable when the broker has closed it.
func (p *RabbitMQPublisher) checkClosed() {
	if p.unusable {
		return
	}
	select {
	case amqpErr, ok := <-p.closes:
		reason := "rabbitmq channel closed"
		if ok && amqpErr != nil {
			reason = "rabbitmq channel closed: " + amqpErr.Reason
		}
		p.markUnusable(reason)
	default:
	}
}

// reopen swaps in a new channel from the provider. It reports whether the publisher is usable again.
func (p *RabbitMQPublisher) reopen() bool {
	if p.provider == nil {
		return false
	}

	now := p.now()
	if now.Before(p.nextRecoveryAt) {
		return false
	}

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}

	ch, err := p.provider()
	if err == nil {
		if err = p.bind(ch); err != nil {
			_ = ch.Close()
		}
	}
	if err != nil {
		p.recoveryFailures++
		delay := p.recoveryDelay(p.recoveryFailures)
		p.nextRecoveryAt = now.Add(delay)
		if p.logger != nil {
			p.logger.Warn("rabbitmq channel recovery failed",
				slog.Int("attempt", p.recoveryFailures),
				slog.Duration("retry_in", delay),
				slog.Any("error", err),
			)
		}
		return false
	}

	if p.logger != nil {
		p.logger.Info("rabbitmq channel recovered", slog.Int("failed_attempts", p.recoveryFailures))
	}
	p.unusable = false
	p.recoveryFailures = 0
	p.nextRecoveryAt = time.Time{}
	return true
}

func (p *RabbitMQPublisher) recoveryDelay(failures int) time.Duration {
	delay := p.backoffInitial
	for i := 1; i < failures && delay < p.backoffMax; i++ {
		delay *= 2
	}
	return min(delay, p.backoffMax)
}

// markUnusable stops publishing on the current channel: a pending confirm would be matched
// to the next message.
func (p *RabbitMQPublisher) markUnusable(reason string) {
	p.unusable = true
	if p.logger == nil {
		return
	}
	if p.provider == nil {
		p.logger.Error(reason + ", publisher disabled until restart")
		return
	}
	p.logger.Warn(reason + ", channel will be reopened")
}
