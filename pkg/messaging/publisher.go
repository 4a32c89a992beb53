package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/metrics"
)

// ErrCircuitOpen is returned while the publish breaker refuses calls
var ErrCircuitOpen = errors.New("publisher circuit breaker is open")

// consecutive publish failures before the breaker opens
const breakerFailureThreshold = 5

// sender is the subset of *amqp.Channel the publisher needs
type sender interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher handles publishing events to RabbitMQ
type Publisher struct {
	channel  func() sender
	exchange string
	source   string
	breaker  *gobreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewPublisher creates a new publisher for the given exchange. The channel is
// looked up on every publish so a reconnect is picked up without restarting.
func NewPublisher(rmq *RabbitMQ, exchange, source string, breakerTimeout time.Duration, m *metrics.Metrics, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return newPublisher(func() sender { return rmq.Channel() }, exchange, source, breakerTimeout, m, log), nil
}

func newPublisher(channel func() sender, exchange, source string, breakerTimeout time.Duration, m *metrics.Metrics, log *logger.Logger) *Publisher {
	log = log.WithComponent("publisher")
	name := "publish:" + exchange

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			m.SetCircuitBreakerState(name, int(to))
		},
	}

	m.SetCircuitBreakerState(name, int(gobreaker.StateClosed))

	return &Publisher{
		channel:  channel,
		exchange: exchange,
		source:   source,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		metrics:  m,
		logger:   log,
	}
}

// Publish publishes an event to the exchange using the event type as routing key
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	event, err := NewEvent(eventType, p.source, getCorrelationID(ctx), data)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return p.PublishWithRoutingKey(ctx, eventType, event)
}

// PublishWithRoutingKey publishes a prepared event with a custom routing key
func (p *Publisher) PublishWithRoutingKey(ctx context.Context, routingKey string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		ch := p.channel()
		if ch == nil {
			return nil, fmt.Errorf("no open channel")
		}
		return nil, ch.PublishWithContext(ctx,
			p.exchange, // exchange
			routingKey, // routing key
			false,      // mandatory
			false,      // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				MessageId:     event.ID,
				CorrelationId: event.CorrelationID,
				Timestamp:     event.Timestamp,
				Type:          event.Type,
				Body:          body,
			},
		)
	})

	p.metrics.RecordPublish(event.Type, err == nil)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("routing_key", routingKey).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Msg("event published")

	return nil
}

// State returns the current breaker state
func (p *Publisher) State() gobreaker.State {
	return p.breaker.State()
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationID retrieves the correlation ID from context
func CorrelationID(ctx context.Context) string {
	return getCorrelationID(ctx)
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
