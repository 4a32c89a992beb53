package consumers

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// QueueName is the durable queue the inventory service reads user events from
const QueueName = "inventory-service.user-events"

// OperatorStore caches the identities that label ledger movements
type OperatorStore interface {
	Set(ctx context.Context, op *repository.Operator) error
	Get(ctx context.Context, userID string) (*repository.Operator, error)
	Delete(ctx context.Context, userID string) error
}

// OperatorDirectory keeps the operator cache in step with user events
type OperatorDirectory struct {
	store  OperatorStore
	logger *logger.Logger
}

// NewOperatorDirectory creates the user event handlers
func NewOperatorDirectory(store OperatorStore, log *logger.Logger) *OperatorDirectory {
	return &OperatorDirectory{
		store:  store,
		logger: log.WithComponent("operator-directory"),
	}
}

// Register binds the handlers to consumer
func (d *OperatorDirectory) Register(consumer *messaging.Consumer) {
	consumer.RegisterHandler(messaging.EventUserCreated, d.HandleUserCreated)
	consumer.RegisterHandler(messaging.EventUserUpdated, d.HandleUserUpdated)
	consumer.RegisterHandler(messaging.EventUserDeleted, d.HandleUserDeleted)
}

// UserEventConsumer consumes user events
type UserEventConsumer struct {
	consumer *messaging.Consumer
}

// NewUserEventConsumer declares the queue, binds it to user events and registers the directory
func NewUserEventConsumer(rmq *messaging.RabbitMQ, directory *OperatorDirectory, log *logger.Logger) (*UserEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, QueueName, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeUserEvents, "user.#"); err != nil {
		return nil, err
	}

	directory.Register(consumer)
	return &UserEventConsumer{consumer: consumer}, nil
}

// Start starts consuming messages
func (c *UserEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// HandleUserCreated caches a new operator
func (d *OperatorDirectory) HandleUserCreated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserCreatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	d.logger.Info().
		Str("user_id", data.UserID).
		Str("name", data.FullName()).
		Msg("received user created event")

	return d.store.Set(ctx, &repository.Operator{
		UserID:    data.UserID,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		Email:     optional(data.Email),
		RoleName:  optional(data.RoleName),
	})
}

// HandleUserUpdated applies changed name, email and role fields to a cached operator
func (d *OperatorDirectory) HandleUserUpdated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserUpdatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	d.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user updated event")

	existing, err := d.store.Get(ctx, data.UserID)
	if errors.Is(err, errors.ErrNotFound) {
		// not cached, nothing to update
		return nil
	}
	if err != nil {
		return err
	}

	if v, ok := data.ChangedString("first_name"); ok {
		existing.FirstName = v
	}
	if v, ok := data.ChangedString("last_name"); ok {
		existing.LastName = v
	}
	if v, ok := data.ChangedString("email"); ok {
		existing.Email = optional(v)
	}
	if v, ok := data.ChangedString("role_name"); ok {
		existing.RoleName = optional(v)
	}

	return d.store.Set(ctx, existing)
}

// HandleUserDeleted drops a cached operator. Past movements keep the operator ID.
func (d *OperatorDirectory) HandleUserDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	d.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user deleted event")

	return d.store.Delete(ctx, data.UserID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
