package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Inventory events (published)
	EventStockMoved      = "inventory.stock.moved"
	EventStockAdjusted   = "inventory.stock.adjusted"
	EventAlertGenerated  = "inventory.alert.generated"
	EventProductCreated  = "inventory.product.created"
	EventProductUpdated  = "inventory.product.updated"
	EventProductArchived = "inventory.product.archived"
	EventProductDeleted  = "inventory.product.deleted"

	// User events (consumed)
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeUserEvents      = "user.events"
	ExchangeDeadLetter      = "dlx.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Inventory Events

// StockMovedEvent is published for every committed ledger movement
type StockMovedEvent struct {
	MovementID  int64     `json:"movement_id"`
	ProductID   string    `json:"product_id"`
	ProductCode string    `json:"product_code"`
	Type        string    `json:"type"`
	Quantity    int64     `json:"quantity"`
	BeforeStock int64     `json:"before_stock"`
	AfterStock  int64     `json:"after_stock"`
	OperatorID  string    `json:"operator_id"`
	BatchNo     string    `json:"batch_no,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	TotalAmount string    `json:"total_amount,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StockAdjustedEvent is published when an admin sets a product's stock to a target value
type StockAdjustedEvent struct {
	MovementID  int64  `json:"movement_id"`
	ProductID   string `json:"product_id"`
	Adjustment  int64  `json:"adjustment"`
	NewQuantity int64  `json:"new_quantity"`
	PerformedBy string `json:"performed_by"`
	Reason      string `json:"reason"`
}

// AlertGeneratedEvent is published when a threshold rule creates an alert
type AlertGeneratedEvent struct {
	AlertID   string `json:"alert_id"`
	AlertType string `json:"alert_type"`
	Message   string `json:"message"`
	ProductID string `json:"product_id"`
}

// ProductChangedEvent is published on product create, update, archive and delete
type ProductChangedEvent struct {
	ProductID string `json:"product_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	MinStock  int64  `json:"min_stock"`
	MaxStock  int64  `json:"max_stock"`
	ChangedBy string `json:"changed_by"`
}

// User Events

// UserCreatedEvent is published by the identity provider when a user is created
type UserCreatedEvent struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RoleName  string `json:"role_name"`
}

// FullName returns the user's full name
func (e *UserCreatedEvent) FullName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// UserUpdatedEvent carries changed fields as {"field": {"from": x, "to": y}}
type UserUpdatedEvent struct {
	UserID string         `json:"user_id"`
	Fields map[string]any `json:"fields"`
}

// ChangedString returns the new value of a changed string field
func (e *UserUpdatedEvent) ChangedString(field string) (string, bool) {
	change, ok := e.Fields[field].(map[string]any)
	if !ok {
		return "", false
	}
	to, ok := change["to"].(string)
	return to, ok
}

// UserDeletedEvent is published when a user is deleted
type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}
