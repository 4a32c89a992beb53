package events

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// Sender publishes a typed event payload. *messaging.Publisher satisfies it.
type Sender interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// InventoryEventPublisher publishes ledger and registry events. Publishing
// happens after the change is committed, so failures are logged, not returned.
type InventoryEventPublisher struct {
	sender Sender
	logger *logger.Logger
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(sender Sender, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{
		sender: sender,
		logger: log.WithComponent("events"),
	}
}

// StockMoved publishes a committed movement
func (p *InventoryEventPublisher) StockMoved(ctx context.Context, m *repository.StockMovement, product *repository.Product) {
	if p == nil {
		return
	}

	data := messaging.StockMovedEvent{
		MovementID:  m.ID,
		ProductID:   m.ProductID,
		ProductCode: product.Code,
		Type:        string(m.Type),
		Quantity:    m.Quantity,
		BeforeStock: m.BeforeStock,
		AfterStock:  m.AfterStock,
		OperatorID:  m.OperatorID,
		BatchNo:     deref(m.BatchNo),
		Reason:      deref(m.Reason),
		CreatedAt:   m.CreatedAt,
	}
	if m.TotalAmount.Valid {
		data.TotalAmount = m.TotalAmount.Decimal.String()
	}

	p.send(ctx, messaging.EventStockMoved, data, "movement_id", m.ID)
}

// StockAdjusted publishes an admin stock correction
func (p *InventoryEventPublisher) StockAdjusted(ctx context.Context, m *repository.StockMovement, reason string) {
	if p == nil {
		return
	}

	data := messaging.StockAdjustedEvent{
		MovementID:  m.ID,
		ProductID:   m.ProductID,
		Adjustment:  m.Type.Signed(m.Quantity),
		NewQuantity: m.AfterStock,
		PerformedBy: m.OperatorID,
		Reason:      reason,
	}

	p.send(ctx, messaging.EventStockAdjusted, data, "movement_id", m.ID)
}

// AlertGenerated publishes a newly created alert
func (p *InventoryEventPublisher) AlertGenerated(ctx context.Context, alert *repository.Alert) {
	if p == nil {
		return
	}

	data := messaging.AlertGeneratedEvent{
		AlertID:   alert.ID,
		AlertType: string(alert.Type),
		Message:   alert.Message,
		ProductID: alert.ProductID,
	}

	p.send(ctx, messaging.EventAlertGenerated, data, "alert_id", alert.ID)
}

// ProductChanged publishes a registry change of eventType
func (p *InventoryEventPublisher) ProductChanged(ctx context.Context, eventType string, product *repository.Product, actorID string) {
	if p == nil {
		return
	}

	data := messaging.ProductChangedEvent{
		ProductID: product.ID,
		Code:      product.Code,
		Name:      product.Name,
		Category:  product.Category,
		MinStock:  product.MinStock,
		MaxStock:  product.MaxStock,
		ChangedBy: actorID,
	}

	p.send(ctx, eventType, data, "product_id", product.ID)
}

func (p *InventoryEventPublisher) send(ctx context.Context, eventType string, data interface{}, key string, id interface{}) {
	if p.sender == nil {
		return
	}
	if err := p.sender.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Interface(key, id).
			Msg("failed to publish event")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
