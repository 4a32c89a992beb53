package service

import (
	"context"
	"fmt"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// alertRule maps a threshold condition to the alert it raises. The store
// deduplicates on (product_id, type) among unread alerts.
type alertRule struct {
	alertType repository.AlertType
	breached  func(p *repository.Product) bool
	message   func(p *repository.Product) string
}

var thresholdRules = []alertRule{
	{
		alertType: repository.AlertLowStock,
		breached:  func(p *repository.Product) bool { return p.CurrentStock < p.MinStock },
		message: func(p *repository.Product) string {
			return fmt.Sprintf("current stock %d below minimum %d", p.CurrentStock, p.MinStock)
		},
	},
	{
		alertType: repository.AlertHighStock,
		breached:  func(p *repository.Product) bool { return p.CurrentStock > p.MaxStock },
		message: func(p *repository.Product) string {
			return fmt.Sprintf("current stock %d above maximum %d", p.CurrentStock, p.MaxStock)
		},
	},
}

// AlertQuery filters the alert list
type AlertQuery struct {
	Type      string
	IsRead    *bool
	ProductID string
	Page      int
	PerPage   int
}

// AlertGenerator derives threshold alerts after commits and manages their read state
type AlertGenerator struct {
	e     *Engine
	rules []alertRule
}

func newAlertGenerator(e *Engine) *AlertGenerator {
	g := &AlertGenerator{e: e}
	for _, rule := range thresholdRules {
		switch rule.alertType {
		case repository.AlertLowStock:
			if !e.cfg.LowStockAlert {
				continue
			}
		case repository.AlertHighStock:
			if !e.cfg.HighStockAlert {
				continue
			}
		}
		g.rules = append(g.rules, rule)
	}
	return g
}

// evaluate applies the rule table to the post-commit product. Alert failures
// never undo the committed movement; they are logged and skipped.
func (g *AlertGenerator) evaluate(ctx context.Context, p *repository.Product) []*repository.Alert {
	var created []*repository.Alert
	for _, rule := range g.rules {
		if !rule.breached(p) {
			continue
		}

		alert := &repository.Alert{
			ProductID: p.ID,
			Type:      rule.alertType,
			Message:   rule.message(p),
		}
		ok, err := g.e.stores.Alerts.CreateIfAbsent(ctx, alert)
		if err != nil {
			g.e.logger.Error().Err(err).
				Str("product_id", p.ID).
				Str("alert_type", string(rule.alertType)).
				Msg("failed to create alert")
			continue
		}
		if !ok {
			continue
		}

		alert.ProductName = p.Name
		g.e.metrics.RecordAlert(string(alert.Type))
		g.e.logger.Info().
			Str("alert_id", alert.ID).
			Str("product_id", p.ID).
			Str("alert_type", string(alert.Type)).
			Msg(alert.Message)
		created = append(created, alert)
	}
	return created
}

// List returns alerts newest first
func (g *AlertGenerator) List(ctx context.Context, q AlertQuery) ([]*repository.Alert, int64, error) {
	f := repository.AlertFilter{
		IsRead:    q.IsRead,
		ProductID: q.ProductID,
		Page:      q.Page,
		PerPage:   q.PerPage,
	}
	if q.Type != "" {
		f.Type = repository.AlertType(q.Type)
		if !f.Type.Valid() {
			return nil, 0, errors.InvalidField("type", "must be one of: low_stock high_stock expired")
		}
	}
	return g.e.stores.Alerts.List(ctx, f)
}

// Get returns an alert by ID
func (g *AlertGenerator) Get(ctx context.Context, id string) (*repository.Alert, error) {
	return g.e.stores.Alerts.GetByID(ctx, id)
}

// MarkRead marks one alert read
func (g *AlertGenerator) MarkRead(ctx context.Context, id string) error {
	return g.e.stores.Alerts.MarkRead(ctx, id)
}

// MarkAllRead marks every alert that exists now as read and returns how many changed
func (g *AlertGenerator) MarkAllRead(ctx context.Context) (int64, error) {
	n, err := g.e.stores.Alerts.MarkAllRead(ctx)
	if err != nil {
		return 0, err
	}
	g.e.logger.Info().Int64("count", n).Msg("alerts marked read")
	return n, nil
}

// ClearRead deletes read alerts and returns how many were removed
func (g *AlertGenerator) ClearRead(ctx context.Context) (int64, error) {
	n, err := g.e.stores.Alerts.ClearRead(ctx)
	if err != nil {
		return 0, err
	}
	g.e.logger.Info().Int64("count", n).Msg("read alerts cleared")
	return n, nil
}

// Delete removes one alert
func (g *AlertGenerator) Delete(ctx context.Context, id string) error {
	return g.e.stores.Alerts.Delete(ctx, id)
}

// UnreadCount counts unread alerts
func (g *AlertGenerator) UnreadCount(ctx context.Context) (int64, error) {
	return g.e.stores.Alerts.CountUnread(ctx)
}
