package service

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	dashboardRecentMovements = 10
	dashboardUnreadAlerts    = 5
	maxListLimit             = 100
	maxTrendDays             = 366
)

// DashboardStats are the headline figures of the dashboard
type DashboardStats struct {
	TotalProducts    int64 `json:"total_products"`
	LowStockCount    int64 `json:"low_stock_count"`
	TotalStock       int64 `json:"total_stock"`
	TodayInCount     int64 `json:"today_in_count"`
	TodayOutCount    int64 `json:"today_out_count"`
	TodayInQuantity  int64 `json:"today_in_quantity"`
	TodayOutQuantity int64 `json:"today_out_quantity"`
	UnreadAlerts     int64 `json:"unread_alerts"`
}

// Dashboard bundles the stats with the latest movements and unread alerts
type Dashboard struct {
	Stats           *DashboardStats             `json:"stats"`
	RecentMovements []*repository.StockMovement `json:"recent_movements"`
	UnreadAlerts    []*repository.Alert         `json:"unread_alerts"`
}

// QueryService serves read models composed from the registry, ledger and alerts
type QueryService struct {
	e *Engine
}

// DashboardStats counts products and today's movements
func (q *QueryService) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	products, err := q.e.stores.Products.Stats(ctx)
	if err != nil {
		return nil, err
	}

	today := q.e.today()
	totals, err := q.e.stores.Movements.Totals(ctx, today, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	unread, err := q.e.stores.Alerts.CountUnread(ctx)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		TotalProducts:    products.TotalProducts,
		LowStockCount:    products.LowStockCount,
		TotalStock:       products.TotalStock,
		TodayInCount:     totals.InCount,
		TodayOutCount:    totals.OutCount,
		TodayInQuantity:  totals.InQuantity,
		TodayOutQuantity: totals.OutQuantity,
		UnreadAlerts:     unread,
	}, nil
}

// Dashboard loads the stats, recent movements and unread alerts concurrently
func (q *QueryService) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := q.DashboardStats(ctx)
		d.Stats = stats
		return err
	})
	g.Go(func() error {
		movements, err := q.RecentMovements(ctx, dashboardRecentMovements)
		d.RecentMovements = movements
		return err
	})
	g.Go(func() error {
		alerts, err := q.UnreadAlerts(ctx, dashboardUnreadAlerts)
		d.UnreadAlerts = alerts
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

// RecentMovements returns the newest movements
func (q *QueryService) RecentMovements(ctx context.Context, limit int) ([]*repository.StockMovement, error) {
	limit, err := clampLimit(limit, 10)
	if err != nil {
		return nil, err
	}
	movements, _, err := q.e.stores.Movements.List(ctx, repository.MovementFilter{Page: 1, PerPage: limit})
	return movements, err
}

// UnreadAlerts returns the newest unread alerts
func (q *QueryService) UnreadAlerts(ctx context.Context, limit int) ([]*repository.Alert, error) {
	limit, err := clampLimit(limit, 5)
	if err != nil {
		return nil, err
	}
	unread := false
	alerts, _, err := q.e.stores.Alerts.List(ctx, repository.AlertFilter{IsRead: &unread, Page: 1, PerPage: limit})
	return alerts, err
}

// CategoryBreakdown returns product count and total stock per category
func (q *QueryService) CategoryBreakdown(ctx context.Context) ([]*repository.CategoryStock, error) {
	return q.e.stores.Products.CategoryBreakdown(ctx)
}

// TopProductsByStock returns the products holding the most stock
func (q *QueryService) TopProductsByStock(ctx context.Context, limit int) ([]*repository.Product, error) {
	limit, err := clampLimit(limit, 10)
	if err != nil {
		return nil, err
	}
	return q.e.stores.Products.TopByStock(ctx, limit)
}

// LowStockProducts returns products below their minimum, emptiest first
func (q *QueryService) LowStockProducts(ctx context.Context, limit int) ([]*repository.Product, error) {
	limit, err := clampLimit(limit, 10)
	if err != nil {
		return nil, err
	}
	return q.e.stores.Products.LowStock(ctx, limit)
}

// Trend returns per-day movement totals for the last days days, today included.
// Days without movements are present with zero totals.
func (q *QueryService) Trend(ctx context.Context, days int) ([]*repository.DailyTotals, error) {
	if days == 0 {
		days = 7
	}
	if days < 1 || days > maxTrendDays {
		return nil, errors.InvalidField("days", "must be between 1 and 366")
	}

	end := q.e.today().AddDate(0, 0, 1)
	first := end.AddDate(0, 0, -days)
	rows, err := q.e.stores.Movements.DailyTotals(ctx, first, end, q.e.cfg.Location)
	if err != nil {
		return nil, err
	}
	return fillDays(first, end, rows), nil
}

func clampLimit(limit, def int) (int, error) {
	switch {
	case limit == 0:
		return def, nil
	case limit < 0:
		return 0, errors.InvalidField("limit", "must be greater than 0")
	case limit > maxListLimit:
		return maxListLimit, nil
	}
	return limit, nil
}
