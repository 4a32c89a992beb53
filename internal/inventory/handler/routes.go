package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// Routes returns the inventory API. Mount it under /api/v1/inventory behind
// httputil.Authenticate; writes require an authenticated actor.
func Routes(engine *service.Engine, log *logger.Logger) chi.Router {
	products := NewProductHandler(engine.Registry, log)
	stock := NewStockHandler(engine, log)
	movements := NewMovementHandler(engine.Ledger, log)
	alerts := NewAlertHandler(engine.Alerts, log)
	dashboard := NewDashboardHandler(engine.Query, log)

	r := chi.NewRouter()

	// Product routes
	r.Route("/products", func(r chi.Router) {
		r.Get("/", products.List)
		r.Get("/{id}", products.Get)
		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireActor)
			r.Post("/", products.Create)
			r.Put("/{id}", products.Update)
			r.Delete("/{id}", products.Delete)
		})
	})

	// Stock routes
	r.Route("/stock", func(r chi.Router) {
		r.Use(httputil.RequireActor)
		r.Post("/in", stock.In)
		r.Post("/out", stock.Out)
		r.Post("/adjust", stock.Adjust)
		r.Post("/batches", stock.Batch)
	})

	// Movement routes
	r.Get("/movements", movements.List)
	r.Get("/movements/aggregate", movements.Aggregate)

	// Alert routes
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", alerts.List)
		r.Get("/unread-count", alerts.UnreadCount)
		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireActor)
			r.Put("/read-all", alerts.MarkAllRead)
			r.Put("/{id}/read", alerts.MarkRead)
			r.Delete("/read", alerts.ClearRead)
			r.Delete("/{id}", alerts.Delete)
		})
	})

	// Dashboard
	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/", dashboard.Get)
		r.Get("/stats", dashboard.GetStats)
		r.Get("/categories", dashboard.Categories)
		r.Get("/trend", dashboard.Trend)
		r.Get("/top-products", dashboard.TopProducts)
		r.Get("/low-stock", dashboard.LowStock)
		r.Get("/recent-movements", dashboard.RecentMovements)
		r.Get("/unread-alerts", dashboard.UnreadAlerts)
	})

	return r
}
