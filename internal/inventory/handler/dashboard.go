package handler

import (
	"net/http"

	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	query  *service.QueryService
	logger *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(query *service.QueryService, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		query:  query,
		logger: log,
	}
}

// Get returns the stats, recent movements and unread alerts in one response
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.query.Dashboard(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dashboard)
}

// GetStats returns dashboard statistics
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.query.DashboardStats(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// Categories returns product count and stock per category
func (h *DashboardHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.query.CategoryBreakdown(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, categories)
}

// Trend returns daily in and out totals for the last ?days days
func (h *DashboardHandler) Trend(w http.ResponseWriter, r *http.Request) {
	days, err := httputil.QueryInt(r, "days", 0)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	trend, err := h.query.Trend(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, trend)
}

// TopProducts returns the products with the most stock
func (h *DashboardHandler) TopProducts(w http.ResponseWriter, r *http.Request) {
	h.limited(w, r, func(limit int) (interface{}, error) {
		return h.query.TopProductsByStock(r.Context(), limit)
	})
}

// LowStock returns products below their minimum
func (h *DashboardHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	h.limited(w, r, func(limit int) (interface{}, error) {
		return h.query.LowStockProducts(r.Context(), limit)
	})
}

// RecentMovements returns the latest movements
func (h *DashboardHandler) RecentMovements(w http.ResponseWriter, r *http.Request) {
	h.limited(w, r, func(limit int) (interface{}, error) {
		return h.query.RecentMovements(r.Context(), limit)
	})
}

// UnreadAlerts returns the latest unread alerts
func (h *DashboardHandler) UnreadAlerts(w http.ResponseWriter, r *http.Request) {
	h.limited(w, r, func(limit int) (interface{}, error) {
		return h.query.UnreadAlerts(r.Context(), limit)
	})
}

func (h *DashboardHandler) limited(w http.ResponseWriter, r *http.Request, fetch func(limit int) (interface{}, error)) {
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	data, err := fetch(limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, data)
}
