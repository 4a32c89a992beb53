package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	alerts *service.AlertGenerator
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts *service.AlertGenerator, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		logger: log,
	}
}

// List lists alerts, newest first
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := httputil.Pagination(r, 50, 100)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	var isRead *bool
	if raw := q.Get("is_read"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.Error(w, errors.InvalidField("is_read", "must be true or false"))
			return
		}
		isRead = &v
	}

	alerts, total, err := h.alerts.List(r.Context(), service.AlertQuery{
		Type:      q.Get("type"),
		IsRead:    isRead,
		ProductID: q.Get("product_id"),
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, alerts, httputil.NewMeta(page, perPage, total))
}

// MarkRead marks one alert read
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// MarkAllRead marks every current alert read
func (h *AlertHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.alerts.MarkAllRead(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// ClearRead deletes read alerts
func (h *AlertHandler) ClearRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.alerts.ClearRead(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// Delete removes one alert
func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// UnreadCount returns the number of unread alerts
func (h *AlertHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.alerts.UnreadCount(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int64{"count": n})
}
