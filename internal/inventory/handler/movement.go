package handler

import (
	"net/http"

	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// MovementHandler handles ledger read endpoints
type MovementHandler struct {
	ledger *service.Ledger
	logger *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(ledger *service.Ledger, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		ledger: ledger,
		logger: log,
	}
}

// List pages through movements, newest first
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := httputil.Pagination(r, 20, 100)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	movements, total, err := h.ledger.Query(r.Context(), service.MovementQuery{
		Type:       q.Get("type"),
		ProductID:  q.Get("product_id"),
		OperatorID: q.Get("operator_id"),
		StartDate:  q.Get("start_date"),
		EndDate:    q.Get("end_date"),
		Keyword:    q.Get("keyword"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, httputil.NewMeta(page, perPage, total))
}

// Aggregate groups movements by day, category and product over a window
func (h *MovementHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	days, err := httputil.QueryInt(r, "days", 0)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	top, err := httputil.QueryInt(r, "top", 0)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	agg, err := h.ledger.Aggregate(r.Context(), service.AggregateWindow{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Days:      days,
		TopN:      top,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, agg)
}
