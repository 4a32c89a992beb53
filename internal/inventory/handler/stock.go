package handler

import (
	"net/http"
	"strconv"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// StockHandler handles stock movement endpoints
type StockHandler struct {
	engine *service.Engine
	logger *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(engine *service.Engine, log *logger.Logger) *StockHandler {
	return &StockHandler{
		engine: engine,
		logger: log,
	}
}

// BatchRequest stages a list of items of one movement type
type BatchRequest struct {
	Type  string              `json:"type"`
	Items []service.BatchItem `json:"items"`
}

// BatchFailure describes an item rejected during commit
type BatchFailure struct {
	Index     int               `json:"index"`
	ProductID string            `json:"product_id"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}

// BatchResponse reports the committed movements and the failed items
type BatchResponse struct {
	Committed []*repository.StockMovement `json:"committed"`
	Failed    []BatchFailure              `json:"failed"`
}

// In records a receipt
func (h *StockHandler) In(w http.ResponseWriter, r *http.Request) {
	var req service.StockInRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.engine.Ledger.RecordStockIn(r.Context(), httputil.GetUserID(r.Context()), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// Out records an issue
func (h *StockHandler) Out(w http.ResponseWriter, r *http.Request) {
	var req service.StockOutRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.engine.Ledger.RecordStockOut(r.Context(), httputil.GetUserID(r.Context()), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// Adjust sets a product's stock to a counted value
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req service.AdjustStockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.engine.Ledger.AdjustStock(r.Context(), httputil.GetUserID(r.Context()), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// Batch stages every item and commits them in order. A staging error rejects
// the whole request; commit failures are reported per item.
func (h *StockHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	movementType := repository.MovementType(req.Type)
	if !movementType.Valid() {
		httputil.Error(w, errors.InvalidField("type", "must be one of: in out"))
		return
	}
	if len(req.Items) == 0 {
		httputil.Error(w, errors.InvalidField("items", "at least one item is required"))
		return
	}

	batch := h.engine.NewBatch(movementType, httputil.GetUserID(r.Context()))
	for i, item := range req.Items {
		if _, err := batch.Stage(r.Context(), item); err != nil {
			httputil.Error(w, atItem(err, i))
			return
		}
	}

	result := batch.CommitAll(r.Context())

	resp := BatchResponse{
		Committed: result.Committed,
		Failed:    make([]BatchFailure, 0, len(result.Failed)),
	}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, failure(f))
	}

	status := http.StatusCreated
	if len(resp.Committed) == 0 {
		status = http.StatusUnprocessableEntity
	}
	httputil.JSON(w, status, resp)
}

// atItem tags a staging error with the position of the offending request item
func atItem(err error, i int) error {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return err
	}

	details := map[string]string{"item": strconv.Itoa(i)}
	for k, v := range appErr.Details {
		details[k] = v
	}
	tagged := *appErr
	return tagged.WithDetails(details)
}

func failure(f service.FailedItem) BatchFailure {
	out := BatchFailure{
		Index:     f.Index,
		ProductID: f.Item.ProductID,
		Code:      "INTERNAL_ERROR",
		Message:   "an unexpected error occurred",
	}

	var appErr *errors.AppError
	if errors.As(f.Err, &appErr) {
		out.Code = appErr.Code
		out.Message = appErr.Message
		out.Details = appErr.Details
	}
	return out
}
