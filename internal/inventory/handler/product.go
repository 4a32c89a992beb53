package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// ProductHandler handles product registry endpoints
type ProductHandler struct {
	registry *service.Registry
	logger   *logger.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(registry *service.Registry, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		registry: registry,
		logger:   log,
	}
}

// List lists products, optionally filtered by keyword, category or low stock
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := httputil.Pagination(r, 20, 100)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	products, total, err := h.registry.List(r.Context(), repository.ProductFilter{
		Keyword:      q.Get("keyword"),
		Category:     q.Get("category"),
		LowStockOnly: q.Get("low_stock") == "true",
		Page:         page,
		PerPage:      perPage,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, products, httputil.NewMeta(page, perPage, total))
}

// Get gets a product by ID
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, product)
}

// Create registers a product
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProductRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	product, err := h.registry.Create(r.Context(), httputil.GetUserID(r.Context()), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, product)
}

// Update changes a product's descriptive fields and thresholds
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProductRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	product, err := h.registry.Update(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, product)
}

// Delete removes a product. With ?mode=archive it is hidden and its ledger kept.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	mode := service.DeleteMode(r.URL.Query().Get("mode"))
	if err := h.registry.Delete(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"), mode); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
