package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// DeleteMode selects how a referenced product is removed
type DeleteMode string

const (
	// DeleteRestrict refuses to delete a product that movements reference
	DeleteRestrict DeleteMode = "restrict"
	// DeleteArchive hides the product and keeps its ledger
	DeleteArchive DeleteMode = "archive"
)

// ProductFields are the editable attributes of a product
type ProductFields struct {
	Code        string  `json:"code" validate:"notblank,max=50"`
	Name        string  `json:"name" validate:"notblank,max=200"`
	Category    string  `json:"category" validate:"notblank,max=100"`
	Unit        string  `json:"unit" validate:"notblank,max=20"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	MinStock    int64   `json:"min_stock" validate:"gte=0"`
	MaxStock    int64   `json:"max_stock" validate:"gte=0"`
}

// CreateProductRequest registers a product with its opening stock
type CreateProductRequest struct {
	ProductFields
	CurrentStock int64 `json:"current_stock" validate:"gte=0"`
}

// UpdateProductRequest changes descriptive fields and thresholds. Nil fields are kept.
type UpdateProductRequest struct {
	Code        *string `json:"code,omitempty"`
	Name        *string `json:"name,omitempty"`
	Category    *string `json:"category,omitempty"`
	Unit        *string `json:"unit,omitempty"`
	Description *string `json:"description,omitempty"`
	MinStock    *int64  `json:"min_stock,omitempty"`
	MaxStock    *int64  `json:"max_stock,omitempty"`
	Version     *int64  `json:"version,omitempty"`
}

// Registry owns products and their authoritative stock level
type Registry struct {
	e *Engine
}

// Create validates and registers a product
func (r *Registry) Create(ctx context.Context, actorID string, req CreateProductRequest) (*repository.Product, error) {
	req.ProductFields = req.ProductFields.normalized()
	if err := httputil.Validate(&req); err != nil {
		return nil, err
	}

	p := &repository.Product{
		Code:         req.Code,
		Name:         req.Name,
		Category:     req.Category,
		Unit:         req.Unit,
		Description:  req.Description,
		MinStock:     req.MinStock,
		MaxStock:     req.MaxStock,
		CurrentStock: req.CurrentStock,
	}
	if err := r.e.stores.Products.Create(ctx, p); err != nil {
		return nil, err
	}

	r.e.logger.Info().Str("product_id", p.ID).Str("code", p.Code).Msg("product created")
	r.e.publisher.ProductChanged(ctx, messaging.EventProductCreated, p, actorID)
	return p, nil
}

// Update merges req into the stored product and validates the result
func (r *Registry) Update(ctx context.Context, actorID, id string, req UpdateProductRequest) (*repository.Product, error) {
	release, err := r.e.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := r.e.stores.Products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsArchived() {
		return nil, errors.Conflict("product is archived")
	}
	if req.Version != nil && *req.Version != p.Version {
		return nil, errors.ConcurrentModification("product", p.Version)
	}

	fields := req.merge(p).normalized()
	if err := httputil.Validate(&fields); err != nil {
		return nil, err
	}

	p.Code = fields.Code
	p.Name = fields.Name
	p.Category = fields.Category
	p.Unit = fields.Unit
	p.Description = fields.Description
	p.MinStock = fields.MinStock
	p.MaxStock = fields.MaxStock
	if err := r.e.stores.Products.Update(ctx, p); err != nil {
		return nil, err
	}

	r.e.logger.Info().Str("product_id", p.ID).Int64("version", p.Version).Msg("product updated")
	r.e.publisher.ProductChanged(ctx, messaging.EventProductUpdated, p, actorID)
	return p, nil
}

// Delete removes a product. DeleteRestrict fails with a conflict while movements
// reference it; DeleteArchive keeps the row and its ledger but closes it to commits.
func (r *Registry) Delete(ctx context.Context, actorID, id string, mode DeleteMode) error {
	if mode == "" {
		mode = DeleteRestrict
	}
	if mode != DeleteRestrict && mode != DeleteArchive {
		return errors.InvalidField("mode", "must be one of: restrict archive")
	}

	release, err := r.e.lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	p, err := r.e.stores.Products.GetByID(ctx, id)
	if err != nil {
		return err
	}

	eventType := messaging.EventProductDeleted
	switch mode {
	case DeleteArchive:
		if err := r.e.stores.Products.Archive(ctx, id); err != nil {
			return err
		}
		eventType = messaging.EventProductArchived
	default:
		refs, err := r.e.stores.Movements.CountByProduct(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return errors.Conflict("product is referenced by stock movements")
		}
		// The store still enforces the reference if a movement lands in between
		if err := r.e.stores.Products.Delete(ctx, id); err != nil {
			return err
		}
	}

	r.e.logger.Info().Str("product_id", id).Str("mode", string(mode)).Msg("product removed")
	r.e.publisher.ProductChanged(ctx, eventType, p, actorID)
	return nil
}

// Get returns a product by ID
func (r *Registry) Get(ctx context.Context, id string) (*repository.Product, error) {
	return r.e.stores.Products.GetByID(ctx, id)
}

// List returns active products matching f
func (r *Registry) List(ctx context.Context, f repository.ProductFilter) ([]*repository.Product, int64, error) {
	f.Keyword = strings.TrimSpace(f.Keyword)
	return r.e.stores.Products.List(ctx, f)
}

// applyDelta moves p's stock by delta. Callers hold the product lock and run
// inside the commit transaction.
func (r *Registry) applyDelta(ctx context.Context, p *repository.Product, delta int64, at time.Time) (before, after int64, err error) {
	before = p.CurrentStock
	after = before + delta
	if after < 0 {
		return before, before, errors.InsufficientStock(before, -delta)
	}

	if err := r.e.stores.Products.ApplyStock(ctx, p.ID, after, at); err != nil {
		return before, before, err
	}

	p.CurrentStock = after
	p.Version++
	p.LastMovementAt = &at
	return before, after, nil
}

func (f ProductFields) normalized() ProductFields {
	f.Code = strings.TrimSpace(f.Code)
	f.Name = strings.TrimSpace(f.Name)
	f.Category = strings.TrimSpace(f.Category)
	f.Unit = strings.TrimSpace(f.Unit)
	if f.Description != nil && strings.TrimSpace(*f.Description) == "" {
		f.Description = nil
	}
	return f
}

func (req UpdateProductRequest) merge(p *repository.Product) ProductFields {
	f := ProductFields{
		Code:        p.Code,
		Name:        p.Name,
		Category:    p.Category,
		Unit:        p.Unit,
		Description: p.Description,
		MinStock:    p.MinStock,
		MaxStock:    p.MaxStock,
	}
	if req.Code != nil {
		f.Code = *req.Code
	}
	if req.Name != nil {
		f.Name = *req.Name
	}
	if req.Category != nil {
		f.Category = *req.Category
	}
	if req.Unit != nil {
		f.Unit = *req.Unit
	}
	if req.Description != nil {
		f.Description = req.Description
	}
	if req.MinStock != nil {
		f.MinStock = *req.MinStock
	}
	if req.MaxStock != nil {
		f.MaxStock = *req.MaxStock
	}
	return f
}

func init() {
	httputil.RegisterStructValidation(validateThresholds, ProductFields{})
}

// validateThresholds rejects max_stock below min_stock. Negative values are
// left to the field tags.
func validateThresholds(sl validator.StructLevel) {
	f := sl.Current().Interface().(ProductFields)
	if f.MinStock >= 0 && f.MaxStock >= 0 && f.MaxStock < f.MinStock {
		sl.ReportError(f.MaxStock, "max_stock", "MaxStock", "gtefield", "min_stock")
	}
}
