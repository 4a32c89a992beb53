package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

const productColumns = `id, code, name, category, unit, description, min_stock, max_stock, current_stock,
	version, last_movement_at, archived_at, created_at, updated_at`

// ProductRepository handles product persistence
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a product
func (r *ProductRepository) Create(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO products (id, code, name, category, unit, description, min_stock, max_stock, current_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING version, created_at, updated_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		p.ID, p.Code, p.Name, p.Category, p.Unit, p.Description, p.MinStock, p.MaxStock, p.CurrentStock,
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return database.Translate(err)
	}
	return nil
}

// GetByID gets a product by ID, archived or not
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

// GetForUpdate gets a product and locks its row until the surrounding transaction ends
func (r *ProductRepository) GetForUpdate(ctx context.Context, id string) (*Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (r *ProductRepository) get(ctx context.Context, query, id string) (*Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("product")
	}

	var p Product
	if err := r.db.Q(ctx).GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, database.Translate(err)
	}
	return &p, nil
}

// List lists active products with filtering and pagination
func (r *ProductRepository) List(ctx context.Context, f ProductFilter) ([]*Product, int64, error) {
	w := &where{}
	w.add("archived_at IS NULL")
	if f.Keyword != "" {
		kw := likePattern(f.Keyword)
		w.add("(code ILIKE ? OR name ILIKE ? OR category ILIKE ?)", kw, kw, kw)
	}
	if f.Category != "" {
		w.add("category = ?", f.Category)
	}
	if f.LowStockOnly {
		w.add("current_stock < min_stock")
	}

	var total int64
	if err := r.db.Q(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM products`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	limit, offset := limitOffset(f.Page, f.PerPage)
	query := `SELECT ` + productColumns + ` FROM products` + w.String() +
		` ORDER BY code LIMIT ` + w.next(limit) + ` OFFSET ` + w.next(offset)

	products := []*Product{}
	if err := r.db.Q(ctx).SelectContext(ctx, &products, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	return products, total, nil
}

// Update writes descriptive fields and thresholds if the stored version still
// matches p.Version. It never touches current_stock.
func (r *ProductRepository) Update(ctx context.Context, p *Product) error {
	query := `
		UPDATE products
		SET code = $3, name = $4, category = $5, unit = $6, description = $7,
		    min_stock = $8, max_stock = $9, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND archived_at IS NULL
		RETURNING version, current_stock, updated_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		p.ID, p.Version, p.Code, p.Name, p.Category, p.Unit, p.Description, p.MinStock, p.MaxStock,
	).Scan(&p.Version, &p.CurrentStock, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return r.versionConflict(ctx, p.ID)
	}
	if err != nil {
		return database.Translate(err)
	}
	return nil
}

// versionConflict explains why a versioned write matched no row
func (r *ProductRepository) versionConflict(ctx context.Context, id string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.IsArchived() {
		return errors.Conflict("product is archived")
	}
	return errors.ConcurrentModification("product", current.Version)
}

// ApplyStock sets the stock level after a committed movement
func (r *ProductRepository) ApplyStock(ctx context.Context, id string, stock int64, at time.Time) error {
	query := `
		UPDATE products
		SET current_stock = $2, last_movement_at = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Q(ctx).ExecContext(ctx, query, id, stock, at)
	if err != nil {
		return database.Translate(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}

// Archive hides a product from listings and blocks further movements
func (r *ProductRepository) Archive(ctx context.Context, id string) error {
	query := `
		UPDATE products
		SET archived_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`

	result, err := r.db.Q(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return database.Translate(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}

// Delete removes a product. Referenced products fail with a conflict.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}

// Stats summarises active products
func (r *ProductRepository) Stats(ctx context.Context) (*ProductStats, error) {
	query := `
		SELECT COUNT(*) AS total_products,
		       COUNT(*) FILTER (WHERE current_stock < min_stock) AS low_stock_count,
		       COALESCE(SUM(current_stock), 0) AS total_stock
		FROM products
		WHERE archived_at IS NULL
	`

	var stats ProductStats
	if err := r.db.Q(ctx).GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to load product stats: %w", err)
	}
	return &stats, nil
}

// CategoryBreakdown returns product count and total stock per category
func (r *ProductRepository) CategoryBreakdown(ctx context.Context) ([]*CategoryStock, error) {
	query := `
		SELECT category, COUNT(*) AS product_count, COALESCE(SUM(current_stock), 0) AS total_stock
		FROM products
		WHERE archived_at IS NULL
		GROUP BY category
		ORDER BY total_stock DESC, category
	`

	rows := []*CategoryStock{}
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load category breakdown: %w", err)
	}
	return rows, nil
}

// TopByStock returns the products holding the most stock
func (r *ProductRepository) TopByStock(ctx context.Context, limit int) ([]*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE archived_at IS NULL
		ORDER BY current_stock DESC, code
		LIMIT $1`

	products := []*Product{}
	if err := r.db.Q(ctx).SelectContext(ctx, &products, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load top products: %w", err)
	}
	return products, nil
}

// LowStock returns products below their minimum, furthest below first
func (r *ProductRepository) LowStock(ctx context.Context, limit int) ([]*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE archived_at IS NULL AND current_stock < min_stock
		ORDER BY (min_stock - current_stock) DESC, code
		LIMIT $1`

	products := []*Product{}
	if err := r.db.Q(ctx).SelectContext(ctx, &products, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load low stock products: %w", err)
	}
	return products, nil
}
