package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/database"
)

const movementSelect = `
	SELECT m.id, m.product_id, m.type, m.quantity, m.before_stock, m.after_stock, m.operator_id,
	       m.reason, m.supplier, m.department, m.batch_no, m.unit_price, m.total_amount, m.created_at,
	       p.code AS product_code, p.name AS product_name, p.unit AS product_unit,
	       COALESCE(TRIM(o.first_name || ' ' || o.last_name), '') AS operator_name
	FROM stock_movements m
	JOIN products p ON p.id = m.product_id
	LEFT JOIN operator_cache o ON o.user_id = m.operator_id`

// MovementRepository handles ledger persistence. Rows are insert-only.
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Append inserts a movement and assigns its ID
func (r *MovementRepository) Append(ctx context.Context, m *StockMovement) error {
	query := `
		INSERT INTO stock_movements (
			product_id, type, quantity, before_stock, after_stock, operator_id,
			reason, supplier, department, batch_no, unit_price, total_amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		m.ProductID, m.Type, m.Quantity, m.BeforeStock, m.AfterStock, m.OperatorID,
		m.Reason, m.Supplier, m.Department, m.BatchNo, m.UnitPrice, m.TotalAmount, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return database.Translate(err)
	}
	return nil
}

// CountByProduct counts the movements referencing a product
func (r *MovementRepository) CountByProduct(ctx context.Context, productID string) (int64, error) {
	if !isUUID(productID) {
		return 0, nil
	}

	var count int64
	query := `SELECT COUNT(*) FROM stock_movements WHERE product_id = $1`
	if err := r.db.Q(ctx).GetContext(ctx, &count, query, productID); err != nil {
		return 0, fmt.Errorf("failed to count movements: %w", err)
	}
	return count, nil
}

// List returns movements newest first
func (r *MovementRepository) List(ctx context.Context, f MovementFilter) ([]*StockMovement, int64, error) {
	if f.ProductID != "" && !isUUID(f.ProductID) {
		return []*StockMovement{}, 0, nil
	}

	w := &where{}
	if f.Type != "" {
		w.add("m.type = ?", f.Type)
	}
	if f.ProductID != "" {
		w.add("m.product_id = ?", f.ProductID)
	}
	if f.OperatorID != "" {
		w.add("m.operator_id = ?", f.OperatorID)
	}
	if f.From != nil {
		w.add("m.created_at >= ?", *f.From)
	}
	if f.To != nil {
		w.add("m.created_at < ?", *f.To)
	}
	if f.Keyword != "" {
		kw := likePattern(f.Keyword)
		w.add("(m.reason ILIKE ? OR m.supplier ILIKE ? OR m.department ILIKE ? OR m.batch_no ILIKE ?)", kw, kw, kw, kw)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_movements m` + w.String()
	if err := r.db.Q(ctx).GetContext(ctx, &total, countQuery, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count movements: %w", err)
	}

	limit, offset := limitOffset(f.Page, f.PerPage)
	query := movementSelect + w.String() +
		` ORDER BY m.created_at DESC, m.id DESC LIMIT ` + w.next(limit) + ` OFFSET ` + w.next(offset)

	movements := []*StockMovement{}
	if err := r.db.Q(ctx).SelectContext(ctx, &movements, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list movements: %w", err)
	}

	return movements, total, nil
}

const totalsColumns = `
	COUNT(*) FILTER (WHERE m.type = 'in') AS in_count,
	COUNT(*) FILTER (WHERE m.type = 'out') AS out_count,
	COALESCE(SUM(m.quantity) FILTER (WHERE m.type = 'in'), 0) AS in_quantity,
	COALESCE(SUM(m.quantity) FILTER (WHERE m.type = 'out'), 0) AS out_quantity`

// Totals counts and sums movements in [from, to)
func (r *MovementRepository) Totals(ctx context.Context, from, to time.Time) (*MovementTotals, error) {
	query := `SELECT` + totalsColumns + `
		FROM stock_movements m
		WHERE m.created_at >= $1 AND m.created_at < $2`

	var totals MovementTotals
	if err := r.db.Q(ctx).GetContext(ctx, &totals, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to load movement totals: %w", err)
	}
	return &totals, nil
}

// DailyTotals groups movements in [from, to) by calendar day in loc. Days
// without movements are omitted.
func (r *MovementRepository) DailyTotals(ctx context.Context, from, to time.Time, loc *time.Location) ([]*DailyTotals, error) {
	query := `
		SELECT to_char((m.created_at AT TIME ZONE $3)::date, 'YYYY-MM-DD') AS day,` + totalsColumns + `
		FROM stock_movements m
		WHERE m.created_at >= $1 AND m.created_at < $2
		GROUP BY day
		ORDER BY day`

	rows := []*DailyTotals{}
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, from, to, loc.String()); err != nil {
		return nil, fmt.Errorf("failed to load daily totals: %w", err)
	}
	return rows, nil
}

// CategoryTotals sums movement quantities in [from, to) per product category
func (r *MovementRepository) CategoryTotals(ctx context.Context, from, to time.Time) ([]*CategoryMovement, error) {
	query := `
		SELECT p.category,
		       COALESCE(SUM(m.quantity) FILTER (WHERE m.type = 'in'), 0) AS in_quantity,
		       COALESCE(SUM(m.quantity) FILTER (WHERE m.type = 'out'), 0) AS out_quantity
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE m.created_at >= $1 AND m.created_at < $2
		GROUP BY p.category
		ORDER BY p.category`

	rows := []*CategoryMovement{}
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to load category totals: %w", err)
	}
	return rows, nil
}

// TopProducts returns the products with the most moved quantity in [from, to)
func (r *MovementRepository) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]*ProductVolume, error) {
	query := `
		SELECT m.product_id, p.code, p.name,
		       COALESCE(SUM(m.quantity) FILTER (WHERE m.type = 'in'), 0) AS in_quantity,
		       COALESCE(SUM(m.quantity) FILTER (WHERE m.type = 'out'), 0) AS out_quantity,
		       SUM(m.quantity) AS volume
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE m.created_at >= $1 AND m.created_at < $2
		GROUP BY m.product_id, p.code, p.name
		ORDER BY volume DESC, p.code
		LIMIT $3`

	rows := []*ProductVolume{}
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, from, to, limit); err != nil {
		return nil, fmt.Errorf("failed to load top products: %w", err)
	}
	return rows, nil
}

// Drift returns products whose current stock differs from their latest movement
func (r *MovementRepository) Drift(ctx context.Context) ([]*StockDrift, error) {
	query := `
		SELECT p.id AS product_id, p.code, p.current_stock,
		       l.after_stock AS ledger_stock, l.id AS movement_id
		FROM products p
		JOIN (
			SELECT DISTINCT ON (product_id) product_id, id, after_stock
			FROM stock_movements
			ORDER BY product_id, created_at DESC, id DESC
		) l ON l.product_id = p.id
		WHERE p.current_stock <> l.after_stock
		ORDER BY p.code`

	rows := []*StockDrift{}
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to check stock drift: %w", err)
	}
	return rows, nil
}
