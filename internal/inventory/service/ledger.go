package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/keylock"
)

const dayLayout = "2006-01-02"

// CommitRequest is one movement to apply to the ledger
type CommitRequest struct {
	ProductID  string
	Type       repository.MovementType
	Quantity   int64
	OperatorID string
	Reason     *string
	Supplier   *string
	Department *string
	BatchNo    *string
	UnitPrice  *decimal.Decimal
}

// StockInRequest records a receipt
type StockInRequest struct {
	ProductID string           `json:"product_id" validate:"required"`
	Quantity  int64            `json:"quantity" validate:"gt=0"`
	Supplier  string           `json:"supplier" validate:"notblank,max=200"`
	BatchNo   string           `json:"batch_no" validate:"notblank,max=100"`
	Reason    *string          `json:"reason,omitempty" validate:"omitempty,max=500"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// StockOutRequest records an issue to a department
type StockOutRequest struct {
	ProductID  string  `json:"product_id" validate:"required"`
	Quantity   int64   `json:"quantity" validate:"gt=0"`
	Department string  `json:"department" validate:"notblank,max=200"`
	BatchNo    *string `json:"batch_no,omitempty" validate:"omitempty,max=100"`
	Reason     *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// AdjustStockRequest sets a product's stock to a counted value through the ledger
type AdjustStockRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	TargetStock int64  `json:"target_stock" validate:"gte=0"`
	Reason      string `json:"reason" validate:"notblank,max=500"`
}

// MovementQuery filters the ledger. StartDate and EndDate are inclusive days
// (YYYY-MM-DD) in the engine's time zone.
type MovementQuery struct {
	Type       string
	ProductID  string
	OperatorID string
	StartDate  string
	EndDate    string
	Keyword    string
	Page       int
	PerPage    int
}

// AggregateWindow selects the days to aggregate. Without dates it covers the
// Days (default 30) days ending today.
type AggregateWindow struct {
	StartDate string
	EndDate   string
	Days      int
	TopN      int
}

// Aggregation groups ledger activity over a window
type Aggregation struct {
	StartDate   string                         `json:"start_date"`
	EndDate     string                         `json:"end_date"`
	Totals      *repository.MovementTotals     `json:"totals"`
	Daily       []*repository.DailyTotals      `json:"daily"`
	Categories  []*repository.CategoryMovement `json:"categories"`
	TopProducts []*repository.ProductVolume    `json:"top_products"`
}

// Ledger is the only write path for stock levels
type Ledger struct {
	e *Engine
}

// Commit applies one movement atomically under the product lock
func (l *Ledger) Commit(ctx context.Context, req CommitRequest) (*repository.StockMovement, error) {
	req = req.normalized()
	if err := req.validate(); err != nil {
		l.e.metrics.RecordCommit(string(req.Type), "rejected", 0)
		return nil, err
	}

	m, p, alerts, err := l.commit(ctx, req.ProductID, func(*repository.Product) (*repository.StockMovement, error) {
		return req.movement(l.e.cfg), nil
	})
	if err != nil {
		return nil, err
	}

	l.announce(ctx, m, p, alerts)
	return m, nil
}

// RecordStockIn commits a receipt from a supplier
func (l *Ledger) RecordStockIn(ctx context.Context, operatorID string, req StockInRequest) (*repository.StockMovement, error) {
	if err := httputil.Validate(&req); err != nil {
		return nil, err
	}
	return l.Commit(ctx, CommitRequest{
		ProductID:  req.ProductID,
		Type:       repository.MovementIn,
		Quantity:   req.Quantity,
		OperatorID: operatorID,
		Reason:     req.Reason,
		Supplier:   &req.Supplier,
		BatchNo:    &req.BatchNo,
		UnitPrice:  req.UnitPrice,
	})
}

// RecordStockOut commits an issue to a department
func (l *Ledger) RecordStockOut(ctx context.Context, operatorID string, req StockOutRequest) (*repository.StockMovement, error) {
	if err := httputil.Validate(&req); err != nil {
		return nil, err
	}
	return l.Commit(ctx, CommitRequest{
		ProductID:  req.ProductID,
		Type:       repository.MovementOut,
		Quantity:   req.Quantity,
		OperatorID: operatorID,
		Reason:     req.Reason,
		Department: &req.Department,
		BatchNo:    req.BatchNo,
	})
}

// AdjustStock moves a product to a counted stock level by committing the
// difference as a movement, so the ledger keeps explaining current_stock.
func (l *Ledger) AdjustStock(ctx context.Context, operatorID string, req AdjustStockRequest) (*repository.StockMovement, error) {
	if err := httputil.Validate(&req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(operatorID) == "" {
		return nil, errors.InvalidField("operator_id", "this field is required")
	}
	reason := strings.TrimSpace(req.Reason)

	m, p, alerts, err := l.commit(ctx, req.ProductID, func(p *repository.Product) (*repository.StockMovement, error) {
		diff := req.TargetStock - p.CurrentStock
		if diff == 0 {
			return nil, errors.InvalidField("target_stock", "equals current stock")
		}
		movementType := repository.MovementIn
		if diff < 0 {
			movementType = repository.MovementOut
			diff = -diff
		}
		return &repository.StockMovement{
			Type:       movementType,
			Quantity:   diff,
			OperatorID: operatorID,
			Reason:     &reason,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	l.announce(ctx, m, p, alerts)
	l.e.publisher.StockAdjusted(ctx, m, reason)
	return m, nil
}

// commit runs the locked read, check, apply and append sequence. build turns
// the locked product into the movement to append.
func (l *Ledger) commit(
	ctx context.Context,
	productID string,
	build func(p *repository.Product) (*repository.StockMovement, error),
) (*repository.StockMovement, *repository.Product, []*repository.Alert, error) {
	start := time.Now()
	log := l.e.logger.WithProduct(productID)

	release, err := l.e.lock(ctx, productID)
	if err != nil {
		l.e.metrics.RecordCommit("", outcomeOf(err), 0)
		return nil, nil, nil, err
	}
	defer release()

	var (
		m *repository.StockMovement
		p *repository.Product
	)
	err = l.e.stores.Tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = l.e.stores.Products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if p.IsArchived() {
			return errors.Conflict("product is archived")
		}

		m, err = build(p)
		if err != nil {
			return err
		}

		at := l.e.now()
		if p.LastMovementAt != nil && p.LastMovementAt.After(at) {
			at = *p.LastMovementAt
		}

		before, after, err := l.e.Registry.applyDelta(ctx, p, m.Type.Signed(m.Quantity), at)
		if err != nil {
			return err
		}

		m.ProductID = p.ID
		m.BeforeStock = before
		m.AfterStock = after
		m.CreatedAt = at
		return l.e.stores.Movements.Append(ctx, m)
	})
	if err != nil {
		movementType := ""
		if m != nil {
			movementType = string(m.Type)
		}
		l.e.metrics.RecordCommit(movementType, outcomeOf(err), 0)
		log.Debug().Err(err).Msg("commit rejected")
		return nil, nil, nil, err
	}

	alerts := l.e.Alerts.evaluate(ctx, p)

	m.ProductCode = p.Code
	m.ProductName = p.Name
	m.ProductUnit = p.Unit

	l.e.metrics.RecordCommit(string(m.Type), "committed", m.Quantity)
	l.e.metrics.ObserveCommit(string(m.Type), time.Since(start))
	log.Debug().
		Int64("movement_id", m.ID).
		Str("type", string(m.Type)).
		Int64("quantity", m.Quantity).
		Int64("before", m.BeforeStock).
		Int64("after", m.AfterStock).
		Msg("movement committed")

	return m, p, alerts, nil
}

// announce publishes the events for a committed movement. It runs after the
// product lock is released.
func (l *Ledger) announce(ctx context.Context, m *repository.StockMovement, p *repository.Product, alerts []*repository.Alert) {
	l.e.publisher.StockMoved(ctx, m, p)
	for _, alert := range alerts {
		l.e.publisher.AlertGenerated(ctx, alert)
	}
}

// Query pages through the ledger, newest first
func (l *Ledger) Query(ctx context.Context, q MovementQuery) ([]*repository.StockMovement, int64, error) {
	f := repository.MovementFilter{
		ProductID:  strings.TrimSpace(q.ProductID),
		OperatorID: strings.TrimSpace(q.OperatorID),
		Keyword:    strings.TrimSpace(q.Keyword),
		Page:       q.Page,
		PerPage:    q.PerPage,
	}

	if q.Type != "" {
		f.Type = repository.MovementType(q.Type)
		if !f.Type.Valid() {
			return nil, 0, errors.InvalidField("type", "must be one of: in out")
		}
	}

	from, to, err := l.e.dayRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, 0, err
	}
	f.From = from
	f.To = to

	return l.e.stores.Movements.List(ctx, f)
}

// Aggregate groups movements in the window by day, by category and by product
func (l *Ledger) Aggregate(ctx context.Context, w AggregateWindow) (*Aggregation, error) {
	if w.TopN <= 0 {
		w.TopN = 10
	}
	if w.TopN > 100 {
		w.TopN = 100
	}

	var first, last time.Time
	if w.StartDate == "" && w.EndDate == "" {
		if w.Days <= 0 {
			w.Days = 30
		}
		if w.Days > 366 {
			return nil, errors.InvalidField("days", "must be at most 366")
		}
		last = l.e.today()
		first = last.AddDate(0, 0, -(w.Days - 1))
	} else {
		from, to, err := l.e.dayRange(w.StartDate, w.EndDate)
		if err != nil {
			return nil, err
		}
		if from == nil || to == nil {
			return nil, errors.InvalidField("start_date", "start_date and end_date must be given together")
		}
		first = *from
		last = to.AddDate(0, 0, -1)
		if !first.AddDate(0, 0, 366).After(last) {
			return nil, errors.InvalidField("end_date", "window must be at most 366 days")
		}
	}
	end := last.AddDate(0, 0, 1)

	movements := l.e.stores.Movements
	totals, err := movements.Totals(ctx, first, end)
	if err != nil {
		return nil, err
	}
	daily, err := movements.DailyTotals(ctx, first, end, l.e.cfg.Location)
	if err != nil {
		return nil, err
	}
	categories, err := movements.CategoryTotals(ctx, first, end)
	if err != nil {
		return nil, err
	}
	top, err := movements.TopProducts(ctx, first, end, w.TopN)
	if err != nil {
		return nil, err
	}

	return &Aggregation{
		StartDate:   first.Format(dayLayout),
		EndDate:     last.Format(dayLayout),
		Totals:      totals,
		Daily:       fillDays(first, end, daily),
		Categories:  categories,
		TopProducts: top,
	}, nil
}

func (req CommitRequest) normalized() CommitRequest {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.OperatorID = strings.TrimSpace(req.OperatorID)
	req.Reason = trimmed(req.Reason)
	req.Supplier = trimmed(req.Supplier)
	req.Department = trimmed(req.Department)
	req.BatchNo = trimmed(req.BatchNo)
	return req
}

func (req CommitRequest) validate() error {
	details := make(map[string]string)
	if req.ProductID == "" {
		details["product_id"] = "this field is required"
	}
	if !req.Type.Valid() {
		details["type"] = "must be one of: in out"
	}
	if req.Quantity <= 0 {
		details["quantity"] = "must be greater than 0"
	}
	if req.OperatorID == "" {
		details["operator_id"] = "this field is required"
	}

	switch req.Type {
	case repository.MovementIn:
		if req.Department != nil {
			details["department"] = "only allowed for stock-out"
		}
		if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
			details["unit_price"] = "must not be negative"
		}
	case repository.MovementOut:
		if req.Supplier != nil {
			details["supplier"] = "only allowed for stock-in"
		}
		if req.UnitPrice != nil {
			details["unit_price"] = "only allowed for stock-in"
		}
	}

	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

func (req CommitRequest) movement(cfg Config) *repository.StockMovement {
	m := &repository.StockMovement{
		Type:       req.Type,
		Quantity:   req.Quantity,
		OperatorID: req.OperatorID,
		Reason:     req.Reason,
		Supplier:   req.Supplier,
		Department: req.Department,
		BatchNo:    req.BatchNo,
	}

	if m.Reason == nil {
		reason := cfg.DefaultOutReason
		if req.Type == repository.MovementIn {
			reason = cfg.DefaultInReason
		}
		if reason != "" {
			m.Reason = &reason
		}
	}

	if req.UnitPrice != nil {
		m.UnitPrice = decimal.NewNullDecimal(*req.UnitPrice)
		m.TotalAmount = decimal.NewNullDecimal(req.UnitPrice.Mul(decimal.NewFromInt(req.Quantity)))
	}
	return m
}

// lock takes the per-product lock within the configured wait bound
func (e *Engine) lock(ctx context.Context, productID string) (func(), error) {
	start := time.Now()
	release, err := e.locks.Acquire(ctx, productID, e.cfg.LockTimeout)
	e.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			e.logger.Warn().Str("product_id", productID).Dur("timeout", e.cfg.LockTimeout).Msg("product lock wait timed out")
			return nil, errors.Busy("product")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Busy("product")
		}
		return nil, err
	}
	return release, nil
}

// today returns midnight of the current day in the engine's time zone
func (e *Engine) today() time.Time {
	now := e.now().In(e.cfg.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.cfg.Location)
}

// dayRange turns inclusive YYYY-MM-DD bounds into [from, to) instants
func (e *Engine) dayRange(startDate, endDate string) (from, to *time.Time, err error) {
	if startDate != "" {
		start, err := time.ParseInLocation(dayLayout, startDate, e.cfg.Location)
		if err != nil {
			return nil, nil, errors.InvalidField("start_date", "must be a date in YYYY-MM-DD format")
		}
		from = &start
	}
	if endDate != "" {
		end, err := time.ParseInLocation(dayLayout, endDate, e.cfg.Location)
		if err != nil {
			return nil, nil, errors.InvalidField("end_date", "must be a date in YYYY-MM-DD format")
		}
		end = end.AddDate(0, 0, 1)
		to = &end
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, errors.InvalidField("end_date", "must not be before start_date")
	}
	return from, to, nil
}

// fillDays returns one row per day in [first, end), zero where rows has none
func fillDays(first, end time.Time, rows []*repository.DailyTotals) []*repository.DailyTotals {
	byDay := make(map[string]*repository.DailyTotals, len(rows))
	for _, row := range rows {
		byDay[row.Day] = row
	}

	var filled []*repository.DailyTotals
	for day := first; day.Before(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(dayLayout)
		if row, ok := byDay[key]; ok {
			filled = append(filled, row)
			continue
		}
		filled = append(filled, &repository.DailyTotals{Day: key})
	}
	return filled
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, errors.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, errors.ErrBusy):
		return "busy"
	case errors.Is(err, errors.ErrValidation), errors.Is(err, errors.ErrConflict), errors.Is(err, errors.ErrNotFound):
		return "rejected"
	default:
		return "error"
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
