package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// MemoryStore is an in-process store with the same semantics as the Postgres
// repositories. It backs the memory storage mode and the service tests.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[string]*Product
	movements []*StockMovement
	nextID    int64
	alerts    []*Alert
	operators map[string]*Operator
	now       func() time.Time
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]*Product),
		operators: make(map[string]*Operator),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the store's clock
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Products returns the product view of the store
func (s *MemoryStore) Products() *MemoryProducts { return &MemoryProducts{s} }

// Movements returns the ledger view of the store
func (s *MemoryStore) Movements() *MemoryMovements { return &MemoryMovements{s} }

// Alerts returns the alert view of the store
func (s *MemoryStore) Alerts() *MemoryAlerts { return &MemoryAlerts{s} }

// Operators returns the operator cache view of the store
func (s *MemoryStore) Operators() *MemoryOperators { return &MemoryOperators{s} }

type memTxKey struct{}

type memTx struct {
	s    *MemoryStore
	undo []func()
}

// txOf returns the transaction of this store carried by ctx, if any
func (s *MemoryStore) txOf(ctx context.Context) *memTx {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok && tx.s == s {
		return tx
	}
	return nil
}

// lock takes the write lock unless ctx runs inside a transaction of this
// store, which already holds it.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if s.txOf(ctx) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// rlock is lock for readers
func (s *MemoryStore) rlock(ctx context.Context) func() {
	if s.txOf(ctx) != nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// Transaction runs fn holding the store's write lock, so readers only see
// committed state. If fn fails, every write it made through this store is undone.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txOf(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	tx := &memTx{s: s}
	committed := false
	defer func() {
		if !committed {
			for i := len(tx.undo) - 1; i >= 0; i-- {
				tx.undo[i]()
			}
		}
		s.mu.Unlock()
	}()

	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}
	committed = true
	return nil
}

// onRollback registers undo for the transaction in ctx; callers hold s.mu
func (s *MemoryStore) onRollback(ctx context.Context, undo func()) {
	if tx := s.txOf(ctx); tx != nil {
		tx.undo = append(tx.undo, undo)
	}
}

func copyProduct(p *Product) *Product {
	c := *p
	return &c
}

func page[T any](items []T, pageNum, perPage int) []T {
	limit, offset := limitOffset(pageNum, perPage)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func containsFold(s *string, needle string) bool {
	return s != nil && strings.Contains(strings.ToLower(*s), needle)
}

// MemoryProducts is the memory product store
type MemoryProducts struct{ s *MemoryStore }

// Create inserts a product
func (r *MemoryProducts) Create(ctx context.Context, p *Product) error {
	s := r.s
	defer s.lock(ctx)()

	for _, existing := range s.products {
		if existing.Code == p.Code {
			return errors.Conflict("a product with this code already exists")
		}
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := s.now()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	s.products[p.ID] = copyProduct(p)
	id := p.ID
	s.onRollback(ctx, func() { delete(s.products, id) })
	return nil
}

// GetByID gets a product by ID, archived or not
func (r *MemoryProducts) GetByID(ctx context.Context, id string) (*Product, error) {
	defer r.s.rlock(ctx)()

	p, ok := r.s.products[id]
	if !ok {
		return nil, errors.NotFound("product")
	}
	return copyProduct(p), nil
}

// GetForUpdate gets a product; callers serialise writers per product
func (r *MemoryProducts) GetForUpdate(ctx context.Context, id string) (*Product, error) {
	return r.GetByID(ctx, id)
}

func (r *MemoryProducts) active() []*Product {
	products := make([]*Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		if !p.IsArchived() {
			products = append(products, copyProduct(p))
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Code < products[j].Code })
	return products
}

// List lists active products ordered by code
func (r *MemoryProducts) List(ctx context.Context, f ProductFilter) ([]*Product, int64, error) {
	defer r.s.rlock(ctx)()

	keyword := strings.ToLower(f.Keyword)
	matched := []*Product{}
	for _, p := range r.active() {
		if keyword != "" && !containsFold(&p.Code, keyword) && !containsFold(&p.Name, keyword) && !containsFold(&p.Category, keyword) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.LowStockOnly && !p.IsLowStock() {
			continue
		}
		matched = append(matched, p)
	}

	return page(matched, f.Page, f.PerPage), int64(len(matched)), nil
}

// Update writes descriptive fields and thresholds if p.Version is current
func (r *MemoryProducts) Update(ctx context.Context, p *Product) error {
	s := r.s
	defer s.lock(ctx)()

	stored, ok := s.products[p.ID]
	if !ok {
		return errors.NotFound("product")
	}
	if stored.IsArchived() {
		return errors.Conflict("product is archived")
	}
	if stored.Version != p.Version {
		return errors.ConcurrentModification("product", stored.Version)
	}
	for _, other := range s.products {
		if other.ID != p.ID && other.Code == p.Code {
			return errors.Conflict("a product with this code already exists")
		}
	}

	prev := *stored
	stored.Code = p.Code
	stored.Name = p.Name
	stored.Category = p.Category
	stored.Unit = p.Unit
	stored.Description = p.Description
	stored.MinStock = p.MinStock
	stored.MaxStock = p.MaxStock
	stored.Version++
	stored.UpdatedAt = s.now()
	s.onRollback(ctx, func() { *stored = prev })

	p.Version = stored.Version
	p.CurrentStock = stored.CurrentStock
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

// ApplyStock sets the stock level after a committed movement
func (r *MemoryProducts) ApplyStock(ctx context.Context, id string, stock int64, at time.Time) error {
	s := r.s
	defer s.lock(ctx)()

	stored, ok := s.products[id]
	if !ok {
		return errors.NotFound("product")
	}
	if stock < 0 {
		return errors.InvalidField("current_stock", "must not be negative")
	}

	prev := *stored
	stored.CurrentStock = stock
	stored.LastMovementAt = &at
	stored.Version++
	stored.UpdatedAt = s.now()
	s.onRollback(ctx, func() { *stored = prev })
	return nil
}

// Archive hides a product from listings and blocks further movements
func (r *MemoryProducts) Archive(ctx context.Context, id string) error {
	s := r.s
	defer s.lock(ctx)()

	stored, ok := s.products[id]
	if !ok || stored.IsArchived() {
		return errors.NotFound("product")
	}

	prev := *stored
	now := s.now()
	stored.ArchivedAt = &now
	stored.Version++
	stored.UpdatedAt = now
	s.onRollback(ctx, func() { *stored = prev })
	return nil
}

// Delete removes a product that no movement references
func (r *MemoryProducts) Delete(ctx context.Context, id string) error {
	s := r.s
	defer s.lock(ctx)()

	stored, ok := s.products[id]
	if !ok {
		return errors.NotFound("product")
	}
	for _, m := range s.movements {
		if m.ProductID == id {
			return errors.Conflict("product is referenced by stock movements")
		}
	}

	delete(s.products, id)
	s.onRollback(ctx, func() { s.products[id] = stored })
	return nil
}

// Stats summarises active products
func (r *MemoryProducts) Stats(ctx context.Context) (*ProductStats, error) {
	defer r.s.rlock(ctx)()

	stats := &ProductStats{}
	for _, p := range r.active() {
		stats.TotalProducts++
		stats.TotalStock += p.CurrentStock
		if p.IsLowStock() {
			stats.LowStockCount++
		}
	}
	return stats, nil
}

// CategoryBreakdown returns product count and total stock per category
func (r *MemoryProducts) CategoryBreakdown(ctx context.Context) ([]*CategoryStock, error) {
	defer r.s.rlock(ctx)()

	byCategory := map[string]*CategoryStock{}
	rows := []*CategoryStock{}
	for _, p := range r.active() {
		row, ok := byCategory[p.Category]
		if !ok {
			row = &CategoryStock{Category: p.Category}
			byCategory[p.Category] = row
			rows = append(rows, row)
		}
		row.ProductCount++
		row.TotalStock += p.CurrentStock
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalStock != rows[j].TotalStock {
			return rows[i].TotalStock > rows[j].TotalStock
		}
		return rows[i].Category < rows[j].Category
	})
	return rows, nil
}

// TopByStock returns the products holding the most stock
func (r *MemoryProducts) TopByStock(ctx context.Context, limit int) ([]*Product, error) {
	defer r.s.rlock(ctx)()

	products := r.active()
	sort.SliceStable(products, func(i, j int) bool { return products[i].CurrentStock > products[j].CurrentStock })
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

// LowStock returns products below their minimum, furthest below first
func (r *MemoryProducts) LowStock(ctx context.Context, limit int) ([]*Product, error) {
	defer r.s.rlock(ctx)()

	products := []*Product{}
	for _, p := range r.active() {
		if p.IsLowStock() {
			products = append(products, p)
		}
	}
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].MinStock-products[i].CurrentStock > products[j].MinStock-products[j].CurrentStock
	})
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

// MemoryMovements is the memory ledger store
type MemoryMovements struct{ s *MemoryStore }

// Append inserts a movement and assigns its ID
func (r *MemoryMovements) Append(ctx context.Context, m *StockMovement) error {
	s := r.s
	defer s.lock(ctx)()

	if _, ok := s.products[m.ProductID]; !ok {
		return errors.BadRequest("referenced record does not exist")
	}
	if m.Quantity <= 0 {
		return errors.InvalidField("quantity", "must be greater than 0")
	}
	if m.AfterStock < 0 || m.AfterStock != m.BeforeStock+m.Type.Signed(m.Quantity) {
		return errors.InvalidField("quantity", "would drive stock below zero")
	}

	s.nextID++
	m.ID = s.nextID
	stored := *m
	s.movements = append(s.movements, &stored)

	id := m.ID
	s.onRollback(ctx, func() {
		for i, existing := range s.movements {
			if existing.ID == id {
				s.movements = append(s.movements[:i], s.movements[i+1:]...)
				return
			}
		}
	})
	return nil
}

// CountByProduct counts the movements referencing a product
func (r *MemoryMovements) CountByProduct(ctx context.Context, productID string) (int64, error) {
	defer r.s.rlock(ctx)()

	var count int64
	for _, m := range r.s.movements {
		if m.ProductID == productID {
			count++
		}
	}
	return count, nil
}

// enrich copies m and fills the joined read fields; callers hold s.mu
func (r *MemoryMovements) enrich(m *StockMovement) *StockMovement {
	c := *m
	if p, ok := r.s.products[m.ProductID]; ok {
		c.ProductCode = p.Code
		c.ProductName = p.Name
		c.ProductUnit = p.Unit
	}
	if op, ok := r.s.operators[m.OperatorID]; ok {
		c.OperatorName = op.FullName()
	}
	return &c
}

func (f MovementFilter) matches(m *StockMovement) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.ProductID != "" && m.ProductID != f.ProductID {
		return false
	}
	if f.OperatorID != "" && m.OperatorID != f.OperatorID {
		return false
	}
	if f.From != nil && m.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !m.CreatedAt.Before(*f.To) {
		return false
	}
	if f.Keyword != "" {
		kw := strings.ToLower(f.Keyword)
		if !containsFold(m.Reason, kw) && !containsFold(m.Supplier, kw) &&
			!containsFold(m.Department, kw) && !containsFold(m.BatchNo, kw) {
			return false
		}
	}
	return true
}

// List returns movements newest first
func (r *MemoryMovements) List(ctx context.Context, f MovementFilter) ([]*StockMovement, int64, error) {
	defer r.s.rlock(ctx)()

	matched := []*StockMovement{}
	for _, m := range r.s.movements {
		if f.matches(m) {
			matched = append(matched, r.enrich(m))
		}
	}
	sortNewestFirst(matched)

	return page(matched, f.Page, f.PerPage), int64(len(matched)), nil
}

func sortNewestFirst(movements []*StockMovement) {
	sort.Slice(movements, func(i, j int) bool {
		if !movements[i].CreatedAt.Equal(movements[j].CreatedAt) {
			return movements[i].CreatedAt.After(movements[j].CreatedAt)
		}
		return movements[i].ID > movements[j].ID
	})
}

func (r *MemoryMovements) window(from, to time.Time) []*StockMovement {
	f := MovementFilter{From: &from, To: &to}
	out := []*StockMovement{}
	for _, m := range r.s.movements {
		if f.matches(m) {
			out = append(out, m)
		}
	}
	return out
}

func (t *MovementTotals) add(m *StockMovement) {
	if m.Type == MovementIn {
		t.InCount++
		t.InQuantity += m.Quantity
	} else {
		t.OutCount++
		t.OutQuantity += m.Quantity
	}
}

// Totals counts and sums movements in [from, to)
func (r *MemoryMovements) Totals(ctx context.Context, from, to time.Time) (*MovementTotals, error) {
	defer r.s.rlock(ctx)()

	totals := &MovementTotals{}
	for _, m := range r.window(from, to) {
		totals.add(m)
	}
	return totals, nil
}

// DailyTotals groups movements in [from, to) by calendar day in loc
func (r *MemoryMovements) DailyTotals(ctx context.Context, from, to time.Time, loc *time.Location) ([]*DailyTotals, error) {
	defer r.s.rlock(ctx)()

	byDay := map[string]*DailyTotals{}
	rows := []*DailyTotals{}
	for _, m := range r.window(from, to) {
		day := m.CreatedAt.In(loc).Format("2006-01-02")
		row, ok := byDay[day]
		if !ok {
			row = &DailyTotals{Day: day}
			byDay[day] = row
			rows = append(rows, row)
		}
		row.add(m)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Day < rows[j].Day })
	return rows, nil
}

// CategoryTotals sums movement quantities in [from, to) per product category
func (r *MemoryMovements) CategoryTotals(ctx context.Context, from, to time.Time) ([]*CategoryMovement, error) {
	defer r.s.rlock(ctx)()

	byCategory := map[string]*CategoryMovement{}
	rows := []*CategoryMovement{}
	for _, m := range r.window(from, to) {
		p, ok := r.s.products[m.ProductID]
		if !ok {
			continue
		}
		row, ok := byCategory[p.Category]
		if !ok {
			row = &CategoryMovement{Category: p.Category}
			byCategory[p.Category] = row
			rows = append(rows, row)
		}
		if m.Type == MovementIn {
			row.InQuantity += m.Quantity
		} else {
			row.OutQuantity += m.Quantity
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })
	return rows, nil
}

// TopProducts returns the products with the most moved quantity in [from, to)
func (r *MemoryMovements) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]*ProductVolume, error) {
	defer r.s.rlock(ctx)()

	byProduct := map[string]*ProductVolume{}
	rows := []*ProductVolume{}
	for _, m := range r.window(from, to) {
		row, ok := byProduct[m.ProductID]
		if !ok {
			row = &ProductVolume{ProductID: m.ProductID}
			if p, ok := r.s.products[m.ProductID]; ok {
				row.Code = p.Code
				row.Name = p.Name
			}
			byProduct[m.ProductID] = row
			rows = append(rows, row)
		}
		if m.Type == MovementIn {
			row.InQuantity += m.Quantity
		} else {
			row.OutQuantity += m.Quantity
		}
		row.Volume += m.Quantity
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Volume != rows[j].Volume {
			return rows[i].Volume > rows[j].Volume
		}
		return rows[i].Code < rows[j].Code
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Drift returns products whose current stock differs from their latest movement
func (r *MemoryMovements) Drift(ctx context.Context) ([]*StockDrift, error) {
	defer r.s.rlock(ctx)()

	latest := map[string]*StockMovement{}
	for _, m := range r.s.movements {
		prev, ok := latest[m.ProductID]
		if !ok || m.CreatedAt.After(prev.CreatedAt) || (m.CreatedAt.Equal(prev.CreatedAt) && m.ID > prev.ID) {
			latest[m.ProductID] = m
		}
	}

	rows := []*StockDrift{}
	for productID, m := range latest {
		p, ok := r.s.products[productID]
		if !ok || p.CurrentStock == m.AfterStock {
			continue
		}
		rows = append(rows, &StockDrift{
			ProductID:    productID,
			Code:         p.Code,
			CurrentStock: p.CurrentStock,
			LedgerStock:  m.AfterStock,
			MovementID:   m.ID,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows, nil
}

// SetStockUnchecked overwrites a product's stock without a movement. It exists
// so tests can simulate out-of-band edits.
func (r *MemoryProducts) SetStockUnchecked(id string, stock int64) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.products[id]; ok {
		p.CurrentStock = stock
	}
}

// MemoryAlerts is the memory alert store
type MemoryAlerts struct{ s *MemoryStore }

// CreateIfAbsent inserts the alert unless an unread alert of the same type exists for the product
func (r *MemoryAlerts) CreateIfAbsent(ctx context.Context, alert *Alert) (bool, error) {
	s := r.s
	defer s.lock(ctx)()

	for _, existing := range s.alerts {
		if !existing.IsRead && existing.ProductID == alert.ProductID && existing.Type == alert.Type {
			return false, nil
		}
	}

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	alert.IsRead = false
	alert.CreatedAt = s.now()

	stored := *alert
	s.alerts = append(s.alerts, &stored)
	id := alert.ID
	s.onRollback(ctx, func() { r.remove(id) })
	return true, nil
}

// remove deletes an alert by ID; callers hold s.mu
func (r *MemoryAlerts) remove(id string) bool {
	for i, a := range r.s.alerts {
		if a.ID == id {
			r.s.alerts = append(r.s.alerts[:i], r.s.alerts[i+1:]...)
			return true
		}
	}
	return false
}

func (r *MemoryAlerts) enrich(a *Alert) *Alert {
	c := *a
	if p, ok := r.s.products[a.ProductID]; ok {
		c.ProductName = p.Name
	}
	return &c
}

// GetByID gets an alert by ID
func (r *MemoryAlerts) GetByID(ctx context.Context, id string) (*Alert, error) {
	defer r.s.rlock(ctx)()

	for _, a := range r.s.alerts {
		if a.ID == id {
			return r.enrich(a), nil
		}
	}
	return nil, errors.NotFound("alert")
}

// List lists alerts newest first
func (r *MemoryAlerts) List(ctx context.Context, f AlertFilter) ([]*Alert, int64, error) {
	defer r.s.rlock(ctx)()

	matched := []*Alert{}
	for _, a := range r.s.alerts {
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.IsRead != nil && a.IsRead != *f.IsRead {
			continue
		}
		if f.ProductID != "" && a.ProductID != f.ProductID {
			continue
		}
		matched = append(matched, r.enrich(a))
	}

	// alerts are appended in creation order
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	return page(matched, f.Page, f.PerPage), int64(len(matched)), nil
}

// MarkRead marks one alert as read
func (r *MemoryAlerts) MarkRead(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()

	for _, a := range r.s.alerts {
		if a.ID == id {
			a.IsRead = true
			return nil
		}
	}
	return errors.NotFound("alert")
}

// MarkAllRead marks every currently unread alert as read
func (r *MemoryAlerts) MarkAllRead(ctx context.Context) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for _, a := range r.s.alerts {
		if !a.IsRead {
			a.IsRead = true
			n++
		}
	}
	return n, nil
}

// ClearRead deletes all read alerts
func (r *MemoryAlerts) ClearRead(ctx context.Context) (int64, error) {
	defer r.s.lock(ctx)()

	kept := r.s.alerts[:0]
	var n int64
	for _, a := range r.s.alerts {
		if a.IsRead {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.s.alerts = kept
	return n, nil
}

// Delete deletes one alert
func (r *MemoryAlerts) Delete(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()

	if !r.remove(id) {
		return errors.NotFound("alert")
	}
	return nil
}

// CountUnread counts unread alerts
func (r *MemoryAlerts) CountUnread(ctx context.Context) (int64, error) {
	defer r.s.rlock(ctx)()

	var n int64
	for _, a := range r.s.alerts {
		if !a.IsRead {
			n++
		}
	}
	return n, nil
}

// MemoryOperators is the memory operator cache
type MemoryOperators struct{ s *MemoryStore }

// Set creates or updates a cached operator
func (r *MemoryOperators) Set(ctx context.Context, op *Operator) error {
	defer r.s.lock(ctx)()

	c := *op
	r.s.operators[op.UserID] = &c
	return nil
}

// Get gets a cached operator by user ID
func (r *MemoryOperators) Get(ctx context.Context, userID string) (*Operator, error) {
	defer r.s.rlock(ctx)()

	op, ok := r.s.operators[userID]
	if !ok {
		return nil, errors.NotFound("operator")
	}
	c := *op
	return &c, nil
}

// Delete removes a cached operator
func (r *MemoryOperators) Delete(ctx context.Context, userID string) error {
	defer r.s.lock(ctx)()

	delete(r.s.operators, userID)
	return nil
}
