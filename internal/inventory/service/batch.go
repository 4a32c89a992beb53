package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// BatchItem is one line of a receiving or issuing session
type BatchItem struct {
	ProductID  string           `json:"product_id"`
	Quantity   int64            `json:"quantity"`
	Supplier   *string          `json:"supplier,omitempty"`
	Department *string          `json:"department,omitempty"`
	BatchNo    *string          `json:"batch_no,omitempty"`
	Reason     *string          `json:"reason,omitempty"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
}

// ProductSnapshot is the registry state seen when an item was staged. It is a
// read model only; commits re-read the product under its lock.
type ProductSnapshot struct {
	ProductID string    `json:"product_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Stock     int64     `json:"stock"`
	Version   int64     `json:"version"`
	TakenAt   time.Time `json:"taken_at"`
}

// StagedItem is a validated item waiting for CommitAll
type StagedItem struct {
	Item     BatchItem       `json:"item"`
	Snapshot ProductSnapshot `json:"snapshot"`
}

// FailedItem is a staged item whose commit was rejected
type FailedItem struct {
	Index int       `json:"index"`
	Item  BatchItem `json:"item"`
	Err   error     `json:"-"`
}

// BatchResult reports the outcome of every staged item
type BatchResult struct {
	Committed []*repository.StockMovement `json:"committed"`
	Failed    []FailedItem                `json:"failed"`
}

// BatchComposer stages movements of one type and commits them one by one
type BatchComposer struct {
	e            *Engine
	movementType repository.MovementType
	operatorID   string

	mu    sync.Mutex
	items []StagedItem
}

// NewBatch starts an empty batch of movementType recorded as operatorID
func (e *Engine) NewBatch(movementType repository.MovementType, operatorID string) *BatchComposer {
	return &BatchComposer{
		e:            e,
		movementType: movementType,
		operatorID:   operatorID,
	}
}

// Stage validates item against a fresh product snapshot and appends it. Stock-out
// batches accept one item per product and reject quantities above the snapshot.
func (b *BatchComposer) Stage(ctx context.Context, item BatchItem) (int, error) {
	req := b.request(item).normalized()
	if err := req.validate(); err != nil {
		return -1, err
	}
	if err := requireLineFields(req); err != nil {
		return -1, err
	}

	p, err := b.e.stores.Products.GetByID(ctx, req.ProductID)
	if err != nil {
		return -1, err
	}
	if p.IsArchived() {
		return -1, errors.Conflict("product is archived")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if limit := b.e.cfg.MaxBatchItems; limit > 0 && len(b.items) >= limit {
		return -1, errors.InvalidField("items", "a batch holds at most "+strconv.Itoa(limit)+" items")
	}

	if b.movementType == repository.MovementOut {
		for i, staged := range b.items {
			if staged.Item.ProductID == p.ID {
				return -1, errors.DuplicateInBatch(p.ID, i)
			}
		}
		if req.Quantity > p.CurrentStock {
			return -1, errors.InsufficientStock(p.CurrentStock, req.Quantity)
		}
	}

	item.ProductID = p.ID
	b.items = append(b.items, StagedItem{
		Item: item,
		Snapshot: ProductSnapshot{
			ProductID: p.ID,
			Code:      p.Code,
			Name:      p.Name,
			Unit:      p.Unit,
			Stock:     p.CurrentStock,
			Version:   p.Version,
			TakenAt:   b.e.now(),
		},
	})
	return len(b.items) - 1, nil
}

// Unstage removes the item at index
func (b *BatchComposer) Unstage(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.items) {
		return errors.InvalidField("index", "out of range")
	}
	b.items = append(b.items[:index], b.items[index+1:]...)
	return nil
}

// Items returns a copy of the staged items in staging order
func (b *BatchComposer) Items() []StagedItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := make([]StagedItem, len(b.items))
	copy(items, b.items)
	return items
}

// Len returns the number of staged items
func (b *BatchComposer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// CommitAll commits staged items in order, each under its own product lock.
// Earlier commits stand when a later item fails. The batch is empty afterwards.
func (b *BatchComposer) CommitAll(ctx context.Context) *BatchResult {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()

	result := &BatchResult{
		Committed: make([]*repository.StockMovement, 0, len(items)),
		Failed:    []FailedItem{},
	}
	for i, staged := range items {
		m, err := b.e.Ledger.Commit(ctx, b.request(staged.Item))
		if err != nil {
			b.e.logger.Warn().Err(err).
				Int("index", i).
				Str("product_id", staged.Item.ProductID).
				Msg("batch item failed")
			result.Failed = append(result.Failed, FailedItem{Index: i, Item: staged.Item, Err: err})
			continue
		}
		result.Committed = append(result.Committed, m)
	}

	b.e.logger.Info().
		Str("type", string(b.movementType)).
		Int("committed", len(result.Committed)).
		Int("failed", len(result.Failed)).
		Msg("batch committed")
	return result
}

func (b *BatchComposer) request(item BatchItem) CommitRequest {
	return CommitRequest{
		ProductID:  item.ProductID,
		Type:       b.movementType,
		Quantity:   item.Quantity,
		OperatorID: b.operatorID,
		Reason:     item.Reason,
		Supplier:   item.Supplier,
		Department: item.Department,
		BatchNo:    item.BatchNo,
		UnitPrice:  item.UnitPrice,
	}
}

// requireLineFields applies the receipt and issue field rules to a normalized request
func requireLineFields(req CommitRequest) error {
	details := make(map[string]string)
	switch req.Type {
	case repository.MovementIn:
		if req.Supplier == nil {
			details["supplier"] = "this field is required"
		}
		if req.BatchNo == nil {
			details["batch_no"] = "this field is required"
		}
	case repository.MovementOut:
		if req.Department == nil {
			details["department"] = "this field is required"
		}
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}
