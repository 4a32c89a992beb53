package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
)

func newMemoryProduct(t *testing.T, store *repository.MemoryStore, code string, stock int64) *repository.Product {
	t.Helper()
	p := &repository.Product{Code: code, Name: "Item " + code, Category: "parts", Unit: "pcs", MinStock: 10, MaxStock: 100, CurrentStock: stock}
	require.NoError(t, store.Products().Create(context.Background(), p))
	return p
}

func appendMovement(t *testing.T, ctx context.Context, store *repository.MemoryStore, p *repository.Product, typ repository.MovementType, qty int64, at time.Time) *repository.StockMovement {
	t.Helper()
	current, err := store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)

	m := &repository.StockMovement{
		ProductID:   p.ID,
		Type:        typ,
		Quantity:    qty,
		BeforeStock: current.CurrentStock,
		AfterStock:  current.CurrentStock + typ.Signed(qty),
		OperatorID:  testutil.OperatorID(1),
		CreatedAt:   at,
	}
	require.NoError(t, store.Movements().Append(ctx, m))
	require.NoError(t, store.Products().ApplyStock(ctx, p.ID, m.AfterStock, at))
	return m
}

func TestMemoryStore_ProductCodeUnique(t *testing.T) {
	store := repository.NewMemoryStore()
	newMemoryProduct(t, store, "P001", 0)

	err := store.Products().Create(context.Background(), &repository.Product{Code: "P001"})
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestMemoryStore_UpdateVersioning(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	p := newMemoryProduct(t, store, "P001", 50)

	stale := *p
	p.Name = "Renamed"
	require.NoError(t, store.Products().Update(ctx, p))
	assert.Equal(t, int64(2), p.Version)

	stale.Name = "Other"
	err := store.Products().Update(ctx, &stale)
	assert.True(t, errors.Is(err, errors.ErrConcurrentModification))

	got, err := store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, int64(50), got.CurrentStock)
}

func TestMemoryStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	p := newMemoryProduct(t, store, "P001", 50)

	err := store.Transaction(ctx, func(ctx context.Context) error {
		appendMovement(t, ctx, store, p, repository.MovementIn, 5, time.Now())
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	got, err := store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.CurrentStock)
	assert.Nil(t, got.LastMovementAt)

	count, err := store.Movements().CountByProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_TransactionHidesUncommittedWrites(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	p := newMemoryProduct(t, store, "P001", 50)

	read := make(chan int64, 1)
	err := store.Transaction(ctx, func(txCtx context.Context) error {
		appendMovement(t, txCtx, store, p, repository.MovementIn, 5, time.Now())

		go func() {
			got, err := store.Products().GetByID(ctx, p.ID)
			if err != nil {
				read <- -1
				return
			}
			read <- got.CurrentStock
		}()

		select {
		case stock := <-read:
			t.Errorf("reader saw stock %d before the transaction ended", stock)
		case <-time.After(50 * time.Millisecond):
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	select {
	case stock := <-read:
		assert.Equal(t, int64(50), stock)
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after the transaction ended")
	}
}

func TestMemoryStore_AppendRejectsInconsistentRow(t *testing.T) {
	store := repository.NewMemoryStore()
	p := newMemoryProduct(t, store, "P001", 5)

	err := store.Movements().Append(context.Background(), &repository.StockMovement{
		ProductID: p.ID, Type: repository.MovementOut, Quantity: 10, BeforeStock: 5, AfterStock: -5,
	})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestMemoryStore_DeleteRestrictAndArchive(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	used := newMemoryProduct(t, store, "P001", 50)
	unused := newMemoryProduct(t, store, "P002", 0)
	appendMovement(t, ctx, store, used, repository.MovementOut, 5, time.Now())

	err := store.Products().Delete(ctx, used.ID)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	require.NoError(t, store.Products().Delete(ctx, unused.ID))

	require.NoError(t, store.Products().Archive(ctx, used.ID))
	products, total, err := store.Products().List(ctx, repository.ProductFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, products)

	got, err := store.Products().GetByID(ctx, used.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchived())
}

func TestMemoryStore_ListMovements(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	p := newMemoryProduct(t, store, "P001", 0)
	require.NoError(t, store.Operators().Set(ctx, &repository.Operator{UserID: testutil.OperatorID(1), FirstName: "Li", LastName: "Wei"}))

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	first := appendMovement(t, ctx, store, p, repository.MovementIn, 10, base)
	second := appendMovement(t, ctx, store, p, repository.MovementIn, 20, base.Add(time.Hour))
	appendMovement(t, ctx, store, p, repository.MovementOut, 5, base.Add(2*time.Hour))

	from := base
	to := base.Add(90 * time.Minute)
	movements, total, err := store.Movements().List(ctx, repository.MovementFilter{
		Type: repository.MovementIn,
		From: &from,
		To:   &to,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, movements, 2)
	assert.Equal(t, second.ID, movements[0].ID)
	assert.Equal(t, first.ID, movements[1].ID)
	assert.Equal(t, "P001", movements[0].ProductCode)
	assert.Equal(t, "Li Wei", movements[0].OperatorName)
}

func TestMemoryStore_AlertDedup(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	alerts := store.Alerts()

	create := func() bool {
		created, err := alerts.CreateIfAbsent(ctx, &repository.Alert{ProductID: "p1", Type: repository.AlertLowStock, Message: "low"})
		require.NoError(t, err)
		return created
	}

	assert.True(t, create())
	assert.False(t, create())

	_, err := alerts.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.True(t, create())

	unread, err := alerts.CountUnread(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	cleared, err := alerts.ClearRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	list, total, err := alerts.List(ctx, repository.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.False(t, list[0].IsRead)
}

func TestMemoryStore_AggregatesAndDrift(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	a := newMemoryProduct(t, store, "A001", 0)
	b := newMemoryProduct(t, store, "B001", 0)

	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	// 23:30 UTC on Mar 1 is Mar 2 in Shanghai
	day1 := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	appendMovement(t, ctx, store, a, repository.MovementIn, 40, day1)
	appendMovement(t, ctx, store, b, repository.MovementIn, 10, day1.Add(time.Minute))
	appendMovement(t, ctx, store, a, repository.MovementOut, 15, day1.Add(24*time.Hour))

	from := day1.Add(-time.Hour)
	to := day1.Add(48 * time.Hour)

	daily, err := store.Movements().DailyTotals(ctx, from, to, loc)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2024-03-02", daily[0].Day)
	assert.Equal(t, int64(50), daily[0].InQuantity)
	assert.Equal(t, int64(15), daily[1].OutQuantity)

	top, err := store.Movements().TopProducts(ctx, from, to, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "A001", top[0].Code)
	assert.Equal(t, int64(55), top[0].Volume)

	drift, err := store.Movements().Drift(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)

	store.Products().SetStockUnchecked(a.ID, 99)
	drift, err = store.Movements().Drift(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, int64(25), drift[0].LedgerStock)
	assert.Equal(t, int64(99), drift[0].CurrentStock)
}
