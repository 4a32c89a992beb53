package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsistencyAuditor_Check(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.product(t, 0, 100, 10)
	b := f.product(t, 0, 100, 10)
	f.product(t, 0, 100, 3) // no movements yet, creation value stands

	f.stockIn(t, a.ID, 5)
	f.stockOut(t, b.ID, 2)

	auditor := service.NewConsistencyAuditor(f.engine, time.Minute)

	drift, err := auditor.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)

	f.mem.Products().SetStockUnchecked(b.ID, 42)

	drift, err = auditor.Check(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, b.ID, drift[0].ProductID)
	assert.Equal(t, int64(42), drift[0].CurrentStock)
	assert.Equal(t, int64(8), drift[0].LedgerStock)

	// the auditor reports only
	assert.Equal(t, int64(42), f.currentStock(t, b.ID))
}

func TestConsistencyAuditor_CheckDuringCommits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, 0, 1_000_000, 0)
	auditor := service.NewConsistencyAuditor(f.engine, time.Minute)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := f.engine.Ledger.RecordStockIn(ctx, operator, service.StockInRequest{
				ProductID: p.ID, Quantity: 1, Supplier: "Acme", BatchNo: "B1",
			}); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	deadline := time.Now().Add(300 * time.Millisecond)
	checks := 0
	for time.Now().Before(deadline) {
		drift, err := auditor.Check(ctx)
		require.NoError(t, err)
		require.Empty(t, drift, "drift reported after %d checks", checks)
		checks++
	}
	close(stop)
	<-done

	assert.Positive(t, checks)
	assert.Positive(t, f.currentStock(t, p.ID))
}

func TestConsistencyAuditor_StartStop(t *testing.T) {
	f := newFixture(t)
	auditor := service.NewConsistencyAuditor(f.engine, 10*time.Millisecond)

	auditor.Start(context.Background())
	auditor.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		auditor.Stop()
		auditor.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("auditor did not stop")
	}
}
