package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/events"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/metrics"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
	"github.com/stretchr/testify/require"
)

var operator = testutil.OperatorID(1)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine   *service.Engine
	mem      *repository.MemoryStore
	events   *testutil.MockPublisher
	clock    *testClock
	fixtures *testutil.FixtureFactory
}

func newFixture(t *testing.T, opts ...func(*service.Config)) *fixture {
	return newFixtureWithStores(t, nil, opts...)
}

// newFixtureWithStores lets a test wrap the memory stores before the engine sees them
func newFixtureWithStores(t *testing.T, wrap func(service.Stores) service.Stores, opts ...func(*service.Config)) *fixture {
	t.Helper()

	cfg := service.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := &testClock{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	mem := repository.NewMemoryStore()
	mem.SetClock(clock.Now)

	stores := service.NewMemoryStores(mem)
	if wrap != nil {
		stores = wrap(stores)
	}

	log := testutil.NewTestLogger(t)
	mock := testutil.NewMockPublisher()
	engine := service.NewEngine(
		cfg,
		stores,
		events.NewInventoryEventPublisher(mock, log),
		metrics.New(metrics.DefaultConfig("test")),
		log,
	)
	engine.SetClock(clock.Now)

	return &fixture{
		engine:   engine,
		mem:      mem,
		events:   mock,
		clock:    clock,
		fixtures: testutil.NewFixtureFactory(),
	}
}

func (f *fixture) product(t *testing.T, minStock, maxStock, stock int64) *repository.Product {
	t.Helper()
	code := f.fixtures.Code("P")
	return f.productWithCode(t, code, "consumables", minStock, maxStock, stock)
}

func (f *fixture) productWithCode(t *testing.T, code, category string, minStock, maxStock, stock int64) *repository.Product {
	t.Helper()
	p, err := f.engine.Registry.Create(context.Background(), operator, service.CreateProductRequest{
		ProductFields: service.ProductFields{
			Code:     code,
			Name:     f.fixtures.Name(code),
			Category: category,
			Unit:     "pcs",
			MinStock: minStock,
			MaxStock: maxStock,
		},
		CurrentStock: stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stockIn(t *testing.T, productID string, qty int64) *repository.StockMovement {
	t.Helper()
	m, err := f.engine.Ledger.RecordStockIn(context.Background(), operator, service.StockInRequest{
		ProductID: productID,
		Quantity:  qty,
		Supplier:  "Acme",
		BatchNo:   "B1",
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) stockOut(t *testing.T, productID string, qty int64) *repository.StockMovement {
	t.Helper()
	m, err := f.engine.Ledger.RecordStockOut(context.Background(), operator, service.StockOutRequest{
		ProductID:  productID,
		Quantity:   qty,
		Department: "QA",
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) currentStock(t *testing.T, productID string) int64 {
	t.Helper()
	p, err := f.engine.Registry.Get(context.Background(), productID)
	require.NoError(t, err)
	return p.CurrentStock
}

func (f *fixture) allMovements(t *testing.T) []*repository.StockMovement {
	t.Helper()
	movements, _, err := f.engine.Ledger.Query(context.Background(), service.MovementQuery{PerPage: 100})
	require.NoError(t, err)
	return movements
}

// requireAppError asserts err is an AppError with the given code and returns it
func requireAppError(t *testing.T, err error, code string) *errors.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, appErr.Message)
	return appErr
}

// blockingTx parks the first transaction until release is closed
type blockingTx struct {
	inner   service.TxRunner
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.entered)
		<-b.release
	}
	return b.inner.Transaction(ctx, fn)
}

// failingAlerts fails every alert insert
type failingAlerts struct {
	service.AlertStore
}

func (failingAlerts) CreateIfAbsent(context.Context, *repository.Alert) (bool, error) {
	return false, errors.Internal("alert store down")
}
