package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/keylock"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/metrics"
)

// ProductStore persists the product registry
type ProductStore interface {
	Create(ctx context.Context, p *repository.Product) error
	Update(ctx context.Context, p *repository.Product) error
	Archive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*repository.Product, error)
	GetForUpdate(ctx context.Context, id string) (*repository.Product, error)
	List(ctx context.Context, f repository.ProductFilter) ([]*repository.Product, int64, error)
	ApplyStock(ctx context.Context, id string, stock int64, at time.Time) error
	Stats(ctx context.Context) (*repository.ProductStats, error)
	CategoryBreakdown(ctx context.Context) ([]*repository.CategoryStock, error)
	TopByStock(ctx context.Context, limit int) ([]*repository.Product, error)
	LowStock(ctx context.Context, limit int) ([]*repository.Product, error)
}

// MovementStore persists the append-only ledger
type MovementStore interface {
	Append(ctx context.Context, m *repository.StockMovement) error
	CountByProduct(ctx context.Context, productID string) (int64, error)
	List(ctx context.Context, f repository.MovementFilter) ([]*repository.StockMovement, int64, error)
	Totals(ctx context.Context, from, to time.Time) (*repository.MovementTotals, error)
	DailyTotals(ctx context.Context, from, to time.Time, loc *time.Location) ([]*repository.DailyTotals, error)
	CategoryTotals(ctx context.Context, from, to time.Time) ([]*repository.CategoryMovement, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]*repository.ProductVolume, error)
	Drift(ctx context.Context) ([]*repository.StockDrift, error)
}

// AlertStore persists alerts
type AlertStore interface {
	CreateIfAbsent(ctx context.Context, alert *repository.Alert) (bool, error)
	GetByID(ctx context.Context, id string) (*repository.Alert, error)
	List(ctx context.Context, f repository.AlertFilter) ([]*repository.Alert, int64, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
	ClearRead(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
	CountUnread(ctx context.Context) (int64, error)
}

// TxRunner runs fn atomically; store calls made with the ctx passed to fn join the transaction
type TxRunner interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher announces committed changes. Implementations must not fail the caller.
type EventPublisher interface {
	StockMoved(ctx context.Context, m *repository.StockMovement, p *repository.Product)
	StockAdjusted(ctx context.Context, m *repository.StockMovement, reason string)
	AlertGenerated(ctx context.Context, alert *repository.Alert)
	ProductChanged(ctx context.Context, eventType string, p *repository.Product, actorID string)
}

// Stores bundles the persistence the engine needs
type Stores struct {
	Products  ProductStore
	Movements MovementStore
	Alerts    AlertStore
	Tx        TxRunner
}

// NewPostgresStores wires the Postgres repositories
func NewPostgresStores(db *database.DB) Stores {
	return Stores{
		Products:  repository.NewProductRepository(db),
		Movements: repository.NewMovementRepository(db),
		Alerts:    repository.NewAlertRepository(db),
		Tx:        db,
	}
}

// NewMemoryStores wires an in-process store
func NewMemoryStores(mem *repository.MemoryStore) Stores {
	return Stores{
		Products:  mem.Products(),
		Movements: mem.Movements(),
		Alerts:    mem.Alerts(),
		Tx:        mem,
	}
}

// Config holds the engine settings
type Config struct {
	LockTimeout      time.Duration
	Location         *time.Location
	LowStockAlert    bool
	HighStockAlert   bool
	DefaultInReason  string
	DefaultOutReason string
	MaxBatchItems    int
}

// DefaultConfig returns the settings used when no configuration file is present
func DefaultConfig() Config {
	return Config{
		LockTimeout:      5 * time.Second,
		Location:         time.UTC,
		LowStockAlert:    true,
		HighStockAlert:   true,
		DefaultInReason:  "purchase receipt",
		DefaultOutReason: "production issue",
		MaxBatchItems:    200,
	}
}

// ConfigFrom builds the engine config from the loaded ledger section
func ConfigFrom(c *config.LedgerConfig) (Config, error) {
	loc, err := c.Location()
	if err != nil {
		return Config{}, fmt.Errorf("ledger timezone: %w", err)
	}
	return Config{
		LockTimeout:      c.LockTimeout,
		Location:         loc,
		LowStockAlert:    c.LowStockAlert,
		HighStockAlert:   c.HighStockAlert,
		DefaultInReason:  c.DefaultInReason,
		DefaultOutReason: c.DefaultOutReason,
		MaxBatchItems:    c.MaxBatchItems,
	}, nil
}

// Engine is the stock ledger: registry, ledger, alerts and read models over one set of stores
type Engine struct {
	Registry *Registry
	Ledger   *Ledger
	Alerts   *AlertGenerator
	Query    *QueryService

	cfg       Config
	stores    Stores
	locks     *keylock.Locker
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

// NewEngine creates an engine. publisher and m may be nil.
func NewEngine(cfg Config, stores Stores, publisher EventPublisher, m *metrics.Metrics, log *logger.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}

	e := &Engine{
		cfg:       cfg,
		stores:    stores,
		locks:     keylock.New(),
		publisher: publisher,
		metrics:   m,
		logger:    log.WithComponent("ledger"),
		now:       func() time.Time { return time.Now().UTC() },
	}

	e.Registry = &Registry{e: e}
	e.Ledger = &Ledger{e: e}
	e.Alerts = newAlertGenerator(e)
	e.Query = &QueryService{e: e}
	return e
}

// Config returns the engine settings
func (e *Engine) Config() Config {
	return e.cfg
}

// SetClock replaces the engine clock
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

type noopPublisher struct{}

func (noopPublisher) StockMoved(context.Context, *repository.StockMovement, *repository.Product) {}
func (noopPublisher) StockAdjusted(context.Context, *repository.StockMovement, string)           {}
func (noopPublisher) AlertGenerated(context.Context, *repository.Alert)                         {}
func (noopPublisher) ProductChanged(context.Context, string, *repository.Product, string)         {}
