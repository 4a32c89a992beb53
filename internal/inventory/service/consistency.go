package service

import (
	"context"
	"sync"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// ConsistencyAuditor periodically compares every product's current stock with
// the after_stock of its latest movement. It only reports; it never rewrites
// the registry or the ledger.
type ConsistencyAuditor struct {
	e        *Engine
	interval time.Duration
	logger   *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsistencyAuditor creates an auditor that runs every interval
func NewConsistencyAuditor(e *Engine, interval time.Duration) *ConsistencyAuditor {
	return &ConsistencyAuditor{
		e:        e,
		interval: interval,
		logger:   e.logger.WithComponent("consistency"),
	}
}

// Check runs one audit and returns the drifting products
func (a *ConsistencyAuditor) Check(ctx context.Context) ([]*repository.StockDrift, error) {
	start := time.Now()

	drift, err := a.e.stores.Movements.Drift(ctx)
	if err != nil {
		return nil, err
	}
	a.e.metrics.SetStockDrift(len(drift))

	for _, d := range drift {
		a.logger.Error().
			Str("product_id", d.ProductID).
			Str("code", d.Code).
			Int64("current_stock", d.CurrentStock).
			Int64("ledger_stock", d.LedgerStock).
			Int64("movement_id", d.MovementID).
			Msg("stock level disagrees with ledger")
	}

	a.logger.Debug().
		Dur("duration", time.Since(start)).
		Int("drift_count", len(drift)).
		Msg("consistency check completed")
	return drift, nil
}

// Start runs Check immediately and then on every tick until Stop or ctx is done
func (a *ConsistencyAuditor) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		a.logger.Info().Dur("interval", a.interval).Msg("consistency auditor started")

		a.run(ctx)

		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				a.logger.Info().Msg("consistency auditor stopped")
				return
			case <-ticker.C:
				a.run(ctx)
			}
		}
	}(a.done)
}

// Stop halts the auditor and waits for the running check to finish
func (a *ConsistencyAuditor) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *ConsistencyAuditor) run(ctx context.Context) {
	if _, err := a.Check(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error().Err(err).Msg("consistency check failed")
	}
}
