package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
)

var movementCols = []string{
	"id", "product_id", "type", "quantity", "before_stock", "after_stock", "operator_id",
	"reason", "supplier", "department", "batch_no", "unit_price", "total_amount", "created_at",
	"product_code", "product_name", "product_unit", "operator_name",
}

func TestMovementRepository_Append(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	at := time.Now().UTC()
	mockDB.ExpectQuery("INSERT INTO stock_movements").
		WithArgs(productID, "in", int64(60), int64(50), int64(110), "op-1",
			"purchase receipt", "Acme", nil, "B1", "2.5", "150", at).
		WillReturnRows(testutil.MockRows("id").AddRow(41))

	repo := repository.NewMovementRepository(mockDB.DB)
	m := &repository.StockMovement{
		ProductID:   productID,
		Type:        repository.MovementIn,
		Quantity:    60,
		BeforeStock: 50,
		AfterStock:  110,
		OperatorID:  "op-1",
		Reason:      testutil.PtrString("purchase receipt"),
		Supplier:    testutil.PtrString("Acme"),
		BatchNo:     testutil.PtrString("B1"),
		UnitPrice:   decimal.NewNullDecimal(decimal.RequireFromString("2.5")),
		TotalAmount: decimal.NewNullDecimal(decimal.NewFromInt(150)),
		CreatedAt:   at,
	}

	require.NoError(t, repo.Append(context.Background(), m))
	assert.Equal(t, int64(41), m.ID)
	mockDB.ExpectationsWereMet(t)
}

func TestMovementRepository_Append_NegativeStockRejected(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO stock_movements").
		WillReturnError(&pq.Error{Code: "23514", Constraint: "stock_movements_after_stock_check"})

	repo := repository.NewMovementRepository(mockDB.DB)
	err := repo.Append(context.Background(), &repository.StockMovement{ProductID: productID, Type: repository.MovementOut})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestMovementRepository_List(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	at := from.Add(26 * time.Hour)

	mockDB.ExpectQuery("SELECT COUNT(*) FROM stock_movements m WHERE m.type = $1 AND m.product_id = $2 AND m.created_at >= $3 AND m.created_at < $4 AND (m.reason ILIKE $5").
		WithArgs("in", productID, from, to, "%acme%", "%acme%", "%acme%", "%acme%").
		WillReturnRows(testutil.MockRows("count").AddRow(1))
	mockDB.ExpectQuery("ORDER BY m.created_at DESC, m.id DESC LIMIT $9 OFFSET $10").
		WithArgs("in", productID, from, to, "%acme%", "%acme%", "%acme%", "%acme%", 20, 0).
		WillReturnRows(testutil.MockRows(movementCols...).AddRow(
			7, productID, "in", 60, 50, 110, "op-1",
			"purchase receipt", "Acme", nil, "B1", "2.5000", "150.0000", at,
			"P001", "Widget", "pcs", "Li Wei",
		))

	repo := repository.NewMovementRepository(mockDB.DB)
	movements, total, err := repo.List(context.Background(), repository.MovementFilter{
		Type:      repository.MovementIn,
		ProductID: productID,
		From:      &from,
		To:        &to,
		Keyword:   "acme",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, movements, 1)

	m := movements[0]
	assert.Equal(t, int64(110), m.AfterStock)
	assert.Equal(t, "Widget", m.ProductName)
	assert.Equal(t, "Li Wei", m.OperatorName)
	assert.True(t, m.UnitPrice.Valid)
	assert.True(t, m.TotalAmount.Decimal.Equal(decimal.NewFromInt(150)))
	assert.Nil(t, m.Department)
	mockDB.ExpectationsWereMet(t)
}

func TestMovementRepository_List_ProductCodeMatchesNothing(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewMovementRepository(mockDB.DB)
	movements, total, err := repo.List(context.Background(), repository.MovementFilter{ProductID: "P001"})

	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, movements)

	count, err := repo.CountByProduct(context.Background(), "P001")
	require.NoError(t, err)
	assert.Zero(t, count)
	mockDB.ExpectationsWereMet(t)
}

func TestMovementRepository_DailyTotals(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 2)

	mockDB.ExpectQuery("AT TIME ZONE $3").
		WithArgs(from, to, "Asia/Shanghai").
		WillReturnRows(testutil.MockRows("day", "in_count", "out_count", "in_quantity", "out_quantity").
			AddRow("2024-03-01", 2, 1, 70, 5))

	repo := repository.NewMovementRepository(mockDB.DB)
	rows, err := repo.DailyTotals(context.Background(), from, to, loc)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-03-01", rows[0].Day)
	assert.Equal(t, int64(70), rows[0].InQuantity)
	assert.Equal(t, int64(1), rows[0].OutCount)
	mockDB.ExpectationsWereMet(t)
}

func TestMovementRepository_Drift(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT DISTINCT ON (product_id)").
		WillReturnRows(testutil.MockRows("product_id", "code", "current_stock", "ledger_stock", "movement_id").
			AddRow(productID, "P001", 12, 10, 99))

	repo := repository.NewMovementRepository(mockDB.DB)
	drift, err := repo.Drift(context.Background())

	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, int64(12), drift[0].CurrentStock)
	assert.Equal(t, int64(10), drift[0].LedgerStock)
}
