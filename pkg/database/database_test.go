package database_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_Commit(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	mockDB.DB.SetLockTimeout(2 * time.Second)

	mockDB.ExpectBegin()
	mockDB.ExpectLockTimeout(2 * time.Second)
	mockDB.ExpectExec("UPDATE products SET current_stock = $1").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	err := mockDB.DB.Transaction(context.Background(), func(ctx context.Context) error {
		_, err := mockDB.DB.Q(ctx).ExecContext(ctx, "UPDATE products SET current_stock = $1", 5)
		return err
	})

	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestTransaction_RollbackOnError(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	boom := stderrors.New("boom")
	mockDB.ExpectBegin()
	mockDB.ExpectRollback()

	err := mockDB.DB.Transaction(context.Background(), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	mockDB.ExpectationsWereMet(t)
}

func TestTransaction_NestedJoinsOuter(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectCommit()

	calls := 0
	err := mockDB.DB.Transaction(context.Background(), func(ctx context.Context) error {
		return mockDB.DB.Transaction(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	mockDB.ExpectationsWereMet(t)
}

func TestHealth(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	status := mockDB.DB.Health(context.Background())
	assert.Equal(t, "up", status["status"])

	mockDB.Mock.ExpectClose()
	require.NoError(t, mockDB.DB.Close())
	status = mockDB.DB.Health(context.Background())
	assert.Equal(t, "down", status["status"])
	assert.NotEmpty(t, status["error"])
}

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		detail string
	}{
		{
			name: "duplicate product code",
			err:  &pq.Error{Code: "23505", Constraint: "products_code_key"},
			code: "CONFLICT",
		},
		{
			name:   "negative stock check",
			err:    &pq.Error{Code: "23514", Constraint: "products_current_stock_check"},
			code:   "VALIDATION_ERROR",
			detail: "current_stock",
		},
		{
			name:   "threshold order check",
			err:    &pq.Error{Code: "23514", Constraint: "products_threshold_check"},
			code:   "VALIDATION_ERROR",
			detail: "max_stock",
		},
		{
			name: "movement references product",
			err:  &pq.Error{Code: "23503", Constraint: "stock_movements_product_id_fkey"},
			code: "CONFLICT",
		},
		{
			name: "lock timeout",
			err:  &pq.Error{Code: "55P03"},
			code: "BUSY",
		},
		{
			name: "deadlock",
			err:  &pq.Error{Code: "40P01"},
			code: "BUSY",
		},
		{
			name:   "not null",
			err:    &pq.Error{Code: "23502", Column: "name"},
			code:   "VALIDATION_ERROR",
			detail: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := database.MapPQError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.code, appErr.Code)
			if tt.detail != "" {
				assert.Contains(t, appErr.Details, tt.detail)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, database.Translate(nil))

	plain := stderrors.New("connection reset")
	assert.Same(t, plain, database.Translate(plain))

	unknown := &pq.Error{Code: "42P01"}
	assert.Equal(t, error(unknown), database.Translate(unknown))

	err := database.Translate(&pq.Error{Code: "55P03"})
	assert.True(t, errors.Is(err, errors.ErrBusy))
}
