package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
)

func TestAlertRepository_CreateIfAbsent(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		now := time.Now().UTC()
		mockDB.ExpectQuery("ON CONFLICT (product_id, type) WHERE is_read = false DO NOTHING").
			WithArgs(testutil.AnyUUID{}, productID, "high_stock", "current stock 110 above maximum 100").
			WillReturnRows(testutil.MockRows("is_read", "created_at").AddRow(false, now))

		repo := repository.NewAlertRepository(mockDB.DB)
		alert := &repository.Alert{ProductID: productID, Type: repository.AlertHighStock, Message: "current stock 110 above maximum 100"}

		created, err := repo.CreateIfAbsent(context.Background(), alert)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, now, alert.CreatedAt)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("unread duplicate", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("INSERT INTO alerts").WillReturnError(sql.ErrNoRows)

		repo := repository.NewAlertRepository(mockDB.DB)
		created, err := repo.CreateIfAbsent(context.Background(), &repository.Alert{ProductID: productID, Type: repository.AlertLowStock})
		require.NoError(t, err)
		assert.False(t, created)
	})
}

func TestAlertRepository_List(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now().UTC()
	mockDB.ExpectQuery("SELECT COUNT(*) FROM alerts a WHERE a.type = $1 AND a.is_read = $2").
		WithArgs("low_stock", false).
		WillReturnRows(testutil.MockRows("count").AddRow(1))
	mockDB.ExpectQuery("ORDER BY a.created_at DESC, a.id LIMIT $3 OFFSET $4").
		WithArgs("low_stock", false, 5, 0).
		WillReturnRows(testutil.MockRows("id", "product_id", "type", "message", "is_read", "created_at", "product_name").
			AddRow("a1", productID, "low_stock", "current stock 5 below minimum 10", false, now, "Widget"))

	repo := repository.NewAlertRepository(mockDB.DB)
	alerts, total, err := repo.List(context.Background(), repository.AlertFilter{
		Type:    repository.AlertLowStock,
		IsRead:  testutil.PtrBool(false),
		PerPage: 5,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Widget", alerts[0].ProductName)
	mockDB.ExpectationsWereMet(t)
}

func TestAlertRepository_List_ProductCodeMatchesNothing(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewAlertRepository(mockDB.DB)
	alerts, total, err := repo.List(context.Background(), repository.AlertFilter{ProductID: "P001"})

	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, alerts)
	mockDB.ExpectationsWereMet(t)
}

func TestAlertRepository_MarkAllRead(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE alerts SET is_read = true WHERE is_read = false").
		WillReturnResult(sqlmock.NewResult(0, 4))

	repo := repository.NewAlertRepository(mockDB.DB)
	n, err := repo.MarkAllRead(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	mockDB.ExpectationsWereMet(t)
}

func TestAlertRepository_MarkRead_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE alerts SET is_read = true WHERE id = $1").
		WithArgs(productID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := repository.NewAlertRepository(mockDB.DB)
	err := repo.MarkRead(context.Background(), productID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
