package service_test

import (
	"context"
	"testing"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreadAlerts(t *testing.T, f *fixture, productID string) []*repository.Alert {
	t.Helper()
	alerts, _, err := f.engine.Alerts.List(context.Background(), service.AlertQuery{
		ProductID: productID,
		IsRead:    testutil.PtrBool(false),
	})
	require.NoError(t, err)
	return alerts
}

func TestAlerts_DeduplicateWhileUnread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, 10, 100, 12)

	f.stockOut(t, p.ID, 3)
	f.stockOut(t, p.ID, 1)
	f.stockOut(t, p.ID, 1)

	alerts := unreadAlerts(t, f, p.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, repository.AlertLowStock, alerts[0].Type)
	assert.Equal(t, "current stock 9 below minimum 10", alerts[0].Message)
	assert.Equal(t, p.Name, alerts[0].ProductName)

	// once read, the next breach raises a fresh alert
	require.NoError(t, f.engine.Alerts.MarkRead(ctx, alerts[0].ID))
	f.stockOut(t, p.ID, 1)

	alerts = unreadAlerts(t, f, p.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, "current stock 6 below minimum 10", alerts[0].Message)
}

func TestAlerts_NotResolvedWhenBackInBounds(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, 10, 100, 12)

	f.stockOut(t, p.ID, 5)
	f.stockIn(t, p.ID, 50)

	alerts := unreadAlerts(t, f, p.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, repository.AlertLowStock, alerts[0].Type)
}

func TestAlerts_InBoundsRaisesNothing(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, 10, 100, 50)

	f.stockIn(t, p.ID, 50)
	f.stockOut(t, p.ID, 90)

	assert.Empty(t, unreadAlerts(t, f, p.ID))
}

func TestAlerts_RulesCanBeDisabled(t *testing.T) {
	f := newFixture(t, func(c *service.Config) {
		c.HighStockAlert = false
	})
	p := f.product(t, 10, 100, 50)

	f.stockIn(t, p.ID, 100)
	assert.Empty(t, unreadAlerts(t, f, p.ID))

	f.stockOut(t, p.ID, 145)
	alerts := unreadAlerts(t, f, p.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, repository.AlertLowStock, alerts[0].Type)
}

func TestAlerts_MarkAllReadOnlyAffectsExisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.product(t, 10, 100, 12)
	b := f.product(t, 10, 100, 12)
	c := f.product(t, 10, 100, 50)

	f.stockOut(t, a.ID, 5)
	f.stockIn(t, c.ID, 60)

	n, err := f.engine.Alerts.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	f.stockOut(t, b.ID, 5)

	all, total, err := f.engine.Alerts.List(ctx, service.AlertQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	for _, alert := range all {
		assert.Equal(t, alert.ProductID != b.ID, alert.IsRead, alert.Message)
	}

	unread, err := f.engine.Alerts.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestAlerts_ClearReadAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.product(t, 10, 100, 12)
	b := f.product(t, 10, 100, 12)

	f.stockOut(t, a.ID, 5)
	f.stockOut(t, b.ID, 5)

	first := unreadAlerts(t, f, a.ID)[0]
	require.NoError(t, f.engine.Alerts.MarkRead(ctx, first.ID))

	n, err := f.engine.Alerts.ClearRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.engine.Alerts.Get(ctx, first.ID)
	requireAppError(t, err, "NOT_FOUND")

	second := unreadAlerts(t, f, b.ID)[0]
	require.NoError(t, f.engine.Alerts.Delete(ctx, second.ID))
	requireAppError(t, f.engine.Alerts.Delete(ctx, second.ID), "NOT_FOUND")
	requireAppError(t, f.engine.Alerts.MarkRead(ctx, "missing"), "NOT_FOUND")
}

func TestAlerts_ListFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, 10, 100, 50)

	f.stockIn(t, p.ID, 60)
	f.stockOut(t, p.ID, 105)

	high, total, err := f.engine.Alerts.List(ctx, service.AlertQuery{Type: "high_stock"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, repository.AlertHighStock, high[0].Type)

	all, _, err := f.engine.Alerts.List(ctx, service.AlertQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, repository.AlertLowStock, all[0].Type, "newest first")

	expired, total, err := f.engine.Alerts.List(ctx, service.AlertQuery{Type: "expired"})
	require.NoError(t, err)
	assert.Empty(t, expired)
	assert.Zero(t, total)

	_, _, err = f.engine.Alerts.List(ctx, service.AlertQuery{Type: "critical"})
	appErr := requireAppError(t, err, "VALIDATION_ERROR")
	assert.Contains(t, appErr.Details, "type")
}
