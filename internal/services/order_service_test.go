package services_test

import (
	"context"
	"testing"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderService(t *testing.T) {
	ctx := context.Background()
	ledger := services.NewOrderService(repositories.NewMemoryStore().Orders())

	lines := []models.OrderLine{{ProductID: 1, Title: "Mug", Price: decimal.RequireFromString("8.00"), Quantity: 2}}
	firstID, err := ledger.Record(ctx, &models.Order{UserID: "u1", Lines: lines, Total: models.OrderTotal(lines)})
	require.NoError(t, err)
	assert.NotEmpty(t, firstID)
	secondID, err := ledger.Record(ctx, &models.Order{UserID: "u1", Lines: lines, Total: models.OrderTotal(lines)})
	require.NoError(t, err)
	_, err = ledger.Record(ctx, &models.Order{UserID: "u2", Lines: lines, Total: models.OrderTotal(lines)})
	require.NoError(t, err)

	orders, err := ledger.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, firstID, orders[0].ID)
	assert.Equal(t, secondID, orders[1].ID)
	assert.Equal(t, models.OrderStatusPending, orders[0].Status)

	order, err := ledger.GetForUser(ctx, "u1", firstID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("16").Equal(order.Total))

	_, err = ledger.GetForUser(ctx, "u2", firstID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = ledger.GetForUser(ctx, "u1", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
