package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/cache"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCheckout(store repositories.Store, publisher services.EventPublisher, idem services.IdempotencyStore) *services.CheckoutService {
	return services.NewCheckoutService(store, publisher, idem, 5*time.Second, logging.Discard())
}

func TestCheckoutService_PlacesOrder(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t,
		newProduct(1, "Mug", "8.50", 10),
		newProduct(2, "Plate", "4.25", 4),
		newProduct(3, "Bowl", "3.00", 1),
	)
	carts := services.NewCartService(store, logging.Discard())
	publisher := new(MockEventPublisher)
	checkout := newCheckout(store, publisher, nil)

	for _, l := range []models.CartLine{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 4}, {ProductID: 3, Quantity: 1}} {
		_, err := carts.AddLine(ctx, "u1", l.ProductID, l.Quantity)
		require.NoError(t, err)
	}

	publisher.On("PublishOrderPlaced", mock.Anything, mock.MatchedBy(func(e models.OrderPlacedEvent) bool {
		return e.UserID == "u1" && e.Status == models.OrderStatusPending && len(e.Items) == 3
	})).Return(nil).Once()

	receipt, err := checkout.Checkout(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.OrderID)
	assert.True(t, decimal.RequireFromString("37.00").Equal(receipt.Total), "got %s", receipt.Total)
	require.Len(t, receipt.Items, 3)
	assert.Equal(t, "Plate", receipt.Items[1].Title)

	assert.Equal(t, 8, stockOf(t, store, 1))
	assert.Equal(t, 0, stockOf(t, store, 2))
	assert.Equal(t, 0, stockOf(t, store, 3))

	cart, err := carts.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	orders, err := services.NewOrderService(store.Orders()).ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, receipt.OrderID, orders[0].ID)
	assert.True(t, receipt.Total.Equal(orders[0].Total))
	publisher.AssertExpectations(t)

	_, err = checkout.Checkout(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrEmptyCart)
}

func TestCheckoutService_InsufficientStockChangesNothing(t *testing.T) {
	for name, open := range seededBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t, newProduct(1, "Mug", "8.00", 10), newProduct(2, "Plate", "4.00", 5))
			carts := services.NewCartService(store, logging.Discard())
			checkout := newCheckout(store, nil, nil)

			_, err := carts.AddLine(ctx, "u1", 1, 2)
			require.NoError(t, err)
			_, err = carts.AddLine(ctx, "u1", 2, 5)
			require.NoError(t, err)

			// Someone else buys a plate between add-time and commit-time
			_, err = carts.AddLine(ctx, "u2", 2, 1)
			require.NoError(t, err)
			_, err = checkout.Checkout(ctx, "u2")
			require.NoError(t, err)

			before, err := carts.GetCart(ctx, "u1")
			require.NoError(t, err)

			_, err = checkout.Checkout(ctx, "u1")
			var stockErr *models.InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
			assert.Equal(t, int64(2), stockErr.ProductID)
			assert.Equal(t, 4, stockErr.Available)
			assert.Equal(t, "only 4 left for Plate", err.Error())

			assert.Equal(t, 10, stockOf(t, store, 1))
			assert.Equal(t, 4, stockOf(t, store, 2))
			after, err := carts.GetCart(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, before.Lines, after.Lines)
			assert.Equal(t, before.Version, after.Version)

			orders, err := store.Orders().ListByUser(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestCheckoutService_LastUnitRace(t *testing.T) {
	for name, open := range seededBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t, newProduct(1, "Lamp", "30.00", 1))
			carts := services.NewCartService(store, logging.Discard())
			checkout := newCheckout(store, nil, nil)

			users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
			for _, u := range users {
				_, err := carts.AddLine(ctx, u, 1, 1)
				require.NoError(t, err)
			}

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				failures  int
			)
			for _, u := range users {
				wg.Add(1)
				go func(userID string) {
					defer wg.Done()
					_, err := checkout.Checkout(ctx, userID)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, models.ErrInsufficientStock):
						failures++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(u)
			}
			wg.Wait()

			assert.Equal(t, 1, successes)
			assert.Equal(t, len(users)-1, failures)
			assert.Equal(t, 0, stockOf(t, store, 1))

			placed := 0
			for _, u := range users {
				orders, err := store.Orders().ListByUser(ctx, u)
				require.NoError(t, err)
				placed += len(orders)
			}
			assert.Equal(t, 1, placed)
		})
	}
}

func TestCheckoutService_CartChangedDuringCheckout(t *testing.T) {
	for name, open := range seededBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t, newProduct(1, "Mug", "8.00", 10), newProduct(2, "Plate", "4.00", 5))
			carts := services.NewCartService(store, logging.Discard())

			_, err := carts.AddLine(ctx, "u1", 1, 3)
			require.NoError(t, err)
			_, err = carts.AddLine(ctx, "u1", 2, 1)
			require.NoError(t, err)

			_, err = newCheckout(staleCartStore{store}, nil, nil).Checkout(ctx, "u1")
			assert.ErrorIs(t, err, models.ErrCartConflict)

			assert.Equal(t, 10, stockOf(t, store, 1))
			assert.Equal(t, 5, stockOf(t, store, 2))
			orders, err := store.Orders().ListByUser(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, orders)
			cart, err := carts.GetCart(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, []models.CartLine{{ProductID: 1, Quantity: 3}, {ProductID: 2, Quantity: 1}}, cart.Lines)
			assert.Equal(t, int64(2), cart.Version)
		})
	}
}

func TestCheckoutService_MissingProduct(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, newProduct(1, "Mug", "8.00", 10))
	require.NoError(t, store.Carts().Save(ctx, &models.Cart{
		UserID: "u1",
		Lines:  []models.CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 77, Quantity: 1}},
	}, 0))

	_, err := newCheckout(store, nil, nil).Checkout(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Contains(t, err.Error(), "77")
	assert.Equal(t, 10, stockOf(t, store, 1))
}

func TestCheckoutService_PublishFailureDoesNotFailCheckout(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, newProduct(1, "Mug", "8.00", 10))
	_, err := services.NewCartService(store, logging.Discard()).AddLine(ctx, "u1", 1, 1)
	require.NoError(t, err)

	publisher := new(MockEventPublisher)
	publisher.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	receipt, err := newCheckout(store, publisher, nil).Checkout(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.OrderID)
	publisher.AssertExpectations(t)
}

func TestCheckoutService_SurvivesCallerCancellation(t *testing.T) {
	store := seededStore(t, newProduct(1, "Mug", "8.00", 10))
	_, err := services.NewCartService(store, logging.Discard()).AddLine(context.Background(), "u1", 1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newCheckout(store, nil, nil).Checkout(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 9, stockOf(t, store, 1))
}

func TestCheckoutService_CheckoutOnce(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, newProduct(1, "Mug", "8.00", 10))
	carts := services.NewCartService(store, logging.Discard())
	idem := cache.NewMemoryIdempotencyStore(time.Hour)
	checkout := newCheckout(store, nil, idem)

	// A failed attempt releases the key
	_, replayed, err := checkout.CheckoutOnce(ctx, "u1", "key-1")
	assert.ErrorIs(t, err, models.ErrEmptyCart)
	assert.False(t, replayed)

	_, err = carts.AddLine(ctx, "u1", 1, 2)
	require.NoError(t, err)

	first, replayed, err := checkout.CheckoutOnce(ctx, "u1", "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := checkout.CheckoutOnce(ctx, "u1", "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 8, stockOf(t, store, 1))

	// A key that is locked but has no result yet is a duplicate in flight
	locked, err := idem.TryLock(ctx, "u1", "key-2")
	require.NoError(t, err)
	require.True(t, locked)
	_, _, err = checkout.CheckoutOnce(ctx, "u1", "key-2")
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)
}
