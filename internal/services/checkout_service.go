package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// EventPublisher announces committed orders to the outside world.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error
}

// IdempotencyStore remembers which order a client-supplied key produced.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// CheckoutService turns a cart into an order in one atomic scope.
type CheckoutService struct {
	store     repositories.Store
	publisher EventPublisher
	idem      IdempotencyStore
	timeout   time.Duration
	logger    *slog.Logger
}

// NewCheckoutService creates a new CheckoutService. publisher and idem may be
// nil.
func NewCheckoutService(store repositories.Store, publisher EventPublisher, idem IdempotencyStore, timeout time.Duration, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		store:     store,
		publisher: publisher,
		idem:      idem,
		timeout:   timeout,
		logger:    logger,
	}
}

// Checkout places an order for everything in the user's cart. Either every
// line is decremented, the order recorded and the cart emptied, or nothing
// changes. The work is detached from ctx cancellation and bounded by the
// configured timeout.
func (s *CheckoutService) Checkout(ctx context.Context, userID string) (*models.Receipt, error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	var order *models.Order
	err := s.store.Atomic(runCtx, func(ctx context.Context, tx repositories.Store) error {
		var err error
		order, err = placeOrder(ctx, tx, userID)
		return err
	})
	metrics.CheckoutDuration.Observe(time.Since(start).Seconds())
	metrics.CheckoutTotal.WithLabelValues(checkoutResult(err)).Inc()
	if err != nil {
		s.logger.Info("checkout rejected", "user_id", userID, "error", err)
		return nil, err
	}

	s.logger.Info("order placed", "order_id", order.ID, "user_id", userID, "total", order.Total.String(), "lines", len(order.Lines))
	s.publish(runCtx, order)
	return order.Receipt(), nil
}

// CheckoutOnce is Checkout guarded by a client idempotency key. A replayed
// key returns the receipt of the order it produced the first time; the bool
// reports whether that happened.
func (s *CheckoutService) CheckoutOnce(ctx context.Context, userID, key string) (*models.Receipt, bool, error) {
	if s.idem == nil || key == "" {
		receipt, err := s.Checkout(ctx, userID)
		return receipt, false, err
	}

	if receipt, ok, err := s.replay(ctx, userID, key); err != nil || ok {
		return receipt, ok, err
	}
	locked, err := s.idem.TryLock(ctx, userID, key)
	if err != nil {
		return nil, false, err
	}
	if !locked {
		if receipt, ok, err := s.replay(ctx, userID, key); err != nil || ok {
			return receipt, ok, err
		}
		return nil, false, models.ErrDuplicateRequest
	}

	receipt, err := s.Checkout(ctx, userID)
	if err != nil {
		if rerr := s.idem.Release(context.WithoutCancel(ctx), userID, key); rerr != nil {
			s.logger.Warn("failed to release idempotency key", "user_id", userID, "error", rerr)
		}
		return nil, false, err
	}
	if err := s.idem.Remember(context.WithoutCancel(ctx), userID, key, receipt.OrderID); err != nil {
		s.logger.Warn("failed to remember idempotency key", "user_id", userID, "order_id", receipt.OrderID, "error", err)
	}
	return receipt, false, nil
}

func (s *CheckoutService) replay(ctx context.Context, userID, key string) (*models.Receipt, bool, error) {
	orderID, ok, err := s.idem.Recall(ctx, userID, key)
	if err != nil || !ok {
		return nil, false, err
	}
	order, err := NewOrderService(s.store.Orders()).GetForUser(ctx, userID, orderID)
	if err != nil {
		return nil, false, err
	}
	return order.Receipt(), true, nil
}

func (s *CheckoutService) publish(ctx context.Context, order *models.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderPlaced(ctx, models.NewOrderPlacedEvent(order)); err != nil {
		s.logger.Warn("failed to publish order placed event", "order_id", order.ID, "error", err)
	}
}

// placeOrder runs inside the atomic scope. All lines are validated before
// the first decrement.
func placeOrder(ctx context.Context, tx repositories.Store, userID string) (*models.Order, error) {
	cart, err := tx.Carts().Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && cart.Empty()) {
		return nil, models.ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}

	for _, line := range cart.Lines {
		product, err := tx.Products().GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if product.Stock < line.Quantity {
			return nil, &models.InsufficientStockError{
				ProductID: product.ID,
				Title:     product.Title,
				Available: product.Stock,
				Requested: line.Quantity,
			}
		}
	}

	lines := make([]models.OrderLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		product, err := tx.Products().DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		lines = append(lines, models.OrderLine{
			ProductID: product.ID,
			Title:     product.Title,
			Price:     product.Price,
			Quantity:  line.Quantity,
		})
	}

	order := &models.Order{
		UserID: userID,
		Lines:  lines,
		Total:  models.OrderTotal(lines),
		Status: models.OrderStatusPending,
	}
	if _, err := NewOrderService(tx.Orders()).Record(ctx, order); err != nil {
		return nil, err
	}

	emptied := cart.Clone()
	emptied.Lines = []models.CartLine{}
	if err := tx.Carts().Save(ctx, emptied, cart.Version); err != nil {
		return nil, fmt.Errorf("failed to empty cart: %w", err)
	}
	return order, nil
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, models.ErrEmptyCart):
		return metrics.ResultEmptyCart
	case errors.Is(err, models.ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, models.ErrInsufficientStock):
		return metrics.ResultInsufficientStock
	case errors.Is(err, models.ErrCartConflict):
		return metrics.ResultConflict
	default:
		return metrics.ResultError
	}
}
