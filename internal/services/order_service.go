package services

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/google/uuid"
)

// OrderService is the append-only order ledger.
type OrderService struct {
	orderRepo repositories.OrderRepository
}

// NewOrderService creates a new OrderService.
func NewOrderService(orderRepo repositories.OrderRepository) *OrderService {
	return &OrderService{orderRepo: orderRepo}
}

// Record stores a new order and returns its id.
func (s *OrderService) Record(ctx context.Context, order *models.Order) (string, error) {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return "", fmt.Errorf("failed to record order: %w", err)
	}
	return order.ID, nil
}

// ListByUser returns the user's orders in the order they were placed.
func (s *OrderService) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orderRepo.ListByUser(ctx, userID)
}

// GetForUser returns one order, hiding orders that belong to someone else.
func (s *OrderService) GetForUser(ctx context.Context, userID, orderID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, models.NewNotFound("order", orderID)
	}
	return order, nil
}
