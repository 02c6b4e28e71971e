package repositories

import (
	"context"

	"storefront/internal/models"
)

// OrderRepository defines the interface for order data access. Orders are
// append-only; there is no update or delete.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
}
