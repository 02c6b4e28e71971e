package repositories

import (
	"context"

	"storefront/internal/models"
)

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	List(ctx context.Context, filter models.ProductFilter, sort models.SortSpec, offset, limit int) ([]models.Product, error)
	Count(ctx context.Context, filter models.ProductFilter) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, product *models.Product) error
	// DecrementStock atomically subtracts qty from the product's stock only
	// if at least qty is available, and returns the product as it looks
	// after the decrement. A failed guard yields *models.InsufficientStockError.
	DecrementStock(ctx context.Context, id int64, qty int) (*models.Product, error)
}
