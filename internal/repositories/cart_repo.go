package repositories

import (
	"context"

	"storefront/internal/models"
)

// CartRepository defines the interface for cart data access.
//
// Save is a compare-and-swap on Cart.Version: expectedVersion 0 creates the
// cart, anything else replaces the stored cart only if its version still
// matches. On success cart.Version is advanced; a mismatch yields
// models.ErrCartConflict.
type CartRepository interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	Save(ctx context.Context, cart *models.Cart, expectedVersion int64) error
}
