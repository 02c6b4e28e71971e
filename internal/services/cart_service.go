package services

import (
	"context"
	"errors"
	"log/slog"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// CartService owns the per-user line lists.
type CartService struct {
	store  repositories.Store
	logger *slog.Logger
}

// NewCartService creates a new CartService.
func NewCartService(store repositories.Store, logger *slog.Logger) *CartService {
	return &CartService{store: store, logger: logger}
}

// AddLine adds quantity units of productID to the user's cart, creating the
// cart on first use and merging into an existing line. Stock is checked here
// but not reserved; checkout checks it again.
func (s *CartService) AddLine(ctx context.Context, userID string, productID int64, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}

	product, err := s.store.Products().GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock < quantity {
		return nil, &models.InsufficientStockError{ProductID: productID, Available: product.Stock, Requested: quantity}
	}

	cart, err := s.store.Carts().Get(ctx, userID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		cart = &models.Cart{UserID: userID}
	case err != nil:
		return nil, err
	}
	expected := cart.Version

	if i := cart.Line(productID); i >= 0 {
		merged := cart.Lines[i].Quantity + quantity
		if merged > product.Stock {
			return nil, &models.InsufficientStockError{ProductID: productID, Available: product.Stock, Requested: merged}
		}
		cart.Lines[i].Quantity = merged
	} else {
		cart.Lines = append(cart.Lines, models.CartLine{ProductID: productID, Quantity: quantity})
	}

	if err := s.store.Carts().Save(ctx, cart, expected); err != nil {
		if errors.Is(err, models.ErrCartConflict) {
			s.logger.Warn("cart write lost a race", "user_id", userID, "product_id", productID)
		}
		return nil, err
	}
	return cart, nil
}

// GetCart returns the user's cart, or an empty one if none exists yet.
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.store.Carts().Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.Cart{UserID: userID, Lines: []models.CartLine{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if cart.Lines == nil {
		cart.Lines = []models.CartLine{}
	}
	return cart, nil
}

// RemoveLine drops the line for productID from the user's cart.
func (s *CartService) RemoveLine(ctx context.Context, userID string, productID int64) (*models.Cart, error) {
	cart, err := s.store.Carts().Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NewNotFound("cart line", productID)
	}
	if err != nil {
		return nil, err
	}
	i := cart.Line(productID)
	if i < 0 {
		return nil, models.NewNotFound("cart line", productID)
	}

	expected := cart.Version
	cart.Lines = append(cart.Lines[:i:i], cart.Lines[i+1:]...)
	if err := s.store.Carts().Save(ctx, cart, expected); err != nil {
		return nil, err
	}
	return cart, nil
}
