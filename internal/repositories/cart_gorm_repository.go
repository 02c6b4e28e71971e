package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"gorm.io/gorm"
)

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{db: db}
}

// Get retrieves the cart owned by userID.
func (r *GORMCartRepository) Get(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).First(&cart, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFound("cart", userID)
		}
		return nil, fmt.Errorf("failed to get cart for user %s: %w", userID, err)
	}
	return &cart, nil
}

// Save inserts or version-checked updates the cart.
func (r *GORMCartRepository) Save(ctx context.Context, cart *models.Cart, expectedVersion int64) error {
	next := cart.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now()
	if next.Lines == nil {
		next.Lines = []models.CartLine{}
	}

	if expectedVersion == 0 {
		if err := r.db.WithContext(ctx).Create(next).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return models.ErrCartConflict
			}
			return fmt.Errorf("failed to create cart for user %s: %w", cart.UserID, err)
		}
	} else {
		res := r.db.WithContext(ctx).Model(next).
			Where("version = ?", expectedVersion).
			Select("lines", "version", "updated_at").
			Updates(next)
		if res.Error != nil {
			return fmt.Errorf("failed to update cart for user %s: %w", cart.UserID, res.Error)
		}
		if res.RowsAffected == 0 {
			return models.ErrCartConflict
		}
	}

	cart.Version = next.Version
	cart.UpdatedAt = next.UpdatedAt
	return nil
}
