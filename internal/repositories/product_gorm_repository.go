package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *GORMProductRepository) filtered(ctx context.Context, filter models.ProductFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(filter.Search)) + "%"
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	return q
}

// List retrieves one page of products matching filter.
func (r *GORMProductRepository) List(ctx context.Context, filter models.ProductFilter, sort models.SortSpec, offset, limit int) ([]models.Product, error) {
	products := []models.Product{}
	err := r.filtered(ctx, filter).
		Order(clause.OrderByColumn{Column: clause.Column{Name: sort.Field}, Desc: sort.Descending}).
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Count returns the number of products matching filter.
func (r *GORMProductRepository) Count(ctx context.Context, filter models.ProductFilter) (int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return total, nil
}

// GetByID retrieves a single product by its ID from the database.
func (r *GORMProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFound("product", id)
		}
		return nil, fmt.Errorf("failed to get product by ID %d: %w", id, err)
	}
	return &product, nil
}

// Categories returns the distinct, sorted product categories.
func (r *GORMProductRepository) Categories(ctx context.Context) ([]string, error) {
	categories := []string{}
	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("category <> ''").
		Distinct().
		Order("category").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// Create creates a new product in the database.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// DecrementStock runs the guarded UPDATE ... WHERE stock >= qty.
func (r *GORMProductRepository) DecrementStock(ctx context.Context, id int64, qty int) (*models.Product, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to decrement stock for product %d: %w", id, res.Error)
	}

	product, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, &models.InsufficientStockError{ProductID: id, Title: product.Title, Available: product.Stock, Requested: qty}
	}
	return product, nil
}
