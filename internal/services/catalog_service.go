package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// CatalogService handles read-only catalog queries.
type CatalogService struct {
	repo repositories.ProductRepository
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(repo repositories.ProductRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

// ParseSort validates a sort key such as "price" or "-rating". An empty key
// sorts by id ascending and a bare "-" by id descending.
func ParseSort(raw string) (models.SortSpec, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return models.SortSpec{Field: "id"}, nil
	}
	spec := models.SortSpec{Field: key}
	if strings.HasPrefix(key, "-") {
		spec = models.SortSpec{Field: strings.TrimSpace(key[1:]), Descending: true}
		if spec.Field == "" {
			spec.Field = "id"
		}
	}
	if !slices.Contains(models.ProductSortFields, spec.Field) {
		return models.SortSpec{}, &models.InvalidSortError{Field: spec.Field, Allowed: models.ProductSortFields}
	}
	return spec, nil
}

// List returns one page of products matching q.
func (s *CatalogService) List(ctx context.Context, q models.ProductQuery) (*models.ProductPage, error) {
	if q.Page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", models.ErrInvalidPagination)
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", models.ErrInvalidPagination, MaxLimit)
	}
	spec, err := ParseSort(q.Sort)
	if err != nil {
		return nil, err
	}

	filter := models.ProductFilter{Category: q.Category, Search: strings.TrimSpace(q.Search)}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := &models.ProductPage{
		Total:    total,
		Page:     q.Page,
		Limit:    q.Limit,
		Pages:    max(int((total+int64(q.Limit)-1)/int64(q.Limit)), 1),
		Products: []models.Product{},
	}
	if strings.TrimSpace(q.Sort) != "" {
		page.Sort = spec.String()
	}
	if q.Page > page.Pages {
		return page, nil
	}

	products, err := s.repo.List(ctx, filter, spec, (q.Page-1)*q.Limit, q.Limit)
	if err != nil {
		return nil, err
	}
	page.Products = products
	return page, nil
}

// Search is List with a mandatory free-text term.
func (s *CatalogService) Search(ctx context.Context, term string, page, limit int) (*models.ProductPage, error) {
	if strings.TrimSpace(term) == "" {
		return nil, models.ErrEmptySearch
	}
	return s.List(ctx, models.ProductQuery{Search: term, Page: page, Limit: limit})
}

// Get retrieves a single product by its ID.
func (s *CatalogService) Get(ctx context.Context, id int64) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Categories returns the distinct product categories.
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	return s.repo.Categories(ctx)
}
