package services_test

import (
	"context"
	"path/filepath"
	"testing"

	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil && user.ID == "" {
		user.ID = "user-123"
	}
	return args.Error(0)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockProductRepository is a mock implementation of repositories.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) List(ctx context.Context, filter models.ProductFilter, spec models.SortSpec, offset, limit int) ([]models.Product, error) {
	args := m.Called(ctx, filter, spec, offset, limit)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductRepository) Count(ctx context.Context, filter models.ProductFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) Categories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, product *models.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockProductRepository) DecrementStock(ctx context.Context, id int64, qty int) (*models.Product, error) {
	args := m.Called(ctx, id, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

// MockEventPublisher records published order events.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func newProduct(id int64, title string, price string, stock int) models.Product {
	return models.Product{
		ID:       id,
		Title:    title,
		Category: "general",
		Price:    decimal.RequireFromString(price),
		Rating:   4,
		Stock:    stock,
	}
}

func seededStore(t *testing.T, products ...models.Product) *repositories.MemoryStore {
	t.Helper()
	store := repositories.NewMemoryStore()
	seed(t, store, products)
	return store
}

// seededSQLiteStore opens a file-backed SQLite store so concurrent checkouts
// go through real database transactions.
func seededSQLiteStore(t *testing.T, products ...models.Product) repositories.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "shop.db") + "?_busy_timeout=5000"
	db, err := repositories.OpenGORM("sqlite", dsn, logging.Discard())
	require.NoError(t, err)
	store := repositories.NewGORMStore(db)
	t.Cleanup(func() { _ = store.Close() })
	seed(t, store, products)
	return store
}

type seededFactory func(t *testing.T, products ...models.Product) repositories.Store

func seededBackends() map[string]seededFactory {
	return map[string]seededFactory{
		"memory": func(t *testing.T, products ...models.Product) repositories.Store { return seededStore(t, products...) },
		"sqlite": seededSQLiteStore,
	}
}

func seed(t *testing.T, store repositories.Store, products []models.Product) {
	t.Helper()
	for i := range products {
		p := products[i]
		require.NoError(t, store.Products().Create(context.Background(), &p))
	}
}

// staleCartStore hands checkout a cart one version behind the stored one, as
// if an add landed between the cart read and the cart clear.
type staleCartStore struct {
	repositories.Store
}

func (s staleCartStore) Carts() repositories.CartRepository {
	return staleCarts{s.Store.Carts()}
}

func (s staleCartStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) error {
	return s.Store.Atomic(ctx, func(ctx context.Context, tx repositories.Store) error {
		return fn(ctx, staleCartStore{tx})
	})
}

type staleCarts struct {
	repositories.CartRepository
}

func (c staleCarts) Get(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := c.CartRepository.Get(ctx, userID)
	if err == nil {
		cart.Version--
	}
	return cart, err
}

func stockOf(t *testing.T, store repositories.Store, id int64) int {
	t.Helper()
	p, err := store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}
