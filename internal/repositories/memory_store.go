package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
)

type memoryData struct {
	products map[int64]models.Product
	carts    map[string]models.Cart
	orders   map[string]models.Order
	orderIDs []string // insertion order
	users    map[string]models.User
}

func (d *memoryData) clone() *memoryData {
	cp := &memoryData{
		products: make(map[int64]models.Product, len(d.products)),
		carts:    make(map[string]models.Cart, len(d.carts)),
		orders:   make(map[string]models.Order, len(d.orders)),
		orderIDs: append([]string(nil), d.orderIDs...),
		users:    make(map[string]models.User, len(d.users)),
	}
	for k, v := range d.products {
		cp.products[k] = v
	}
	for k, v := range d.carts {
		cp.carts[k] = *v.Clone()
	}
	for k, v := range d.orders {
		cp.orders[k] = v
	}
	for k, v := range d.users {
		cp.users[k] = v
	}
	return cp
}

// MemoryStore is an in-memory implementation of Store.
//
// Atomic holds the write lock for the whole scope and restores a snapshot if
// fn fails, so a scope is serialized against every other operation.
type MemoryStore struct {
	mu   *sync.RWMutex
	data *memoryData
	inTx bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.RWMutex{},
		data: &memoryData{
			products: make(map[int64]models.Product),
			carts:    make(map[string]models.Cart),
			orders:   make(map[string]models.Order),
			users:    make(map[string]models.User),
		},
	}
}

func (s *MemoryStore) Products() ProductRepository { return &memoryProducts{s} }
func (s *MemoryStore) Carts() CartRepository       { return &memoryCarts{s} }
func (s *MemoryStore) Orders() OrderRepository     { return &memoryOrders{s} }
func (s *MemoryStore) Users() UserRepository       { return &memoryUsers{s} }

func (s *MemoryStore) Close() error { return nil }

// Atomic runs fn under the store write lock.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &MemoryStore{mu: s.mu, data: s.data, inTx: true}
	if err := fn(ctx, tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type memoryProducts struct{ s *MemoryStore }

func (r *memoryProducts) matching(filter models.ProductFilter) []models.Product {
	search := strings.ToLower(filter.Search)
	out := make([]models.Product, 0, len(r.s.data.products))
	for _, p := range r.s.data.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func productLess(a, b models.Product, field string) (less, equal bool) {
	switch field {
	case "price":
		c := a.Price.Cmp(b.Price)
		return c < 0, c == 0
	case "rating":
		return a.Rating < b.Rating, a.Rating == b.Rating
	case "title":
		return a.Title < b.Title, a.Title == b.Title
	default:
		return a.ID < b.ID, a.ID == b.ID
	}
}

func (r *memoryProducts) List(_ context.Context, filter models.ProductFilter, spec models.SortSpec, offset, limit int) ([]models.Product, error) {
	defer r.s.rlock()()

	products := r.matching(filter)
	sort.SliceStable(products, func(i, j int) bool {
		less, equal := productLess(products[i], products[j], spec.Field)
		if equal {
			return products[i].ID < products[j].ID
		}
		if spec.Descending {
			return !less
		}
		return less
	})

	if offset >= len(products) {
		return []models.Product{}, nil
	}
	end := offset + limit
	if end > len(products) {
		end = len(products)
	}
	return products[offset:end], nil
}

func (r *memoryProducts) Count(_ context.Context, filter models.ProductFilter) (int64, error) {
	defer r.s.rlock()()
	return int64(len(r.matching(filter))), nil
}

func (r *memoryProducts) GetByID(_ context.Context, id int64) (*models.Product, error) {
	defer r.s.rlock()()

	product, ok := r.s.data.products[id]
	if !ok {
		return nil, models.NewNotFound("product", id)
	}
	return &product, nil
}

func (r *memoryProducts) Categories(_ context.Context) ([]string, error) {
	defer r.s.rlock()()

	seen := make(map[string]struct{})
	categories := []string{}
	for _, p := range r.s.data.products {
		if _, ok := seen[p.Category]; ok || p.Category == "" {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

func (r *memoryProducts) Create(_ context.Context, product *models.Product) error {
	defer r.s.lock()()

	if _, ok := r.s.data.products[product.ID]; ok {
		return fmt.Errorf("product with ID %d already exists", product.ID)
	}
	r.s.data.products[product.ID] = *product
	return nil
}

func (r *memoryProducts) DecrementStock(_ context.Context, id int64, qty int) (*models.Product, error) {
	defer r.s.lock()()

	product, ok := r.s.data.products[id]
	if !ok {
		return nil, models.NewNotFound("product", id)
	}
	if product.Stock < qty {
		return nil, &models.InsufficientStockError{ProductID: id, Title: product.Title, Available: product.Stock, Requested: qty}
	}
	product.Stock -= qty
	r.s.data.products[id] = product
	return &product, nil
}

type memoryCarts struct{ s *MemoryStore }

func (r *memoryCarts) Get(_ context.Context, userID string) (*models.Cart, error) {
	defer r.s.rlock()()

	cart, ok := r.s.data.carts[userID]
	if !ok {
		return nil, models.NewNotFound("cart", userID)
	}
	return cart.Clone(), nil
}

func (r *memoryCarts) Save(_ context.Context, cart *models.Cart, expectedVersion int64) error {
	defer r.s.lock()()

	current, ok := r.s.data.carts[cart.UserID]
	switch {
	case expectedVersion == 0 && ok:
		return models.ErrCartConflict
	case expectedVersion != 0 && (!ok || current.Version != expectedVersion):
		return models.ErrCartConflict
	}
	cart.Version = expectedVersion + 1
	cart.UpdatedAt = time.Now()
	r.s.data.carts[cart.UserID] = *cart.Clone()
	return nil
}

type memoryOrders struct{ s *MemoryStore }

func (r *memoryOrders) Create(_ context.Context, order *models.Order) error {
	defer r.s.lock()()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if _, ok := r.s.data.orders[order.ID]; ok {
		return fmt.Errorf("order with ID %s already exists", order.ID)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	r.s.data.orders[order.ID] = *order
	r.s.data.orderIDs = append(r.s.data.orderIDs, order.ID)
	return nil
}

func (r *memoryOrders) GetByID(_ context.Context, id string) (*models.Order, error) {
	defer r.s.rlock()()

	order, ok := r.s.data.orders[id]
	if !ok {
		return nil, models.NewNotFound("order", id)
	}
	return &order, nil
}

func (r *memoryOrders) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	defer r.s.rlock()()

	orders := []models.Order{}
	for _, id := range r.s.data.orderIDs {
		if o := r.s.data.orders[id]; o.UserID == userID {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

type memoryUsers struct{ s *MemoryStore }

func (r *memoryUsers) Create(_ context.Context, user *models.User) error {
	defer r.s.lock()()

	for _, u := range r.s.data.users {
		if strings.EqualFold(u.Email, user.Email) {
			return models.ErrDuplicateEmail
		}
		if u.Username == user.Username {
			return models.ErrDuplicateUsername
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	r.s.data.users[user.ID] = *user
	return nil
}

func (r *memoryUsers) find(match func(models.User) bool, key string) (*models.User, error) {
	defer r.s.rlock()()

	for _, u := range r.s.data.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, models.NewNotFound("user", key)
}

func (r *memoryUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username }, username)
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return strings.EqualFold(u.Email, email) }, email)
}

func (r *memoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id }, id)
}
